package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/interactive.eval/internal/connector"
	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/dataset/datasettest"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/testutil"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

func ptr[T any](v T) *T { return &v }

// fakeConnector answers every call with empty scribbles of 69 frames.
type fakeConnector struct {
	samples     []evaluation.Sample
	maxTime     *time.Duration
	maxI        *int
	seedCalls   int
	submissions []evaluation.Submission
	submitErr   error
	rows        []report.Row
	closed      int
}

func (f *fakeConnector) StartSession(_ context.Context, _ string, _ bool, _ *time.Duration, _ *int) (connector.StartResult, error) {
	return connector.StartResult{Samples: f.samples, MaxTime: f.maxTime, MaxInteractions: f.maxI}, nil
}

func (f *fakeConnector) SeedScribble(_ context.Context, sequence string, _ int) (*scribble.Scribble, error) {
	f.seedCalls++
	return scribble.New(sequence, 69), nil
}

func (f *fakeConnector) SubmitMasks(_ context.Context, sub evaluation.Submission) (*scribble.Scribble, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submissions = append(f.submissions, sub)
	s := scribble.New(sub.Sequence, 69)
	s.Scribbles[sub.Interaction] = []scribble.Line{{Path: [][2]float64{{0.1, 0.1}, {0.2, 0.2}}, ObjectID: 1}}
	f.rows = append(f.rows, report.Row{SessionID: "k", Sequence: sub.Sequence, ScribbleIdx: sub.ScribbleIdx, Interaction: sub.Interaction, ObjectID: 1, Timing: sub.Timing})
	return s, nil
}

func (f *fakeConnector) Report(context.Context) ([]report.Row, error) { return f.rows, nil }

func (f *fakeConnector) Summary(context.Context) (*evaluation.Summary, error) {
	return &evaluation.Summary{SessionID: "k"}, nil
}

func (f *fakeConnector) Close() error {
	f.closed++
	return nil
}

func twoBearSamples() []evaluation.Sample {
	return []evaluation.Sample{
		{Sequence: "bear", ScribbleIdx: 2, NumObjects: 1},
		{Sequence: "bear", ScribbleIdx: 1, NumObjects: 1},
	}
}

func TestInteractionBudget(t *testing.T) {
	conn := &fakeConnector{samples: twoBearSamples(), maxTime: ptr(5 * time.Second)}
	s := New(conn, "k", Config{MaxInteractions: ptr(5), Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	for i := range 7 {
		ok, err := s.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok, "round %d", i)
		c, err := s.Scribbles(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "bear", c.Sequence)
		if i%5 == 0 {
			assert.True(t, c.IsNew, "round %d", i)
			assert.True(t, c.Scribble.IsEmpty())
		} else {
			assert.False(t, c.IsNew, "round %d", i)
		}
		require.NoError(t, s.SubmitMasks(ctx, nil, nil))
	}

	assert.Equal(t, 2, conn.seedCalls)
	require.Len(t, conn.submissions, 7)
	var got []string
	for _, sub := range conn.submissions {
		got = append(got, fmt.Sprintf("%d/%d", sub.ScribbleIdx, sub.Interaction))
	}
	assert.Equal(t, []string{"2/1", "2/2", "2/3", "2/4", "2/5", "1/1", "1/2"}, got)
}

func TestSessionRunsToEnd(t *testing.T) {
	conn := &fakeConnector{samples: twoBearSamples()}
	s := New(conn, "k", Config{MaxInteractions: ptr(2)})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	rounds := 0
	for c, err := range s.Corrections(ctx, false) {
		require.NoError(t, err)
		assert.Equal(t, rounds%2 == 0, c.IsNew)
		require.NoError(t, s.SubmitMasks(ctx, nil, []int{0}))
		rounds++
	}
	assert.Equal(t, 4, rounds)
	assert.Equal(t, Ended, s.State())

	ok, err := s.Next(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.closed)
}

func TestAccumulatedScribbles(t *testing.T) {
	conn := &fakeConnector{samples: twoBearSamples()[:1]}
	s := New(conn, "k", Config{MaxInteractions: ptr(4)})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	for range 3 {
		_, err := s.Next(ctx)
		require.NoError(t, err)
		_, err = s.Scribbles(ctx, false)
		require.NoError(t, err)
		require.NoError(t, s.SubmitMasks(ctx, nil, nil))
	}
	ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := s.Scribbles(ctx, false)
	require.NoError(t, err)
	assert.False(t, all.IsNew)
	assert.Equal(t, []int{1, 2, 3}, all.Scribble.AnnotatedFrames())
	require.NoError(t, s.SubmitMasks(ctx, nil, nil))

	last, err := s.Scribbles(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, last.Scribble.AnnotatedFrames())

	last.Scribble.Scribbles[0] = append(last.Scribble.Scribbles[0], scribble.Line{})
	assert.Empty(t, s.last.Scribbles[0], "returned scribble aliases session state")
}

func TestTimeBudget(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	conn := &fakeConnector{samples: []evaluation.Sample{
		{Sequence: "dog", ScribbleIdx: 1, NumObjects: 2},
		{Sequence: "cat", ScribbleIdx: 1, NumObjects: 1},
	}}
	s := New(conn, "k", Config{MaxTime: ptr(10 * time.Second), Clock: clock})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	round := func() string {
		t.Helper()
		ok, err := s.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return ""
		}
		c, err := s.Scribbles(ctx, false)
		require.NoError(t, err)
		clock.Advance(8 * time.Second)
		require.NoError(t, s.SubmitMasks(ctx, nil, nil))
		return c.Sequence
	}
	// Dog has 20 s for its two objects; its third round starts at 16 s.
	assert.Equal(t, "dog", round())
	assert.Equal(t, "dog", round())
	assert.Equal(t, "dog", round())
	assert.Equal(t, "cat", round())
	assert.Equal(t, "cat", round())
	assert.Equal(t, "", round())

	require.Len(t, conn.submissions, 5)
	assert.InDelta(t, 8.0, conn.submissions[0].Timing, 1e-9)
}

func TestProtocolMisuse(t *testing.T) {
	conn := &fakeConnector{samples: twoBearSamples()}
	s := New(conn, "k", Config{MaxInteractions: ptr(5)})
	ctx := context.Background()

	_, err := s.Next(ctx)
	testutil.AssertFault(t, err, fault.ErrUsage)
	_, err = s.Report(ctx)
	testutil.AssertFault(t, err, fault.ErrUsage)

	require.NoError(t, s.Start(ctx))
	testutil.AssertFault(t, s.Start(ctx), fault.ErrUsage)

	_, err = s.Scribbles(ctx, false)
	testutil.AssertFault(t, err, fault.ErrUsage)
	testutil.AssertFault(t, s.SubmitMasks(ctx, nil, nil), fault.ErrUsage)

	_, err = s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Scribbles(ctx, false)
	require.NoError(t, err)
	_, err = s.Scribbles(ctx, false)
	testutil.AssertFault(t, err, fault.ErrUsage)
	_, err = s.Next(ctx)
	testutil.AssertFault(t, err, fault.ErrUsage)
}

func TestRejectedSubmissionStaysOutstanding(t *testing.T) {
	conn := &fakeConnector{samples: twoBearSamples(), submitErr: fault.Errorf(fault.ErrConsistency, "interaction 1 already stored")}
	s := New(conn, "k", Config{MaxInteractions: ptr(5)})
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	_, err := s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Scribbles(ctx, false)
	require.NoError(t, err)

	testutil.AssertFault(t, s.SubmitMasks(ctx, nil, nil), fault.ErrConsistency)
	conn.submitErr = nil
	require.NoError(t, s.SubmitMasks(ctx, nil, nil))
	assert.Equal(t, 1, conn.submissions[0].Interaction)
}

func TestStartNeedsBudget(t *testing.T) {
	s := New(&fakeConnector{samples: twoBearSamples()}, "k", Config{})
	testutil.AssertFault(t, s.Start(context.Background()), fault.ErrSetup)

	s = New(&fakeConnector{samples: twoBearSamples()}, "k", Config{MaxInteractions: ptr(0)})
	testutil.AssertFault(t, s.Start(context.Background()), fault.ErrInvalidInput)

	s = New(&fakeConnector{}, "k", Config{MaxInteractions: ptr(3)})
	testutil.AssertFault(t, s.Start(context.Background()), fault.ErrSetup)

	conn := &fakeConnector{samples: twoBearSamples(), maxI: ptr(4)}
	s = New(conn, "k", Config{MaxInteractions: ptr(40), MaxTime: ptr(time.Hour)})
	require.NoError(t, s.Start(context.Background()))
	maxT, maxI := s.Budgets()
	assert.Equal(t, 4, *maxI)
	assert.Equal(t, evaluation.MaxTimeCap, *maxT)
}

func TestReportFiles(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	conn := &fakeConnector{samples: twoBearSamples()[:1]}
	s := New(conn, "k", Config{MaxInteractions: ptr(2), ReportDir: "/reports", FileSystem: fs, Clock: clock})
	assert.Equal(t, "result_20240102_030405", s.ReportName())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	tmp := "/reports/result_20240102_030405.tmp.csv"
	final := "/reports/result_20240102_030405.csv"
	count := 0
	for _, err := range s.Corrections(ctx, false) {
		require.NoError(t, err)
		require.NoError(t, s.SubmitMasks(ctx, nil, nil))
		count++

		data, err := fs.ReadFile(tmp)
		require.NoError(t, err)
		rows, err := report.ReadCSV(strings.NewReader(string(data)))
		require.NoError(t, err)
		assert.Len(t, rows, count)
		assert.False(t, fs.Exists(final))
	}
	assert.Equal(t, 2, count)
	assert.False(t, fs.Exists(tmp))
	assert.Equal(t, []string{final}, fs.Files("/reports"))
}

func TestLocalIntegration(t *testing.T) {
	bear := datasettest.Simple("bear", dataset.Train, 2, 1, 2, 48, 32)
	fs := fsutil.NewMemoryFileSystem()
	datasettest.Write(t, fs, bear)

	s, err := Dial(connector.Config{
		DatasetRoot: datasettest.Root,
		DBPath:      filepath.Join(t.TempDir(), "results.db"),
		FileSystem:  fs,
		UserKey:     "tester",
	}, Config{
		Subset:          dataset.Train,
		MaxInteractions: ptr(3),
		ReportDir:       "/reports",
		FileSystem:      fs,
	})
	require.NoError(t, err)
	defer s.Close()
	assert.NotEmpty(t, s.Key())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	count := 0
	for c, err := range s.Corrections(ctx, false) {
		require.NoError(t, err)
		assert.Equal(t, "bear", c.Sequence)
		assert.Len(t, c.Scribble.Scribbles, 2)
		assert.False(t, c.Scribble.IsEmpty())
		require.NoError(t, s.SubmitMasks(ctx, mask.NewSequence(2, 48, 32), nil))
		count++
	}
	assert.Equal(t, 6, count)

	rows, err := s.Report(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 12)
	for _, r := range rows {
		assert.Equal(t, s.Key(), r.SessionID)
	}
	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Key(), sum.SessionID)
	assert.Zero(t, sum.AUC)
	assert.Len(t, fs.Files("/reports"), 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func TestLocalRejectedSubmissionRetry(t *testing.T) {
	bear := datasettest.Simple("bear", dataset.Train, 2, 1, 1, 48, 32)
	fs := fsutil.NewMemoryFileSystem()
	datasettest.Write(t, fs, bear)

	s, err := Dial(connector.Config{
		DatasetRoot: datasettest.Root,
		DBPath:      filepath.Join(t.TempDir(), "results.db"),
		FileSystem:  fs,
		UserKey:     "tester",
	}, Config{Subset: dataset.Train, MaxInteractions: ptr(2)})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	more, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, more)
	_, err = s.Scribbles(ctx, false)
	require.NoError(t, err)

	pred := mask.NewSequence(2, 48, 32)
	err = s.SubmitMasks(ctx, pred, []int{99})
	require.ErrorIs(t, err, fault.ErrInvalidInput)
	require.NoError(t, s.SubmitMasks(ctx, pred, nil), "retry after a rejected submission")

	more, err = s.Next(ctx)
	require.NoError(t, err)
	require.True(t, more)
	c, err := s.Scribbles(ctx, true)
	require.NoError(t, err)
	assert.False(t, c.IsNew)
	require.NoError(t, s.SubmitMasks(ctx, pred, nil))

	rows, err := s.Report(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "2 interactions x 2 frames")
}
