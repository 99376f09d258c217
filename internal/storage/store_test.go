package storage

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tailscale.com/tsweb"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func interaction(session string, i int) Interaction {
	return Interaction{
		SessionID:   session,
		Sequence:    "bear",
		ScribbleIdx: 1,
		Interaction: i,
		Timing:      2.5,
		ObjectIDs:   []int{1, 2, 1, 2},
		Frames:      []int{0, 0, 1, 1},
		Jaccard:     []float64{0.5, 1, 0, 0.25},
		Contour:     []float64{0.5, 0, 1, 0.75},
	}
}

func TestOpenMigratesAndSetsPragmas(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var journal string
	require.NoError(t, s.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)
	var busy int
	require.NoError(t, s.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)
}

func TestMigrateDownUp(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, s.MigrateUp())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestStoreInteractionAndReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", 1)))
	require.NoError(t, s.StoreInteraction(ctx, interaction("a", 2)))
	require.NoError(t, s.StoreInteraction(ctx, interaction("b", 1)))

	rows, err := s.Report(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 8)
	first := rows[0]
	assert.Equal(t, "a", first.SessionID)
	assert.Equal(t, 1, first.Interaction)
	assert.Equal(t, 1, first.ObjectID)
	assert.InDelta(t, 0.5, first.JAndF, 1e-12)
	assert.InDelta(t, 0.5, rows[1].JAndF, 1e-12)
	assert.Equal(t, 2, rows[7].Interaction)
	assert.Equal(t, 2.5, rows[7].Timing)

	empty, err := s.Report(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoreInteractionConsistency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.StoreInteraction(ctx, interaction("a", 2))
	assert.ErrorIs(t, err, fault.ErrConsistency, "missing previous interaction")

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", 1)))
	err = s.StoreInteraction(ctx, interaction("a", 1))
	assert.ErrorIs(t, err, fault.ErrConsistency, "duplicate interaction")

	rows, err := s.Report(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, rows, 4, "rejected interactions store nothing")
}

func TestStoreInteractionValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := map[string]func(*Interaction){
		"jaccard above one": func(in *Interaction) { in.Jaccard[0] = 1.5 },
		"negative contour":  func(in *Interaction) { in.Contour[1] = -0.1 },
		"length mismatch":   func(in *Interaction) { in.Frames = in.Frames[:2] },
		"empty":             func(in *Interaction) { *in = Interaction{Interaction: 1} },
		"zero interaction":  func(in *Interaction) { in.Interaction = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := interaction("v", 1)
			mutate(&in)
			assert.ErrorIs(t, s.StoreInteraction(ctx, in), fault.ErrInvalidInput)
		})
	}
}

func TestAnnotatedFrames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	frames, err := s.AnnotatedFrames(ctx, "a", "bear", 1, 3)
	require.NoError(t, err)
	assert.Empty(t, frames)

	require.NoError(t, s.StoreAnnotatedFrame(ctx, "a", "bear", 1, 2, false))
	require.NoError(t, s.StoreAnnotatedFrame(ctx, "a", "bear", 1, 0, true))
	require.NoError(t, s.StoreAnnotatedFrame(ctx, "a", "bear", 1, 2, false))
	require.NoError(t, s.StoreAnnotatedFrame(ctx, "a", "bear", 2, 1, false))

	frames, err = s.AnnotatedFrames(ctx, "a", "bear", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, frames)

	require.NoError(t, s.StoreAnnotatedFrame(ctx, "a", "bear", 1, 1, false))
	frames, err = s.AnnotatedFrames(ctx, "a", "bear", 1, 3)
	require.NoError(t, err)
	assert.Empty(t, frames, "history resets once every frame is used")
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSession(ctx, "a", "alice", "test-dev"))
	require.NoError(t, s.RecordSession(ctx, "b", "bob", "test-dev"))
	require.NoError(t, s.RecordSession(ctx, "a", "alice", "test-dev"))
	require.NoError(t, s.FinishSession(ctx, "a"))

	all, err := s.Sessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	mine, err := s.Sessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Finished)

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", 1)))
	require.NoError(t, s.DeleteSession(ctx, "a"))
	rows, err := s.Report(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, rows)
	all, err = s.Sessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdminBackup(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreInteraction(context.Background(), interaction("a", 1)))

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(tsweb.Debugger(mux)))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusNotFound, rec.Code, "backup route not registered")
	if rec.Code != http.StatusOK {
		// Debug access is restricted by the caller's address.
		t.Skipf("debug access denied: %d", rec.Code)
	}

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
