// Package session drives a model through an interactive evaluation: it
// walks the samples, hands out scribbles, submits predictions and keeps
// the interaction and time budgets.
package session

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/banshee-data/interactive.eval/internal/connector"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/security"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

// State is the lifecycle stage of a Session.
type State int

const (
	NotStarted State = iota
	Running
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the session options. Budgets are requests: the connector may
// impose its own.
type Config struct {
	Subset          string
	Shuffle         bool
	MaxTime         *time.Duration
	MaxInteractions *int
	// ReportDir receives the CSV reports. Empty disables them.
	ReportDir  string
	FileSystem fsutil.FileSystem
	Clock      timeutil.Clock
}

// Correction is what the model receives at the start of an interaction.
type Correction struct {
	Sequence    string
	ScribbleIdx int
	Scribble    *scribble.Scribble
	// IsNew is set on the first interaction of a sample.
	IsNew bool
}

// Session is a single-owner evaluation run. It is not safe for concurrent
// use.
type Session struct {
	conn  connector.Connector
	cfg   Config
	clock timeutil.Clock
	fs    fsutil.FileSystem
	key   string

	state      State
	samples    []evaluation.Sample
	maxTime    *time.Duration
	maxI       *int
	reportName string

	sampleIdx    int
	interactions int
	sampleStart  time.Time
	accumulated  *scribble.Scribble
	last         *scribble.Scribble
	outstanding  bool
	requestStart time.Time
}

// NewKey returns a fresh session key.
func NewKey() string { return uuid.NewString() }

// New wraps conn. key identifies the session in logs and must match the key
// the connector was built with.
func New(conn connector.Connector, key string, cfg Config) *Session {
	s := &Session{conn: conn, cfg: cfg, clock: cfg.Clock, fs: cfg.FileSystem, key: key, sampleIdx: -1}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.fs == nil {
		s.fs = fsutil.OSFileSystem{}
	}
	s.reportName = "result_" + s.clock.Now().Format("20060102_150405")
	return s
}

// Dial builds the connector selected by connCfg under a new session key.
func Dial(connCfg connector.Config, cfg Config) (*Session, error) {
	if connCfg.SessionKey == "" {
		connCfg.SessionKey = NewKey()
	}
	if connCfg.Clock == nil {
		connCfg.Clock = cfg.Clock
	}
	conn, err := connector.New(connCfg)
	if err != nil {
		return nil, err
	}
	return New(conn, connCfg.SessionKey, cfg), nil
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// State returns the lifecycle stage.
func (s *Session) State() State { return s.state }

// Samples returns the samples in evaluation order.
func (s *Session) Samples() []evaluation.Sample {
	return append([]evaluation.Sample(nil), s.samples...)
}

// Budgets returns the budgets in force once started.
func (s *Session) Budgets() (*time.Duration, *int) { return s.maxTime, s.maxI }

// ReportName is the base name of the CSV reports.
func (s *Session) ReportName() string { return s.reportName }

// Start fetches the samples and budgets and prepares the report directory.
func (s *Session) Start(ctx context.Context) error {
	if s.state != NotStarted {
		return fault.Errorf(fault.ErrUsage, "session is %s", s.state)
	}
	if s.cfg.ReportDir != "" {
		if _, err := security.ReportPath(s.cfg.ReportDir, s.reportName+".csv"); err != nil {
			return err
		}
		if err := s.fs.MkdirAll(s.cfg.ReportDir, 0755); err != nil {
			return fmt.Errorf("%w: create report directory: %w", fault.ErrSetup, err)
		}
	}

	// Both budgets may be left to a remote server.
	var (
		reqTime *time.Duration
		reqI    *int
		err     error
	)
	if s.cfg.MaxTime != nil || s.cfg.MaxInteractions != nil {
		if reqTime, reqI, err = evaluation.Budgets(s.cfg.MaxTime, s.cfg.MaxInteractions); err != nil {
			return err
		}
	}
	res, err := s.conn.StartSession(ctx, s.cfg.Subset, s.cfg.Shuffle, reqTime, reqI)
	if err != nil {
		return err
	}
	s.maxTime, s.maxI = res.MaxTime, res.MaxInteractions
	if s.maxTime == nil {
		s.maxTime = reqTime
	}
	if s.maxI == nil {
		s.maxI = reqI
	}
	if s.maxTime == nil && s.maxI == nil {
		return fault.Errorf(fault.ErrSetup, "max time and max interactions can not both be unset")
	}
	if len(res.Samples) == 0 {
		return fault.Errorf(fault.ErrSetup, "no samples to evaluate")
	}
	s.samples = res.Samples
	s.state = Running
	monitoring.Opsf("started session %s with %d samples", s.key, len(s.samples))
	return nil
}

// Next moves to the next interaction, or to the next sample once the
// current one has spent its budget. It returns false when every sample is
// done, after writing the final report.
func (s *Session) Next(ctx context.Context) (bool, error) {
	switch s.state {
	case NotStarted:
		return false, fault.Errorf(fault.ErrUsage, "session not started")
	case Ended:
		return false, nil
	}
	if s.outstanding {
		return false, fault.Errorf(fault.ErrUsage, "submit the masks before moving on")
	}

	now := s.clock.Now()
	change := s.sampleIdx < 0
	if s.maxI != nil && s.interactions >= *s.maxI {
		monitoring.Opsf("maximum number of interactions reached")
		change = true
	}
	if s.maxTime != nil && s.sampleIdx >= 0 {
		budget := *s.maxTime * time.Duration(s.samples[s.sampleIdx].NumObjects)
		if now.Sub(s.sampleStart) > budget {
			monitoring.Opsf("maximum time per sample reached")
			change = true
		}
	}
	if change {
		s.sampleIdx = max(s.sampleIdx+1, 0)
		s.interactions = 0
		s.sampleStart = now
		s.accumulated, s.last = nil, nil
	}

	if s.sampleIdx >= len(s.samples) {
		s.state = Ended
		return false, s.writeFinalReport(ctx)
	}
	if change {
		monitoring.Opsf("start evaluation for sequence %s", s.samples[s.sampleIdx].Sequence)
	}
	return true, nil
}

// Scribbles returns the accumulated scribbles of the current sample, or
// only the last robot correction when onlyLast is set. The first call of a
// sample fetches its seed scribble.
func (s *Session) Scribbles(ctx context.Context, onlyLast bool) (Correction, error) {
	if s.state != Running || s.sampleIdx < 0 {
		return Correction{}, fault.Errorf(fault.ErrUsage, "call Next before asking for scribbles")
	}
	if s.outstanding {
		return Correction{}, fault.Errorf(fault.ErrUsage, "scribbles requested twice without submitting masks")
	}
	smp := s.samples[s.sampleIdx]
	isNew := false
	if s.interactions == 0 && s.accumulated == nil {
		seed, err := s.conn.SeedScribble(ctx, smp.Sequence, smp.ScribbleIdx)
		if err != nil {
			return Correction{}, err
		}
		s.accumulated, s.last = seed, seed
		isNew = true
	}
	s.requestStart = s.clock.Now()
	s.outstanding = true

	sc := s.accumulated
	if onlyLast {
		sc = s.last
	}
	monitoring.Diagf("giving scribble for %s/%03d to the model", smp.Sequence, smp.ScribbleIdx)
	return Correction{Sequence: smp.Sequence, ScribbleIdx: smp.ScribbleIdx, Scribble: sc.Clone(), IsNew: isNew}, nil
}

// SubmitMasks hands in the prediction for the outstanding request. When the
// connector rejects it the request stays outstanding.
func (s *Session) SubmitMasks(ctx context.Context, pred mask.Sequence, candidates []int) error {
	if !s.outstanding {
		return fault.Errorf(fault.ErrUsage, "call Scribbles before submitting masks")
	}
	timing := s.clock.Now().Sub(s.requestStart)
	monitoring.Diagf("the model took %.3f seconds to make a prediction", timing.Seconds())

	smp := s.samples[s.sampleIdx]
	next, err := s.conn.SubmitMasks(ctx, evaluation.Submission{
		Sequence:    smp.Sequence,
		ScribbleIdx: smp.ScribbleIdx,
		Pred:        pred,
		Timing:      timing.Seconds(),
		Interaction: s.interactions + 1,
		Candidates:  candidates,
	})
	if err != nil {
		return err
	}
	fused, err := scribble.Fuse(s.accumulated, next)
	if err != nil {
		return err
	}
	s.interactions++
	s.accumulated, s.last = fused, next
	s.outstanding = false
	return s.writeReport(ctx, ".tmp.csv")
}

// Corrections iterates Next and Scribbles. The loop body must submit masks
// before continuing; an error ends the iteration.
func (s *Session) Corrections(ctx context.Context, onlyLast bool) iter.Seq2[Correction, error] {
	return func(yield func(Correction, error) bool) {
		for {
			ok, err := s.Next(ctx)
			if err != nil {
				yield(Correction{}, err)
				return
			}
			if !ok {
				return
			}
			c, err := s.Scribbles(ctx, onlyLast)
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// Report returns the rows recorded so far.
func (s *Session) Report(ctx context.Context) ([]report.Row, error) {
	if s.state == NotStarted {
		return nil, fault.Errorf(fault.ErrUsage, "session not started")
	}
	return s.conn.Report(ctx)
}

// Summary scores the session.
func (s *Session) Summary(ctx context.Context) (*evaluation.Summary, error) {
	if s.state == NotStarted {
		return nil, fault.Errorf(fault.ErrUsage, "session not started")
	}
	return s.conn.Summary(ctx)
}

// Close releases the connector. It is safe to call more than once.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.state = Ended
	return err
}

func (s *Session) writeReport(ctx context.Context, suffix string) error {
	if s.cfg.ReportDir == "" {
		return nil
	}
	rows, err := s.conn.Report(ctx)
	if err != nil {
		return err
	}
	path, err := security.ReportPath(s.cfg.ReportDir, s.reportName+suffix)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		return err
	}
	if err := s.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// writeFinalReport stores the final CSV and drops the temporary one.
func (s *Session) writeFinalReport(ctx context.Context) error {
	if s.cfg.ReportDir == "" {
		return nil
	}
	err := s.writeReport(ctx, ".csv")
	tmp, perr := security.ReportPath(s.cfg.ReportDir, s.reportName+".tmp.csv")
	err = multierr.Append(err, perr)
	if perr == nil && s.fs.Exists(tmp) {
		err = multierr.Append(err, s.fs.Remove(tmp))
	}
	if err == nil {
		monitoring.Opsf("report written to %s", s.cfg.ReportDir)
	}
	return err
}
