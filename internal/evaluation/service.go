// Package evaluation scores submitted predictions, keeps the results and
// asks the robot for the next correction.
package evaluation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/metrics"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/robot"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/storage"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

// Budget caps applied to every configuration.
const (
	MaxTimeCap         = 10 * time.Minute
	MaxInteractionsCap = 16
)

// Sample is one (sequence, seed scribble) unit of evaluation.
type Sample struct {
	Sequence    string `json:"sequence"`
	ScribbleIdx int    `json:"scribble_idx"`
	NumObjects  int    `json:"num_objects"`
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Subset string
	// MaxTime is the time budget per object of a sample.
	MaxTime         *time.Duration
	MaxInteractions *int
	Metric          metrics.Metric
	TimeThreshold   time.Duration
	Robot           robot.Params
}

// DefaultServiceConfig returns the validation subset with a budget of eight
// interactions.
func DefaultServiceConfig() ServiceConfig {
	p := robot.DefaultParams()
	p.KernelSize = 0.2
	maxI := 8
	return ServiceConfig{
		Subset:          dataset.Val,
		MaxInteractions: &maxI,
		Metric:          metrics.JAndF,
		TimeThreshold:   60 * time.Second,
		Robot:           p,
	}
}

// Budgets clamps both budgets to their caps and rejects a configuration
// without any.
func Budgets(maxTime *time.Duration, maxInteractions *int) (*time.Duration, *int, error) {
	if maxTime == nil && maxInteractions == nil {
		return nil, nil, fault.Errorf(fault.ErrSetup, "max time and max interactions can not both be unset")
	}
	var t *time.Duration
	if maxTime != nil {
		v := min(*maxTime, MaxTimeCap)
		if v <= 0 {
			return nil, nil, fault.Errorf(fault.ErrInvalidInput, "max time must be positive")
		}
		t = &v
	}
	var i *int
	if maxInteractions != nil {
		v := min(*maxInteractions, MaxInteractionsCap)
		if v <= 0 {
			return nil, nil, fault.Errorf(fault.ErrInvalidInput, "max interactions must be positive")
		}
		i = &v
	}
	return t, i, nil
}

// Service evaluates one subset of a dataset.
type Service struct {
	ds     *dataset.Davis
	store  *storage.Store
	cfg    ServiceConfig
	robot  *robot.Robot
	clock  timeutil.Clock
	seqs   []string
	index  map[Sample]bool
	sample []Sample
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used to timestamp robot scribbles.
func WithClock(c timeutil.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService validates cfg and enumerates the samples of its subset.
func NewService(ds *dataset.Davis, store *storage.Store, cfg ServiceConfig, opts ...Option) (*Service, error) {
	if ds == nil || store == nil {
		return nil, fault.Errorf(fault.ErrSetup, "service needs a dataset and a store")
	}
	if _, err := metrics.ParseMetric(string(cfg.Metric)); err != nil {
		return nil, err
	}
	if cfg.TimeThreshold <= 0 {
		cfg.TimeThreshold = 60 * time.Second
	}
	var err error
	if cfg.MaxTime, cfg.MaxInteractions, err = Budgets(cfg.MaxTime, cfg.MaxInteractions); err != nil {
		return nil, err
	}
	seqs, err := ds.Registry().Subset(cfg.Subset)
	if err != nil {
		return nil, err
	}

	s := &Service{ds: ds, store: store, cfg: cfg, clock: timeutil.RealClock{}, seqs: seqs, index: map[Sample]bool{}}
	for _, o := range opts {
		o(s)
	}
	if s.robot, err = robot.New(cfg.Robot, robot.WithClock(s.clock)); err != nil {
		return nil, err
	}
	if s.sample, err = SamplesFor(ds.Registry(), cfg.Subset); err != nil {
		return nil, err
	}
	for _, smp := range s.sample {
		s.index[smp] = true
	}
	monitoring.Opsf("evaluation service for subset %s: %d sequences, %d samples", cfg.Subset, len(seqs), len(s.sample))
	return s, nil
}

// SamplesFor lists every (sequence, seed scribble) pair of a subset in
// sequence order.
func SamplesFor(reg *dataset.Registry, subset string) ([]Sample, error) {
	seqs, err := reg.Subset(subset)
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, seq := range seqs {
		info, _ := reg.Sequence(seq)
		for i := 1; i <= info.NumScribbles; i++ {
			out = append(out, Sample{Sequence: seq, ScribbleIdx: i, NumObjects: info.NumObjects})
		}
	}
	return out, nil
}

// Config returns the effective configuration.
func (s *Service) Config() ServiceConfig { return s.cfg }

// CheckFiles verifies the dataset holds every file the subset needs.
func (s *Service) CheckFiles(ctx context.Context) error {
	return s.ds.CheckFiles(ctx, s.seqs)
}

// Samples returns every sample of the subset in sequence order.
func (s *Service) Samples() []Sample {
	return slices.Clone(s.sample)
}

func (s *Service) sampleOf(sequence string, idx int) (Sample, error) {
	info, ok := s.ds.Registry().Sequence(sequence)
	if !ok || !slices.Contains(s.seqs, sequence) {
		return Sample{}, fault.Errorf(fault.ErrInvalidInput, "invalid sequence %q", sequence)
	}
	smp := Sample{Sequence: sequence, ScribbleIdx: idx, NumObjects: info.NumObjects}
	if !s.index[smp] {
		return Sample{}, fault.Errorf(fault.ErrInvalidInput, "invalid scribble index %d for %s", idx, sequence)
	}
	return smp, nil
}

// SeedScribble returns the pre-authored scribble that opens a sample.
func (s *Service) SeedScribble(sequence string, idx int) (*scribble.Scribble, error) {
	if _, err := s.sampleOf(sequence, idx); err != nil {
		return nil, err
	}
	return s.ds.LoadSeedScribble(sequence, idx)
}

// Submission is one predicted sequence handed in for scoring.
type Submission struct {
	SessionID   string
	Sequence    string
	ScribbleIdx int
	Pred        mask.Sequence
	// Timing is the prediction time in seconds.
	Timing      float64
	Interaction int
	// Candidates restricts the frames the next scribble may be drawn on.
	// Nil or empty means every frame.
	Candidates []int
}

// PostPredictedMasks scores sub, stores the result and returns the robot's
// correction for the worst remaining frame.
func (s *Service) PostPredictedMasks(ctx context.Context, sub Submission) (*scribble.Scribble, error) {
	if s.cfg.MaxInteractions != nil && sub.Interaction > *s.cfg.MaxInteractions {
		return nil, fmt.Errorf("%w: interaction %d is higher than the maximum number of interactions %d",
			fault.ErrInvalidInput, sub.Interaction, *s.cfg.MaxInteractions)
	}
	if sub.Interaction < 1 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "interaction %d should be higher than 0", sub.Interaction)
	}
	smp, err := s.sampleOf(sub.Sequence, sub.ScribbleIdx)
	if err != nil {
		return nil, err
	}

	gt, err := s.ds.LoadGroundTruth(sub.Sequence)
	if err != nil {
		return nil, err
	}
	ids := make([]int, smp.NumObjects)
	for i := range ids {
		ids[i] = i + 1
	}
	jac, err := metrics.Jaccard(gt, sub.Pred, ids)
	if err != nil {
		return nil, err
	}
	con, err := metrics.FMeasure(gt, sub.Pred, ids)
	if err != nil {
		return nil, err
	}

	in := storage.Interaction{
		SessionID:   sub.SessionID,
		Sequence:    sub.Sequence,
		ScribbleIdx: sub.ScribbleIdx,
		Interaction: sub.Interaction,
		Timing:      sub.Timing,
	}
	for f := range jac {
		for o, id := range ids {
			in.ObjectIDs = append(in.ObjectIDs, id)
			in.Frames = append(in.Frames, f)
			in.Jaccard = append(in.Jaccard, jac[f][o])
			in.Contour = append(in.Contour, con[f][o])
		}
	}
	frame, err := s.nextFrame(ctx, sub, s.frameScores(jac, con))
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreInteraction(ctx, in); err != nil {
		return nil, err
	}
	if err := s.store.StoreAnnotatedFrame(ctx, sub.SessionID, sub.Sequence, sub.ScribbleIdx, frame, len(sub.Candidates) > 0); err != nil {
		return nil, err
	}
	monitoring.Diagf("%s/%03d interaction %d: next scribble on frame %d", sub.Sequence, sub.ScribbleIdx, sub.Interaction, frame)

	return s.robot.Interact(sub.Sequence, sub.Pred, gt, robot.WithObjectCount(smp.NumObjects), robot.WithFrame(frame))
}

func (s *Service) frameScores(jac, con [][]float64) []float64 {
	switch s.cfg.Metric {
	case metrics.J:
		return metrics.FrameMeans(jac)
	case metrics.F:
		return metrics.FrameMeans(con)
	default:
		return metrics.FrameMeans(metrics.Combine(jac, con))
	}
}

// nextFrame picks the lowest scoring candidate that has not been annotated
// yet, falling back to every candidate once all were used. Nothing is
// stored.
func (s *Service) nextFrame(ctx context.Context, sub Submission, scores []float64) (int, error) {
	n := len(scores)
	override := len(sub.Candidates) > 0
	candidates := map[int]bool{}
	if override {
		for _, f := range sub.Candidates {
			if f >= 0 && f < n {
				candidates[f] = true
			}
		}
		if len(candidates) == 0 {
			return 0, fault.Errorf(fault.ErrInvalidInput, "no valid frame among candidates %v", sub.Candidates)
		}
	} else {
		for f := range n {
			candidates[f] = true
		}
	}

	used, err := s.store.AnnotatedFrames(ctx, sub.SessionID, sub.Sequence, sub.ScribbleIdx, n)
	if err != nil {
		return 0, err
	}
	open := map[int]bool{}
	for f := range candidates {
		if !slices.Contains(used, f) {
			open[f] = true
		}
	}
	if len(open) == 0 {
		open = candidates
	}

	best := -1
	for f := range n {
		if open[f] && (best < 0 || scores[f] < scores[best]) {
			best = f
		}
	}
	return best, nil
}

// Report returns the rows stored for a session.
func (s *Service) Report(ctx context.Context, sessionID string) ([]report.Row, error) {
	return s.store.Report(ctx, sessionID)
}

// Summarizer returns the summariser matching this service's subset and
// budgets.
func (s *Service) Summarizer() *Summarizer {
	return &Summarizer{
		Samples:         s.Samples(),
		MaxTime:         s.cfg.MaxTime,
		MaxInteractions: s.cfg.MaxInteractions,
		Metric:          s.cfg.Metric,
		TimeThreshold:   s.cfg.TimeThreshold,
	}
}

// Summarize scores the whole session.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	rows, err := s.store.Report(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Summarizer().Summarize(rows)
	if err != nil {
		return nil, err
	}
	sum.SessionID = sessionID
	return sum, nil
}
