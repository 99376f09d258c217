package connector

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/storage"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

// localSubsets are the subsets whose ground truth is distributed.
var localSubsets = map[string]bool{dataset.Train: true, dataset.Val: true, dataset.TrainVal: true}

// Local runs the evaluation service in process against a dataset on disk.
type Local struct {
	cfg Config

	mu      sync.Mutex
	store   *storage.Store
	svc     *evaluation.Service
	tempDir string
}

// NewLocal prepares a local connector. The dataset and the result store are
// opened when the session starts.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.DatasetRoot == "" {
		return nil, fault.Errorf(fault.ErrSetup, "local evaluation needs a dataset root")
	}
	if cfg.SessionKey == "" {
		return nil, fault.Errorf(fault.ErrSetup, "missing session key")
	}
	if cfg.UserKey == "" {
		cfg.UserKey = defaultUserKey()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Local{cfg: cfg}, nil
}

func defaultUserKey() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// UserKey returns the key results are recorded under.
func (l *Local) UserKey() string { return l.cfg.UserKey }

// StartSession implements Connector.
func (l *Local) StartSession(ctx context.Context, subset string, shuffled bool, maxTime *time.Duration, maxInteractions *int) (StartResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.svc != nil {
		return StartResult{}, fault.Errorf(fault.ErrUsage, "session already started")
	}
	if !localSubsets[subset] {
		return StartResult{}, fault.Errorf(fault.ErrInvalidInput, "subset %q is not available locally, use train, val or trainval", subset)
	}

	var opts []dataset.Option
	if l.cfg.FileSystem != nil {
		opts = append(opts, dataset.WithFileSystem(l.cfg.FileSystem))
	}
	ds, err := dataset.New(l.cfg.DatasetRoot, l.cfg.Registry, opts...)
	if err != nil {
		return StartResult{}, err
	}

	svcCfg := evaluation.DefaultServiceConfig()
	svcCfg.Subset = subset
	svcCfg.MaxTime = maxTime
	svcCfg.MaxInteractions = maxInteractions
	if l.cfg.Metric != "" {
		svcCfg.Metric = l.cfg.Metric
	}
	if l.cfg.TimeThreshold > 0 {
		svcCfg.TimeThreshold = l.cfg.TimeThreshold
	}
	if l.cfg.Robot != nil {
		svcCfg.Robot = *l.cfg.Robot
	}

	if err := l.openStore(); err != nil {
		return StartResult{}, err
	}
	svc, err := evaluation.NewService(ds, l.store, svcCfg, evaluation.WithClock(l.cfg.Clock))
	if err != nil {
		return StartResult{}, err
	}
	if err := svc.CheckFiles(ctx); err != nil {
		return StartResult{}, err
	}
	if err := l.store.RecordSession(ctx, l.cfg.SessionKey, l.cfg.UserKey, subset); err != nil {
		return StartResult{}, err
	}
	l.svc = svc

	samples := svc.Samples()
	if shuffled {
		shuffle(l.cfg, samples)
	}
	eff := svc.Config()
	monitoring.Opsf("local session %s started for %s on %s", l.cfg.SessionKey, l.cfg.UserKey, subset)
	return StartResult{Samples: samples, MaxTime: eff.MaxTime, MaxInteractions: eff.MaxInteractions}, nil
}

func (l *Local) openStore() error {
	if l.store != nil {
		return nil
	}
	path := l.cfg.DBPath
	if path == "" {
		dir, err := os.MkdirTemp("", "interactive-eval-")
		if err != nil {
			return fmt.Errorf("%w: create result directory: %w", fault.ErrSetup, err)
		}
		l.tempDir = dir
		path = filepath.Join(dir, "results.db")
	}
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	l.store = store
	return nil
}

func (l *Local) service() (*evaluation.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.svc == nil {
		return nil, fault.Errorf(fault.ErrUsage, "session not started")
	}
	return l.svc, nil
}

// SeedScribble implements Connector.
func (l *Local) SeedScribble(_ context.Context, sequence string, idx int) (*scribble.Scribble, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	return svc.SeedScribble(sequence, idx)
}

// SubmitMasks implements Connector.
func (l *Local) SubmitMasks(ctx context.Context, sub evaluation.Submission) (*scribble.Scribble, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	sub.SessionID = l.cfg.SessionKey
	return svc.PostPredictedMasks(ctx, sub)
}

// Report implements Connector.
func (l *Local) Report(ctx context.Context) ([]report.Row, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	return svc.Report(ctx, l.cfg.SessionKey)
}

// Summary implements Connector.
func (l *Local) Summary(ctx context.Context) (*evaluation.Summary, error) {
	svc, err := l.service()
	if err != nil {
		return nil, err
	}
	sum, err := svc.Summarize(ctx, l.cfg.SessionKey)
	if err != nil {
		return nil, err
	}
	if err := l.store.FinishSession(ctx, l.cfg.SessionKey); err != nil {
		return nil, err
	}
	return sum, nil
}

// Close releases the result store and removes it when it was temporary.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.store != nil {
		err = multierr.Append(err, l.store.Close())
		l.store = nil
	}
	if l.tempDir != "" {
		err = multierr.Append(err, os.RemoveAll(l.tempDir))
		l.tempDir = ""
	}
	l.svc = nil
	return err
}
