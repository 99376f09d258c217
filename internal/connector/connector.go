// Package connector links an evaluation session to an evaluation service,
// either in process or over HTTP.
package connector

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/httputil"
	"github.com/banshee-data/interactive.eval/internal/metrics"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/robot"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

// LocalHost selects the in-process connector.
const LocalHost = "localhost"

// StartResult is what a session needs to run: its samples and the budgets
// the service enforces.
type StartResult struct {
	Samples         []evaluation.Sample
	MaxTime         *time.Duration
	MaxInteractions *int
}

// Connector is the session's view of an evaluation service.
type Connector interface {
	// StartSession fetches the samples of subset. The returned budgets are
	// the ones in force, which may differ from those requested.
	StartSession(ctx context.Context, subset string, shuffle bool, maxTime *time.Duration, maxInteractions *int) (StartResult, error)
	SeedScribble(ctx context.Context, sequence string, idx int) (*scribble.Scribble, error)
	SubmitMasks(ctx context.Context, sub evaluation.Submission) (*scribble.Scribble, error)
	Report(ctx context.Context) ([]report.Row, error)
	Summary(ctx context.Context) (*evaluation.Summary, error)
	Close() error
}

// Config selects and configures a connector.
type Config struct {
	Host       string
	UserKey    string
	SessionKey string

	// Local only.
	DatasetRoot   string
	Registry      *dataset.Registry
	DBPath        string
	Metric        metrics.Metric
	TimeThreshold time.Duration
	Robot         *robot.Params
	FileSystem    fsutil.FileSystem
	Clock         timeutil.Clock

	// Remote only.
	HTTPClient httputil.HTTPClient

	// Shuffle draws from Rand when set.
	Rand *rand.Rand
}

// New returns the local connector for an empty or "localhost" host and the
// remote connector otherwise.
func New(cfg Config) (Connector, error) {
	if cfg.Host == "" || cfg.Host == LocalHost {
		return NewLocal(cfg)
	}
	return NewRemote(cfg)
}

func shuffle(cfg Config, samples []evaluation.Sample) {
	swap := func(i, j int) { samples[i], samples[j] = samples[j], samples[i] }
	if cfg.Rand != nil {
		cfg.Rand.Shuffle(len(samples), swap)
		return
	}
	rand.Shuffle(len(samples), swap)
}
