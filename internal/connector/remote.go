package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/httputil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/scribble"
)

// maxResponseSize bounds every response body read from the server.
const maxResponseSize = 64 << 20

// Remote talks to an evaluation server over HTTP. Only the test-dev subset
// is served remotely.
type Remote struct {
	cfg    Config
	base   *url.URL
	client httputil.HTTPClient

	mu      sync.Mutex
	started bool
}

// NewRemote validates the server address and credentials.
func NewRemote(cfg Config) (*Remote, error) {
	if cfg.UserKey == "" {
		return nil, fault.Errorf(fault.ErrSetup, "a user key is required for remote evaluation")
	}
	if cfg.SessionKey == "" {
		return nil, fault.Errorf(fault.ErrSetup, "missing session key")
	}
	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil || base.Host == "" {
		return nil, fault.Errorf(fault.ErrSetup, "invalid host %q", cfg.Host)
	}
	var client httputil.HTTPClient
	switch c := cfg.HTTPClient.(type) {
	case nil:
		client = httputil.NewRetryClient(httputil.NewStandardClient(&http.Client{Timeout: 2 * time.Minute}))
	case *httputil.RetryClient:
		client = c
	default:
		client = httputil.NewRetryClient(c)
	}
	return &Remote{cfg: cfg, base: base, client: client}, nil
}

func (r *Remote) url(path string) string {
	return r.base.String() + path
}

// do sends a request and decodes a JSON answer into out.
func (r *Remote) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.url(path), body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderUserKey, r.cfg.UserKey)
	req.Header.Set(HeaderSessionKey, r.cfg.SessionKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", fault.ErrTransient, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return httputil.DecodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", fault.ErrRemote, path, err)
	}
	return nil
}

func (r *Remote) healthcheck(ctx context.Context) error {
	var h HealthResponse
	if err := r.do(ctx, http.MethodGet, PathHealthcheck, nil, &h); err != nil {
		return fmt.Errorf("%w: evaluation server %s not reachable: %w", fault.ErrSetup, r.base, err)
	}
	if h.Status != "ok" {
		return fault.Errorf(fault.ErrSetup, "evaluation server %s reports status %q", r.base, h.Status)
	}
	monitoring.Opsf("connected to %s %s at %s", h.Name, h.Version, r.base)
	return nil
}

// StartSession implements Connector. The requested budgets are ignored: the
// server decides them.
func (r *Remote) StartSession(ctx context.Context, subset string, shuffled bool, _ *time.Duration, _ *int) (StartResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return StartResult{}, fault.Errorf(fault.ErrUsage, "session already started")
	}
	if subset != dataset.TestDev {
		return StartResult{}, fault.Errorf(fault.ErrInvalidInput, "subset %q is not served remotely, use %s", subset, dataset.TestDev)
	}
	if err := r.healthcheck(ctx); err != nil {
		return StartResult{}, err
	}
	var sr SamplesResponse
	if err := r.do(ctx, http.MethodGet, PathSamples, nil, &sr); err != nil {
		return StartResult{}, err
	}
	if len(sr.Samples) == 0 {
		return StartResult{}, fault.Errorf(fault.ErrRemote, "server returned no samples")
	}
	maxTime, maxI := sr.Budgets()
	if maxTime == nil && maxI == nil {
		return StartResult{}, fault.Errorf(fault.ErrRemote, "server returned no budget")
	}
	if shuffled {
		shuffle(r.cfg, sr.Samples)
	}
	r.started = true
	return StartResult{Samples: sr.Samples, MaxTime: maxTime, MaxInteractions: maxI}, nil
}

func (r *Remote) ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return fault.Errorf(fault.ErrUsage, "session not started")
	}
	return nil
}

// SeedScribble implements Connector.
func (r *Remote) SeedScribble(ctx context.Context, sequence string, idx int) (*scribble.Scribble, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var s scribble.Scribble
	path := fmt.Sprintf("%s%s/%03d", PathScribbles, url.PathEscape(sequence), idx)
	if err := r.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrRemote, err)
	}
	return &s, nil
}

// SubmitMasks implements Connector.
func (r *Remote) SubmitMasks(ctx context.Context, sub evaluation.Submission) (*scribble.Scribble, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	batch, err := mask.EncodeSequence(sub.Pred)
	if err != nil {
		return nil, err
	}
	req := InteractionRequest{
		Sequence:    sub.Sequence,
		ScribbleIdx: sub.ScribbleIdx,
		PredMasks:   batch,
		Timing:      sub.Timing,
		Interaction: sub.Interaction,
		Candidates:  sub.Candidates,
	}
	var s scribble.Scribble
	if err := r.do(ctx, http.MethodPost, PathInteraction, req, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrRemote, err)
	}
	return &s, nil
}

// Report implements Connector.
func (r *Remote) Report(ctx context.Context) ([]report.Row, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows := []report.Row{}
	if err := r.do(ctx, http.MethodGet, PathReport, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Summary implements Connector. The server marks the session finished.
func (r *Remote) Summary(ctx context.Context) (*evaluation.Summary, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var sum evaluation.Summary
	if err := r.do(ctx, http.MethodPost, PathFinish, struct{}{}, &sum); err != nil {
		return nil, err
	}
	if sum.SessionID == "" {
		sum.SessionID = r.cfg.SessionKey
	}
	return &sum, nil
}

// Close implements Connector. Idle keep-alive connections are released.
func (r *Remote) Close() error {
	httputil.CloseIdleConnections(r.client)
	return nil
}
