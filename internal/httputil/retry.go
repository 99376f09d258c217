package httputil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
)

// RetryStatuses are the response codes a RetryClient retries.
var RetryStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryClient retries transport errors and RetryStatuses with exponential
// backoff. Once the retries are spent the last failure is returned wrapped
// in fault.ErrTransient.
type RetryClient struct {
	Client          HTTPClient
	MaxRetries      uint64
	InitialInterval time.Duration
	Multiplier      float64
}

// NewRetryClient wraps c with three retries doubling from one second.
func NewRetryClient(c HTTPClient) *RetryClient {
	return &RetryClient{Client: c, MaxRetries: 3, InitialInterval: time.Second, Multiplier: 2}
}

// CloseIdleConnections forwards to the wrapped client.
func (c *RetryClient) CloseIdleConnections() { CloseIdleConnections(c.Client) }

func (c *RetryClient) policy(req *http.Request) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), req.Context())
}

// Do sends req, replaying its body on every attempt.
func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	var resp *http.Response
	attempt := func() error {
		r := req.Clone(req.Context())
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}
		got, err := c.Client.Do(r)
		if err != nil {
			return err
		}
		if slices.Contains(RetryStatuses, got.StatusCode) {
			io.Copy(io.Discard, got.Body)
			got.Body.Close()
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, http.StatusText(got.StatusCode))
		}
		resp = got
		return nil
	}
	notify := func(err error, wait time.Duration) {
		monitoring.Opsf("retrying in %v: %v", wait, err)
	}
	if err := backoff.RetryNotify(attempt, c.policy(req), notify); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fault.Errorf(fault.ErrTransient, "%v", err)
	}
	return resp, nil
}
