// Package testutil provides shared test helpers for the evaluation API and
// the fault kinds it reports.
package testutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/interactive.eval/internal/connector"
	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Header names of the evaluation API.
const (
	UserKeyHeader    = connector.HeaderUserKey
	SessionKeyHeader = connector.HeaderSessionKey
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertFault fails the test unless err wraps the sentinel kind.
func AssertFault(t testing.TB, err, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error %q has kind %s, want %v", err, fault.Kind(err), kind)
	}
}

// NewAPIRequest builds a request carrying the evaluation credentials. Empty
// keys are left out.
func NewAPIRequest(method, path, body, userKey, sessionKey string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userKey != "" {
		req.Header.Set(UserKeyHeader, userKey)
	}
	if sessionKey != "" {
		req.Header.Set(SessionKeyHeader, sessionKey)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes r into v or fails the test.
func DecodeJSON(t testing.TB, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}
