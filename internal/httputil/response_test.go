package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONOK(w, map[string]int{"samples": 3})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"samples":3}`, w.Body.String())
}

func TestWriteFault(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: bad frame", fault.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: twice", fault.ErrConsistency), http.StatusBadRequest, "consistency"},
		{fmt.Errorf("%w: no key", fault.ErrSetup), http.StatusUnauthorized, "setup"},
		{fmt.Errorf("%w: cycle", fault.ErrContract), http.StatusInternalServerError, "contract"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteFault(w, tc.err)
			assert.Equal(t, tc.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body.Error)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, body.Message, "disk full")
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	err := DecodeError(http.StatusBadRequest, []byte(`{"error":"consistency","message":"duplicate interaction"}`))
	assert.ErrorIs(t, err, fault.ErrConsistency)
	assert.Contains(t, err.Error(), "duplicate interaction")

	err = DecodeError(http.StatusBadRequest, []byte(`{"error":"os.system","message":"rm"}`))
	assert.ErrorIs(t, err, fault.ErrRemote)

	err = DecodeError(http.StatusNotFound, []byte("<html>"))
	assert.ErrorIs(t, err, fault.ErrRemote)
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	MethodNotAllowed(w)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	NotFound(w, "no such sequence")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no such sequence")
}
