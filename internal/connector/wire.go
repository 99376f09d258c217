package connector

import (
	"time"

	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

// HTTP routes of the evaluation server.
const (
	PathHealthcheck = "/api/healthcheck"
	PathSamples     = "/api/dataset/samples"
	PathScribbles   = "/api/dataset/scribbles/"
	PathInteraction = "/api/evaluation/interaction"
	PathReport      = "/api/evaluation/report"
	PathFinish      = "/api/evaluation/finish"

	HeaderUserKey    = "User-Key"
	HeaderSessionKey = "Session-Key"
)

// HealthResponse answers PathHealthcheck.
type HealthResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SamplesResponse answers PathSamples. Budgets are seconds and counts, null
// when unset.
type SamplesResponse struct {
	Samples         []evaluation.Sample `json:"samples"`
	MaxTime         *float64            `json:"max_time"`
	MaxInteractions *int                `json:"max_interactions"`
}

// NewSamplesResponse encodes samples and budgets for the wire.
func NewSamplesResponse(samples []evaluation.Sample, maxTime *time.Duration, maxInteractions *int) SamplesResponse {
	r := SamplesResponse{Samples: samples, MaxInteractions: maxInteractions}
	if maxTime != nil {
		s := maxTime.Seconds()
		r.MaxTime = &s
	}
	return r
}

// Budgets decodes the wire budgets.
func (r SamplesResponse) Budgets() (*time.Duration, *int) {
	var t *time.Duration
	if r.MaxTime != nil {
		d := time.Duration(*r.MaxTime * float64(time.Second))
		t = &d
	}
	return t, r.MaxInteractions
}

// InteractionRequest is the body posted to PathInteraction.
type InteractionRequest struct {
	Sequence    string         `json:"sequence"`
	ScribbleIdx int            `json:"scribble_idx"`
	PredMasks   *mask.RLEBatch `json:"pred_masks"`
	Timing      float64        `json:"timing"`
	Interaction int            `json:"interaction"`
	Candidates  []int          `json:"next_scribble_frame_candidates,omitempty"`
}
