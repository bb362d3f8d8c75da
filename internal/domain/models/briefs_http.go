package models

import "time"

// Requests and views for the brief HTTP endpoints.

// BriefRangeRequest selects briefs by window id. Since and Until, when set,
// take RFC3339 or unix-second times and replace From and To.
type BriefRangeRequest struct {
	From  uint32 `query:"from" json:"from"`
	To    uint32 `query:"to" json:"to" default:"4294967295" validate:"gtefield=From"`
	Since string `query:"since" json:"since,omitempty"`
	Until string `query:"until" json:"until,omitempty"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type BriefIDRequest struct {
	ID uint32 `param:"id" json:"id" validate:"required"`
}

// BriefView is a brief as returned by the API, bytes base64 encoded by encoding/json.
type BriefView struct {
	ID    uint32    `json:"id"`
	Time  time.Time `json:"time"`
	Bytes []byte    `json:"bytes"`
}

// DecodedBriefView pairs a decoded record with its tickers.
type DecodedBriefView struct {
	ID      uint32                        `json:"id"`
	Time    time.Time                     `json:"time"`
	Header  Header                        `json:"header"`
	Symbols map[string]map[string]float32 `json:"symbols"`
}

// PipelineStatus is a point-in-time view of the brief pipeline.
type PipelineStatus struct {
	Mode             string    `json:"mode"`
	MarketOpen       bool      `json:"market_open"`
	State            string    `json:"state"`
	LastCommittedID  uint32    `json:"last_committed_id"`
	LastCommittedAt  time.Time `json:"last_committed_at,omitempty"`
	NextExpectedID   uint32    `json:"next_expected_id"`
	Gating           bool      `json:"gating"`
	GatingLoopsLeft  int       `json:"gating_loops_left"`
	EventsDispatched uint64    `json:"events_dispatched"`
	GapsFilled       uint64    `json:"gaps_filled"`
	LastSubmitted    time.Time `json:"last_submitted,omitempty"`
}
