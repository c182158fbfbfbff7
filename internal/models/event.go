package models

import "github.com/lobbysim/eventpipe/internal/events"

// EventBatchRequest is the POST /events payload: one flushed batch.
// A missing or empty events array is a client error.
type EventBatchRequest struct {
	Events []events.Envelope `json:"events"`
}

// EventBatchResponse is returned by POST /events. A fully-filtered
// batch is still a success with published=0; only malformed requests
// fail.
type EventBatchResponse struct {
	Success   bool   `json:"success"`
	Published int    `json:"published"`
	Dropped   int    `json:"dropped"`
	Error     string `json:"error,omitempty"`
}
