package model

import "time"

// Report is a saved, timestamped record of a Reading, its Verdict and the
// composed report text.
type Report struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Profile   string    `json:"profile,omitempty"`
	Reading   Reading   `json:"reading"`
	Verdict   Verdict   `json:"verdict"`
	Body      string    `json:"body,omitempty"`
	Feedback  *string   `json:"feedback,omitempty"`
}
