package model

import (
	"fmt"
	"strings"
)

// Verdict is the Normal/Abnormal classification of a Reading.
type Verdict string

const (
	Normal   Verdict = "Normal"
	Abnormal Verdict = "Abnormal"
)

// ParseVerdict accepts the two verdict spellings case-insensitively.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return Normal, nil
	case "abnormal":
		return Abnormal, nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}

// Reading is one collected set of telemetry values keyed by field name.
// Flag fields hold 0 or 1.
type Reading map[string]float64

// Get returns the value of a field and whether it was collected.
func (r Reading) Get(name string) (float64, bool) {
	v, ok := r[name]
	return v, ok
}

// Clone returns an independent copy.
func (r Reading) Clone() Reading {
	if r == nil {
		return nil
	}
	out := make(Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
