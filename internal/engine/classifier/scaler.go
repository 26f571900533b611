package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// scaler is a standardization fitted at training time and stored next to
// the model. Inference only applies it.
type scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	Classes  []string  `json:"classes"`
}

// loadScaler reads the preprocessing JSON written by the training job.
func loadScaler(path string) (*scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	var s scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scaler: failed to parse %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *scaler) validate() error {
	n := len(s.Features)
	if n == 0 {
		return fmt.Errorf("scaler: no features")
	}
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler: %d features but %d means and %d scales", n, len(s.Mean), len(s.Scale))
	}
	if len(s.Classes) == 0 {
		s.Classes = []string{"Normal", "Abnormal"}
	}
	return nil
}

// transform standardizes x in place order. A zero scale (constant feature
// during training) leaves the centered value unscaled, matching scikit-learn.
func (s *scaler) transform(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		sc := s.Scale[i]
		if sc == 0 {
			sc = 1
		}
		out[i] = float32((v - s.Mean[i]) / sc)
	}
	return out
}
