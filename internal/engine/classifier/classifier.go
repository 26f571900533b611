package classifier

import (
	"fmt"
	"path/filepath"

	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

// ModelUnavailableError means the artifact could not be loaded. Callers fall
// back to the threshold verdict.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("classifier: model %s unavailable: %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// SchemaMismatchError means the requested feature vector differs from the
// one the model was trained on.
type SchemaMismatchError struct {
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("classifier: feature mismatch: model expects %v, got %v", e.Want, e.Got)
}

// runner executes the model on one standardized row.
type runner interface {
	predict(x []float32) (int64, error)
	close() error
}

// Classifier applies the persisted scaler and runs the model. Safe for
// concurrent use.
type Classifier struct {
	run    runner
	scaler *scaler
}

// New loads the ONNX model and its preprocessing file. libPath locates the
// ONNX Runtime shared library; empty means libonnxruntime.so next to the
// model. Every failure is a *ModelUnavailableError.
func New(modelPath, scalerPath, libPath string) (*Classifier, error) {
	sc, err := loadScaler(scalerPath)
	if err != nil {
		return nil, &ModelUnavailableError{Path: scalerPath, Err: err}
	}
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	}
	sess, err := newONNXSession(modelPath, libPath)
	if err != nil {
		return nil, &ModelUnavailableError{Path: modelPath, Err: err}
	}
	if sess.features() != len(sc.Features) {
		sess.close()
		return nil, &ModelUnavailableError{
			Path: modelPath,
			Err:  fmt.Errorf("model takes %d features, scaler describes %d", sess.features(), len(sc.Features)),
		}
	}
	return &Classifier{run: sess, scaler: sc}, nil
}

// Features returns the trained feature order.
func (c *Classifier) Features() []string {
	return append([]string(nil), c.scaler.Features...)
}

// Predict classifies r using the given feature order, which must equal the
// trained order exactly.
func (c *Classifier) Predict(features []string, r model.Reading) (model.Verdict, error) {
	if !sameOrder(features, c.scaler.Features) {
		return "", &SchemaMismatchError{Want: c.Features(), Got: features}
	}

	x := make([]float64, len(features))
	for i, name := range features {
		v, ok := r.Get(name)
		if !ok {
			return "", &rules.MissingFieldError{Field: name}
		}
		x[i] = v
	}

	label, err := c.run.predict(c.scaler.transform(x))
	if err != nil {
		return "", fmt.Errorf("classifier: %w", err)
	}
	if label < 0 || int(label) >= len(c.scaler.Classes) {
		return "", fmt.Errorf("classifier: label %d outside classes %v", label, c.scaler.Classes)
	}
	v, err := model.ParseVerdict(c.scaler.Classes[label])
	if err != nil {
		return "", fmt.Errorf("classifier: %w", err)
	}
	return v, nil
}

// Close releases ONNX Runtime resources.
func (c *Classifier) Close() error {
	if c.run != nil {
		return c.run.close()
	}
	return nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
