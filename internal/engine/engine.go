package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/nocdash/internal/engine/classifier"
	"github.com/crimson-sun/nocdash/internal/engine/composer"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

// Predictor is the classifier contract the engine depends on.
type Predictor interface {
	Predict(features []string, r model.Reading) (model.Verdict, error)
}

// Assessment is the outcome of classifying one reading.
type Assessment struct {
	Profile    string
	Reading    model.Reading
	Verdict    model.Verdict // threshold verdict; the one shown and saved
	Fired      []rules.Rule
	AssessedAt time.Time

	// ModelVerdict is empty when no classifier result is available;
	// ModelErr then says why.
	ModelVerdict model.Verdict
	ModelErr     error
}

// Engine orchestrates the evaluate → classify → compose flow.
type Engine struct {
	catalog   *rules.Catalog
	predictor Predictor
	modelErr  error
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. pred may be nil, in which case modelErr (typically
// a *classifier.ModelUnavailableError from startup) is reported on every
// assessment and the threshold verdict stands alone.
func New(catalog *rules.Catalog, pred Predictor, modelErr error, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		predictor: pred,
		modelErr:  modelErr,
		now:       time.Now,
	}
	if pred == nil && modelErr == nil {
		e.modelErr = &classifier.ModelUnavailableError{Path: "(none)", Err: errors.New("no classifier configured")}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the profile catalog.
func (e *Engine) Catalog() *rules.Catalog {
	return e.catalog
}

// Assess classifies a reading under the named profile. A reading missing a
// rule or feature field, or a feature order the model was not trained on,
// fails the assessment. An unavailable model does not.
func (e *Engine) Assess(profile string, r model.Reading) (Assessment, error) {
	p, ok := e.catalog.Lookup(profile)
	if !ok {
		return Assessment{}, fmt.Errorf("engine: unknown profile %q", profile)
	}

	verdict, fired, err := p.Evaluate(r)
	if err != nil {
		return Assessment{}, fmt.Errorf("engine: %w", err)
	}

	a := Assessment{
		Profile:    p.Name,
		Reading:    r.Clone(),
		Verdict:    verdict,
		Fired:      fired,
		AssessedAt: e.now(),
	}

	switch {
	case len(p.Features) == 0:
		a.ModelErr = &classifier.ModelUnavailableError{Path: p.Name, Err: errors.New("profile has no trained model")}
	case e.predictor == nil:
		a.ModelErr = e.modelErr
	default:
		mv, err := e.predictor.Predict(p.Features, r)
		var sm *classifier.SchemaMismatchError
		var mf *rules.MissingFieldError
		switch {
		case errors.As(err, &sm), errors.As(err, &mf):
			return Assessment{}, fmt.Errorf("engine: %w", err)
		case err != nil:
			slog.Warn("classifier failed, using threshold verdict", "profile", p.Name, "error", err)
			a.ModelErr = &classifier.ModelUnavailableError{Path: p.Name, Err: err}
		default:
			a.ModelVerdict = mv
		}
	}
	return a, nil
}

// Draft composes the report text for an assessment.
func (e *Engine) Draft(a Assessment) (string, error) {
	p, ok := e.catalog.Lookup(a.Profile)
	if !ok {
		return "", fmt.Errorf("engine: unknown profile %q", a.Profile)
	}
	return composer.Compose(p, a.Reading, a.Verdict, a.Fired, a.AssessedAt), nil
}
