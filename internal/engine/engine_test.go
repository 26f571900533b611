package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/nocdash/internal/engine/classifier"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
)

var fixedNow = time.Date(2026, 2, 19, 12, 0, 0, 0, time.Local)

type mockPredictor struct {
	verdict model.Verdict
	err     error
	calls   int
}

func (m *mockPredictor) Predict(features []string, r model.Reading) (model.Verdict, error) {
	m.calls++
	return m.verdict, m.err
}

func newTestEngine(t *testing.T, pred Predictor, modelErr error) *Engine {
	t.Helper()
	c, err := rules.NewCatalog(rules.DefaultProfiles())
	if err != nil {
		t.Fatal(err)
	}
	return New(c, pred, modelErr, WithClock(func() time.Time { return fixedNow }))
}

func defaults() model.Reading {
	r := model.Reading{}
	for _, f := range model.Fields() {
		r[f.Name] = f.Default
	}
	return r
}

func TestAssessUsesThresholdVerdict(t *testing.T) {
	pred := &mockPredictor{verdict: model.Normal}
	e := newTestEngine(t, pred, nil)

	r := defaults()
	r[model.CPUUsage] = 90
	a, err := e.Assess("noc", r)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Verdict != model.Abnormal {
		t.Fatalf("verdict = %s, want Abnormal", a.Verdict)
	}
	if a.ModelVerdict != model.Normal {
		t.Fatalf("model verdict = %q, want Normal", a.ModelVerdict)
	}
	if pred.calls != 1 {
		t.Fatalf("predictor calls = %d, want 1", pred.calls)
	}
	if !a.AssessedAt.Equal(fixedNow) {
		t.Fatalf("AssessedAt = %v", a.AssessedAt)
	}
}

func TestAssessFallsBackWhenModelUnavailable(t *testing.T) {
	loadErr := &classifier.ModelUnavailableError{Path: "models/noc.onnx", Err: errors.New("no such file")}
	e := newTestEngine(t, nil, loadErr)

	a, err := e.Assess("noc", defaults())
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Verdict != model.Normal {
		t.Fatalf("verdict = %s, want Normal", a.Verdict)
	}
	var mu *classifier.ModelUnavailableError
	if !errors.As(a.ModelErr, &mu) {
		t.Fatalf("expected ModelUnavailableError, got %v", a.ModelErr)
	}
}

func TestAssessProfileWithoutModel(t *testing.T) {
	pred := &mockPredictor{verdict: model.Abnormal}
	e := newTestEngine(t, pred, nil)

	a, err := e.Assess("power", defaults())
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if pred.calls != 0 {
		t.Fatal("predictor should not run for a profile without features")
	}
	if a.ModelVerdict != "" || a.ModelErr == nil {
		t.Fatalf("expected no model verdict, got %q / %v", a.ModelVerdict, a.ModelErr)
	}
}

func TestAssessRuntimeFailureIsRecoverable(t *testing.T) {
	pred := &mockPredictor{err: errors.New("onnx: inference failed")}
	e := newTestEngine(t, pred, nil)

	a, err := e.Assess("classic", defaults())
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Verdict != model.Normal || a.ModelErr == nil {
		t.Fatalf("unexpected assessment: %+v", a)
	}
}

func TestAssessSchemaMismatchFails(t *testing.T) {
	pred := &mockPredictor{err: &classifier.SchemaMismatchError{Want: []string{"a"}, Got: []string{"b"}}}
	e := newTestEngine(t, pred, nil)

	_, err := e.Assess("noc", defaults())
	var sm *classifier.SchemaMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}

func TestAssessMissingField(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	r := defaults()
	delete(r, model.ErrorCount)

	_, err := e.Assess("noc", r)
	var mf *rules.MissingFieldError
	if !errors.As(err, &mf) || mf.Field != model.ErrorCount {
		t.Fatalf("expected MissingFieldError for error_count, got %v", err)
	}
}

func TestAssessUnknownProfile(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	if _, err := e.Assess("lab", defaults()); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestAssessCopiesReading(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	r := defaults()
	a, err := e.Assess("noc", r)
	if err != nil {
		t.Fatal(err)
	}
	r[model.CPUUsage] = 99
	if a.Reading[model.CPUUsage] != 50 {
		t.Fatal("assessment shares the caller's reading")
	}
}

func TestDraft(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	r := defaults()
	r[model.NetworkTrafficBreach] = 1
	a, err := e.Assess("noc", r)
	if err != nil {
		t.Fatal(err)
	}
	body, err := e.Draft(a)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	for _, want := range []string{
		"System Status Report - 2026-02-19 12:00:00",
		"Overall Status: Abnormal",
		"Network traffic breach detected (Network Traffic Breach: Yes)",
		"[Network traffic breach detected]",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("draft missing %q\n%s", want, body)
		}
	}
}
