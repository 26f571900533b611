package multi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crimson-sun/nocdash/internal/model"
)

// mockOutput records calls for test assertions.
type mockOutput struct {
	reports []model.Report
	closed  bool
	err     error // if set, Write returns this error
}

func (m *mockOutput) Write(_ context.Context, r model.Report) error {
	m.reports = append(m.reports, r)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closed = true
	return m.err
}

func testReport(id int64, v model.Verdict) model.Report {
	return model.Report{
		ID:        id,
		CreatedAt: time.Now(),
		Profile:   "noc",
		Reading:   model.Reading{model.CPUUsage: 50},
		Verdict:   v,
	}
}

func TestFanOutDeliversToAll(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	c := &mockOutput{}
	m := New(a, b, c)

	if err := m.Write(context.Background(), testReport(1, model.Normal)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, out := range []*mockOutput{a, b, c} {
		if len(out.reports) != 1 {
			t.Fatalf("output %d: got %d reports, want 1", i, len(out.reports))
		}
		if out.reports[0].ID != 1 {
			t.Errorf("output %d: got id %d, want 1", i, out.reports[0].ID)
		}
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	failing := &mockOutput{err: errors.New("broker unreachable")}
	healthy := &mockOutput{}
	m := New(failing, healthy)

	err := m.Write(context.Background(), testReport(2, model.Abnormal))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Healthy output still received the report despite earlier failure.
	if len(healthy.reports) != 1 {
		t.Fatalf("healthy output got %d reports, want 1", len(healthy.reports))
	}
	if len(failing.reports) != 1 {
		t.Fatalf("failing output got %d reports, want 1", len(failing.reports))
	}
}

func TestNilOutputsSkipped(t *testing.T) {
	inner := &mockOutput{}
	m := New(nil, inner, nil)
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	if err := m.Write(context.Background(), testReport(3, model.Normal)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmptyMultiIsNoop(t *testing.T) {
	m := New()
	if err := m.Write(context.Background(), testReport(4, model.Normal)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCloseCallsAllOutputs(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	m := New(a, b)

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("Close not called on all outputs: a=%v b=%v", a.closed, b.closed)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	a := &mockOutput{err: errors.New("err-a")}
	b := &mockOutput{err: errors.New("err-b")}
	m := New(a, b)

	err := m.Close()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !a.closed || !b.closed {
		t.Error("Close should be called on all outputs even when errors occur")
	}
}
