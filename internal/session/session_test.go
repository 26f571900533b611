package session

import (
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/nocdash/internal/engine"
	"github.com/crimson-sun/nocdash/internal/model"
)

func TestGetDoesNotStore(t *testing.T) {
	m := NewManager("noc")
	s := m.Get("a")
	if s.ID != "a" || s.Profile != "noc" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.HasAssessment() || s.Reading != nil {
		t.Fatal("new session should be empty")
	}
	if m.Len() != 0 || m.Known("a") {
		t.Fatalf("Get should not store a session, Len = %d", m.Len())
	}

	m.Update("a", func(*Session) {})
	if m.Len() != 1 || !m.Known("a") {
		t.Fatalf("Update should store the session, Len = %d", m.Len())
	}
}

func TestMaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager("noc", WithMaxSessions(2), WithClock(func() time.Time { return now }))

	m.Update("a", func(s *Session) { s.Draft = "a" })
	now = now.Add(time.Minute)
	m.Update("b", func(s *Session) { s.Draft = "b" })
	now = now.Add(time.Minute)
	m.Get("a") // touch a so b is the oldest
	now = now.Add(time.Minute)
	m.Update("c", func(s *Session) { s.Draft = "c" })

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if !m.Known("a") || m.Known("b") || !m.Known("c") {
		t.Fatalf("expected b to be evicted: a=%v b=%v c=%v", m.Known("a"), m.Known("b"), m.Known("c"))
	}
}

func TestUpdateAndIsolation(t *testing.T) {
	m := NewManager("noc")
	m.Update("a", func(s *Session) {
		s.Profile = "power"
		s.Reading = model.Reading{model.GridVoltage: 190}
		s.Assessment = &engine.Assessment{Profile: "power", Verdict: model.Abnormal, Reading: s.Reading.Clone()}
		s.Draft = "draft"
	})

	a := m.Get("a")
	b := m.Get("b")
	if a.Profile != "power" || a.Draft != "draft" || !a.HasAssessment() {
		t.Fatalf("session a not updated: %+v", a)
	}
	if b.Profile != "noc" || b.HasAssessment() {
		t.Fatalf("session b should be independent: %+v", b)
	}

	// Mutating a returned copy must not leak into the manager.
	a.Reading[model.GridVoltage] = 230
	a.Assessment.Verdict = model.Normal
	again := m.Get("a")
	if again.Reading[model.GridVoltage] != 190 || again.Assessment.Verdict != model.Abnormal {
		t.Fatalf("Get should return copies: %+v", again)
	}
}

func TestExpiryAndPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager("noc", WithIdleTimeout(time.Hour), WithClock(func() time.Time { return now }))

	m.Update("old", func(s *Session) { s.Draft = "stale" })
	now = now.Add(2 * time.Hour)
	m.Update("fresh", func(*Session) {})

	if got := m.Prune(); got != 1 {
		t.Fatalf("Prune removed %d, want 1", got)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}

	// An expired id comes back empty.
	m.Update("fresh", func(s *Session) { s.Draft = "x" })
	now = now.Add(2 * time.Hour)
	if s := m.Get("fresh"); s.Draft != "" {
		t.Fatalf("expired session should be reset, got %+v", s)
	}
	if m.Known("fresh") {
		t.Fatal("expired session should be dropped")
	}
}

func TestDelete(t *testing.T) {
	m := NewManager("noc")
	m.Update("a", func(s *Session) { s.Draft = "x" })
	m.Delete("a")
	if s := m.Get("a"); s.Draft != "" {
		t.Fatal("deleted session should start fresh")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := NewManager("noc")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("shared", func(s *Session) { s.Draft += "x" })
		}()
	}
	wg.Wait()
	if got := len(m.Get("shared").Draft); got != 100 {
		t.Fatalf("draft length = %d, want 100", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
