// Package pipeline saves reports: the store first, then every configured sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/nocdash/internal/model"
	"github.com/crimson-sun/nocdash/internal/output"
)

// ReportStore is the store contract the pipeline depends on.
type ReportStore interface {
	Insert(ctx context.Context, r model.Report) (int64, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline persists a report and copies it to the sinks.
type Pipeline struct {
	store  ReportStore
	output output.Output
	now    func() time.Time

	saved        atomic.Int64
	sinkFailures atomic.Int64
}

// New creates a Pipeline. out may be nil when no sinks are configured.
func New(store ReportStore, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, output: out, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Save inserts r and returns it with its assigned id. The store decides
// success: a sink failure is logged and counted but never fails the save.
// Blank feedback is stored as NULL.
func (p *Pipeline) Save(ctx context.Context, r model.Report) (model.Report, error) {
	v, err := model.ParseVerdict(string(r.Verdict))
	if err != nil {
		return model.Report{}, fmt.Errorf("pipeline: %w", err)
	}
	r.Verdict = v
	if len(r.Reading) == 0 {
		return model.Report{}, errors.New("pipeline: report has no reading")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = p.now()
	}
	r.CreatedAt = r.CreatedAt.Truncate(time.Second)
	if r.Feedback != nil {
		fb := strings.TrimSpace(*r.Feedback)
		if fb == "" {
			r.Feedback = nil
		} else {
			r.Feedback = &fb
		}
	}
	r.Reading = r.Reading.Clone()

	id, err := p.store.Insert(ctx, r)
	if err != nil {
		return model.Report{}, fmt.Errorf("pipeline: save: %w", err)
	}
	r.ID = id
	p.saved.Add(1)

	if p.output != nil {
		if err := p.output.Write(ctx, r); err != nil {
			p.sinkFailures.Add(1)
			slog.Warn("report sink write failed", "id", id, "error", err)
		}
	}
	return r, nil
}

// Stats returns the number of saved reports and of failed sink writes.
func (p *Pipeline) Stats() (saved, sinkFailures int64) {
	return p.saved.Load(), p.sinkFailures.Load()
}

// Close shuts down the sinks.
func (p *Pipeline) Close() error {
	saved, failed := p.Stats()
	slog.Info("pipeline closing", "saved", saved, "sink_failures", failed)
	if p.output == nil {
		return nil
	}
	return p.output.Close()
}
