// Package output defines the destinations a saved report is copied to after
// the store has accepted it.
package output

import (
	"context"

	"github.com/crimson-sun/nocdash/internal/model"
)

// Output defines the interface for report sinks.
type Output interface {
	Write(ctx context.Context, r model.Report) error
	Close() error
}
