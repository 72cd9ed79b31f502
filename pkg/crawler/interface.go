package crawler

import (
	"context"

	"github.com/amosWeiskopf/linktrace/internal/models"
)

// Runner is the control surface the CLI drives.
type Runner interface {
	// Crawl runs until the frontier is exhausted, the budget is spent or
	// Stop is called.
	Crawl(ctx context.Context) (*models.CrawlResult, error)

	// Stop requests cooperative cancellation between steps.
	Stop()

	// State returns the current lifecycle state.
	State() State
}

// State is a crawler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
	StateBudgetExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateBudgetExhausted:
		return "budget_exhausted"
	}
	return "unknown"
}

// Terminal reports whether no further steps will run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateBudgetExhausted
}

var _ Runner = (*Crawler)(nil)
