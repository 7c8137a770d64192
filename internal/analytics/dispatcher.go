package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// Hook reacts to a completed briefing.
type Hook interface {
	BriefingCompleted(ctx context.Context, evt briefing.Completed) error
}

// Dispatcher fans a completion out to every hook. Each hook runs even when an
// earlier one fails.
type Dispatcher struct {
	hooks  map[string]Hook
	order  []string
	logger *logging.Logger
}

func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{hooks: make(map[string]Hook), logger: logger}
}

// Register adds a named hook. Nil hooks are ignored.
func (d *Dispatcher) Register(name string, h Hook) *Dispatcher {
	if h == nil {
		return d
	}
	if _, exists := d.hooks[name]; !exists {
		d.order = append(d.order, name)
	}
	d.hooks[name] = h
	return d
}

func (d *Dispatcher) BriefingCompleted(ctx context.Context, evt briefing.Completed) error {
	var errs []error
	for _, name := range d.order {
		if err := d.hooks[name].BriefingCompleted(ctx, evt); err != nil {
			d.logger.Warn("completion hook failed", "hook", name, "briefing_id", evt.Briefing.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns the registered hook names in run order.
func (d *Dispatcher) Names() []string {
	return append([]string(nil), d.order...)
}
