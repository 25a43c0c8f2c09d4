package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/telemetry"
)

// DefaultHookTimeout bounds a single side effect.
const DefaultHookTimeout = 30 * time.Second

// Dispatcher runs side effects in the background after a transition has
// committed. Errors and panics are logged and counted, never returned.
type Dispatcher struct {
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *telemetry.Metrics
}

// NewDispatcher creates a dispatcher. timeout <= 0 uses DefaultHookTimeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	return &Dispatcher{timeout: timeout, metrics: telemetry.GetMetrics()}
}

// Go runs fn in a new goroutine. The context passed to fn keeps the values
// of ctx but not its cancellation, so a finished request does not abort it.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.run(hookCtx, fn); err != nil {
			d.metrics.HookFailuresTotal.Add(hookCtx, 1)
			log.Error().Err(err).Str("hook", name).Msg("Side effect failed")
		}
	}()
}

func (d *Dispatcher) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every dispatched side effect has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
