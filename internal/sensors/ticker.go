package sensors

import (
	"context"
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
)

// TickInterval is how often the ticker sensor wakes the engine to
// re-evaluate elapsed idle time against the active plan.
const TickInterval = 200 * time.Millisecond

// Ticker pushes an engine.Tick event on a fixed interval. It is the
// engine's only source of "time has passed" — every timeout in a plan is
// measured against the timestamps these ticks carry, not a timer per step.
type Ticker struct {
	sink  EventSink
	nowMs nowMsFunc
	every time.Duration
}

// NewTicker builds a Ticker firing every `every` (TickInterval in
// production; tests pass a shorter interval to keep runs fast).
func NewTicker(sink EventSink, nowMs func() uint64, every time.Duration) *Ticker {
	return &Ticker{sink: sink, nowMs: nowMs, every: every}
}

// Run blocks, pushing ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	tick := time.NewTicker(t.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.sink.Push(engine.Tick(t.nowMs()))
		}
	}
}
