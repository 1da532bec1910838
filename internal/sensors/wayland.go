package sensors

import (
	"context"

	"github.com/dpilgrim/stasis/internal/engine"
)

// WaylandSensor is the adapter for the compositor's idle-notification
// protocol (ext-idle-notify-v1): it reports a single UserActivity event
// each time it is told the user has resumed from idle. No Go client for this
// Wayland protocol is available, so this adapter is a thin stub that does
// not talk to the compositor itself: NotifyResumed lets a real client
// implementation (or a test) inject the resume signal.
type WaylandSensor struct {
	sink  EventSink
	nowMs nowMsFunc

	resumed chan struct{}
}

// NewWaylandSensor builds a WaylandSensor. Call NotifyResumed whenever the
// compositor's idle-notify protocol reports the idle state has ended.
func NewWaylandSensor(sink EventSink, nowMs func() uint64) *WaylandSensor {
	return &WaylandSensor{sink: sink, nowMs: nowMs, resumed: make(chan struct{}, 1)}
}

// NotifyResumed signals that the compositor reported resume-from-idle.
// Non-blocking: a resume notification that arrives while one is already
// pending is coalesced, since both represent "the user is back".
func (w *WaylandSensor) NotifyResumed() {
	select {
	case w.resumed <- struct{}{}:
	default:
	}
}

// Run blocks, translating NotifyResumed calls into UserActivity events
// until ctx is cancelled.
func (w *WaylandSensor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.resumed:
			w.sink.Push(engine.UserActivity(engine.ActivityAny, w.nowMs()))
		}
	}
}
