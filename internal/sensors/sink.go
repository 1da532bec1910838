// Package sensors contains the external collaborators that feed engine
// events into the supervisor's inbox: a fixed-interval ticker, a D-Bus
// listener for logind's sleep/lock signals and UPower's lid state, a
// power-state poller, pactl and /proc pollers for media and app inhibitors,
// and a thin stub adapter for Wayland idle notifications.
package sensors

import (
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/supervisor"
)

// EventSink is the narrow interface every sensor pushes events through.
// It exists so a sensor can be written and tested without depending on
// supervisor.Supervisor directly — the D-Bus listener in particular is
// easiest to unit test against a recording fake that satisfies this.
type EventSink interface {
	Push(ev engine.Event)
}

// InboxSink adapts a supervisor's inbox channel to EventSink. Every sensor
// in this package is constructed with one of these pointed at the running
// supervisor; delivery is always fire-and-forget (sensors never need to
// know whether the engine accepted the event).
type InboxSink struct {
	inbox chan<- supervisor.ManagerMsg
}

// NewInboxSink wraps a supervisor's inbox.
func NewInboxSink(inbox chan<- supervisor.ManagerMsg) *InboxSink {
	return &InboxSink{inbox: inbox}
}

// Push enqueues ev for the supervisor goroutine to handle. It blocks if the
// inbox is full; sensors are expected to run on their own goroutine so a
// momentary backpressure stall never affects the engine's drain loop.
func (s *InboxSink) Push(ev engine.Event) {
	s.inbox <- supervisor.EventMsg(ev)
}

// nowMsFunc is the clock shape every sensor in this package accepts, so
// tests can inject a fixed or stepped clock instead of wall time.
type nowMsFunc func() uint64

// clockStart anchors RealClock's monotonic readings.
var clockStart = time.Now()

// RealClock returns the milliseconds elapsed on the monotonic clock since
// the process started.
func RealClock() uint64 {
	return uint64(time.Since(clockStart).Milliseconds())
}
