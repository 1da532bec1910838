package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
)

func TestWaylandSensorTranslatesNotifyToUserActivity(t *testing.T) {
	sink := &recordingSink{}
	w := NewWaylandSensor(sink, func() uint64 { return 11 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.NotifyResumed()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	if sink.count() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.count())
	}
	if sink.evs[0].Kind != engine.EventUserActivity {
		t.Fatalf("expected UserActivity, got %v", sink.evs[0].Kind)
	}
}

func TestWaylandSensorCoalescesNotifications(t *testing.T) {
	sink := &recordingSink{}
	w := NewWaylandSensor(sink, func() uint64 { return 11 })
	w.NotifyResumed()
	w.NotifyResumed()
	w.NotifyResumed()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	w.Run(ctx)

	if sink.count() != 1 {
		t.Fatalf("expected coalesced single event, got %d", sink.count())
	}
}
