package sensors

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
)

type recordingSink struct {
	mu   sync.Mutex
	evs  []engine.Event
}

func (r *recordingSink) Push(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

func TestTickerPushesTicksUntilCancelled(t *testing.T) {
	sink := &recordingSink{}
	tk := NewTicker(sink, func() uint64 { return 42 }, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	if sink.count() == 0 {
		t.Fatal("expected at least one tick")
	}
	for _, ev := range sink.evs {
		if ev.Kind != engine.EventTick {
			t.Fatalf("expected only Tick events, got %v", ev.Kind)
		}
		if ev.NowMs != 42 {
			t.Fatalf("expected injected clock value, got %d", ev.NowMs)
		}
	}
}
