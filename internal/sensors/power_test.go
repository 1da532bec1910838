package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
)

func TestPowerSensorSkipsDesktops(t *testing.T) {
	sink := &recordingSink{}
	p := &PowerSensor{
		sink:     sink,
		nowMs:    func() uint64 { return 1 },
		every:    time.Millisecond,
		isLaptop: func() bool { return false },
		readAC:   func() bool { return true },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if sink.count() != 0 {
		t.Fatalf("expected no pushes on a desktop, got %d", sink.count())
	}
}

func TestPowerSensorPushesOnFlip(t *testing.T) {
	sink := &recordingSink{}
	onAC := true
	p := &PowerSensor{
		sink:     sink,
		nowMs:    func() uint64 { return 7 },
		every:    2 * time.Millisecond,
		isLaptop: func() bool { return true },
		readAC:   func() bool { return onAC },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	onAC = false
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	if sink.count() < 2 {
		t.Fatalf("expected an initial push plus a flip push, got %d", sink.count())
	}
	first := sink.evs[0]
	if first.PowerState != engine.PowerOnAC {
		t.Fatalf("expected first push to report OnAC, got %v", first.PowerState)
	}
	last := sink.evs[len(sink.evs)-1]
	if last.PowerState != engine.PowerOnBattery {
		t.Fatalf("expected last push to report OnBattery, got %v", last.PowerState)
	}
}
