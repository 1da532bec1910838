package sensors

import (
	"context"
	"testing"

	"github.com/dpilgrim/stasis/internal/config"
)

func TestAppSensorCountsMatchingPatterns(t *testing.T) {
	sink := &recordingSink{}
	patterns := []config.Pattern{{Literal: "zoom"}, {Literal: "obs"}}
	a := NewAppSensor(sink, func() uint64 { return 3 }, patterns)
	a.listProcessNames = func() ([]string, error) {
		return []string{"bash", "zoom", "Xorg"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	if sink.count() != 1 {
		t.Fatalf("expected one push, got %d", sink.count())
	}
	if sink.evs[0].Count != 1 {
		t.Fatalf("expected count 1 (zoom matched, obs did not), got %d", sink.evs[0].Count)
	}
}

func TestAppSensorOnlyPushesOnChange(t *testing.T) {
	sink := &recordingSink{}
	patterns := []config.Pattern{{Literal: "zoom"}}
	a := NewAppSensor(sink, func() uint64 { return 3 }, patterns)
	calls := 0
	a.listProcessNames = func() ([]string, error) {
		calls++
		return []string{"zoom"}, nil
	}

	a.poll()
	a.poll()

	if sink.count() != 1 {
		t.Fatalf("expected a single push across two identical polls, got %d", sink.count())
	}
}
