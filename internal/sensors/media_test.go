package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

const samplePactlOutput = `Sink Input #42
	Driver: protocol-native.c
	Corked: no
	properties:
		application.name = "Firefox"
		media.name = "Playback"
Sink Input #43
	Driver: protocol-native.c
	Corked: yes
	properties:
		application.name = "Spotify"
`

func TestParseSinkInputs(t *testing.T) {
	inputs := parseSinkInputs(samplePactlOutput)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 sink inputs, got %d", len(inputs))
	}
	if inputs[0].appName != "Firefox" || inputs[0].corked {
		t.Fatalf("unexpected first input: %+v", inputs[0])
	}
	if inputs[1].appName != "Spotify" || !inputs[1].corked {
		t.Fatalf("unexpected second input: %+v", inputs[1])
	}
}

func TestMediaSensorDisabledReportsIdleOnce(t *testing.T) {
	sink := &recordingSink{}
	m := NewMediaSensor(sink, func() uint64 { return 5 }, MediaRules{MonitorMedia: false})
	m.every = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	if sink.count() != 2 {
		t.Fatalf("expected inhibitor-count + state-changed pair, got %d", sink.count())
	}
	if sink.evs[1].MediaState != engine.MediaIdle {
		t.Fatalf("expected Idle state, got %v", sink.evs[1].MediaState)
	}
}

func TestMediaSensorCountsUncorkedNonBlacklisted(t *testing.T) {
	sink := &recordingSink{}
	m := NewMediaSensor(sink, func() uint64 { return 5 }, MediaRules{
		MonitorMedia: true,
		Blacklist:    []config.Pattern{{Literal: "spotify"}},
	})
	m.runPactl = func(ctx context.Context) (string, error) { return samplePactlOutput, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	var lastCount uint64
	var lastState engine.MediaState
	for _, ev := range sink.evs {
		if ev.Kind == engine.EventMediaInhibitorCount {
			lastCount = ev.Count
		}
		if ev.Kind == engine.EventMediaStateChanged {
			lastState = ev.MediaState
		}
	}
	if lastCount != 1 {
		t.Fatalf("expected count 1 (Spotify corked, Firefox uncorked), got %d", lastCount)
	}
	if lastState != engine.MediaPlayingLocal {
		t.Fatalf("expected PlayingLocal, got %v", lastState)
	}
}
