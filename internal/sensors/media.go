package sensors

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

// MediaPollInterval is how often the media prober shells out to pactl.
const MediaPollInterval = time.Second

// sinkInput is the subset of a `pactl list sink-inputs` block this sensor
// cares about: the stream's application name and whether it's corked
// (paused).
type sinkInput struct {
	appName string
	corked  bool
}

// MediaRules holds the media-monitoring settings a MediaSensor polls with.
// cmd/stasis builds one from the default config at startup; a later
// ProfileChanged or ReloadConfig does not rebuild it or the sensor.
type MediaRules struct {
	MonitorMedia      bool
	IgnoreRemoteMedia bool
	Blacklist         []config.Pattern
}

// MediaSensor polls pactl for active playback streams and reports an
// aggregate MediaState plus an inhibitor count (playing streams not
// matched by the blacklist, and not remote when IgnoreRemoteMedia is set).
type MediaSensor struct {
	sink  EventSink
	nowMs nowMsFunc
	every time.Duration
	rules MediaRules

	runPactl func(ctx context.Context) (string, error)
}

// NewMediaSensor builds a MediaSensor. Its rules are fixed for the sensor's
// lifetime. When rules.MonitorMedia is false the sensor still runs but
// immediately reports Idle/0 and never shells out.
func NewMediaSensor(sink EventSink, nowMs func() uint64, rules MediaRules) *MediaSensor {
	return &MediaSensor{
		sink:     sink,
		nowMs:    nowMs,
		every:    MediaPollInterval,
		rules:    rules,
		runPactl: runPactlSinkInputs,
	}
}

// Run blocks, polling until ctx is cancelled.
func (m *MediaSensor) Run(ctx context.Context) {
	var lastCount uint64
	var lastState engine.MediaState
	first := true

	poll := func() {
		if !m.rules.MonitorMedia {
			if first || lastCount != 0 {
				now := m.nowMs()
				m.sink.Push(engine.MediaInhibitorCount(0, now))
				m.sink.Push(engine.MediaStateChanged(engine.MediaIdle, now))
				lastCount = 0
				lastState = engine.MediaIdle
			}
			first = false
			return
		}

		out, err := m.runPactl(ctx)
		if err != nil {
			out = ""
		}
		inputs := parseSinkInputs(out)

		var count uint64
		state := engine.MediaIdle
		for _, in := range inputs {
			if in.corked {
				continue
			}
			if patternsMatchLC(m.rules.Blacklist, strings.ToLower(in.appName)) {
				continue
			}
			if m.rules.IgnoreRemoteMedia && isRemoteApp(in.appName) {
				if state == engine.MediaIdle {
					state = engine.MediaPlayingRemote
				}
				continue
			}
			count++
			state = engine.MediaPlayingLocal
		}
		if m.rules.IgnoreRemoteMedia && state == engine.MediaPlayingRemote {
			count = 0
		}

		if first || count != lastCount {
			m.sink.Push(engine.MediaInhibitorCount(count, m.nowMs()))
			lastCount = count
		}
		if first || state != lastState {
			m.sink.Push(engine.MediaStateChanged(state, m.nowMs()))
			lastState = state
		}
		first = false
	}

	poll()

	tick := time.NewTicker(m.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			poll()
		}
	}
}

func patternsMatchLC(patterns []config.Pattern, haystackLC string) bool {
	for _, p := range patterns {
		if p.MatchesLC(haystackLC) {
			return true
		}
	}
	return false
}

// isRemoteApp is a cheap heuristic for "this stream came from a remote
// desktop/browser-tab-in-a-call session rather than local media playback":
// remote-conferencing clients identify themselves in their pactl
// application.name. It deliberately errs toward under-detecting remote
// media rather than misclassifying local playback.
func isRemoteApp(appName string) bool {
	lc := strings.ToLower(appName)
	for _, marker := range []string{"teams", "zoom", "webrtc", "remmina", "anydesk"} {
		if strings.Contains(lc, marker) {
			return true
		}
	}
	return false
}

func runPactlSinkInputs(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	return string(out), err
}

// parseSinkInputs does a line-oriented scan of `pactl list sink-inputs`
// output: each "Sink Input #N" header starts a new block, and within a
// block "Corked: yes/no" and "application.name = \"...\"" are the only
// fields this sensor reads.
func parseSinkInputs(out string) []sinkInput {
	var result []sinkInput
	var cur *sinkInput

	flush := func() {
		if cur != nil {
			result = append(result, *cur)
		}
	}

	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Sink Input #"):
			flush()
			cur = &sinkInput{}
		case cur == nil:
			continue
		case strings.HasPrefix(trimmed, "Corked:"):
			cur.corked = strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(trimmed, "Corked:")), "yes")
		case strings.HasPrefix(trimmed, "application.name ="):
			v := strings.TrimPrefix(trimmed, "application.name =")
			v = strings.TrimSpace(v)
			v = strings.Trim(v, "\"")
			cur.appName = v
		}
	}
	flush()
	return result
}
