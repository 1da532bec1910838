package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/sensors"
	"github.com/dpilgrim/stasis/internal/supervisor"
)

// startSensors builds every sensor from the loaded config and launches
// each on its own goroutine, all pushing through the same InboxSink into
// the supervisor. A sensor that fails to start (missing D-Bus service,
// desktop chassis) simply never pushes; it never takes the daemon down.
func startSensors(ctx context.Context, cf *config.ConfigFile, sv *supervisor.Supervisor, log *zap.Logger) {
	sink := sensors.NewInboxSink(sv.Inbox())
	nowMs := sensors.RealClock

	go sensors.NewTicker(sink, nowMs, sensors.TickInterval).Run(ctx)
	go sensors.NewPowerSensor(sink, nowMs).Run(ctx)
	go sensors.NewWaylandSensor(sink, nowMs).Run(ctx)

	enableLoginctl := cf.Default.LockDetectionType == config.LockDetectionLogind
	go sensors.NewDBusSensor(sink, nowMs, enableLoginctl, log).Run(ctx)

	go sensors.NewAppSensor(sink, nowMs, cf.Default.InhibitApps).Run(ctx)

	mediaRules := sensors.MediaRules{
		MonitorMedia:      cf.Default.MonitorMedia,
		IgnoreRemoteMedia: cf.Default.IgnoreRemoteMedia,
		Blacklist:         literalPatterns(cf.Default.MediaBlacklist),
	}
	go sensors.NewMediaSensor(sink, nowMs, mediaRules).Run(ctx)
}

// literalPatterns wraps each configured blacklist string as a literal
// (non-regex) Pattern, matching how the media prober's blacklist field
// is declared in the rune config.
func literalPatterns(literals []string) []config.Pattern {
	out := make([]config.Pattern, len(literals))
	for i, s := range literals {
		out[i] = config.Pattern{Literal: s}
	}
	return out
}

// forwardExecutorEvents relays the executor's synthesized SessionLocked /
// SessionUnlocked events (produced by a RunLockScreen action) into the
// supervisor's inbox as fire-and-forget ManagerMsg values.
func forwardExecutorEvents(events <-chan engine.Event, inbox chan<- supervisor.ManagerMsg) {
	for ev := range events {
		inbox <- supervisor.EventMsg(ev)
	}
}
