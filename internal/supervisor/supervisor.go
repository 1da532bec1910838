package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

// Executor runs the side effects HandleEvent returns. Implemented by
// internal/exec.
type Executor interface {
	Run(engine.Action)
}

// Metrics is the subset of the observability surface the supervisor drives
// directly. Implemented by internal/metrics.
type Metrics interface {
	TickProcessed()
	ActionFired(kind string)
	SetPaused(paused bool)
	IdleCycleReset()
	PlanReloaded()
}

// Ledger records fired actions for the IPC `history` command. Implemented
// by internal/audit.
type Ledger interface {
	Append(eventKind, action string, stepIndex int) error
}

const inboxCapacity = 256

// Supervisor owns the engine's State and ConfigFile and is the only
// goroutine that ever mutates either. It drains its inbox, invokes
// HandleEvent, and executes the actions HandleEvent returns.
type Supervisor struct {
	state *engine.State
	eng   *engine.Engine

	cfgPath string

	executor Executor
	metrics  Metrics
	ledger   Ledger
	log      *zap.Logger

	inbox  chan ManagerMsg
	stopCh chan struct{}

	startMs uint64
	nowMs   func() uint64
}

// New builds a Supervisor. nowMs supplies the daemon's monotonic clock;
// cf is the initially loaded config file; cfgPath is re-read on
// ReloadConfig.
func New(cfgPath string, cf *config.ConfigFile, executor Executor, log *zap.Logger, nowMs func() uint64) *Supervisor {
	now := nowMs()
	return &Supervisor{
		state:    engine.NewState(now),
		eng:      engine.New(cf),
		cfgPath:  cfgPath,
		executor: executor,
		log:      log,
		inbox:    make(chan ManagerMsg, inboxCapacity),
		stopCh:   make(chan struct{}),
		startMs:  now,
		nowMs:    nowMs,
	}
}

// SetMetrics attaches an optional metrics sink.
func (sv *Supervisor) SetMetrics(m Metrics) { sv.metrics = m }

// SetLedger attaches an optional audit ledger.
func (sv *Supervisor) SetLedger(l Ledger) { sv.ledger = l }

// Inbox returns the channel other components send ManagerMsg to. It is
// bounded: a sensor that floods it faster than the supervisor can drain
// will block, applying natural backpressure.
func (sv *Supervisor) Inbox() chan<- ManagerMsg { return sv.inbox }

// StopRequested is closed once a StopDaemon message has been handled; main
// selects on it alongside SIGINT/SIGTERM to trigger the same shutdown path.
func (sv *Supervisor) StopRequested() <-chan struct{} { return sv.stopCh }

// Run drains the inbox until ctx is cancelled or a StopDaemon message is
// processed.
func (sv *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sv.inbox:
			sv.handle(msg)
			if msg.Kind == MsgStopDaemon {
				return
			}
		}
	}
}

func (sv *Supervisor) handle(msg ManagerMsg) {
	switch msg.Kind {
	case MsgEvent:
		sv.handleEvent(msg.Event, msg.Reply)
	case MsgList:
		sv.handleList(msg)
	case MsgGetInfo:
		sv.handleGetInfo(msg)
	case MsgSetProfile:
		sv.handleSetProfile(msg)
	case MsgReloadConfig:
		sv.handleReloadConfig(msg)
	case MsgStopDaemon:
		sv.handleStopDaemon(msg)
	case MsgEffectiveConfig:
		sv.handleEffectiveConfig(msg)
	}
}

// applyEvent runs ev through the engine and executes every returned
// Action, recording it to the ledger and metrics. The engine's error (if
// any — profile resolution failure) is returned to the caller, which
// decides how loudly to report it.
func (sv *Supervisor) applyEvent(ev engine.Event) error {
	actions, err := sv.eng.HandleEvent(sv.state, ev)
	for _, a := range actions {
		sv.executor.Run(a)
		if sv.ledger != nil {
			if lerr := sv.ledger.Append(eventKindName(ev.Kind), a.Kind.String(), sv.state.StepIndex); lerr != nil {
				sv.log.Warn("audit ledger append failed", zap.Error(lerr))
			}
		}
		if sv.metrics != nil {
			sv.metrics.ActionFired(a.Kind.String())
		}
	}
	if sv.metrics != nil {
		sv.metrics.SetPaused(sv.state.Paused)
	}
	return err
}

func (sv *Supervisor) handleEvent(ev engine.Event, reply chan Response) {
	err := sv.applyEvent(ev)
	if ev.Kind == engine.EventTick && sv.metrics != nil {
		sv.metrics.TickProcessed()
	}
	if ev.Kind == engine.EventUserActivity && sv.metrics != nil {
		sv.metrics.IdleCycleReset()
	}
	if err == nil {
		sv.reply(reply, Response{Text: "ok"})
		return
	}
	if errors.Is(err, engine.ErrProfileNotFound) {
		// Ticks hit this path on every tick once the active profile goes
		// missing; log it once per configuration epoch instead of
		// flooding the log at tick rate.
		if ev.Kind == engine.EventTick {
			if !sv.state.ProfileNotFoundLogged {
				sv.log.Error("active profile not found", zap.String("profile", sv.state.ActiveProfile))
				sv.state.ProfileNotFoundLogged = true
			}
			sv.reply(reply, Response{Err: err})
			return
		}
		sv.log.Error("profile not found", zap.String("profile", sv.state.ActiveProfile), zap.Error(err))
		sv.reply(reply, Response{Err: err})
		return
	}
	sv.log.Error("engine error", zap.Error(err))
	sv.reply(reply, Response{Err: err})
}

func (sv *Supervisor) handleList(msg ManagerMsg) {
	resp := Response{}
	switch msg.ListKind {
	case ListActions:
		cfg, err := sv.eng.ConfigFile.EffectiveFor(sv.state.ActiveProfile, sv.state.PlanSource)
		if err != nil {
			resp.Err = err
			break
		}
		for _, step := range cfg.Plan {
			resp.Lines = append(resp.Lines, planStepLabel(step))
		}
	case ListProfiles:
		names := []string{"default"}
		for _, p := range sv.eng.ConfigFile.Profiles {
			names = append(names, p.Name)
		}
		sort.Strings(names[1:])
		resp.Lines = names
	}
	sv.reply(msg.Reply, resp)
}

func planStepLabel(step config.PlanStep) string {
	if step.Kind.Tag == config.Custom {
		return step.Kind.Name
	}
	return step.Kind.Tag.String()
}

func (sv *Supervisor) handleGetInfo(msg ManagerMsg) {
	s := sv.state
	now := sv.nowMs()

	var idleMs, uptimeMs uint64
	if now > s.LastActivityMs {
		idleMs = now - s.LastActivityMs
	}
	if now > sv.startMs {
		uptimeMs = now - sv.startMs
	}

	profile := s.ActiveProfile
	if profile == "" {
		profile = "default"
	}

	var text, alt, class string
	switch {
	case s.ManuallyPaused:
		text, alt, class = "Inhibited", "manually_inhibited", "manually_inhibited"
	case s.Paused:
		text, alt, class = "Blocked", "idle_inhibited", "idle_inhibited"
	default:
		text, alt, class = "Active", "idle_active", "idle_active"
	}

	state := "Idle active"
	if s.Paused {
		state = "Idle inhibited"
	}
	tooltip := fmt.Sprintf(
		"%s\nIdle time: %s\nUptime: %s\nPaused: %t\nManually paused: %t\nApp blocking: %t\nMedia blocking: %t\nProfile: %s",
		state, formatDuration(idleMs), formatDuration(uptimeMs),
		s.Paused, s.ManuallyPaused, s.AppInhibitorCount > 0, s.MediaInhibitorCount > 0, profile,
	)

	sv.reply(msg.Reply, Response{Info: InfoSnapshot{
		Text: text, Alt: alt, Class: class, Tooltip: tooltip, Profile: profile,
	}})
}

func (sv *Supervisor) handleSetProfile(msg ManagerMsg) {
	err := sv.applyEvent(engine.ProfileChanged(msg.ProfileName, sv.nowMs()))
	resp := Response{}
	if err != nil {
		resp.Err = err
	} else {
		resp.Text = "profile set"
	}
	sv.reply(msg.Reply, resp)
}

// handleReloadConfig atomically swaps the live ConfigFile, then synthesizes
// a ProfileChanged for the currently active profile — the same path
// handleSetProfile takes — so the reloaded plan's startup-instant steps
// fire and State resets (idle cycle, one-shots) exactly as they would for
// a manual profile switch. A profile the reload dropped falls back to
// "none" instead of erroring on every subsequent Tick.
func (sv *Supervisor) handleReloadConfig(msg ManagerMsg) {
	cf, err := config.Load(sv.cfgPath)
	if err != nil {
		sv.reply(msg.Reply, Response{Err: fmt.Errorf("reload: %w", err)})
		return
	}
	if err := config.Validate(cf); err != nil {
		sv.reply(msg.Reply, Response{Err: fmt.Errorf("reload: %w", err)})
		return
	}
	sv.eng.ConfigFile = &cf

	name := sv.state.ActiveProfile
	if name == "" {
		name = "none"
	}
	if _, err := cf.EffectiveFor(sv.state.ActiveProfile, sv.state.PlanSource); err != nil {
		name = "none"
	}

	if err := sv.applyEvent(engine.ProfileChanged(name, sv.nowMs())); err != nil {
		sv.reply(msg.Reply, Response{Err: fmt.Errorf("reload: %w", err)})
		return
	}

	if sv.metrics != nil {
		sv.metrics.PlanReloaded()
	}
	sv.reply(msg.Reply, Response{Text: "config reloaded"})
}

func (sv *Supervisor) handleStopDaemon(msg ManagerMsg) {
	sv.reply(msg.Reply, Response{Text: "stopping"})
	close(sv.stopCh)
}

func (sv *Supervisor) handleEffectiveConfig(msg ManagerMsg) {
	cfg, err := sv.eng.ConfigFile.EffectiveFor(sv.state.ActiveProfile, sv.state.PlanSource)
	if err != nil {
		sv.reply(msg.Reply, Response{Err: err})
		return
	}
	sv.reply(msg.Reply, Response{Effective: cfg})
}

func (sv *Supervisor) reply(ch chan Response, resp Response) {
	if ch == nil {
		return
	}
	ch <- resp
}

func eventKindName(k engine.EventKind) string {
	switch k {
	case engine.EventTick:
		return "tick"
	case engine.EventUserActivity:
		return "user_activity"
	case engine.EventMediaStateChanged:
		return "media_state_changed"
	case engine.EventPowerChanged:
		return "power_changed"
	case engine.EventLidClosed:
		return "lid_closed"
	case engine.EventLidOpened:
		return "lid_opened"
	case engine.EventSessionLocked:
		return "session_locked"
	case engine.EventSessionUnlocked:
		return "session_unlocked"
	case engine.EventManualPause:
		return "manual_pause"
	case engine.EventManualResume:
		return "manual_resume"
	case engine.EventManualTrigger:
		return "manual_trigger"
	case engine.EventPauseExpired:
		return "pause_expired"
	case engine.EventProfileChanged:
		return "profile_changed"
	case engine.EventPrepareForSleep:
		return "prepare_for_sleep"
	case engine.EventResumedFromSleep:
		return "resumed_from_sleep"
	case engine.EventAppInhibitorCount:
		return "app_inhibitor_count"
	case engine.EventMediaInhibitorCount:
		return "media_inhibitor_count"
	default:
		return "unknown"
	}
}

func formatDuration(ms uint64) string {
	secs := ms / 1000
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
