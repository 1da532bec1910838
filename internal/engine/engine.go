package engine

import (
	"errors"
	"strings"

	"github.com/dpilgrim/stasis/internal/config"
)

// Engine resolves the effective plan for the current selection and drives
// State through HandleEvent. It holds a pointer to the live ConfigFile so
// that a ReloadConfig swap is visible on the very next event.
type Engine struct {
	ConfigFile *config.ConfigFile
}

func New(cf *config.ConfigFile) *Engine {
	return &Engine{ConfigFile: cf}
}

// HandleEvent is the core contract: given the current State and an
// incoming Event, mutate State and return the Actions the supervisor must
// execute. Pure with respect to I/O.
func (e *Engine) HandleEvent(state *State, ev Event) ([]Action, error) {
	cfg, err := e.ConfigFile.EffectiveFor(state.ActiveProfile, state.PlanSource)
	if err != nil {
		return nil, errors.Join(err, ErrProfileNotFound)
	}

	state.EnsurePlanLen(len(cfg.Plan))
	state.SetDebounceSeconds(cfg.DebounceSeconds)
	state.RefreshPaused()

	actions := maybeFireStartupInstants(state, cfg, ev.NowMs)
	syncStepIndexAfterStartupInstants(state, cfg.Plan)

	switch ev.Kind {
	case EventTick:
		if state.Paused {
			return actions, nil
		}
		advancePastLockIfNeeded(state, cfg.Plan)
		actions = append(actions, maybeFireNextStep(state, cfg, ev.NowMs)...)
		return actions, nil

	case EventUserActivity:
		pausedBefore := state.Paused
		actions = append(actions, resumeCommandsForActivity(state, cfg.Plan)...)
		if state.IsLocked {
			advancePastLockIfNeeded(state, cfg.Plan)
			idx := firstEnabledStepAfterLock(cfg.Plan)
			state.RestartPostLockSegment(ev.NowMs, idx)
			state.RefreshPaused()
			if cfg.NotifyOnUnpause && pausedBefore && !state.Paused {
				actions = append(actions, notify("resumed"))
			}
		} else {
			state.ResetIdleCycle(ev.NowMs)
			syncStepIndexAfterStartupInstants(state, cfg.Plan)
		}
		return actions, nil

	case EventManualPause:
		if state.ManuallyPaused {
			return actions, ErrAlreadyPaused
		}
		state.ManuallyPaused = true
		state.RefreshPaused()
		return actions, nil

	case EventManualResume:
		if !state.ManuallyPaused {
			return actions, ErrNotPaused
		}
		state.ManuallyPaused = false
		actions = append(actions, resumeCommandsForActivity(state, cfg.Plan)...)
		state.ResetIdleCycle(ev.NowMs)
		state.RefreshPaused()
		return actions, nil

	case EventPauseExpired:
		if !state.ManuallyPaused {
			return actions, nil
		}
		state.ManuallyPaused = false
		actions = append(actions, resumeCommandsForActivity(state, cfg.Plan)...)
		state.ResetIdleCycle(ev.NowMs)
		if cfg.NotifyOnUnpause {
			actions = append(actions, notify(ev.Message))
		}
		state.RefreshPaused()
		return actions, nil

	case EventManualTrigger:
		actions = append(actions, handleManualTrigger(state, cfg, ev)...)
		return actions, nil

	case EventSessionLocked:
		if !state.IsLocked {
			state.IsLocked = true
			advancePastLockIfNeeded(state, cfg.Plan)
		}
		return actions, nil

	case EventSessionUnlocked:
		if state.IsLocked {
			state.IsLocked = false
			if state.TakeResumeDeferredUntilUnlock() {
				state.ArmResumeEpisode()
			}
			actions = append(actions, resumeCommandsForActivity(state, cfg.Plan)...)
			state.ResetIdleCycle(ev.NowMs)
			syncStepIndexAfterStartupInstants(state, cfg.Plan)
			advancePastLockIfNeeded(state, cfg.Plan)
		}
		return actions, nil

	case EventPrepareForSleep, EventLidClosed:
		state.SystemPaused = true
		state.RefreshPaused()
		return actions, nil

	case EventResumedFromSleep, EventLidOpened:
		state.SystemPaused = false
		actions = append(actions, resumeCommandsForActivity(state, cfg.Plan)...)
		if state.IsLocked {
			idx := firstEnabledStepAfterLock(cfg.Plan)
			state.RestartPostLockSegment(ev.NowMs, idx)
		} else {
			state.ResetIdleCycle(ev.NowMs)
		}
		state.RefreshPaused()
		return actions, nil

	case EventProfileChanged:
		return e.handleProfileChanged(state, ev)

	case EventPowerChanged:
		return e.handlePowerChanged(state, ev)

	case EventAppInhibitorCount:
		state.AppInhibitorCount = ev.Count
		state.RefreshPaused()
		return actions, nil

	case EventMediaInhibitorCount:
		state.MediaInhibitorCount = ev.Count
		state.RefreshPaused()
		return actions, nil

	case EventMediaStateChanged:
		state.RefreshPaused()
		return actions, nil

	default:
		return actions, nil
	}
}

func (e *Engine) handleProfileChanged(state *State, ev Event) ([]Action, error) {
	trimmed := strings.TrimSpace(ev.Name)
	if trimmed == "" {
		return nil, ErrInvalidProfileName
	}
	newProfile := trimmed
	if strings.EqualFold(trimmed, "none") {
		newProfile = ""
	}

	state.ActiveProfile = newProfile
	state.AppInhibitorCount = 0
	state.MediaInhibitorCount = 0
	state.ResetIdleCycle(ev.NowMs)
	state.ClearOneShots()
	state.ProfileNotFoundLogged = false

	cfg, err := e.ConfigFile.EffectiveFor(state.ActiveProfile, state.PlanSource)
	if err != nil {
		return nil, errors.Join(err, ErrProfileNotFound)
	}
	state.EnsurePlanLen(len(cfg.Plan))
	state.RefreshPaused()
	syncStepIndexAfterStartupInstants(state, cfg.Plan)
	advancePastLockIfNeeded(state, cfg.Plan)

	return maybeFireStartupInstants(state, cfg, ev.NowMs), nil
}

func (e *Engine) handlePowerChanged(state *State, ev Event) ([]Action, error) {
	ps := ev.PowerState
	state.PowerState = &ps
	switch ps {
	case PowerOnAC:
		state.PlanSource = config.SourceAc
	case PowerOnBattery:
		state.PlanSource = config.SourceBattery
	}

	state.ResetIdleCycle(ev.NowMs)
	state.ClearOneShots()
	state.ProfileNotFoundLogged = false

	cfg, err := e.ConfigFile.EffectiveFor(state.ActiveProfile, state.PlanSource)
	if err != nil {
		return nil, errors.Join(err, ErrProfileNotFound)
	}
	state.EnsurePlanLen(len(cfg.Plan))
	state.RefreshPaused()
	syncStepIndexAfterStartupInstants(state, cfg.Plan)
	advancePastLockIfNeeded(state, cfg.Plan)

	return maybeFireStartupInstants(state, cfg, ev.NowMs), nil
}

func handleManualTrigger(state *State, cfg config.Effective, ev Event) []Action {
	normalized := normalizeTriggerName(ev.Name)

	if normalized == "all" {
		var actions []Action
		for idx, step := range cfg.Plan {
			if !step.Enabled() || step.IsInstant() {
				continue
			}
			if step.IsLock() && state.IsLocked {
				continue
			}
			actions = append(actions, actionsForPlanStep(state, cfg, step)...)
			state.MarkStepFired(idx, cfg.Plan)
		}
		state.DebouncePending = false
		state.StepIndex = len(cfg.Plan)
		return actions
	}

	idx, ok := findTriggerStep(cfg.Plan, normalized)
	if !ok {
		return nil
	}
	step := cfg.Plan[idx]
	actions := actionsForPlanStep(state, cfg, step)
	state.MarkStepFired(idx, cfg.Plan)
	state.StepIndex = idx + 1
	state.StepBaseMs = ev.NowMs
	state.DebouncePending = false
	state.SentPreActionNotify = false
	state.PreActionNotifyMs = 0
	return actions
}

// normalizeTriggerName: trim, lowercase, strip internal spaces/tabs,
// underscores to dashes, then map the lockscreen/lock aliases.
func normalizeTriggerName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "", "\t", "").Replace(s)
	s = strings.ReplaceAll(s, "_", "-")
	switch s {
	case "lockscreen", "lock":
		return "lock-screen"
	default:
		return s
	}
}

func triggerMatchesStep(step config.PlanStep, normalized string) bool {
	if step.Kind.Tag == config.Custom {
		name := strings.ReplaceAll(strings.ToLower(step.Kind.Name), "_", "-")
		return normalized == name || normalized == "custom:"+name || normalized == "custom-"+name
	}
	tagName := strings.ReplaceAll(step.Kind.Tag.String(), "_", "-")
	return tagName == normalized
}

func findTriggerStep(plan []config.PlanStep, normalized string) (int, bool) {
	for idx, step := range plan {
		if !step.Enabled() {
			continue
		}
		if triggerMatchesStep(step, normalized) {
			return idx, true
		}
	}
	return 0, false
}

func firstEnabledStepAfterLock(plan []config.PlanStep) int {
	lockIdx := -1
	for i, s := range plan {
		if s.IsLock() {
			lockIdx = i
			break
		}
	}
	if lockIdx == -1 {
		return 0
	}
	for i := lockIdx + 1; i < len(plan); i++ {
		if plan[i].Enabled() {
			return i
		}
	}
	return len(plan)
}

// advancePastLockIfNeeded skips the cursor past the lock step whenever it
// sits there while the session is locked.
func advancePastLockIfNeeded(state *State, plan []config.PlanStep) {
	for state.StepIndex < len(plan) && state.IsLocked && plan[state.StepIndex].IsLock() {
		state.StepIndex++
	}
}

// maybeFireStartupInstants scans the plan from index 0, firing any enabled
// Startup instant step that hasn't fired in this process lifetime yet, and
// stops at the first enabled step that is not a startup instant.
func maybeFireStartupInstants(state *State, cfg config.Effective, nowMs uint64) []Action {
	var actions []Action
	idx := 0
	for idx < len(cfg.Plan) {
		step := cfg.Plan[idx]
		if !step.Enabled() {
			idx++
			continue
		}
		if step.Kind.Tag == config.Startup && step.IsInstant() {
			if !state.OneShotHasFired(step) {
				actions = append(actions, actionsForPlanStep(state, cfg, step)...)
				state.MarkStepFired(idx, cfg.Plan)
				state.MarkOneShotFired(step)
				state.SentPreActionNotify = false
				state.PreActionNotifyMs = 0
			}
			idx++
			continue
		}
		break
	}
	_ = nowMs
	return actions
}

// syncStepIndexAfterStartupInstants advances the cursor past any startup
// instants whenever it is still sitting at 0 (i.e. no other event has
// already moved it).
func syncStepIndexAfterStartupInstants(state *State, plan []config.PlanStep) {
	if state.StepIndex != 0 {
		return
	}
	idx := 0
	for idx < len(plan) {
		step := plan[idx]
		if !step.Enabled() {
			idx++
			continue
		}
		if step.Kind.Tag == config.Startup && step.IsInstant() {
			idx++
			continue
		}
		break
	}
	state.StepIndex = idx
}

// resumeCommandsForActivity emits the resume-command episode, if one is
// armed, in dpms-group → brightness-group → lock/trailing order, honoring
// the lock-deferred episode semantics.
func resumeCommandsForActivity(state *State, plan []config.PlanStep) []Action {
	if !state.ResumeDue() {
		return nil
	}

	var actions []Action

	if state.LastDpmsFiredIdx != nil {
		step := plan[*state.LastDpmsFiredIdx]
		if step.ResumeCommand != nil {
			actions = append(actions, runResumeCommand(*step.ResumeCommand))
		}
	}
	if state.LastBrightnessFiredIdx != nil {
		step := plan[*state.LastBrightnessFiredIdx]
		if step.ResumeCommand != nil {
			actions = append(actions, runResumeCommand(*step.ResumeCommand))
		}
	}

	if state.IsLocked {
		state.ResumeDeferredUntilUnlock = true
		state.MarkResumed()
		return actions
	}

	if state.LastLockFiredIdx != nil {
		step := plan[*state.LastLockFiredIdx]
		if step.ResumeCommand != nil {
			actions = append(actions, runResumeCommand(*step.ResumeCommand))
		}
	}
	if state.LastFiredIdx != nil &&
		!idxEqual(state.LastFiredIdx, state.LastDpmsFiredIdx) &&
		!idxEqual(state.LastFiredIdx, state.LastBrightnessFiredIdx) &&
		!idxEqual(state.LastFiredIdx, state.LastLockFiredIdx) {
		step := plan[*state.LastFiredIdx]
		if step.ResumeCommand != nil {
			actions = append(actions, runResumeCommand(*step.ResumeCommand))
		}
	}

	state.MarkResumed()
	return actions
}

func idxEqual(a, b *int) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// maybeFireNextStep is the Tick-path firing routine: skip disabled/locked
// steps and already-fired instants, then apply the timed/pre-notification
// logic to the first timed step reached.
func maybeFireNextStep(state *State, cfg config.Effective, nowMs uint64) []Action {
	var actions []Action

	for {
		if state.StepIndex >= len(cfg.Plan) {
			return actions
		}
		step := cfg.Plan[state.StepIndex]

		if !step.Enabled() {
			state.StepIndex++
			continue
		}
		if state.IsLocked && step.IsLock() {
			state.StepIndex++
			continue
		}
		if step.IsInstant() {
			if !state.OneShotHasFired(step) {
				actions = append(actions, actionsForPlanStep(state, cfg, step)...)
				state.MarkStepFired(state.StepIndex, cfg.Plan)
				state.MarkOneShotFired(step)
			}
			state.StepIndex++
			state.StepBaseMs = nowMs
			state.SentPreActionNotify = false
			state.PreActionNotifyMs = 0
			continue
		}
		break
	}

	step := cfg.Plan[state.StepIndex]
	var debounceMs uint64
	if state.DebouncePending {
		debounceMs = uint64(cfg.DebounceSeconds) * 1000
	}
	timeoutMs := step.TimeoutSeconds * 1000
	baseDueMs := state.StepBaseMs + debounceMs + timeoutMs

	if cfg.NotifyBeforeAction && step.Notification != nil {
		if nowMs < baseDueMs && !state.SentPreActionNotify {
			return actions
		}
		if !state.SentPreActionNotify {
			actions = append(actions, notify(*step.Notification))
			state.SentPreActionNotify = true
			state.PreActionNotifyMs = nowMs
			return actions
		}
		var notifySecondsBefore uint64
		if step.NotifySecondsBefore != nil {
			notifySecondsBefore = *step.NotifySecondsBefore
		}
		if nowMs < state.PreActionNotifyMs+notifySecondsBefore*1000 {
			return actions
		}
	} else if nowMs < baseDueMs {
		return actions
	}

	actions = append(actions, actionsForPlanStep(state, cfg, step)...)
	state.MarkStepFired(state.StepIndex, cfg.Plan)
	state.StepIndex++
	state.StepBaseMs = nowMs
	state.LastActionMs = nowMs
	state.SentPreActionNotify = false
	state.PreActionNotifyMs = 0
	state.DebouncePending = false
	return actions
}

// actionsForPlanStep translates a firing step into its Actions.
func actionsForPlanStep(state *State, cfg config.Effective, step config.PlanStep) []Action {
	switch step.Kind.Tag {
	case config.LockScreen:
		if state.IsLocked {
			return nil
		}
		if step.Command != nil {
			return []Action{runLockScreen(*step.Command, step.UseLoginctl)}
		}
		if step.UseLoginctl {
			return []Action{lockSession()}
		}
		return nil

	case config.Suspend:
		var actions []Action
		if cfg.PreSuspendCommand != nil {
			actions = append(actions, runCommand(*cfg.PreSuspendCommand))
		}
		if step.Command != nil {
			actions = append(actions, runCommand(*step.Command))
		} else {
			actions = append(actions, suspend())
		}
		return actions

	default:
		if step.Command != nil {
			return []Action{runCommand(*step.Command)}
		}
		return nil
	}
}
