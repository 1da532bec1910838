package engine

import "github.com/dpilgrim/stasis/internal/config"

// oneShotKey identifies a lifetime one-shot instant step. Custom steps use
// their name as the kind tag. The command is part of the key so that
// reconfiguring a custom step's command reintroduces the one-shot.
type oneShotKey struct {
	kindTag string
	command string
}

// oneShotKeyFromStep builds the one-shot key for step, or returns ok=false if the
// step has no command (a loginctl-only lock step never needs a key).
func oneShotKeyFromStep(step config.PlanStep) (oneShotKey, bool) {
	if step.Command == nil {
		return oneShotKey{}, false
	}
	tag := step.Kind.Tag.String()
	if step.Kind.Tag == config.Custom {
		tag = step.Kind.Name
	}
	return oneShotKey{kindTag: tag, command: *step.Command}, true
}

// State is the engine's authoritative, single-owner memory. It is mutated
// only by HandleEvent; no other component writes to it.
type State struct {
	// Inhibitors
	AppInhibitorCount   uint64
	MediaInhibitorCount uint64

	// Pause flags
	ManuallyPaused bool
	SystemPaused   bool // lid closed / prepare-for-sleep
	Paused         bool // derived

	// Session
	IsLocked bool

	// Selection
	ActiveProfile string // "" means none selected
	PlanSource    config.PlanSource
	PowerState    *PowerState

	// Cycle timing
	LastActivityMs  uint64
	LastActionMs    uint64
	StepIndex       int
	StepBaseMs      uint64
	DebouncePending bool
	debounceSeconds uint8

	// Pre-notification
	SentPreActionNotify bool
	PreActionNotifyMs   uint64

	// Fired tracking (per cycle)
	FiredSteps           []bool
	LastFiredIdx         *int
	LastDpmsFiredIdx     *int
	LastBrightnessFiredIdx *int
	LastLockFiredIdx     *int

	// Resume episode
	ResumeEpoch               uint64
	ResumedEpoch              uint64
	ResumeDeferredUntilUnlock bool

	// Lifetime
	OneShotsFired map[oneShotKey]bool

	// Profile-not-found suppression (ambient, not in original field list,
	// but needed to implement spec.md §7's "logged at most once per
	// configuration epoch" rule without re-logging on every tick).
	ProfileNotFoundLogged bool
}

// NewState returns a freshly initialized State as of nowMs.
func NewState(nowMs uint64) *State {
	return &State{
		DebouncePending: true,
		LastActivityMs:  nowMs,
		StepBaseMs:      nowMs,
		OneShotsFired:   make(map[oneShotKey]bool),
	}
}

// ResumeDue reports whether an armed resume episode has not yet been
// discharged.
func (s *State) ResumeDue() bool {
	return s.ResumeEpoch != s.ResumedEpoch
}

// MarkResumed discharges the current resume episode.
func (s *State) MarkResumed() {
	s.ResumedEpoch = s.ResumeEpoch
}

// ArmResumeEpisode arms a new resume episode.
func (s *State) ArmResumeEpisode() {
	s.ResumeEpoch++
}

// TakeResumeDeferredUntilUnlock clears and returns the deferred flag.
func (s *State) TakeResumeDeferredUntilUnlock() bool {
	v := s.ResumeDeferredUntilUnlock
	s.ResumeDeferredUntilUnlock = false
	return v
}

// EnsurePlanLen reconciles per-cycle tracking slices to the plan length in
// effect; on a length change it resets all fired/last-fired state, since
// step indices from the old plan are meaningless against the new one.
func (s *State) EnsurePlanLen(n int) {
	if len(s.FiredSteps) == n {
		return
	}
	s.FiredSteps = make([]bool, n)
	s.LastFiredIdx = nil
	s.LastDpmsFiredIdx = nil
	s.LastBrightnessFiredIdx = nil
	s.LastLockFiredIdx = nil
	if s.StepIndex > n {
		s.StepIndex = n
	}
}

// SetDebounceSeconds updates the State's cached debounce duration. The
// timed-firing branch reads the debounce from the effective config, not
// from this cached value.
func (s *State) SetDebounceSeconds(sec uint8) {
	s.debounceSeconds = sec
}

// RefreshPaused recomputes Paused from its three inputs.
func (s *State) RefreshPaused() {
	s.Paused = s.ManuallyPaused ||
		s.AppInhibitorCount > 0 || s.MediaInhibitorCount > 0 ||
		s.SystemPaused
}

// MarkStepFired records that plan[idx] fired, updating the group-specific
// last-fired pointers and arming a resume episode when appropriate.
func (s *State) MarkStepFired(idx int, plan []config.PlanStep) {
	if idx < 0 || idx >= len(s.FiredSteps) {
		return
	}
	s.FiredSteps[idx] = true
	i := idx
	s.LastFiredIdx = &i

	step := plan[idx]
	armsResume := step.ResumeCommand != nil
	isDpms := step.Kind.Tag == config.Dpms
	isBrightness := step.Kind.Tag == config.Brightness
	isLock := step.Kind.Tag == config.LockScreen

	if isDpms {
		j := idx
		s.LastDpmsFiredIdx = &j
	}
	if isBrightness {
		j := idx
		s.LastBrightnessFiredIdx = &j
	}
	if isLock {
		j := idx
		s.LastLockFiredIdx = &j
	}

	if armsResume || isDpms || isBrightness || isLock {
		s.ArmResumeEpisode()
	}
}

// OneShotHasFired reports whether step's lifetime one-shot key has already
// fired.
func (s *State) OneShotHasFired(step config.PlanStep) bool {
	key, ok := oneShotKeyFromStep(step)
	if !ok {
		return false
	}
	return s.OneShotsFired[key]
}

// MarkOneShotFired records step's lifetime one-shot key as fired.
func (s *State) MarkOneShotFired(step config.PlanStep) {
	key, ok := oneShotKeyFromStep(step)
	if !ok {
		return
	}
	s.OneShotsFired[key] = true
}

// ClearOneShots drops all lifetime one-shot records (profile/power-source
// change).
func (s *State) ClearOneShots() {
	s.OneShotsFired = make(map[oneShotKey]bool)
}

// ClearFiredSteps clears every fired-step flag and its last-fired pointers.
func (s *State) ClearFiredSteps() {
	for i := range s.FiredSteps {
		s.FiredSteps[i] = false
	}
	s.LastFiredIdx = nil
	s.LastDpmsFiredIdx = nil
	s.LastBrightnessFiredIdx = nil
	s.LastLockFiredIdx = nil
}

// ClearFiredStepsFrom clears fired-step flags from startIdx onward, nulling
// any last-fired pointer that falls within the cleared region.
func (s *State) ClearFiredStepsFrom(startIdx int) {
	for i := startIdx; i < len(s.FiredSteps); i++ {
		s.FiredSteps[i] = false
	}
	clearIfWithin := func(p *int) *int {
		if p != nil && *p >= startIdx {
			return nil
		}
		return p
	}
	s.LastFiredIdx = clearIfWithin(s.LastFiredIdx)
	s.LastDpmsFiredIdx = clearIfWithin(s.LastDpmsFiredIdx)
	s.LastBrightnessFiredIdx = clearIfWithin(s.LastBrightnessFiredIdx)
	s.LastLockFiredIdx = clearIfWithin(s.LastLockFiredIdx)
}

// ResetIdleCycle rewinds the cursor and fired flags to the start of a new
// idle cycle (activity, manual resume, sleep/lid recovery, unlock, profile/
// power change).
func (s *State) ResetIdleCycle(nowMs uint64) {
	s.StepIndex = 0
	s.StepBaseMs = nowMs
	s.ClearFiredSteps()
	s.DebouncePending = true
	s.SentPreActionNotify = false
	s.PreActionNotifyMs = 0
}

// RestartPostLockSegment rewinds to postLockStartIdx, clearing fired flags
// only from that point forward (steps before the lock step, including the
// lock step itself, are left untouched).
func (s *State) RestartPostLockSegment(nowMs uint64, postLockStartIdx int) {
	s.StepIndex = postLockStartIdx
	s.StepBaseMs = nowMs
	s.ClearFiredStepsFrom(postLockStartIdx)
	s.DebouncePending = true
	s.SentPreActionNotify = false
	s.PreActionNotifyMs = 0
}
