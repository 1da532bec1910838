package engine

import (
	"testing"

	"github.com/dpilgrim/stasis/internal/config"
)

func TestNewStateDefaults(t *testing.T) {
	s := NewState(500)
	if !s.DebouncePending {
		t.Fatal("expected debounce_pending true initially")
	}
	if s.StepBaseMs != 500 || s.LastActivityMs != 500 {
		t.Fatalf("expected base/activity ms seeded to 500, got base=%d activity=%d", s.StepBaseMs, s.LastActivityMs)
	}
	if s.OneShotsFired == nil {
		t.Fatal("expected one_shots_fired initialized")
	}
}

func TestEnsurePlanLenResetsOnChange(t *testing.T) {
	s := NewState(0)
	s.EnsurePlanLen(3)
	s.FiredSteps[1] = true
	idx := 1
	s.LastFiredIdx = &idx
	s.StepIndex = 5

	s.EnsurePlanLen(2)
	if len(s.FiredSteps) != 2 {
		t.Fatalf("expected resized to 2, got %d", len(s.FiredSteps))
	}
	if s.LastFiredIdx != nil {
		t.Fatal("expected last_fired_idx cleared on length change")
	}
	if s.StepIndex != 2 {
		t.Fatalf("expected step_index clamped to 2, got %d", s.StepIndex)
	}

	// Same length again is a no-op: must not clobber tracking state.
	s.FiredSteps[0] = true
	s.EnsurePlanLen(2)
	if !s.FiredSteps[0] {
		t.Fatal("same-length EnsurePlanLen must not reset fired_steps")
	}
}

func TestMarkStepFiredGroupsAndResumeEpoch(t *testing.T) {
	plan := []config.PlanStep{
		stepCmd(config.Dpms, 1, "dim"),
		stepCmd(config.Brightness, 1, "bright"),
		stepCmd(config.LockScreen, 1, "lock"),
		stepCmd(config.Suspend, 1, "zzz"),
	}
	s := NewState(0)
	s.EnsurePlanLen(len(plan))

	s.MarkStepFired(0, plan)
	if s.LastDpmsFiredIdx == nil || *s.LastDpmsFiredIdx != 0 {
		t.Fatal("expected last_dpms_fired_idx = 0")
	}
	if s.ResumeEpoch != 1 {
		t.Fatalf("expected resume_epoch armed to 1, got %d", s.ResumeEpoch)
	}

	s.MarkStepFired(1, plan)
	if s.LastBrightnessFiredIdx == nil || *s.LastBrightnessFiredIdx != 1 {
		t.Fatal("expected last_brightness_fired_idx = 1")
	}

	s.MarkStepFired(2, plan)
	if s.LastLockFiredIdx == nil || *s.LastLockFiredIdx != 2 {
		t.Fatal("expected last_lock_fired_idx = 2")
	}

	resumeEpochBefore := s.ResumeEpoch
	s.MarkStepFired(3, plan)
	if s.ResumeEpoch != resumeEpochBefore {
		t.Fatalf("suspend step with no resume_command must not arm a new episode: %d -> %d",
			resumeEpochBefore, s.ResumeEpoch)
	}
	if s.LastFiredIdx == nil || *s.LastFiredIdx != 3 {
		t.Fatal("expected last_fired_idx = 3")
	}
}

func TestOneShotKeyIncludesCommand(t *testing.T) {
	s := NewState(0)
	cmd1 := "notify-send hi"
	step1 := config.PlanStep{Kind: config.PlanStepKind{Tag: config.Startup}, Command: &cmd1}
	if s.OneShotHasFired(step1) {
		t.Fatal("expected not fired yet")
	}
	s.MarkOneShotFired(step1)
	if !s.OneShotHasFired(step1) {
		t.Fatal("expected fired after MarkOneShotFired")
	}

	cmd2 := "notify-send changed"
	step2 := config.PlanStep{Kind: config.PlanStepKind{Tag: config.Startup}, Command: &cmd2}
	if s.OneShotHasFired(step2) {
		t.Fatal("reconfiguring the command must reintroduce the one-shot")
	}
}

func TestOneShotKeyLoginctlOnlyNeverFires(t *testing.T) {
	s := NewState(0)
	step := config.PlanStep{Kind: config.PlanStepKind{Tag: config.LockScreen}, UseLoginctl: true}
	s.MarkOneShotFired(step)
	if s.OneShotHasFired(step) {
		t.Fatal("a loginctl-only step has no command and so no one-shot key")
	}
}

func TestClearFiredStepsFromNullsWithinRegion(t *testing.T) {
	plan := []config.PlanStep{
		stepCmd(config.Dpms, 1, "dim"),
		stepCmd(config.LockScreen, 1, "lock"),
		stepCmd(config.Suspend, 1, "zzz"),
	}
	s := NewState(0)
	s.EnsurePlanLen(len(plan))
	s.MarkStepFired(0, plan)
	s.MarkStepFired(1, plan)
	s.MarkStepFired(2, plan)

	s.ClearFiredStepsFrom(1)
	if s.FiredSteps[0] != true || s.FiredSteps[1] != false || s.FiredSteps[2] != false {
		t.Fatalf("expected only index 0 to remain fired: %+v", s.FiredSteps)
	}
	if s.LastDpmsFiredIdx == nil || *s.LastDpmsFiredIdx != 0 {
		t.Fatal("expected last_dpms_fired_idx (0) preserved, it's before startIdx")
	}
	if s.LastLockFiredIdx != nil {
		t.Fatal("expected last_lock_fired_idx cleared, it's within the cleared region")
	}
	if s.LastFiredIdx != nil {
		t.Fatal("expected last_fired_idx cleared, it pointed at index 2")
	}
}

func TestRestartPostLockSegmentPreservesPreLockState(t *testing.T) {
	plan := []config.PlanStep{
		stepCmd(config.Dpms, 1, "dim"),
		stepCmd(config.LockScreen, 1, "lock"),
		stepCmd(config.Suspend, 1, "zzz"),
	}
	s := NewState(0)
	s.EnsurePlanLen(len(plan))
	s.MarkStepFired(0, plan)
	s.MarkStepFired(1, plan)
	s.MarkStepFired(2, plan)

	s.RestartPostLockSegment(5000, 2)
	if s.StepIndex != 2 {
		t.Fatalf("expected cursor at 2, got %d", s.StepIndex)
	}
	if s.StepBaseMs != 5000 {
		t.Fatalf("expected step_base_ms = 5000, got %d", s.StepBaseMs)
	}
	if !s.FiredSteps[0] || !s.FiredSteps[1] {
		t.Fatal("pre-lock fired flags must survive a post-lock segment restart")
	}
	if s.FiredSteps[2] {
		t.Fatal("post-lock step's fired flag must be cleared")
	}
	if !s.DebouncePending {
		t.Fatal("expected debounce_pending re-armed")
	}
}

func TestResumeEpisodeLifecycle(t *testing.T) {
	s := NewState(0)
	if s.ResumeDue() {
		t.Fatal("expected no resume due initially")
	}
	s.ArmResumeEpisode()
	if !s.ResumeDue() {
		t.Fatal("expected resume due after arming")
	}
	s.MarkResumed()
	if s.ResumeDue() {
		t.Fatal("expected resume discharged after MarkResumed")
	}
	if s.ResumedEpoch > s.ResumeEpoch {
		t.Fatal("invariant violated: resumed_epoch must never exceed resume_epoch")
	}
}

func TestTakeResumeDeferredUntilUnlockClears(t *testing.T) {
	s := NewState(0)
	s.ResumeDeferredUntilUnlock = true
	if !s.TakeResumeDeferredUntilUnlock() {
		t.Fatal("expected true on first take")
	}
	if s.TakeResumeDeferredUntilUnlock() {
		t.Fatal("expected cleared after first take")
	}
}

func TestRefreshPausedAllSources(t *testing.T) {
	s := NewState(0)
	s.RefreshPaused()
	if s.Paused {
		t.Fatal("expected not paused initially")
	}

	s.AppInhibitorCount = 1
	s.RefreshPaused()
	if !s.Paused {
		t.Fatal("expected paused due to app inhibitor")
	}
	s.AppInhibitorCount = 0
	s.RefreshPaused()
	if s.Paused {
		t.Fatal("expected unpaused once inhibitor clears")
	}

	s.MediaInhibitorCount = 1
	s.RefreshPaused()
	if !s.Paused {
		t.Fatal("expected paused due to media inhibitor")
	}
	s.MediaInhibitorCount = 0

	s.SystemPaused = true
	s.RefreshPaused()
	if !s.Paused {
		t.Fatal("expected paused due to system pause (lid/sleep)")
	}
}
