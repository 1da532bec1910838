package config

import (
	"fmt"
	"strings"
)

// sameKind reports whether two steps occupy the same overlay slot.
func sameKind(a, b PlanStep) bool {
	return a.Kind.SameKind(b.Kind)
}

// MergePlan overlays overlay onto base: a step in overlay replaces the
// first base step of the same kind in place; otherwise it is appended.
// Grounded on original_source's merge_plan: replace-by-kind-match else
// append, preserving base's ordering for untouched steps.
func MergePlan(base, overlay []PlanStep) []PlanStep {
	out := make([]PlanStep, len(base))
	copy(out, base)

	for _, step := range overlay {
		replaced := false
		for i := range out {
			if sameKind(out[i], step) {
				out[i] = step
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, step)
		}
	}
	return out
}

// ApplyTo combines start with a profile's PartialConfig under mode.
// Globals are applied whenever the partial field is set, regardless of
// mode. Plan fields are replaced wholesale under Fresh, merged via
// MergePlan under Overlay.
func ApplyTo(start Config, partial PartialConfig, mode ProfileMode) Config {
	result := start

	if partial.DebounceSeconds != nil {
		result.DebounceSeconds = *partial.DebounceSeconds
	}
	if partial.NotifyBeforeAction != nil {
		result.NotifyBeforeAction = *partial.NotifyBeforeAction
	}
	if partial.NotifyOnUnpause != nil {
		result.NotifyOnUnpause = *partial.NotifyOnUnpause
	}
	if partial.MonitorMedia != nil {
		result.MonitorMedia = *partial.MonitorMedia
	}
	if partial.IgnoreRemoteMedia != nil {
		result.IgnoreRemoteMedia = *partial.IgnoreRemoteMedia
	}
	if partial.RespectWaylandInhibitors != nil {
		result.RespectWaylandInhibitors = *partial.RespectWaylandInhibitors
	}
	if partial.InhibitApps != nil {
		result.InhibitApps = partial.InhibitApps
	}
	if partial.MediaBlacklist != nil {
		result.MediaBlacklist = partial.MediaBlacklist
	}
	if partial.PreSuspendCommand != nil {
		result.PreSuspendCommand = partial.PreSuspendCommand
	}
	if partial.LidCloseAction != nil {
		result.LidCloseAction = *partial.LidCloseAction
	}
	if partial.LidOpenAction != nil {
		result.LidOpenAction = *partial.LidOpenAction
	}
	if partial.LockDetectionType != nil {
		result.LockDetectionType = *partial.LockDetectionType
	}

	applyPlan := func(base []PlanStep, overlay *[]PlanStep) []PlanStep {
		if overlay == nil {
			return base
		}
		if mode == Fresh {
			return *overlay
		}
		return MergePlan(base, *overlay)
	}
	result.PlanDesktop = applyPlan(result.PlanDesktop, partial.PlanDesktop)
	result.PlanAc = applyPlan(result.PlanAc, partial.PlanAc)
	result.PlanBattery = applyPlan(result.PlanBattery, partial.PlanBattery)

	return result
}

// SelectPlanSource picks the plan for the given power source, cascading to
// the desktop plan when the AC/Battery plan is empty.
func SelectPlanSource(cfg Config, source PlanSource) []PlanStep {
	switch source {
	case SourceAc:
		if len(cfg.PlanAc) > 0 {
			return cfg.PlanAc
		}
	case SourceBattery:
		if len(cfg.PlanBattery) > 0 {
			return cfg.PlanBattery
		}
	}
	return cfg.PlanDesktop
}

// EffectiveFor resolves profileName (empty or "default" selects the
// top-level default; "none" is equivalent to empty) against source,
// returning the flattened Effective config the engine drives from.
func (cf ConfigFile) EffectiveFor(profileName string, source PlanSource) (Effective, error) {
	name := strings.TrimSpace(profileName)

	merged := cf.Default
	if name != "" && name != "default" && name != "none" {
		prof, ok := cf.findProfile(name)
		if !ok {
			return Effective{}, fmt.Errorf("profile %q: %w", name, ErrProfileNotFound)
		}
		start := cf.Default
		if prof.Mode == Fresh {
			start = Disabled()
		}
		merged = ApplyTo(start, prof.Partial, prof.Mode)
	}

	plan := SelectPlanSource(merged, source)

	return Effective{
		DebounceSeconds:    merged.DebounceSeconds,
		NotifyBeforeAction: merged.NotifyBeforeAction,
		NotifyOnUnpause:    merged.NotifyOnUnpause,
		MonitorMedia:       merged.MonitorMedia,
		IgnoreRemoteMedia:  merged.IgnoreRemoteMedia,
		InhibitApps:        merged.InhibitApps,
		MediaBlacklist:     merged.MediaBlacklist,
		PreSuspendCommand:  merged.PreSuspendCommand,
		Plan:               plan,
	}, nil
}

func (cf ConfigFile) findProfile(name string) (Profile, bool) {
	for _, p := range cf.Profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}
