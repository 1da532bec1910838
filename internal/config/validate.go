package config

import (
	"errors"
	"strings"
)

// Validate checks a parsed ConfigFile for internal consistency, collecting
// every problem before returning rather than failing on the first one —
// the same collect-then-join pattern the teacher repo uses for its own
// config validation.
func Validate(cf ConfigFile) error {
	var problems []string

	seen := make(map[string]bool, len(cf.Profiles))
	for _, p := range cf.Profiles {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			problems = append(problems, "profile name must not be empty")
			continue
		}
		if name == "default" || name == "none" {
			problems = append(problems, "profile name \""+name+"\" is reserved")
		}
		if seen[name] {
			problems = append(problems, "duplicate profile name \""+p.Name+"\"")
		}
		seen[name] = true
	}

	for _, step := range cf.Default.PlanDesktop {
		problems = append(problems, validatePlanStep(step)...)
	}
	for _, step := range cf.Default.PlanAc {
		problems = append(problems, validatePlanStep(step)...)
	}
	for _, step := range cf.Default.PlanBattery {
		problems = append(problems, validatePlanStep(step)...)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

func validatePlanStep(step PlanStep) []string {
	var problems []string
	if step.Kind.Tag == Custom && strings.TrimSpace(step.Kind.Name) == "" {
		problems = append(problems, "custom plan step must have a non-empty name")
	}
	if step.NotifySecondsBefore != nil && step.Notification == nil {
		// Allowed but meaningless; not an error (spec.md boundary scenario 7
		// exercises exactly this — notify_seconds_before is simply ignored
		// when there is no notification text).
		_ = step
	}
	return problems
}
