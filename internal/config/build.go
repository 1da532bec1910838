package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

var stepTagNames = map[string]PlanStepTag{
	"startup":     Startup,
	"brightness":  Brightness,
	"lock_screen": LockScreen,
	"lock-screen": LockScreen,
	"dpms":        Dpms,
	"suspend":     Suspend,
}

// reservedBlockNames are never treated as plan-step blocks when building a
// plan from a default/profile/ac/battery block's children.
var reservedBlockNames = map[string]bool{
	"ac": true, "battery": true,
}

func stepKindForName(name string) PlanStepKind {
	name = strings.ToLower(strings.TrimSpace(name))
	if tag, ok := stepTagNames[name]; ok {
		return PlanStepKind{Tag: tag}
	}
	return PlanStepKind{Tag: Custom, Name: name}
}

// buildPlanStep builds one PlanStep from a step block's key-values.
func buildPlanStep(name string, blk *rawBlock) (PlanStep, error) {
	step := PlanStep{Kind: stepKindForName(name)}

	if v, ok := blk.kv["timeout"]; ok {
		n, err := uintValue[uint64](v)
		if err != nil {
			return step, fmt.Errorf("block %q: timeout: %w", name, err)
		}
		step.TimeoutSeconds = n
	}
	if v, ok := blk.kv["command"]; ok {
		s, ok := scalar(v)
		if !ok {
			return step, fmt.Errorf("block %q: command: expected a single value", name)
		}
		step.Command = &s
	}
	if v, ok := blk.kv["lock_command"]; ok {
		s, ok := scalar(v)
		if !ok {
			return step, fmt.Errorf("block %q: lock_command: expected a single value", name)
		}
		step.Command = &s
	}
	if v, ok := blk.kv["resume_command"]; ok {
		s, ok := scalar(v)
		if !ok {
			return step, fmt.Errorf("block %q: resume_command: expected a single value", name)
		}
		step.ResumeCommand = &s
	}
	if v, ok := blk.kv["notification"]; ok {
		s, ok := scalar(v)
		if !ok {
			return step, fmt.Errorf("block %q: notification: expected a single value", name)
		}
		step.Notification = &s
	}
	if v, ok := blk.kv["notify_seconds_before"]; ok {
		n, err := uintValue[uint64](v)
		if err != nil {
			return step, fmt.Errorf("block %q: notify_seconds_before: %w", name, err)
		}
		step.NotifySecondsBefore = &n
	}
	if v, ok := blk.kv["use_loginctl"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return step, fmt.Errorf("block %q: use_loginctl: %w", name, err)
		}
		step.UseLoginctl = b
	}

	return step, nil
}

// buildPlan collects plan steps from every non-reserved child block of blk,
// in declaration order.
func buildPlan(blk *rawBlock) ([]PlanStep, error) {
	var plan []PlanStep
	for _, child := range blk.children {
		if reservedBlockNames[strings.ToLower(child.name)] {
			continue
		}
		step, err := buildPlanStep(child.name, child)
		if err != nil {
			return nil, err
		}
		plan = append(plan, step)
	}
	return plan, nil
}

// buildGlobals reads the recognized global keys from blk into dst.
func buildGlobals(blk *rawBlock, dst *Config) error {
	if v, ok := blk.kv["pre_suspend_command"]; ok {
		s, _ := scalar(v)
		dst.PreSuspendCommand = &s
	}
	if v, ok := blk.kv["monitor_media"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("monitor_media: %w", err)
		}
		dst.MonitorMedia = b
	}
	if v, ok := blk.kv["ignore_remote_media"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("ignore_remote_media: %w", err)
		}
		dst.IgnoreRemoteMedia = b
	}
	if v, ok := blk.kv["media_blacklist"]; ok {
		for _, tok := range v {
			dst.MediaBlacklist = append(dst.MediaBlacklist, strings.ToLower(unquote(tok)))
		}
	}
	if v, ok := blk.kv["debounce_seconds"]; ok {
		n, err := uintValue[uint8](v)
		if err != nil {
			return fmt.Errorf("debounce_seconds: %w", err)
		}
		dst.DebounceSeconds = n
	}
	if v, ok := blk.kv["notify_on_unpause"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("notify_on_unpause: %w", err)
		}
		dst.NotifyOnUnpause = b
	}
	if v, ok := blk.kv["notify_before_action"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("notify_before_action: %w", err)
		}
		dst.NotifyBeforeAction = b
	}
	if v, ok := blk.kv["respect_wayland_inhibitors"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("respect_wayland_inhibitors: %w", err)
		}
		dst.RespectWaylandInhibitors = b
	}
	if v, ok := blk.kv["inhibit_apps"]; ok {
		dst.InhibitApps = patternsValue(v)
	}
	if v, ok := blk.kv["lid_close_action"]; ok {
		s, _ := scalar(v)
		dst.LidCloseAction = parseLidCloseAction(s)
	}
	if v, ok := blk.kv["lid_open_action"]; ok {
		s, _ := scalar(v)
		dst.LidOpenAction = parseLidOpenAction(s)
	}
	if v, ok := blk.kv["lock_detection_type"]; ok {
		s, _ := scalar(v)
		if strings.EqualFold(strings.TrimSpace(s), "logind") {
			dst.LockDetectionType = LockDetectionLogind
		} else {
			dst.LockDetectionType = LockDetectionProcess
		}
	}
	return nil
}

func parseLidCloseAction(s string) LidCloseAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore", "":
		return LidCloseAction{Kind: LidCloseIgnore}
	case "lock_screen", "lock-screen":
		return LidCloseAction{Kind: LidCloseLockScreen}
	case "suspend":
		return LidCloseAction{Kind: LidCloseSuspend}
	default:
		return LidCloseAction{Kind: LidCloseCustom, Command: s}
	}
}

func parseLidOpenAction(s string) LidOpenAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore", "":
		return LidOpenAction{Kind: LidOpenIgnore}
	case "wake":
		return LidOpenAction{Kind: LidOpenWake}
	default:
		return LidOpenAction{Kind: LidOpenCustom, Command: s}
	}
}

// buildDefault turns the top-level "default" block into a Config: globals,
// the implicit desktop plan from its own step children, and ac/battery
// plans from its nested "ac:"/"battery:" blocks.
func buildDefault(blk *rawBlock) (Config, error) {
	cfg := Defaults()
	if err := buildGlobals(blk, &cfg); err != nil {
		return cfg, fmt.Errorf("default: %w", err)
	}
	plan, err := buildPlan(blk)
	if err != nil {
		return cfg, fmt.Errorf("default: %w", err)
	}
	cfg.PlanDesktop = plan

	if ac := blk.child("ac"); ac != nil {
		acPlan, err := buildPlan(ac)
		if err != nil {
			return cfg, fmt.Errorf("default.ac: %w", err)
		}
		cfg.PlanAc = acPlan
	}
	if bat := blk.child("battery"); bat != nil {
		batPlan, err := buildPlan(bat)
		if err != nil {
			return cfg, fmt.Errorf("default.battery: %w", err)
		}
		cfg.PlanBattery = batPlan
	}
	return cfg, nil
}

// buildProfile turns one child block of the top-level "profiles:" block
// into a Profile.
func buildProfile(blk *rawBlock) (Profile, error) {
	prof := Profile{Name: blk.name, Mode: Overlay}

	if v, ok := blk.kv["mode"]; ok {
		s, _ := scalar(v)
		if strings.EqualFold(strings.TrimSpace(s), "fresh") {
			prof.Mode = Fresh
		}
	}

	var partial PartialConfig
	if err := assignPartialFromKV(blk, &partial); err != nil {
		return prof, fmt.Errorf("profile %q: %w", blk.name, err)
	}

	plan, err := buildPlan(blk)
	if err != nil {
		return prof, fmt.Errorf("profile %q: %w", blk.name, err)
	}
	if len(plan) > 0 || hasStepBlocks(blk) {
		partial.PlanDesktop = &plan
	}
	if ac := blk.child("ac"); ac != nil {
		acPlan, err := buildPlan(ac)
		if err != nil {
			return prof, fmt.Errorf("profile %q.ac: %w", blk.name, err)
		}
		partial.PlanAc = &acPlan
	}
	if bat := blk.child("battery"); bat != nil {
		batPlan, err := buildPlan(bat)
		if err != nil {
			return prof, fmt.Errorf("profile %q.battery: %w", blk.name, err)
		}
		partial.PlanBattery = &batPlan
	}

	prof.Partial = partial
	return prof, nil
}

func hasStepBlocks(blk *rawBlock) bool {
	for _, c := range blk.children {
		if !reservedBlockNames[strings.ToLower(c.name)] {
			return true
		}
	}
	return false
}

// assignPartialFromKV copies only the keys actually present in blk into
// partial, so unset fields remain nil and inherit from the base config.
func assignPartialFromKV(blk *rawBlock, partial *PartialConfig) error {
	if v, ok := blk.kv["pre_suspend_command"]; ok {
		s, _ := scalar(v)
		partial.PreSuspendCommand = &s
	}
	if v, ok := blk.kv["monitor_media"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("monitor_media: %w", err)
		}
		partial.MonitorMedia = &b
	}
	if v, ok := blk.kv["ignore_remote_media"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("ignore_remote_media: %w", err)
		}
		partial.IgnoreRemoteMedia = &b
	}
	if v, ok := blk.kv["respect_wayland_inhibitors"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("respect_wayland_inhibitors: %w", err)
		}
		partial.RespectWaylandInhibitors = &b
	}
	if v, ok := blk.kv["notify_on_unpause"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("notify_on_unpause: %w", err)
		}
		partial.NotifyOnUnpause = &b
	}
	if v, ok := blk.kv["notify_before_action"]; ok {
		b, err := boolValue(v)
		if err != nil {
			return fmt.Errorf("notify_before_action: %w", err)
		}
		partial.NotifyBeforeAction = &b
	}
	if v, ok := blk.kv["debounce_seconds"]; ok {
		n, err := uintValue[uint8](v)
		if err != nil {
			return fmt.Errorf("debounce_seconds: %w", err)
		}
		partial.DebounceSeconds = &n
	}
	if v, ok := blk.kv["inhibit_apps"]; ok {
		partial.InhibitApps = patternsValue(v)
	}
	if v, ok := blk.kv["media_blacklist"]; ok {
		for _, tok := range v {
			partial.MediaBlacklist = append(partial.MediaBlacklist, strings.ToLower(unquote(tok)))
		}
	}
	return nil
}

// Build turns a parsed rune document into a ConfigFile.
func Build(root *rawBlock) (ConfigFile, error) {
	var cf ConfigFile
	cf.Default = Defaults()

	if def := root.child("default"); def != nil {
		cfg, err := buildDefault(def)
		if err != nil {
			return cf, err
		}
		cf.Default = cfg
	}

	if profiles := root.child("profiles"); profiles != nil {
		for _, child := range profiles.children {
			prof, err := buildProfile(child)
			if err != nil {
				return cf, err
			}
			cf.Profiles = append(cf.Profiles, prof)
		}
	}

	return cf, nil
}

// Load reads and parses a rune config file from disk.
func Load(path string) (ConfigFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	root, err := parseRune(f)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("parse %s: %w", path, err)
	}

	cf, err := Build(root)
	if err != nil {
		return ConfigFile{}, fmt.Errorf("build %s: %w", path, err)
	}

	if err := Validate(cf); err != nil {
		return ConfigFile{}, fmt.Errorf("validate %s: %w", path, err)
	}

	return cf, nil
}
