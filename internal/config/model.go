// Package config implements the Stasis config model: the PlanStep/Pattern
// data types, the Config/Profile/ConfigFile hierarchy, the overlay/fresh
// merge algebra, and the "rune" text-format loader.
package config

import "regexp"

// PlanStepTag discriminates the kind of a PlanStep. Custom steps carry
// their name separately since the tag space is open-ended.
type PlanStepTag uint8

const (
	Startup PlanStepTag = iota
	Brightness
	LockScreen
	Dpms
	Suspend
	Custom
)

func (t PlanStepTag) String() string {
	switch t {
	case Startup:
		return "startup"
	case Brightness:
		return "brightness"
	case LockScreen:
		return "lock_screen"
	case Dpms:
		return "dpms"
	case Suspend:
		return "suspend"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// PlanStepKind is the full kind of a step: a tag plus, for Custom, a name.
type PlanStepKind struct {
	Tag  PlanStepTag
	Name string // only meaningful when Tag == Custom
}

// SameKind reports whether two kinds identify the same step slot for
// overlay-merge purposes: same tag, and for Custom, same name too.
func (k PlanStepKind) SameKind(other PlanStepKind) bool {
	if k.Tag != other.Tag {
		return false
	}
	if k.Tag == Custom {
		return k.Name == other.Name
	}
	return true
}

// PlanStep is one unit of an idle-action plan.
type PlanStep struct {
	Kind                PlanStepKind
	TimeoutSeconds      uint64
	Command             *string
	ResumeCommand       *string
	UseLoginctl         bool
	Notification        *string
	NotifySecondsBefore *uint64
}

// Enabled reports whether this step will ever fire.
func (s PlanStep) Enabled() bool {
	return s.Command != nil || (s.Kind.Tag == LockScreen && s.UseLoginctl)
}

// IsInstant reports whether this step fires immediately once reached
// (timeout of zero), rather than after a timed delay.
func (s PlanStep) IsInstant() bool {
	return s.Enabled() && s.TimeoutSeconds == 0
}

// IsLock reports whether this step is the lock-screen step.
func (s PlanStep) IsLock() bool {
	return s.Kind.Tag == LockScreen
}

// Pattern matches an application identifier either by case-insensitive
// literal substring or by compiled regular expression.
type Pattern struct {
	Literal string
	Regex   *regexp.Regexp
}

// MatchesLC reports whether the pattern matches haystackLower, which the
// caller must already have lower-cased. An empty literal never matches.
func (p Pattern) MatchesLC(haystackLower string) bool {
	if p.Regex != nil {
		return p.Regex.MatchString(haystackLower)
	}
	if p.Literal == "" {
		return false
	}
	return indexLower(haystackLower, p.Literal) >= 0
}

func indexLower(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// LidCloseActionKind / LidOpenActionKind select what the lid sensor should
// do when the lid closes/opens, read from the rune config file.
type LidCloseActionKind uint8

const (
	LidCloseIgnore LidCloseActionKind = iota
	LidCloseLockScreen
	LidCloseSuspend
	LidCloseCustom
)

type LidCloseAction struct {
	Kind    LidCloseActionKind
	Command string // only when Kind == LidCloseCustom
}

type LidOpenActionKind uint8

const (
	LidOpenIgnore LidOpenActionKind = iota
	LidOpenWake
	LidOpenCustom
)

type LidOpenAction struct {
	Kind    LidOpenActionKind
	Command string // only when Kind == LidOpenCustom
}

// LockDetectionType selects how the daemon learns the session is locked.
type LockDetectionType uint8

const (
	LockDetectionProcess LockDetectionType = iota
	LockDetectionLogind
)

// PlanSource selects which of a Config's three plans is active.
type PlanSource uint8

const (
	SourceDesktop PlanSource = iota
	SourceAc
	SourceBattery
)

// Config is a fully specified (but not yet source-selected) configuration:
// either the file's top-level default, or the result of overlaying/
// replacing it with a profile.
type Config struct {
	DebounceSeconds          uint8
	NotifyBeforeAction       bool
	NotifyOnUnpause          bool
	MonitorMedia             bool
	IgnoreRemoteMedia        bool
	RespectWaylandInhibitors bool
	InhibitApps              []Pattern
	MediaBlacklist           []string
	PreSuspendCommand        *string
	LidCloseAction           LidCloseAction
	LidOpenAction            LidOpenAction
	LockDetectionType        LockDetectionType

	PlanDesktop []PlanStep
	PlanAc      []PlanStep
	PlanBattery []PlanStep
}

// Defaults returns the built-in Config used when the rune file omits the
// default block entirely (an empty, always-on-desktop, no-op plan).
func Defaults() Config {
	return Config{
		MonitorMedia:             true,
		IgnoreRemoteMedia:        true,
		RespectWaylandInhibitors: true,
	}
}

// Disabled returns an all-off Config: the Fresh-profile starting point.
func Disabled() Config {
	return Config{}
}

// Effective is the flattened, source-selected config that drives the
// engine: globals plus one ordered Plan.
type Effective struct {
	DebounceSeconds    uint8
	NotifyBeforeAction bool
	NotifyOnUnpause    bool
	MonitorMedia       bool
	IgnoreRemoteMedia  bool
	InhibitApps        []Pattern
	MediaBlacklist     []string
	PreSuspendCommand  *string
	Plan               []PlanStep
}

// ProfileMode selects how a profile's PartialConfig combines with the
// default config. Overlay is the default.
type ProfileMode uint8

const (
	Overlay ProfileMode = iota
	Fresh
)

// PartialConfig carries only the fields a profile actually overrides; nil
// pointers/slices mean "inherit from the base".
type PartialConfig struct {
	DebounceSeconds          *uint8
	NotifyBeforeAction       *bool
	NotifyOnUnpause          *bool
	MonitorMedia             *bool
	IgnoreRemoteMedia        *bool
	RespectWaylandInhibitors *bool
	InhibitApps              []Pattern // nil = not set
	MediaBlacklist           []string  // nil = not set
	PreSuspendCommand        *string
	LidCloseAction           *LidCloseAction
	LidOpenAction            *LidOpenAction
	LockDetectionType        *LockDetectionType

	PlanDesktop *[]PlanStep
	PlanAc      *[]PlanStep
	PlanBattery *[]PlanStep
}

// Profile is one named block in the rune config file beyond "default".
type Profile struct {
	Name    string
	Mode    ProfileMode
	Partial PartialConfig
}

// ConfigFile is the fully parsed rune config: the default Config plus any
// number of named profiles.
type ConfigFile struct {
	Default  Config
	Profiles []Profile
}
