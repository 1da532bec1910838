// Package ipc implements the daemon side of Stasis's Unix-socket command
// protocol: a line-oriented, plain-text dialect (not JSON, unlike the
// teacher's operator protocol) dispatched against the supervisor's inbox.
package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpilgrim/stasis/internal/audit"
	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/supervisor"
)

const (
	defaultDumpLines = 100
	maxDumpLines     = 2000
)

const listHelpMessage = `Usage:
  stasis list actions
  stasis list profiles

Notes:
  - ` + "`actions`" + ` shows the currently effective plan (profile + power source).
  - ` + "`profiles`" + ` shows all configured profile names you can switch to.
`

const pauseHelpMessage = `Pause all timers indefinitely or for a specific duration/time

Usage:
  stasis pause                  Pause indefinitely until 'resume' is called
  stasis pause for <DURATION>   Pause for a specific duration, then auto-resume
  stasis pause until <TIME>     Pause until a specific time, then auto-resume

Duration format: a sequence of <integer><unit>, units ms, s, m, h, d
  e.g. 30s, 5m, 1h30m, 1h 30m 15s

Time format:
  24-hour  HH:MM (e.g. 13:30)
  12-hour  H[:MM]am|pm (e.g. 1:30pm, 1pm)

Examples:
  stasis pause
  stasis pause for 5m
  stasis pause until 1:30pm

Use 'stasis resume' to manually resume before the timer expires.
`

// Dispatcher parses and executes Stasis IPC command lines against a running
// supervisor. One Dispatcher is shared by every connection the server
// accepts; its only mutable state is the pending auto-resume timer.
type Dispatcher struct {
	inbox   chan<- supervisor.ManagerMsg
	ledger  *audit.Ledger // optional; nil disables `history`
	logPath string
	nowMs   func() uint64

	mu          sync.Mutex
	resumeTimer *time.Timer
}

// NewDispatcher builds a Dispatcher. ledger may be nil if no audit ledger
// was configured. logPath is the `dump` command's log file; pass "" to use
// $HOME/.cache/stasis/stasis.log.
func NewDispatcher(inbox chan<- supervisor.ManagerMsg, ledger *audit.Ledger, logPath string, nowMs func() uint64) *Dispatcher {
	return &Dispatcher{inbox: inbox, ledger: ledger, logPath: logPath, nowMs: nowMs}
}

// Dispatch parses one command line and returns the text (sans trailing
// newline) to write back to the client.
func (d *Dispatcher) Dispatch(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "ERROR: empty command"
	}

	cmd, rest := splitFirstWord(line)
	switch strings.ToLower(cmd) {
	case "reload":
		return d.cmdReload()
	case "pause":
		return d.cmdPause(rest)
	case "resume":
		return d.cmdResume()
	case "toggle-inhibit", "toggle_inhibit":
		return d.cmdToggleInhibit()
	case "trigger":
		return d.cmdTrigger(rest)
	case "info":
		return d.cmdInfo(rest)
	case "dump":
		return d.cmdDump(rest)
	case "history":
		return d.cmdHistory(rest)
	case "config":
		return d.cmdConfig()
	case "profile":
		return d.cmdProfile(rest)
	case "list":
		return d.cmdList(rest)
	case "stop":
		return d.cmdStop()
	default:
		return fmt.Sprintf("ERROR: unknown command %q", cmd)
	}
}

func splitFirstWord(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func (d *Dispatcher) send(msg supervisor.ManagerMsg, reply chan supervisor.Response) supervisor.Response {
	d.inbox <- msg
	return <-reply
}

// ─── reload ──────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdReload() string {
	msg, reply := supervisor.ReloadConfigMsg()
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}
	if resp.Text == "" {
		return "Configuration reloaded"
	}
	return resp.Text
}

// ─── pause / resume ──────────────────────────────────────────────────────

func (d *Dispatcher) cmdPause(args string) string {
	if isHelpArg(args) {
		return pauseHelpMessage
	}

	if args == "" {
		return d.doPause(0, "")
	}

	if durStr, ok := stripPrefixWord(args, "for"); ok {
		if durStr == "" {
			return "ERROR: Missing duration after 'for' (e.g., 'pause for 5m')"
		}
		dur, err := ParseDuration(durStr)
		if err != nil {
			return "ERROR: " + err.Error()
		}
		return d.doPause(dur, fmt.Sprintf("for %s", formatDurationReadable(dur)))
	}

	if timeStr, ok := stripPrefixWord(args, "until"); ok {
		if timeStr == "" {
			return "ERROR: Missing time after 'until' (e.g., 'pause until 1:30pm')"
		}
		dur, err := ParseTimeUntil(timeStr, time.Now())
		if err != nil {
			return "ERROR: " + err.Error()
		}
		return d.doPause(dur, fmt.Sprintf("until %s (in %s)", timeStr, formatDurationReadable(dur)))
	}

	// Legacy support: a bare duration with no "for" prefix.
	if dur, err := ParseDuration(args); err == nil {
		return d.doPause(dur, fmt.Sprintf("for %s", formatDurationReadable(dur)))
	}

	return "ERROR: Invalid pause format. Use:\n" +
		"  'pause' (indefinite)\n" +
		"  'pause for <duration>' (e.g., 'pause for 5m')\n" +
		"  'pause until <time>' (e.g., 'pause until 1:30pm')\n\n" +
		"For more help: 'stasis pause help'"
}

func (d *Dispatcher) doPause(dur time.Duration, reason string) string {
	msg, reply := supervisor.EventMsgSync(engine.ManualPause(d.nowMs()))
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}

	d.mu.Lock()
	if d.resumeTimer != nil {
		d.resumeTimer.Stop()
		d.resumeTimer = nil
	}
	if dur > 0 {
		message := fmt.Sprintf("Timers resumed after %s pause", formatDurationReadable(dur))
		if reason != "" && strings.HasPrefix(reason, "until") {
			message = fmt.Sprintf("Timers resumed (paused %s)", reason)
		}
		d.resumeTimer = time.AfterFunc(dur, func() {
			d.inbox <- supervisor.EventMsg(engine.PauseExpired(message, d.nowMs()))
		})
	}
	d.mu.Unlock()

	if reason == "" {
		return "Idle manager paused indefinitely"
	}
	return "Paused " + reason
}

func (d *Dispatcher) cmdResume() string {
	d.mu.Lock()
	if d.resumeTimer != nil {
		d.resumeTimer.Stop()
		d.resumeTimer = nil
	}
	d.mu.Unlock()

	msg, reply := supervisor.EventMsgSync(engine.ManualResume(d.nowMs()))
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}
	return "Idle manager resumed"
}

// ─── toggle-inhibit ──────────────────────────────────────────────────────

func (d *Dispatcher) cmdToggleInhibit() string {
	infoMsg, infoReply := supervisor.GetInfoMsg()
	info := d.send(infoMsg, infoReply)

	var ev engine.Event
	var resultText string
	if info.Info.Class == "manually_inhibited" {
		ev = engine.ManualResume(d.nowMs())
		resultText = "Active"
	} else {
		ev = engine.ManualPause(d.nowMs())
		resultText = "Inhibited"
	}

	msg, reply := supervisor.EventMsgSync(ev)
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}
	return resultText
}

// ─── trigger ─────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdTrigger(args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "ERROR: No action name provided"
	}

	if strings.EqualFold(name, "all") {
		msg, reply := supervisor.EventMsgSync(engine.ManualTrigger("all", d.nowMs()))
		if resp := d.send(msg, reply); resp.Err != nil {
			return "ERROR: " + resp.Err.Error()
		}
		return "All idle actions triggered"
	}

	listMsg, listReply := supervisor.ListMsg(supervisor.ListActions)
	listResp := d.send(listMsg, listReply)
	if listResp.Err != nil {
		return "ERROR: " + listResp.Err.Error()
	}

	normalized := normalizeForMatch(name)
	var matched string
	for _, available := range listResp.Lines {
		if normalizeForMatch(available) == normalized {
			matched = available
			break
		}
	}
	if matched == "" {
		names := append([]string(nil), listResp.Lines...)
		sort.Strings(names)
		return fmt.Sprintf("ERROR: Action '%s' not found. Available actions: %s", name, strings.Join(names, ", "))
	}

	msg, reply := supervisor.EventMsgSync(engine.ManualTrigger(matched, d.nowMs()))
	if resp := d.send(msg, reply); resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}
	return fmt.Sprintf("Action '%s' triggered successfully", matched)
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

// ─── info ────────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdInfo(args string) string {
	msg, reply := supervisor.GetInfoMsg()
	resp := d.send(msg, reply)
	info := resp.Info

	if strings.TrimSpace(args) == "--json" {
		return fmt.Sprintf(
			`{"text":%q,"alt":%q,"class":%q,"tooltip":%q,"profile":%q}`,
			info.Text, info.Alt, info.Class, info.Tooltip, info.Profile,
		)
	}
	return fmt.Sprintf("%s\n\n%s", info.Text, info.Tooltip)
}

// ─── dump ────────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdDump(args string) string {
	args = strings.TrimSpace(args)
	if isHelpArg(args) {
		return "Usage: stasis dump [N]\n\n" +
			"Print the last N lines of the Stasis log.\n\n" +
			"Arguments:\n  N        Number of lines to print (default: 100, max: 2000)\n\n" +
			"Examples:\n  stasis dump\n  stasis dump 50\n"
	}

	n, err := parseLinesArg(args)
	if err != "" {
		return err
	}

	path := d.logPath
	if path == "" {
		home, ok := os.LookupEnv("HOME")
		if !ok {
			return "ERROR: HOME not set; cannot locate log file"
		}
		path = filepath.Join(home, ".cache", "stasis", "stasis.log")
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return fmt.Sprintf("ERROR: failed to read log %s: %v", path, rerr)
	}

	return tailLines(string(data), n)
}

func parseLinesArg(args string) (int, string) {
	if args == "" {
		return defaultDumpLines, ""
	}
	fields := strings.Fields(args)
	if len(fields) > 1 {
		return 0, "ERROR: usage: stasis dump [N]"
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "ERROR: N must be a positive integer"
	}
	if n <= 0 {
		return 0, "ERROR: N must be >= 1"
	}
	if n > maxDumpLines {
		n = maxDumpLines
	}
	return n, ""
}

func tailLines(data string, n int) string {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

// ─── history ─────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdHistory(args string) string {
	if d.ledger == nil {
		return "ERROR: audit ledger not enabled"
	}
	args = strings.TrimSpace(args)
	if isHelpArg(args) {
		return "Usage: stasis history [N]\n\n" +
			"Print the last N fired actions from the audit ledger.\n\n" +
			"Arguments:\n  N        Number of entries to print (default: 100, max: 2000)\n"
	}

	n, err := parseLinesArg(args)
	if err != "" {
		return err
	}

	entries, rerr := d.ledger.ReadRecent(n)
	if rerr != nil {
		return "ERROR: failed to read audit ledger: " + rerr.Error()
	}
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %-22s %-22s step=%d\n", e.Time.Format(time.RFC3339), e.Event, e.Action, e.Step)
	}
	return b.String()
}

// ─── config ──────────────────────────────────────────────────────────────

// configSnapshot is the YAML-friendly projection of config.Effective: the
// effective config itself carries compiled regexes and slice-of-struct
// plan steps that don't marshal into anything a human would want to read,
// so this flattens it to the fields an administrator debugging a plan
// actually cares about.
type configSnapshot struct {
	DebounceSeconds    uint8    `yaml:"debounce_seconds"`
	NotifyBeforeAction bool     `yaml:"notify_before_action"`
	NotifyOnUnpause    bool     `yaml:"notify_on_unpause"`
	MonitorMedia       bool     `yaml:"monitor_media"`
	IgnoreRemoteMedia  bool     `yaml:"ignore_remote_media"`
	InhibitApps        []string `yaml:"inhibit_apps,omitempty"`
	MediaBlacklist     []string `yaml:"media_blacklist,omitempty"`
	PreSuspendCommand  string   `yaml:"pre_suspend_command,omitempty"`
	Plan               []string `yaml:"plan"`
}

func (d *Dispatcher) cmdConfig() string {
	msg, reply := supervisor.EffectiveConfigMsg()
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}

	cfg := resp.Effective
	snap := configSnapshot{
		DebounceSeconds:    cfg.DebounceSeconds,
		NotifyBeforeAction: cfg.NotifyBeforeAction,
		NotifyOnUnpause:    cfg.NotifyOnUnpause,
		MonitorMedia:       cfg.MonitorMedia,
		IgnoreRemoteMedia:  cfg.IgnoreRemoteMedia,
	}
	for _, p := range cfg.InhibitApps {
		if p.Literal != "" {
			snap.InhibitApps = append(snap.InhibitApps, p.Literal)
		} else if p.Regex != nil {
			snap.InhibitApps = append(snap.InhibitApps, "/"+p.Regex.String()+"/")
		}
	}
	snap.MediaBlacklist = cfg.MediaBlacklist
	if cfg.PreSuspendCommand != nil {
		snap.PreSuspendCommand = *cfg.PreSuspendCommand
	}
	for _, step := range cfg.Plan {
		snap.Plan = append(snap.Plan, planStepSummary(step))
	}

	out, err := yaml.Marshal(snap)
	if err != nil {
		return "ERROR: failed to marshal effective config: " + err.Error()
	}
	return string(out)
}

func planStepSummary(step config.PlanStep) string {
	name := step.Kind.Tag.String()
	if step.Kind.Tag == config.Custom {
		name = step.Kind.Name
	}
	if step.Command != nil {
		return fmt.Sprintf("%s@%ds: %s", name, step.TimeoutSeconds, *step.Command)
	}
	return fmt.Sprintf("%s@%ds", name, step.TimeoutSeconds)
}

// ─── profile ─────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdProfile(args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "ERROR: No profile name provided"
	}

	msg, reply := supervisor.SetProfileMsg(name)
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}

	infoMsg, infoReply := supervisor.GetInfoMsg()
	info := d.send(infoMsg, infoReply)
	label := name
	if strings.EqualFold(name, "none") {
		label = "base config"
	}
	return fmt.Sprintf("Profile switched: %s\n\n%s\n\n%s", label, info.Info.Text, info.Info.Tooltip)
}

// ─── list ────────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdList(args string) string {
	sub, _ := splitFirstWord(args)
	if sub == "" || isHelpArg(sub) {
		return listHelpMessage
	}

	var kind supervisor.ListKind
	switch strings.ToLower(sub) {
	case "actions":
		kind = supervisor.ListActions
	case "profiles":
		kind = supervisor.ListProfiles
	default:
		return fmt.Sprintf("ERROR: unknown list subcommand '%s'\n\n%s", sub, listHelpMessage)
	}

	msg, reply := supervisor.ListMsg(kind)
	resp := d.send(msg, reply)
	if resp.Err != nil {
		return "ERROR: " + resp.Err.Error()
	}
	return strings.Join(resp.Lines, "\n")
}

// ─── stop ────────────────────────────────────────────────────────────────

func (d *Dispatcher) cmdStop() string {
	msg, reply := supervisor.StopDaemonMsg()
	d.send(msg, reply)
	return "Stopping Stasis..."
}

// ─── shared helpers ──────────────────────────────────────────────────────

func isHelpArg(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "help" || s == "-h" || s == "--help"
}

// stripPrefixWord mirrors the original's "for "/"for" double strip_prefix:
// a space-separated form ("for 5m") is tried first, then a bare
// concatenated form ("for5m"), so both are accepted.
func stripPrefixWord(args, keyword string) (rest string, ok bool) {
	lower := strings.ToLower(args)
	if strings.HasPrefix(lower, keyword+" ") {
		return strings.TrimSpace(args[len(keyword)+1:]), true
	}
	if strings.HasPrefix(lower, keyword) {
		return strings.TrimSpace(args[len(keyword):]), true
	}
	return "", false
}

// formatDurationReadable elides zero components the way
// original_source/src/ipc/pause.rs's format_duration_readable does, e.g.
// "1h 30m", "45s", "2h 15s" — distinct from supervisor's tooltip formatter,
// which prints every unit from the largest non-zero one down to seconds,
// zeros included (e.g. "1h 0m 15s").
func formatDurationReadable(d time.Duration) string {
	secs := uint64(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
