package ipc

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/supervisor"
	"go.uber.org/zap"
)

func testConfigFile() *config.ConfigFile {
	cmd := "notify-send idle"
	return &config.ConfigFile{
		Default: config.Config{
			DebounceSeconds: 1,
			PlanDesktop: []config.PlanStep{
				{Kind: config.PlanStepKind{Tag: config.Dpms}, TimeoutSeconds: 10, Command: &cmd},
				{Kind: config.PlanStepKind{Tag: config.LockScreen}, TimeoutSeconds: 20, UseLoginctl: true},
				{Kind: config.PlanStepKind{Tag: config.Custom, Name: "reminder"}, TimeoutSeconds: 5, Command: &cmd},
			},
		},
		Profiles: []config.Profile{
			{Name: "meeting", Mode: config.Overlay},
		},
	}
}

type nopExecutor struct{}

func (nopExecutor) Run(engine.Action) {}

// newTestDispatcher spins up a real supervisor goroutine backed by an
// in-memory inbox, matching how the IPC server drives the supervisor in
// production, and returns a Dispatcher wired to it plus a stop func.
func newTestDispatcher(t *testing.T) (*Dispatcher, func()) {
	t.Helper()
	now := uint64(1000)
	sv := supervisor.New("/dev/null", testConfigFile(), nopExecutor{}, zap.NewNop(), func() uint64 { return now })

	ctx, cancel := context.WithCancel(context.Background())
	go sv.Run(ctx)

	d := NewDispatcher(sv.Inbox(), nil, "", func() uint64 { return now })
	return d, cancel
}

func TestDispatchListActions(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("list actions")
	lines := strings.Split(out, "\n")
	sort.Strings(lines)
	want := []string{"dpms", "lock_screen", "reminder"}
	sort.Strings(want)
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestDispatchListHelp(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	if out := d.Dispatch("list"); !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage text, got %q", out)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("bogus")
	if !strings.HasPrefix(out, "ERROR: unknown command") {
		t.Fatalf("expected error, got %q", out)
	}
}

func TestDispatchPauseAndResume(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	if out := d.Dispatch("pause"); out != "Idle manager paused indefinitely" {
		t.Fatalf("unexpected pause response: %q", out)
	}
	if out := d.Dispatch("pause"); !strings.HasPrefix(out, "ERROR:") {
		t.Fatalf("expected error pausing twice, got %q", out)
	}
	if out := d.Dispatch("resume"); out != "Idle manager resumed" {
		t.Fatalf("unexpected resume response: %q", out)
	}
	if out := d.Dispatch("resume"); !strings.HasPrefix(out, "ERROR:") {
		t.Fatalf("expected error resuming twice, got %q", out)
	}
}

func TestDispatchToggleInhibit(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	if out := d.Dispatch("toggle-inhibit"); out != "Inhibited" {
		t.Fatalf("expected Inhibited, got %q", out)
	}
	if out := d.Dispatch("toggle-inhibit"); out != "Active" {
		t.Fatalf("expected Active, got %q", out)
	}
}

func TestDispatchTriggerUnknownAction(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("trigger nonexistent")
	if !strings.Contains(out, "not found") {
		t.Fatalf("expected not-found error, got %q", out)
	}
}

func TestDispatchTriggerKnownAction(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("trigger reminder")
	if !strings.Contains(out, "triggered successfully") {
		t.Fatalf("expected success message, got %q", out)
	}
}

func TestDispatchProfileMissingName(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("profile")
	if out != "ERROR: No profile name provided" {
		t.Fatalf("got %q", out)
	}
}

func TestDispatchProfileSwitch(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("profile meeting")
	if !strings.HasPrefix(out, "Profile switched: meeting") {
		t.Fatalf("got %q", out)
	}
}

func TestDispatchInfoJSON(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("info --json")
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"profile"`) {
		t.Fatalf("expected JSON object, got %q", out)
	}
}

func TestDispatchConfig(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	out := d.Dispatch("config")
	if !strings.Contains(out, "debounce_seconds: 1") {
		t.Fatalf("expected debounce_seconds in YAML output, got %q", out)
	}
	if !strings.Contains(out, "dpms@10s") {
		t.Fatalf("expected plan step summary, got %q", out)
	}
}

func TestDispatchStop(t *testing.T) {
	d, stop := newTestDispatcher(t)
	defer stop()

	if out := d.Dispatch("stop"); out != "Stopping Stasis..." {
		t.Fatalf("got %q", out)
	}
}

func TestParseLinesArgDefaults(t *testing.T) {
	n, errStr := parseLinesArg("")
	if errStr != "" || n != defaultDumpLines {
		t.Fatalf("got n=%d err=%q", n, errStr)
	}
}

func TestParseLinesArgRejectsExtraArgs(t *testing.T) {
	_, errStr := parseLinesArg("5 6")
	if errStr == "" {
		t.Fatal("expected error for extra args")
	}
}

func TestFormatDurationReadable(t *testing.T) {
	cases := map[time.Duration]string{
		300 * time.Second:  "5m",
		3600 * time.Second: "1h",
		5400 * time.Second: "1h 30m",
		30 * time.Second:   "30s",
	}
	for d, want := range cases {
		if got := formatDurationReadable(d); got != want {
			t.Fatalf("formatDurationReadable(%v) = %q, want %q", d, got, want)
		}
	}
}
