package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

type recordingExecutor struct {
	actions []engine.Action
}

func (r *recordingExecutor) Run(a engine.Action) { r.actions = append(r.actions, a) }

func strp(s string) *string { return &s }

func testConfigFile() *config.ConfigFile {
	cmd := "notify-send idle"
	return &config.ConfigFile{
		Default: config.Config{
			DebounceSeconds: 1,
			PlanDesktop: []config.PlanStep{
				{Kind: config.PlanStepKind{Tag: config.Dpms}, TimeoutSeconds: 10, Command: strp("dpms off")},
				{Kind: config.PlanStepKind{Tag: config.LockScreen}, TimeoutSeconds: 20, UseLoginctl: true},
				{Kind: config.PlanStepKind{Tag: config.Custom, Name: "reminder"}, TimeoutSeconds: 5, Command: &cmd},
			},
		},
		Profiles: []config.Profile{
			{Name: "meeting", Mode: config.Overlay},
		},
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *recordingExecutor) {
	t.Helper()
	ex := &recordingExecutor{}
	now := uint64(1000)
	sv := New("/dev/null", testConfigFile(), ex, zap.NewNop(), func() uint64 { return now })
	return sv, ex
}

func TestHandleListActions(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	msg, reply := ListMsg(ListActions)
	sv.handle(msg)
	resp := <-reply
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	want := []string{"dpms", "lock_screen", "reminder"}
	if len(resp.Lines) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), resp.Lines)
	}
	for i, w := range want {
		if resp.Lines[i] != w {
			t.Fatalf("line %d: expected %q, got %q", i, w, resp.Lines[i])
		}
	}
}

func TestHandleListProfiles(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	msg, reply := ListMsg(ListProfiles)
	sv.handle(msg)
	resp := <-reply
	want := []string{"default", "meeting"}
	if len(resp.Lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, resp.Lines)
	}
	for i, w := range want {
		if resp.Lines[i] != w {
			t.Fatalf("profile %d: expected %q, got %q", i, w, resp.Lines[i])
		}
	}
}

func TestHandleSetProfileUnknownReturnsError(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	msg, reply := SetProfileMsg("does-not-exist")
	sv.handle(msg)
	resp := <-reply
	if resp.Err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestHandleSetProfileKnownSucceeds(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	msg, reply := SetProfileMsg("meeting")
	sv.handle(msg)
	resp := <-reply
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if sv.state.ActiveProfile != "meeting" {
		t.Fatalf("expected active profile meeting, got %q", sv.state.ActiveProfile)
	}
}

func TestHandleGetInfoReflectsManualPause(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	sv.handleEvent(engine.ManualPause(1000), nil)

	msg, reply := GetInfoMsg()
	sv.handle(msg)
	resp := <-reply
	if resp.Info.Class != "manually_inhibited" {
		t.Fatalf("expected manually_inhibited class, got %q", resp.Info.Class)
	}
	if resp.Info.Profile != "default" {
		t.Fatalf("expected default profile, got %q", resp.Info.Profile)
	}
}

func TestHandleStopDaemonClosesStopRequested(t *testing.T) {
	sv, _ := newTestSupervisor(t)
	msg, reply := StopDaemonMsg()
	sv.handle(msg)
	<-reply
	select {
	case <-sv.StopRequested():
	default:
		t.Fatal("expected StopRequested channel to be closed")
	}
}

func writeRuneConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stasis.rune")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const runeNoStartup = `
default:
  debounce_seconds 1
  dpms:
    timeout 10
    command "dpms off"
  end
end
`

const runeWithStartup = `
default:
  debounce_seconds 1
  startup:
    timeout 0
    command "notify-send hello"
  end
  dpms:
    timeout 10
    command "dpms off"
  end
end
`

func TestHandleReloadConfigFiresNewStartupInstant(t *testing.T) {
	path := writeRuneConfig(t, runeNoStartup)
	cf, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	ex := &recordingExecutor{}
	now := uint64(1000)
	sv := New(path, &cf, ex, zap.NewNop(), func() uint64 { return now })

	if err := os.WriteFile(path, []byte(runeWithStartup), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	msg, reply := ReloadConfigMsg()
	sv.handle(msg)
	resp := <-reply
	if resp.Err != nil {
		t.Fatalf("unexpected reload error: %v", resp.Err)
	}

	found := false
	for _, a := range ex.actions {
		if a.Kind == engine.ActionRunCommand && a.Command == "notify-send hello" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected reload to fire the newly added startup instant")
	}
}

const runeWithMeetingProfile = `
default:
  debounce_seconds 1
  dpms:
    timeout 10
    command "dpms off"
  end
end

profiles:
  meeting:
    mode overlay
  end
end
`

const runeWithoutMeetingProfile = `
default:
  debounce_seconds 1
  dpms:
    timeout 10
    command "dpms off"
  end
end
`

func TestHandleReloadConfigFallsBackToNoneWhenProfileDropped(t *testing.T) {
	path := writeRuneConfig(t, runeWithMeetingProfile)
	cf, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	ex := &recordingExecutor{}
	now := uint64(1000)
	sv := New(path, &cf, ex, zap.NewNop(), func() uint64 { return now })

	setMsg, setReply := SetProfileMsg("meeting")
	sv.handle(setMsg)
	if resp := <-setReply; resp.Err != nil {
		t.Fatalf("unexpected set-profile error: %v", resp.Err)
	}
	if sv.state.ActiveProfile != "meeting" {
		t.Fatalf("expected active profile meeting, got %q", sv.state.ActiveProfile)
	}

	if err := os.WriteFile(path, []byte(runeWithoutMeetingProfile), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	reloadMsg, reloadReply := ReloadConfigMsg()
	sv.handle(reloadMsg)
	if resp := <-reloadReply; resp.Err != nil {
		t.Fatalf("expected reload to fall back to the default profile, got error: %v", resp.Err)
	}
	if sv.state.ActiveProfile != "" {
		t.Fatalf("expected active profile to reset to none, got %q", sv.state.ActiveProfile)
	}

	now = 2000
	tickMsg, tickReply := EventMsgSync(engine.Tick(now))
	sv.handle(tickMsg)
	if resp := <-tickReply; resp.Err != nil {
		t.Fatalf("expected tick against fallback profile to succeed, got error: %v", resp.Err)
	}
}

func TestRunDrainsInboxUntilCancelled(t *testing.T) {
	sv, ex := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	sv.Inbox() <- EventMsg(engine.Tick(1000))
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	_ = ex // ticks at t=1000 with debounce/timeout not yet elapsed fire nothing
}
