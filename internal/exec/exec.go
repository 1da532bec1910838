// Package exec dispatches engine.Action values to the outside world: shell
// commands, desktop notifications, session locking, and suspend. Every
// command is spawned detached — the executor never blocks HandleEvent's
// caller waiting for a child process.
package exec

import (
	osexec "os/exec"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/throttle"
)

// Executor carries out Actions returned by the engine.
type Executor struct {
	log      *zap.Logger
	notifies *throttle.Bucket

	// events receives synthetic SessionLocked/SessionUnlocked events
	// produced by RunLockScreen, fed back into the supervisor's inbox.
	events chan<- engine.Event
	nowMs  func() uint64
}

// New builds an Executor. notifies gates Notify actions; events is the
// supervisor's inbound channel, used to report lock/unlock transitions
// driven by a RunLockScreen action.
func New(log *zap.Logger, notifies *throttle.Bucket, events chan<- engine.Event, nowMs func() uint64) *Executor {
	return &Executor{log: log, notifies: notifies, events: events, nowMs: nowMs}
}

// Run executes a single Action. It never blocks on the spawned process.
func (e *Executor) Run(a engine.Action) {
	switch a.Kind {
	case engine.ActionRunCommand:
		e.runShell("run_command", a.Command)
	case engine.ActionRunResumeCommand:
		e.runShell("run_resume_command", a.Command)
	case engine.ActionNotify:
		e.notify(a.Message)
	case engine.ActionLockSession:
		e.spawn("lock_session", osexec.Command("loginctl", "lock-session"))
	case engine.ActionRunLockScreen:
		e.runLockScreen(a.Command, a.UseLoginctl)
	case engine.ActionSuspend:
		e.spawn("suspend", osexec.Command("systemctl", "suspend"))
	default:
		e.log.Warn("unknown action kind", zap.Uint8("kind", uint8(a.Kind)))
	}
}

func (e *Executor) runShell(label, cmd string) {
	if cmd == "" {
		return
	}
	e.spawn(label, osexec.Command("sh", "-lc", cmd))
}

// notify sends a desktop notification, subject to the notification-rate
// bucket. A throttled notification is dropped, not queued: a burst of idle
// notifications older than the refill window is no longer useful to the
// user once it arrives.
func (e *Executor) notify(message string) {
	if e.notifies != nil && !e.notifies.Allow() {
		e.log.Warn("notification dropped by rate limiter", zap.String("message", message))
		return
	}
	e.spawn("notify", osexec.Command("notify-send", "-a", "Stasis", message))
}

// runLockScreen spawns a custom lock-screen command (optionally preceded by
// loginctl lock-session) and reports the session as locked immediately, then
// unlocked once the command exits. This lets a plan's lock step drive a
// screensaver binary while still tracking lock state through the engine.
func (e *Executor) runLockScreen(cmd string, useLoginctl bool) {
	e.events <- engine.SessionLocked(e.nowMs())

	if useLoginctl {
		e.spawn("lock_session", osexec.Command("loginctl", "lock-session"))
	}

	if cmd == "" {
		e.events <- engine.SessionUnlocked(e.nowMs())
		return
	}

	c := osexec.Command("sh", "-lc", cmd)
	nullStdio(c)
	if err := c.Start(); err != nil {
		e.log.Error("lock screen command failed to start", zap.String("command", cmd), zap.Error(err))
		e.events <- engine.SessionUnlocked(e.nowMs())
		return
	}
	go func() {
		if err := c.Wait(); err != nil {
			e.log.Warn("lock screen command exited with error", zap.String("command", cmd), zap.Error(err))
		}
		e.events <- engine.SessionUnlocked(e.nowMs())
	}()
}

// spawn starts cmd detached from the caller, logging start failures and
// reaping the child in the background so it never becomes a zombie.
func (e *Executor) spawn(label string, c *osexec.Cmd) {
	nullStdio(c)
	if err := c.Start(); err != nil {
		e.log.Error("action failed to start", zap.String("action", label), zap.Error(err))
		return
	}
	go func() {
		if err := c.Wait(); err != nil {
			e.log.Debug("action process exited with error", zap.String("action", label), zap.Error(err))
		}
	}()
}

func nullStdio(c *osexec.Cmd) {
	c.Stdin = nil
	c.Stdout = nil
	c.Stderr = nil
}
