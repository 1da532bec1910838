// Package engine implements the deterministic plan-step state machine at
// the heart of Stasis: given the current State and an incoming Event, it
// produces a new State and the Actions the supervisor must execute.
package engine

// ActionKind discriminates the variants of Action.
type ActionKind uint8

const (
	ActionRunCommand ActionKind = iota
	ActionRunResumeCommand
	ActionNotify
	ActionLockSession
	ActionRunLockScreen
	ActionSuspend
)

func (k ActionKind) String() string {
	switch k {
	case ActionRunCommand:
		return "run_command"
	case ActionRunResumeCommand:
		return "run_resume_command"
	case ActionNotify:
		return "notify"
	case ActionLockSession:
		return "lock_session"
	case ActionRunLockScreen:
		return "run_lock_screen"
	case ActionSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// Action is a side effect emitted by HandleEvent for the executor to carry
// out. Only the fields relevant to Kind are populated.
type Action struct {
	Kind        ActionKind
	Command     string // RunCommand, RunResumeCommand, RunLockScreen
	Message     string // Notify
	UseLoginctl bool   // RunLockScreen
}

func runCommand(cmd string) Action {
	return Action{Kind: ActionRunCommand, Command: cmd}
}

func runResumeCommand(cmd string) Action {
	return Action{Kind: ActionRunResumeCommand, Command: cmd}
}

func notify(msg string) Action {
	return Action{Kind: ActionNotify, Message: msg}
}

func lockSession() Action {
	return Action{Kind: ActionLockSession}
}

func runLockScreen(cmd string, useLoginctl bool) Action {
	return Action{Kind: ActionRunLockScreen, Command: cmd, UseLoginctl: useLoginctl}
}

func suspend() Action {
	return Action{Kind: ActionSuspend}
}
