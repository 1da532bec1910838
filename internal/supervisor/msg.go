// Package supervisor owns the engine's State and ConfigFile on a single
// goroutine and drives HandleEvent from a bounded inbox of ManagerMsg
// values. Every other component — sensors, the IPC server — talks to the
// engine only by sending a ManagerMsg and, for commands that need an
// answer, waiting on a reply channel.
package supervisor

import (
	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

// MsgKind discriminates the variants of ManagerMsg.
type MsgKind uint8

const (
	MsgEvent MsgKind = iota
	MsgList
	MsgGetInfo
	MsgSetProfile
	MsgReloadConfig
	MsgStopDaemon
	MsgEffectiveConfig
)

// ListKind selects what a List message enumerates.
type ListKind uint8

const (
	ListActions ListKind = iota
	ListProfiles
)

// InfoSnapshot is the waybar-style status contract returned by GetInfo.
// Formatting it into text or JSON is the IPC layer's concern.
type InfoSnapshot struct {
	Text    string
	Alt     string
	Class   string
	Tooltip string
	Profile string
}

// Response is what a synchronous ManagerMsg gets back over its Reply
// channel. Only the fields relevant to the originating Kind are populated.
type Response struct {
	Err       error
	Text      string
	Lines     []string
	Info      InfoSnapshot
	Effective config.Effective // MsgEffectiveConfig
}

// ManagerMsg is the single message type the supervisor's inbox accepts.
type ManagerMsg struct {
	Kind        MsgKind
	Event       engine.Event // MsgEvent
	ListKind    ListKind     // MsgList
	ProfileName string       // MsgSetProfile
	Reply       chan Response
}

// EventMsg wraps an engine.Event for fire-and-forget delivery; sensors and
// the pause-expiry timer use this, never waiting on a reply.
func EventMsg(ev engine.Event) ManagerMsg {
	return ManagerMsg{Kind: MsgEvent, Event: ev}
}

// EventMsgSync wraps an engine.Event for delivery where the caller needs to
// know whether the engine accepted it — the IPC layer's pause/resume/
// trigger commands use this so they can report ErrAlreadyPaused, etc. back
// to the client instead of silently dropping it.
func EventMsgSync(ev engine.Event) (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgEvent, Event: ev, Reply: reply}, reply
}

// newReply allocates the oneshot reply channel used by every synchronous
// command below.
func newReply() chan Response {
	return make(chan Response, 1)
}

// ListMsg builds a List request and returns it alongside the channel its
// reply will arrive on.
func ListMsg(kind ListKind) (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgList, ListKind: kind, Reply: reply}, reply
}

// GetInfoMsg builds a GetInfo request.
func GetInfoMsg() (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgGetInfo, Reply: reply}, reply
}

// SetProfileMsg builds a SetProfile request. name == "none" clears the
// active profile; an empty name is rejected with engine.ErrInvalidProfileName.
func SetProfileMsg(name string) (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgSetProfile, ProfileName: name, Reply: reply}, reply
}

// ReloadConfigMsg builds a ReloadConfig request.
func ReloadConfigMsg() (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgReloadConfig, Reply: reply}, reply
}

// StopDaemonMsg builds a StopDaemon request.
func StopDaemonMsg() (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgStopDaemon, Reply: reply}, reply
}

// EffectiveConfigMsg builds a request for the currently selected Effective
// config (the IPC `config` command's backing data).
func EffectiveConfigMsg() (ManagerMsg, chan Response) {
	reply := newReply()
	return ManagerMsg{Kind: MsgEffectiveConfig, Reply: reply}, reply
}
