package engine

// ActivityKind distinguishes sources of user activity. Stasis currently
// only distinguishes "any" activity; the type exists so a future sensor can
// report finer-grained kinds without changing the Event shape.
type ActivityKind uint8

const (
	ActivityAny ActivityKind = iota
)

// MediaState is the aggregate media-playback state reported by the media
// prober (out of scope; see sensors package for the thin adapter).
type MediaState uint8

const (
	MediaIdle MediaState = iota
	MediaPlayingLocal
	MediaPlayingRemote
)

// PowerState is the AC/battery state reported by the power sensor.
type PowerState uint8

const (
	PowerOnAC PowerState = iota
	PowerOnBattery
)

// EventKind discriminates the variants of Event.
type EventKind uint8

const (
	EventTick EventKind = iota
	EventUserActivity
	EventMediaStateChanged
	EventPowerChanged
	EventLidClosed
	EventLidOpened
	EventSessionLocked
	EventSessionUnlocked
	EventManualPause
	EventManualResume
	EventManualTrigger
	EventPauseExpired
	EventProfileChanged
	EventPrepareForSleep
	EventResumedFromSleep
	EventAppInhibitorCount
	EventMediaInhibitorCount
)

// Event is the single inbound message type the engine consumes. Only the
// fields relevant to Kind are populated; NowMs is always set.
type Event struct {
	Kind EventKind
	NowMs uint64

	ActivityKind ActivityKind      // UserActivity
	MediaState   MediaState        // MediaStateChanged
	PowerState   PowerState        // PowerChanged
	Name         string            // ManualTrigger, ProfileChanged
	Message      string            // PauseExpired
	Count        uint64            // AppInhibitorCount, MediaInhibitorCount
}

func Tick(nowMs uint64) Event { return Event{Kind: EventTick, NowMs: nowMs} }

func UserActivity(kind ActivityKind, nowMs uint64) Event {
	return Event{Kind: EventUserActivity, ActivityKind: kind, NowMs: nowMs}
}

func MediaStateChanged(state MediaState, nowMs uint64) Event {
	return Event{Kind: EventMediaStateChanged, MediaState: state, NowMs: nowMs}
}

func PowerChanged(state PowerState, nowMs uint64) Event {
	return Event{Kind: EventPowerChanged, PowerState: state, NowMs: nowMs}
}

func LidClosed(nowMs uint64) Event { return Event{Kind: EventLidClosed, NowMs: nowMs} }
func LidOpened(nowMs uint64) Event { return Event{Kind: EventLidOpened, NowMs: nowMs} }

func SessionLocked(nowMs uint64) Event   { return Event{Kind: EventSessionLocked, NowMs: nowMs} }
func SessionUnlocked(nowMs uint64) Event { return Event{Kind: EventSessionUnlocked, NowMs: nowMs} }

func ManualPause(nowMs uint64) Event  { return Event{Kind: EventManualPause, NowMs: nowMs} }
func ManualResume(nowMs uint64) Event { return Event{Kind: EventManualResume, NowMs: nowMs} }

func ManualTrigger(name string, nowMs uint64) Event {
	return Event{Kind: EventManualTrigger, Name: name, NowMs: nowMs}
}

func PauseExpired(message string, nowMs uint64) Event {
	return Event{Kind: EventPauseExpired, Message: message, NowMs: nowMs}
}

func ProfileChanged(name string, nowMs uint64) Event {
	return Event{Kind: EventProfileChanged, Name: name, NowMs: nowMs}
}

func PrepareForSleep(nowMs uint64) Event  { return Event{Kind: EventPrepareForSleep, NowMs: nowMs} }
func ResumedFromSleep(nowMs uint64) Event { return Event{Kind: EventResumedFromSleep, NowMs: nowMs} }

func AppInhibitorCount(count, nowMs uint64) Event {
	return Event{Kind: EventAppInhibitorCount, Count: count, NowMs: nowMs}
}

func MediaInhibitorCount(count, nowMs uint64) Event {
	return Event{Kind: EventMediaInhibitorCount, Count: count, NowMs: nowMs}
}
