package sensors

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/engine"
)

const (
	login1Dest      = "org.freedesktop.login1"
	login1ManagerIf = "org.freedesktop.login1.Manager"
	login1SessionIf = "org.freedesktop.login1.Session"
	upowerPath      = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerIf        = "org.freedesktop.UPower"
	propsChangedIf  = "org.freedesktop.DBus.Properties"
)

// DBusSensor listens on the system bus for logind's PrepareForSleep and
// per-session Lock/Unlock signals, plus UPower's LidIsClosed property, and
// pushes the corresponding engine events. EnableLoginctl gates the
// login1-specific monitoring (PrepareForSleep, Lock/Unlock); lid events are
// always monitored since they come from UPower, not login1.
type DBusSensor struct {
	sink           EventSink
	nowMs          nowMsFunc
	enableLoginctl bool
	log            *zap.Logger

	connect func() (*dbus.Conn, error) // overridden in tests
}

// NewDBusSensor builds a DBusSensor bound to the system bus.
func NewDBusSensor(sink EventSink, nowMs func() uint64, enableLoginctl bool, log *zap.Logger) *DBusSensor {
	return &DBusSensor{
		sink:           sink,
		nowMs:          nowMs,
		enableLoginctl: enableLoginctl,
		log:            log,
		connect:        dbus.ConnectSystemBus,
	}
}

// Run connects to the system bus and dispatches signals until ctx is
// cancelled. A connection failure is logged and treated as a no-op rather
// than a fatal error — the daemon still runs its plan off the ticker alone,
// just without lid/sleep/lock awareness.
func (d *DBusSensor) Run(ctx context.Context) {
	conn, err := d.connect()
	if err != nil {
		d.log.Warn("dbus: could not connect to system bus", zap.Error(err))
		return
	}
	defer conn.Close()

	if d.enableLoginctl {
		d.watchPrepareForSleep(conn)
		d.watchLockUnlock(conn)
	} else {
		d.log.Info("dbus: loginctl integration disabled; skipping login1 monitoring")
	}
	d.watchLid(conn)

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			d.dispatch(sig)
		}
	}
}

func (d *DBusSensor) watchPrepareForSleep(conn *dbus.Conn) {
	call := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchInterface(login1ManagerIf),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if call.Err != nil {
		d.log.Warn("dbus: could not subscribe to PrepareForSleep", zap.Error(call.Err))
	}
}

func (d *DBusSensor) watchLid(conn *dbus.Conn) {
	call := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propsChangedIf),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if call.Err != nil {
		d.log.Warn("dbus: could not subscribe to UPower PropertiesChanged", zap.Error(call.Err))
	}
}

func (d *DBusSensor) watchLockUnlock(conn *dbus.Conn) {
	path, err := resolveSessionPath(conn)
	if err != nil {
		d.log.Warn("dbus: could not resolve session path for lock/unlock", zap.Error(err))
		return
	}
	d.log.Info("dbus: monitoring session", zap.String("path", string(path)))

	for _, member := range []string{"Lock", "Unlock"} {
		call := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(login1SessionIf),
			dbus.WithMatchMember(member),
		)
		if call.Err != nil {
			d.log.Warn("dbus: could not subscribe to session signal",
				zap.String("member", member), zap.Error(call.Err))
		}
	}
}

func (d *DBusSensor) dispatch(sig *dbus.Signal) {
	now := d.nowMs()
	switch sig.Name {
	case login1ManagerIf + ".PrepareForSleep":
		goingDown, ok := sig.Body[0].(bool)
		if !ok {
			return
		}
		if goingDown {
			d.sink.Push(engine.PrepareForSleep(now))
		} else {
			d.sink.Push(engine.ResumedFromSleep(now))
		}

	case login1SessionIf + ".Lock":
		d.sink.Push(engine.SessionLocked(now))

	case login1SessionIf + ".Unlock":
		d.sink.Push(engine.SessionUnlocked(now))

	case propsChangedIf + ".PropertiesChanged":
		d.dispatchPropertiesChanged(sig, now)
	}
}

func (d *DBusSensor) dispatchPropertiesChanged(sig *dbus.Signal, now uint64) {
	if len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != upowerIf {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	v, ok := changed["LidIsClosed"]
	if !ok {
		return
	}
	closed, ok := v.Value().(bool)
	if !ok {
		return
	}
	if closed {
		d.sink.Push(engine.LidClosed(now))
	} else {
		d.sink.Push(engine.LidOpened(now))
	}
}

// resolveSessionPath finds the caller's graphical login1 session, trying
// XDG_SESSION_ID first, then scanning ListSessions for a wayland/x11
// session on seat0, then falling back to the first session for our uid.
func resolveSessionPath(conn *dbus.Conn) (dbus.ObjectPath, error) {
	manager := conn.Object(login1Dest, "/org/freedesktop/login1")

	if sessionID := os.Getenv("XDG_SESSION_ID"); sessionID != "" {
		var path dbus.ObjectPath
		if err := manager.Call(login1ManagerIf+".GetSession", 0, sessionID).Store(&path); err == nil {
			return path, nil
		}
	}

	uid := os.Getuid()

	type sessionEntry struct {
		ID   string
		UID  uint32
		User string
		Seat string
		Path dbus.ObjectPath
	}
	var raw [][]interface{}
	if err := manager.Call(login1ManagerIf+".ListSessions", 0).Store(&raw); err != nil {
		return "", fmt.Errorf("ListSessions: %w", err)
	}

	sessions := make([]sessionEntry, 0, len(raw))
	for _, r := range raw {
		if len(r) != 5 {
			continue
		}
		id, _ := r[0].(string)
		suid, _ := r[1].(uint32)
		user, _ := r[2].(string)
		seat, _ := r[3].(string)
		path, _ := r[4].(dbus.ObjectPath)
		sessions = append(sessions, sessionEntry{id, suid, user, seat, path})
	}

	for _, s := range sessions {
		if s.UID != uint32(uid) || s.Seat != "seat0" {
			continue
		}
		sessObj := conn.Object(login1Dest, s.Path)
		typVariant, err := sessObj.GetProperty(login1SessionIf + ".Type")
		if err != nil {
			continue
		}
		typ, _ := typVariant.Value().(string)
		if typ == "wayland" || typ == "x11" {
			return s.Path, nil
		}
	}

	for _, s := range sessions {
		if s.UID == uint32(uid) {
			return s.Path, nil
		}
	}

	return "", fmt.Errorf("no login1 session found for uid %d", uid)
}
