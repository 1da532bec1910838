package sensors

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/engine"
)

func newTestDBusSensor(sink EventSink) *DBusSensor {
	return NewDBusSensor(sink, func() uint64 { return 99 }, true, zap.NewNop())
}

func TestDBusDispatchPrepareForSleep(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDBusSensor(sink)

	d.dispatch(&dbus.Signal{Name: login1ManagerIf + ".PrepareForSleep", Body: []interface{}{true}})
	d.dispatch(&dbus.Signal{Name: login1ManagerIf + ".PrepareForSleep", Body: []interface{}{false}})

	if sink.count() != 2 {
		t.Fatalf("expected 2 events, got %d", sink.count())
	}
	if sink.evs[0].Kind != engine.EventPrepareForSleep {
		t.Fatalf("expected PrepareForSleep, got %v", sink.evs[0].Kind)
	}
	if sink.evs[1].Kind != engine.EventResumedFromSleep {
		t.Fatalf("expected ResumedFromSleep, got %v", sink.evs[1].Kind)
	}
}

func TestDBusDispatchLockUnlock(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDBusSensor(sink)

	d.dispatch(&dbus.Signal{Name: login1SessionIf + ".Lock"})
	d.dispatch(&dbus.Signal{Name: login1SessionIf + ".Unlock"})

	if sink.evs[0].Kind != engine.EventSessionLocked {
		t.Fatalf("expected SessionLocked, got %v", sink.evs[0].Kind)
	}
	if sink.evs[1].Kind != engine.EventSessionUnlocked {
		t.Fatalf("expected SessionUnlocked, got %v", sink.evs[1].Kind)
	}
}

func TestDBusDispatchLidPropertiesChanged(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDBusSensor(sink)

	closedSig := &dbus.Signal{
		Name: propsChangedIf + ".PropertiesChanged",
		Body: []interface{}{
			upowerIf,
			map[string]dbus.Variant{"LidIsClosed": dbus.MakeVariant(true)},
			[]string{},
		},
	}
	openSig := &dbus.Signal{
		Name: propsChangedIf + ".PropertiesChanged",
		Body: []interface{}{
			upowerIf,
			map[string]dbus.Variant{"LidIsClosed": dbus.MakeVariant(false)},
			[]string{},
		},
	}
	otherIfaceSig := &dbus.Signal{
		Name: propsChangedIf + ".PropertiesChanged",
		Body: []interface{}{
			"org.freedesktop.SomethingElse",
			map[string]dbus.Variant{"LidIsClosed": dbus.MakeVariant(true)},
			[]string{},
		},
	}

	d.dispatch(closedSig)
	d.dispatch(openSig)
	d.dispatch(otherIfaceSig)

	if sink.count() != 2 {
		t.Fatalf("expected 2 events (other-interface signal ignored), got %d", sink.count())
	}
	if sink.evs[0].Kind != engine.EventLidClosed {
		t.Fatalf("expected LidClosed, got %v", sink.evs[0].Kind)
	}
	if sink.evs[1].Kind != engine.EventLidOpened {
		t.Fatalf("expected LidOpened, got %v", sink.evs[1].Kind)
	}
}
