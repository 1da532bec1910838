package sensors

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dpilgrim/stasis/internal/engine"
)

// PowerPollInterval is how often the power sensor re-checks AC/battery
// state on a laptop. Desktops never poll at all.
const PowerPollInterval = 5 * time.Second

// dmiChassisTypePath is the SMBIOS chassis-type file exposed by the kernel.
// See the SMBIOS spec's "System Enclosure or Chassis Types" table.
const dmiChassisTypePath = "/sys/class/dmi/id/chassis_type"

// laptopChassisTypes are the SMBIOS chassis_type codes that indicate a
// battery-capable form factor: Portable, Laptop, Notebook, Hand Held,
// Sub Notebook, Tablet, Convertible, Detachable.
var laptopChassisTypes = map[int]bool{
	8: true, 9: true, 10: true, 11: true, 14: true, 30: true, 31: true, 32: true,
}

const powerSupplyRoot = "/sys/class/power_supply"

// IsLaptop reports whether this machine's chassis type indicates it can
// run on battery. Desktops (and anything whose chassis type can't be read)
// are treated as non-laptops, matching the spec's "skipped for desktops".
func IsLaptop() bool {
	raw, err := os.ReadFile(dmiChassisTypePath)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return false
	}
	return laptopChassisTypes[n]
}

// readACOnline scans /sys/class/power_supply for a Mains-type supply and
// reports whether it's online. A machine with no Mains supply at all (rare
// but possible on some laptops reporting only a battery) is treated as
// running on battery.
func readACOnline() bool {
	entries, err := os.ReadDir(powerSupplyRoot)
	if err != nil {
		return true // can't tell; default to AC so we never nag on a misread
	}
	for _, e := range entries {
		dir := filepath.Join(powerSupplyRoot, e.Name())
		typ, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil || strings.TrimSpace(string(typ)) != "Mains" {
			continue
		}
		online, err := os.ReadFile(filepath.Join(dir, "online"))
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(online)) == "1"
	}
	return false
}

// PowerSensor polls AC/battery state on laptops and pushes PowerChanged
// whenever it flips. It is a no-op on desktops (IsLaptop() == false),
// matching the spec's chassis-detection skip.
type PowerSensor struct {
	sink    EventSink
	nowMs   nowMsFunc
	every   time.Duration
	isLaptop func() bool
	readAC   func() bool
}

// NewPowerSensor builds a PowerSensor. Tests override isLaptop/readAC via
// the unexported fields by constructing the struct directly.
func NewPowerSensor(sink EventSink, nowMs func() uint64) *PowerSensor {
	return &PowerSensor{
		sink:     sink,
		nowMs:    nowMs,
		every:    PowerPollInterval,
		isLaptop: IsLaptop,
		readAC:   readACOnline,
	}
}

// Run blocks until ctx is cancelled. If the machine isn't a laptop it
// returns immediately without polling or pushing anything.
func (p *PowerSensor) Run(ctx context.Context) {
	if !p.isLaptop() {
		return
	}

	var last engine.PowerState
	var have bool

	poll := func() {
		state := engine.PowerOnBattery
		if p.readAC() {
			state = engine.PowerOnAC
		}
		if !have || state != last {
			have = true
			last = state
			p.sink.Push(engine.PowerChanged(state, p.nowMs()))
		}
	}

	poll()

	tick := time.NewTicker(p.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			poll()
		}
	}
}
