package sensors

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

// AppPollInterval is how often the app prober rescans /proc.
const AppPollInterval = time.Second

const procRoot = "/proc"

// AppSensor scans /proc for running processes matching the configured
// inhibit-app patterns and reports how many distinct patterns currently
// have a match as the app inhibitor count. A compositor-IPC-based prober
// (querying the window list directly) would see app state more precisely,
// but no compositor client library is available, so /proc scanning is the
// adapter used here.
type AppSensor struct {
	sink     EventSink
	nowMs    nowMsFunc
	every    time.Duration
	patterns []config.Pattern

	listProcessNames func() ([]string, error)

	lastCount uint64
	polled    bool
}

// NewAppSensor builds an AppSensor matching against patterns.
func NewAppSensor(sink EventSink, nowMs func() uint64, patterns []config.Pattern) *AppSensor {
	return &AppSensor{
		sink:             sink,
		nowMs:            nowMs,
		every:            AppPollInterval,
		patterns:         patterns,
		listProcessNames: listProcCommandLines,
	}
}

// poll rescans /proc once and pushes an updated count only if it changed
// since the previous poll (or this is the first poll).
func (a *AppSensor) poll() {
	names, err := a.listProcessNames()
	if err != nil {
		names = nil
	}

	var count uint64
	for _, p := range a.patterns {
		for _, name := range names {
			if p.MatchesLC(strings.ToLower(name)) {
				count++
				break
			}
		}
	}

	if !a.polled || count != a.lastCount {
		a.sink.Push(engine.AppInhibitorCount(count, a.nowMs()))
		a.lastCount = count
		a.polled = true
	}
}

// Run blocks, polling until ctx is cancelled.
func (a *AppSensor) Run(ctx context.Context) {
	a.poll()

	tick := time.NewTicker(a.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			a.poll()
		}
	}
}

// listProcCommandLines returns the comm name of every process in /proc.
func listProcCommandLines() ([]string, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(procRoot + "/" + e.Name() + "/comm")
		if err != nil {
			continue
		}
		names = append(names, strings.TrimSpace(string(comm)))
	}
	return names, nil
}
