// Package bench — latency/main.go
//
// Engine latency microbenchmark.
//
// Measures the wall-clock time of a single Engine.HandleEvent call across
// a representative event sequence: a run of ticks advancing through every
// configured plan step, interrupted periodically by UserActivity (the
// debounce-reset path engine.go takes most often in production).
//
// Method:
//  1. Builds an Engine over a small fixed plan (dpms, lock_screen,
//     suspend).
//  2. Runs the event sequence *iterations* times, calling
//     clock.Now()-style wall-clock timestamps before and after each
//     HandleEvent call via time.Now() (no syscall boundary to cross —
//     HandleEvent is pure Go, unlike the teacher's BPF round trip).
//  3. Results are written to a CSV file.
//
// Output CSV columns:
//   iteration, event_kind, latency_ns
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Number of event sequences to measure")
	outputFile := flag.String("output", "latency_raw.csv", "Output CSV file path")
	flag.Parse()

	// Lock to OS thread to minimise scheduling jitter, matching how the
	// teacher isolates its syscall-latency measurement loop from GC and
	// goroutine-scheduler noise.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"iteration", "event_kind", "latency_ns"})

	cf := benchConfigFile()
	eng := engine.New(&cf)

	const histBuckets = 200000 // 0-200us in 1ns buckets
	hist := make([]int, histBuckets)
	var total int

	for i := 0; i < *iterations; i++ {
		state := engine.NewState(0)
		for _, ev := range benchEventSequence() {
			start := time.Now()
			_, _ = eng.HandleEvent(state, ev)
			latency := time.Since(start)

			ns := int(latency.Nanoseconds())
			if ns < histBuckets {
				hist[ns]++
			}
			total++

			_ = w.Write([]string{
				strconv.Itoa(i),
				eventKindLabel(ev.Kind),
				strconv.Itoa(ns),
			})
		}
	}

	p50, p95, p99 := computePercentiles(hist, total)

	fmt.Printf("Engine Latency Results (%d iterations, %d events)\n", *iterations, total)
	fmt.Printf("  p50: %dns\n", p50)
	fmt.Printf("  p95: %dns\n", p95)
	fmt.Printf("  p99: %dns\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)

	// Exit 1 if p99 exceeds 1ms (a pure-function state transition should
	// never take anywhere near that long; a regression here means a plan
	// step or pattern match got accidentally quadratic).
	if p99 > 1_000_000 {
		fmt.Fprintf(os.Stderr, "FAIL: p99 %dns exceeds 1ms target\n", p99)
		os.Exit(1)
	}
}

// benchConfigFile builds a small fixed three-step desktop plan with step
// timeouts of 10s (dpms), 20s (lock_screen via loginctl) and 30s (suspend).
// Each timeout counts from the previous step, plus the 1s debounce, so the
// steps fall due at 11s, 31s and 61s. No profiles, so EffectiveFor always
// resolves the default config's desktop plan.
func benchConfigFile() config.ConfigFile {
	notify := "notify-send idle warning"
	return config.ConfigFile{
		Default: config.Config{
			DebounceSeconds: 1,
			PlanDesktop: []config.PlanStep{
				{Kind: config.PlanStepKind{Tag: config.Dpms}, TimeoutSeconds: 10, Command: &notify},
				{Kind: config.PlanStepKind{Tag: config.LockScreen}, TimeoutSeconds: 20, UseLoginctl: true},
				{Kind: config.PlanStepKind{Tag: config.Suspend}, TimeoutSeconds: 30, Command: &notify},
			},
		},
	}
}

// benchEventSequence is one lap of the representative workload: 40
// one-second ticks, which fire the dpms and lock_screen steps but stop short
// of suspend (covering maybeFireNextStep and advancePastLockIfNeeded), then
// one UserActivity resetting the cycle (covering resumeCommandsForActivity).
// The session is never reported locked, so the post-lock restart path is
// not taken.
func benchEventSequence() []engine.Event {
	events := make([]engine.Event, 0, 41)
	var now uint64
	for i := 0; i < 40; i++ {
		now += 1000
		events = append(events, engine.Tick(now))
	}
	now += 1000
	events = append(events, engine.UserActivity(engine.ActivityAny, now))
	return events
}

func eventKindLabel(k engine.EventKind) string {
	switch k {
	case engine.EventTick:
		return "tick"
	case engine.EventUserActivity:
		return "user_activity"
	default:
		return "other"
	}
}

func computePercentiles(hist []int, total int) (p50, p95, p99 int) {
	targets := []struct {
		pct float64
		out *int
	}{
		{0.50, &p50},
		{0.95, &p95},
		{0.99, &p99},
	}
	cumulative := 0
	ti := 0
	for i, count := range hist {
		cumulative += count
		for ti < len(targets) && float64(cumulative) >= targets[ti].pct*float64(total) {
			*targets[ti].out = i
			ti++
		}
		if ti == len(targets) {
			break
		}
	}
	return
}
