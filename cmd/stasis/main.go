// Package main — cmd/stasis/main.go
//
// Stasis entrypoint.
//
// Startup sequence (daemon mode, no subcommand given):
//  1. Flag parse.
//  2. Client-command short-circuit: if a subcommand was given, dial the
//     running daemon's socket, send it, print the response, exit.
//  3. Environment check — WAYLAND_DISPLAY and XDG_RUNTIME_DIR required.
//  4. Load and validate config from $XDG_CONFIG_HOME/stasis/stasis.rune.
//  5. Initialise structured logger (zap).
//  6. Open the audit ledger (BoltDB) and prune stale entries.
//  7. Start the Prometheus metrics server (127.0.0.1:9289).
//  8. Build the notification throttle bucket.
//  9. Build the executor and supervisor, wire the executor's synthetic
//     lock/unlock events back into the supervisor inbox.
// 10. Start the sensors (ticker, power, D-Bus, media, app, Wayland).
// 11. Start the IPC server (bind-or-connect single-instance guard).
// 12. Register SIGHUP handler for config hot-reload.
// 13. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM or a `stop` command):
//  1. Cancel root context (propagates to every sensor and the IPC server).
//  2. Sleep 200ms so in-flight sensor pushes land (bounded by a 5s
//     timeout); the inbox is not drained explicitly.
//  3. Flush the logger.
//  4. Exit 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/audit"
	"github.com/dpilgrim/stasis/internal/config"
	"github.com/dpilgrim/stasis/internal/engine"
	"github.com/dpilgrim/stasis/internal/exec"
	"github.com/dpilgrim/stasis/internal/ipc"
	"github.com/dpilgrim/stasis/internal/logging"
	"github.com/dpilgrim/stasis/internal/metrics"
	"github.com/dpilgrim/stasis/internal/sensors"
	"github.com/dpilgrim/stasis/internal/supervisor"
	"github.com/dpilgrim/stasis/internal/throttle"
)

const (
	defaultMetricsAddr   = "127.0.0.1:9289"
	defaultLedgerDays    = 14
	notifyBucketCapacity = 5
	notifyRefillPeriod   = 30 * time.Second
	shutdownDrainTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to stasis.rune")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "console", "Log format: console or json")
	metricsAddr := flag.String("metrics-addr", defaultMetricsAddr, "Prometheus metrics listen address")
	verbose := flag.Bool("verbose", false, "Shorthand for -log-level=debug")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("stasis (dev build)")
		os.Exit(0)
	}
	if *verbose {
		*logLevel = "debug"
	}

	// ── Client-command short-circuit ──────────────────────────────────────
	if args := flag.Args(); len(args) > 0 {
		runClient(args)
		return
	}

	// ── Step 3: environment check ─────────────────────────────────────────
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		fmt.Fprintln(os.Stderr, "FATAL: stasis requires a Wayland session (WAYLAND_DISPLAY is unset)")
		os.Exit(1)
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		fmt.Fprintln(os.Stderr, "FATAL: XDG_RUNTIME_DIR is unset")
		os.Exit(1)
	}

	// ── Step 4: load config ───────────────────────────────────────────────
	cf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 5: logger ────────────────────────────────────────────────────
	logPath := defaultLogPath()
	log, atomicLevel, err := logging.BuildLogger(*logLevel, *logFormat, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("stasis starting", zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 6: audit ledger ──────────────────────────────────────────────
	ledgerPath := filepath.Join(xdgStateHome(), "stasis", "ledger.db")
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0o700); err != nil {
		log.Fatal("failed to create ledger directory", zap.Error(err))
	}
	ledger, err := audit.Open(ledgerPath, defaultLedgerDays)
	if err != nil {
		log.Fatal("audit ledger open failed", zap.Error(err), zap.String("path", ledgerPath))
	}
	defer ledger.Close() //nolint:errcheck

	if pruned, err := ledger.PruneOld(); err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else if pruned > 0 {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 7: metrics ────────────────────────────────────────────────────
	mtx := metrics.New()
	go func() {
		if err := mtx.ServeMetrics(ctx, *metricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", *metricsAddr))

	// ── Step 8: notification throttle ─────────────────────────────────────
	notifyBucket := throttle.New(notifyBucketCapacity, notifyRefillPeriod)
	defer notifyBucket.Close()

	// ── Step 9: executor + supervisor ─────────────────────────────────────
	nowMs := sensors.RealClock
	execEvents := make(chan engine.Event, 16)
	executor := exec.New(log, notifyBucket, execEvents, nowMs)

	sv := supervisor.New(*configPath, &cf, executor, log, nowMs)
	sv.SetMetrics(mtx)
	sv.SetLedger(ledger)

	go forwardExecutorEvents(execEvents, sv.Inbox())
	go sv.Run(ctx)

	// ── Step 10: sensors ───────────────────────────────────────────────────
	startSensors(ctx, &cf, sv, log)

	// ── Step 11: IPC server ────────────────────────────────────────────────
	socketPath := filepath.Join(runtimeDir, "stasis", "stasis.sock")
	dispatcher := ipc.NewDispatcher(sv.Inbox(), ledger, logPath, nowMs)
	server := ipc.NewServer(socketPath, dispatcher, log)

	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- server.ListenAndServe(ctx)
	}()

	// ── Step 12: SIGHUP reload ─────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received, reloading config")
			msg, reply := supervisor.ReloadConfigMsg()
			sv.Inbox() <- msg
			resp := <-reply
			if resp.Err != nil {
				log.Error("config reload failed", zap.Error(resp.Err))
				continue
			}
			log.Info("config reloaded", zap.String("level", atomicLevel.Level().String()))
		}
	}()

	// ── Step 13: wait for shutdown ──────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-ipcErrCh:
		if err != nil {
			log.Error("ipc server exited", zap.Error(err))
		}
	case <-sv.StopRequested():
		log.Info("stop requested over ipc")
	}

	cancel()

	drained := make(chan struct{})
	go func() {
		time.Sleep(200 * time.Millisecond) // let in-flight sensor pushes land
		close(drained)
	}()
	select {
	case <-time.After(shutdownDrainTimeout):
		log.Warn("shutdown drain timeout — forcing exit")
	case <-drained:
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove socket file", zap.Error(err))
	}

	log.Info("stasis shutdown complete")
}

// runClient handles every non-daemon invocation: it joins the subcommand
// and its arguments into one IPC command line, round-trips it over the
// running daemon's socket, and prints the response exactly as the daemon
// wrote it.
func runClient(args []string) {
	socketPath := filepath.Join(os.Getenv("XDG_RUNTIME_DIR"), "stasis", "stasis.sock")
	cmd := strings.Join(args, " ")

	resp, err := ipc.SendRaw(socketPath, cmd)
	if err != nil {
		if strings.Contains(args[0], "info") {
			fmt.Println(`{"text":"","alt":"not_running","class":"not_running","tooltip":"Stasis not running","profile":null}`)
			return
		}
		fmt.Fprintln(os.Stderr, "No running Stasis instance found")
		os.Exit(1)
	}

	fmt.Println(resp)
	if strings.HasPrefix(resp, "ERROR:") {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stasis", "stasis.rune")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "stasis", "stasis.rune")
}

func xdgStateHome() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

func defaultLogPath() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "stasis", "stasis.log")
}
