package ipc

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dpilgrim/stasis/internal/supervisor"
)

func TestServerRoundTrip(t *testing.T) {
	now := uint64(1000)
	sv := supervisor.New("/dev/null", testConfigFile(), nopExecutor{}, zap.NewNop(), func() uint64 { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sv.Run(ctx)

	d := NewDispatcher(sv.Inbox(), nil, "", func() uint64 { return now })
	sockPath := filepath.Join(t.TempDir(), "stasis.sock")
	srv := NewServer(sockPath, d, zap.NewNop())

	srvCtx, srvCancel := context.WithCancel(context.Background())
	defer srvCancel()
	go func() {
		if err := srv.ListenAndServe(srvCtx); err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	}()

	waitForSocket(t, sockPath)

	resp, err := SendRaw(sockPath, "list actions")
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if !strings.Contains(resp, "dpms") {
		t.Fatalf("expected dpms in response, got %q", resp)
	}
}

func TestServerRejectsWhenDaemonNotRunning(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := SendRaw(sockPath, "info"); err == nil {
		t.Fatal("expected error connecting to nonexistent socket")
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := SendRaw(path, "info"); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never became available", path)
}
