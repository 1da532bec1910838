package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildLoggerValidLevel(t *testing.T) {
	log, level, err := BuildLogger("info", "json", "")
	if err != nil {
		t.Fatalf("BuildLogger: %v", err)
	}
	defer log.Sync()
	if level.Level().String() != "info" {
		t.Fatalf("expected info level, got %s", level.Level())
	}
}

func TestBuildLoggerInvalidLevel(t *testing.T) {
	if _, _, err := BuildLogger("not-a-level", "json", ""); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestBuildLoggerAtomicLevelMutable(t *testing.T) {
	log, level, err := BuildLogger("info", "console", "")
	if err != nil {
		t.Fatalf("BuildLogger: %v", err)
	}
	defer log.Sync()
	level.SetLevel(-1) // debug
	if level.Level().String() != "debug" {
		t.Fatalf("expected debug level after SetLevel, got %s", level.Level())
	}
}

func TestBuildLoggerWritesToLogPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stasis.log")
	log, _, err := BuildLogger("info", "json", path)
	if err != nil {
		t.Fatalf("BuildLogger: %v", err)
	}
	log.Info("hello from the log file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain the logged entry")
	}
}
