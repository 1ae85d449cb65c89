package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/readiness/internal/config"
	"github.com/felixgeelhaar/readiness/internal/daemon"
)

func TestDaemonURL(t *testing.T) {
	tests := []struct {
		bind string
		port int
		want string
	}{
		{"127.0.0.1", 7433, "http://127.0.0.1:7433"},
		{"0.0.0.0", 8080, "http://127.0.0.1:8080"},
		{"", 7433, "http://127.0.0.1:7433"},
		{"::1", 9000, "http://[::1]:9000"},
	}

	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.Daemon.Bind = tt.bind
		cfg.Daemon.Port = tt.port
		if got := daemonURL(cfg); got != tt.want {
			t.Errorf("daemonURL(%q, %d) = %q, want %q", tt.bind, tt.port, got, tt.want)
		}
	}
}

func startTestDaemon(t *testing.T) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false
	server, err := daemon.NewServer(daemon.ServerConfig{Config: cfg, Version: "test"})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		server.Shutdown(context.Background())
	})
	return ts.URL
}

func TestCmdStatus_Running(t *testing.T) {
	url := startTestDaemon(t)

	if !isRunning(url) {
		t.Fatal("isRunning() = false for a live daemon")
	}

	var out bytes.Buffer
	if err := cmdStatus(&out, url); err != nil {
		t.Fatalf("cmdStatus() error = %v", err)
	}
	for _, want := range []string{"Status:     running", "Version:    test", "Rate limit: false", url} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCmdStatus_Stopped(t *testing.T) {
	var out bytes.Buffer
	if err := cmdStatus(&out, "http://127.0.0.1:1"); err != nil {
		t.Fatalf("cmdStatus() error = %v", err)
	}
	if out.String() != "Status: stopped\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestCmdStop_NotRunning(t *testing.T) {
	var out bytes.Buffer
	if err := cmdStop(&out, "http://127.0.0.1:1"); err != nil {
		t.Fatalf("cmdStop() error = %v", err)
	}
	if !strings.Contains(out.String(), "not running") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCmdStart_AlreadyRunning(t *testing.T) {
	url := startTestDaemon(t)

	var out bytes.Buffer
	if err := cmdStart(&out, url); err != nil {
		t.Fatalf("cmdStart() error = %v", err)
	}
	if !strings.Contains(out.String(), "already running") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.pid")
	os.WriteFile(good, []byte("4242\n"), 0644)
	if pid, err := readPID(good); err != nil || pid != 4242 {
		t.Errorf("readPID() = %d, %v, want 4242", pid, err)
	}

	bad := filepath.Join(dir, "bad.pid")
	os.WriteFile(bad, []byte("not-a-pid"), 0644)
	if _, err := readPID(bad); err == nil {
		t.Error("readPID() should fail on garbage")
	}

	if _, err := readPID(filepath.Join(dir, "missing.pid")); err == nil {
		t.Error("readPID() should fail on a missing file")
	}
}

func TestTailLog(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		var out bytes.Buffer
		if err := tailLog(&out, filepath.Join(dir, "none.log"), 4096); err != nil {
			t.Fatalf("tailLog() error = %v", err)
		}
		if !strings.Contains(out.String(), "No log file found") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("whole file", func(t *testing.T) {
		path := filepath.Join(dir, "small.log")
		os.WriteFile(path, []byte("one\ntwo\n"), 0644)

		var out bytes.Buffer
		if err := tailLog(&out, path, 4096); err != nil {
			t.Fatalf("tailLog() error = %v", err)
		}
		if out.String() != "one\ntwo\n" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("window skips partial line", func(t *testing.T) {
		path := filepath.Join(dir, "big.log")
		os.WriteFile(path, []byte("first line\nsecond line\nthird\n"), 0644)

		var out bytes.Buffer
		if err := tailLog(&out, path, 10); err != nil {
			t.Fatalf("tailLog() error = %v", err)
		}
		if out.String() != "third\n" {
			t.Errorf("output = %q, want only the last full line", out.String())
		}
	})
}
