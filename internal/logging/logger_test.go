package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"voxbind/internal/config"
)

func TestNewParsesLevelAndAddsSource(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "DEBUG"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger.WithField("session_id", "abc").Debug("session started")
	line := out.String()
	if !strings.Contains(line, "session started") || !strings.Contains(line, "session_id=abc") {
		t.Fatalf("unexpected log line: %q", line)
	}
	if !strings.Contains(line, "source=logger_test.go:") {
		t.Fatalf("expected source field, got %q", line)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	t.Parallel()

	logger, _, err := New(config.LogConfig{Level: "chatty"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxbind.log")
	var out bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("written to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "written to both") {
		t.Fatalf("expected file to hold log line, got %q", string(data))
	}
	if !strings.Contains(out.String(), "written to both") {
		t.Fatalf("expected stream to hold log line, got %q", out.String())
	}
}
