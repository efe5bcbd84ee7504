package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/dipole/pkg/logger"
)

func TestGetAutoInit(t *testing.T) {
	l := logger.Get()
	if l == nil {
		t.Fatal("Get returned nil")
	}
	// Logging must not panic.
	l.Info(context.Background(), "hello", logger.String("k", "v"), logger.Int("n", 1))
}

func TestNamed(t *testing.T) {
	l := logger.Named("trial")
	if l == nil {
		t.Fatal("Named returned nil")
	}
	l.Debug(context.Background(), "scoped message", logger.Uint64("seed", 42))
}

func TestSetLevelString(t *testing.T) {
	for _, level := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
		if err := logger.SetLevelString(level); err != nil {
			t.Errorf("SetLevelString(%q) = %v", level, err)
		}
	}
	if err := logger.SetLevelString("verbose"); err == nil {
		t.Error("SetLevelString accepted an unknown level")
	}
}

func TestErrorField(t *testing.T) {
	f := logger.Error(errors.New("boom"))
	if f.Key != "error" {
		t.Fatalf("Error field key = %q", f.Key)
	}
}
