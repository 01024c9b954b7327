package logger

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Level(t *testing.T) {
	log, err := New("debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level should be enabled")
	}

	log, err = New("chatty")
	if err != nil {
		t.Fatalf("New with unknown level: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) || !log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("unknown level should fall back to info")
	}
}

func TestWatermillAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewWatermillAdapter(zap.New(core)).With(watermill.LogFields{"topic": "ride-events"})

	adapter.Info("subscribed", watermill.LogFields{"consumer": "a"})
	adapter.Trace("tick", nil)
	adapter.Error("publish failed", errors.New("boom"), nil)

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	info := entries[0].ContextMap()
	if info["topic"] != "ride-events" || info["consumer"] != "a" {
		t.Errorf("expected inherited and call fields, got %v", info)
	}
	if entries[0].LoggerName != "watermill" {
		t.Errorf("expected named logger, got %q", entries[0].LoggerName)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Errorf("trace should log at debug, got %s", entries[1].Level)
	}
	if entries[2].Level != zapcore.ErrorLevel || entries[2].ContextMap()["error"] != "boom" {
		t.Errorf("unexpected error entry: %+v", entries[2])
	}
}
