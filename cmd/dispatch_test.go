package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JPM1118/shipsbell/internal/deferred"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogDispatchStart_CountFailureLogged(t *testing.T) {
	store, err := deferred.New(filepath.Join(t.TempDir(), "bells.db"))
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	logDispatchStart(context.Background(), store, zap.New(core))

	warns := logs.FilterMessage("count pending deferred bells").FilterLevelExact(zapcore.WarnLevel)
	if warns.Len() != 1 {
		t.Errorf("expected one warning for the failed count, got %d", warns.Len())
	}
	if logs.FilterMessage("dispatcher started").Len() != 1 {
		t.Error("dispatcher start should still be logged")
	}
}

func TestLogDispatchStart_ReportsPending(t *testing.T) {
	store, err := deferred.New(filepath.Join(t.TempDir(), "bells.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	logDispatchStart(context.Background(), store, zap.New(core))

	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 0 {
		t.Error("no warning expected for an open store")
	}
	started := logs.FilterMessage("dispatcher started").All()
	if len(started) != 1 {
		t.Fatalf("expected one start entry, got %d", len(started))
	}
	if got := started[0].ContextMap()["pending"]; got != int64(0) {
		t.Errorf("pending = %v, want 0", got)
	}
}
