package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMonitor_degradesOnlyAfterThreshold(t *testing.T) {
	m := New(Config{FailThreshold: 3, ProbeTimeout: time.Second}, zap.NewNop())

	failing := errors.New("connection refused")
	m.Register("ledger", func(context.Context) error { return failing })

	for i := 1; i <= 2; i++ {
		m.CheckAll(context.Background())
		if !m.Healthy() {
			t.Fatalf("degraded after %d failures, threshold is 3", i)
		}
	}

	m.CheckAll(context.Background())
	if m.Healthy() {
		t.Fatal("still healthy after hitting the failure threshold")
	}

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Name != "ledger" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap[0].ConsecutiveFails != 3 || snap[0].LastError == "" {
		t.Errorf("failure detail not recorded: %+v", snap[0])
	}
}

func TestMonitor_recovers(t *testing.T) {
	m := New(Config{FailThreshold: 1, ProbeTimeout: time.Second}, zap.NewNop())

	var err error = errors.New("down")
	m.Register("scoring", func(context.Context) error { return err })

	m.CheckAll(context.Background())
	if m.Healthy() {
		t.Fatal("expected unhealthy")
	}

	err = nil
	m.CheckAll(context.Background())
	if !m.Healthy() {
		t.Fatal("expected recovery after a clean probe")
	}

	snap := m.Snapshot()
	if snap[0].ConsecutiveFails != 0 || snap[0].LastError != "" {
		t.Errorf("recovery did not reset failure state: %+v", snap[0])
	}
}

func TestMonitor_oneBadDependencyDoesNotHideOthers(t *testing.T) {
	m := New(Config{FailThreshold: 1, ProbeTimeout: time.Second}, zap.NewNop())

	m.Register("database", func(context.Context) error { return nil })
	m.Register("ledger", func(context.Context) error { return errors.New("down") })

	m.CheckAll(context.Background())

	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	// Sorted by name: database first.
	if !snap[0].Healthy || snap[0].Name != "database" {
		t.Errorf("database should stay healthy: %+v", snap[0])
	}
	if snap[1].Healthy || snap[1].Name != "ledger" {
		t.Errorf("ledger should be degraded: %+v", snap[1])
	}
	if m.Healthy() {
		t.Error("overall health must reflect the degraded dependency")
	}
}

func TestMonitor_probeTimeoutCountsAsFailure(t *testing.T) {
	m := New(Config{FailThreshold: 1, ProbeTimeout: 10 * time.Millisecond}, zap.NewNop())

	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m.CheckAll(context.Background())
	if m.Healthy() {
		t.Fatal("a probe exceeding its timeout must count as a failure")
	}
}
