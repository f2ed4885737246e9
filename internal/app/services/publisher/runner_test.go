package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/app/storage/memory"
)

func TestRunnerRejectsBadSchedule(t *testing.T) {
	store := memory.New()
	runner := NewRunner(New(store, store, nil), nil)

	if err := runner.WithSchedule("not a cron spec"); err == nil {
		t.Fatalf("invalid schedule should be rejected")
	}
	if err := runner.WithSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestRunnerStartStop(t *testing.T) {
	store := memory.New()
	runner := NewRunner(New(store, store, nil), nil)

	ctx := context.Background()
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Start is idempotent while running.
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := runner.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
