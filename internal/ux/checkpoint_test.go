package ux

import (
	"context"
	"testing"
	"time"
)

func TestAskCheckpoint_ContextDoneCallsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := make(chan struct{}, 1)
	_, err := AskCheckpoint(ctx, "step_1", func() { called <- struct{}{} })
	if err == nil {
		t.Fatal("expected ctx.Err() to be returned")
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected onCancel to be called when ctx is already done")
	}
}

func TestAskCheckpoint_NilOnCancelIsSafe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := AskCheckpoint(ctx, "step_1", nil); err == nil {
		t.Fatal("expected ctx.Err() to be returned")
	}
}
