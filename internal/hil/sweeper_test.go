package hil

import (
	"context"
	"testing"
	"time"

	"handoff/internal/logging"
)

func TestSweeperExpiresOverdueTasks(t *testing.T) {
	registry := NewRegistry(logging.Nop())
	sweeper := NewSweeper(registry, 100*time.Millisecond, logging.Nop())
	if err := sweeper.Start(); err != nil {
		t.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	if err := registry.Create("HIL-timeout", "ctx", "never resolved", time.Second); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if err := registry.Create("HIL-unbounded", "ctx", "waits forever", 0); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		task, err := registry.Get("HIL-timeout")
		if err != nil {
			t.Fatalf("Failed to get task: %v", err)
		}
		if task.Status == StatusTimeout {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Task not expired within tolerance, status=%s", task.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// A task without its own timeout is never swept.
	task, err := registry.Get("HIL-unbounded")
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if task.Status != StatusWaiting {
		t.Errorf("Unbounded task should still be waiting, got %s", task.Status)
	}
}

func TestSweeperWakesBlockedWaiter(t *testing.T) {
	registry := NewRegistry(logging.Nop())
	sweeper := NewSweeper(registry, 100*time.Millisecond, logging.Nop())
	if err := sweeper.Start(); err != nil {
		t.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	if err := registry.Create("HIL-1", "ctx", "expires", 500*time.Millisecond); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	done := make(chan Task, 1)
	go func() {
		task, err := registry.Await(context.Background(), "HIL-1", 0)
		if err != nil {
			t.Errorf("Await returned error: %v", err)
		}
		done <- task
	}()

	select {
	case task := <-done:
		if task.Status != StatusTimeout {
			t.Errorf("Expected timeout status, got %s", task.Status)
		}
		if task.Result != "" || task.Reason != "" {
			t.Errorf("Timeout must carry no result/reason, got result=%q reason=%q", task.Result, task.Reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Sweeper did not wake the blocked waiter")
	}
}

func TestSweeperLosesRaceToComplete(t *testing.T) {
	registry := NewRegistry(logging.Nop())

	if err := registry.Create("HIL-1", "ctx", "resolved first", time.Hour); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if err := registry.Complete("HIL-1", "beat the clock"); err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}

	// A sweep after resolution must not flip the terminal state.
	expired := registry.expireOverdue(time.Now().Add(2 * time.Hour))
	for _, id := range expired {
		if id == "HIL-1" {
			t.Fatal("Sweeper expired an already-completed task")
		}
	}

	task, _ := registry.Get("HIL-1")
	if task.Status != StatusCompleted || task.Result != "beat the clock" {
		t.Errorf("Terminal state was disturbed: %+v", task)
	}
}
