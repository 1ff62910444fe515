package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// #region scheduler-tests
func TestFire_RunsOnlyDueTasks(t *testing.T) {
	s := New()
	var ran []string
	s.After(t0, 2*time.Second, func() { ran = append(ran, "late") })
	s.After(t0, time.Second, func() { ran = append(ran, "early") })

	if n := s.Fire(t0.Add(500 * time.Millisecond)); n != 0 {
		t.Fatalf("expected nothing due, %d ran", n)
	}
	if n := s.Fire(t0.Add(time.Second)); n != 1 {
		t.Fatalf("expected 1 task at its due time, %d ran", n)
	}
	s.Fire(t0.Add(5 * time.Second))
	if len(ran) != 2 || ran[0] != "early" || ran[1] != "late" {
		t.Fatalf("unexpected order: %v", ran)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", s.Pending())
	}
}

func TestFire_TiesKeepSchedulingOrder(t *testing.T) {
	s := New()
	var ran []int
	for i := 0; i < 5; i++ {
		i := i
		s.After(t0, time.Second, func() { ran = append(ran, i) })
	}
	s.Fire(t0.Add(time.Second))
	for i, v := range ran {
		if v != i {
			t.Fatalf("expected scheduling order, got %v", ran)
		}
	}
}

func TestCancel(t *testing.T) {
	s := New()
	fired := false
	task := s.After(t0, time.Second, func() { fired = true })
	task.Cancel()

	s.Fire(t0.Add(time.Minute))
	if fired {
		t.Fatal("cancelled task fired")
	}
	if !task.Cancelled() || task.Fired() {
		t.Fatal("expected cancelled, not fired")
	}
}

func TestCancel_FromEarlierCallbackInSameBatch(t *testing.T) {
	s := New()
	var second *Task
	fired := false
	s.After(t0, time.Second, func() { second.Cancel() })
	second = s.After(t0, time.Second, func() { fired = true })

	s.Fire(t0.Add(time.Second))
	if fired {
		t.Fatal("task cancelled by an earlier callback must not run")
	}
}

func TestCancelAll(t *testing.T) {
	s := New()
	count := 0
	for i := 0; i < 3; i++ {
		s.After(t0, time.Duration(i)*time.Second, func() { count++ })
	}
	s.CancelAll()
	s.Fire(t0.Add(time.Hour))
	if count != 0 || s.Pending() != 0 {
		t.Fatalf("expected nothing to run, count=%d pending=%d", count, s.Pending())
	}
}

func TestFire_CallbackSchedulesForNextFire(t *testing.T) {
	s := New()
	count := 0
	s.After(t0, 0, func() {
		count++
		s.After(t0, 0, func() { count++ })
	})
	s.Fire(t0)
	if count != 1 {
		t.Fatalf("expected nested task to wait, count=%d", count)
	}
	s.Fire(t0)
	if count != 2 {
		t.Fatalf("expected nested task on next fire, count=%d", count)
	}
}

func TestNilTaskIsSafe(t *testing.T) {
	var task *Task
	task.Cancel()
	if task.Cancelled() || task.Fired() {
		t.Fatal("nil task should report nothing")
	}
}

// #endregion scheduler-tests

// #region async-tests
func TestAsync_CompletionRunsOnDrain(t *testing.T) {
	a := NewAsync()
	defer a.Close()

	var applied atomic.Bool
	a.Go(func(ctx context.Context) Done {
		return func(stale bool) {
			if stale {
				t.Error("completion should not be stale")
			}
			applied.Store(true)
		}
	})

	if err := a.Settle(context.Background()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !applied.Load() {
		t.Fatal("expected completion to be applied")
	}
}

func TestAsync_NothingAppliedWithoutDrain(t *testing.T) {
	a := NewAsync()
	defer a.Close()

	finished := make(chan struct{})
	applied := false
	a.Go(func(ctx context.Context) Done {
		defer close(finished)
		return func(bool) { applied = true }
	})
	<-finished
	if applied {
		t.Fatal("completion ran off the loop")
	}
	select {
	case <-a.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected ready signal")
	}
	if a.Drain() != 1 || !applied {
		t.Fatal("expected Drain to apply the completion")
	}
}

func TestAsync_ResetMarksStaleAndCancels(t *testing.T) {
	a := NewAsync()
	defer a.Close()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	var staleSeen atomic.Bool
	a.Go(func(ctx context.Context) Done {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return func(stale bool) { staleSeen.Store(stale) }
	})
	<-started
	a.Reset()

	if err := a.Settle(context.Background()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !sawCancel.Load() {
		t.Fatal("work did not observe cancellation")
	}
	if !staleSeen.Load() {
		t.Fatal("completion after Reset must be stale")
	}
}

func TestAsync_SettleFollowsChainedWork(t *testing.T) {
	a := NewAsync()
	defer a.Close()

	steps := 0
	var step func(ctx context.Context) Done
	step = func(ctx context.Context) Done {
		return func(bool) {
			steps++
			if steps < 3 {
				a.Go(step)
			}
		}
	}
	a.Go(step)

	if err := a.Settle(context.Background()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if steps != 3 {
		t.Fatalf("expected 3 chained steps, got %d", steps)
	}
}

func TestAsync_SettleHonoursContext(t *testing.T) {
	a := NewAsync()
	block := make(chan struct{})
	a.Go(func(ctx context.Context) Done {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Settle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
	a.Close()
}

// #endregion async-tests
