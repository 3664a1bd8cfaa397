package cycle

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"nexmotion-go/pkg/errors"
)

func TestManualStep(t *testing.T) {
	var ticks atomic.Int32
	var total time.Duration
	r := New(Config{Period: 2 * time.Millisecond, Manual: true}, func(dt time.Duration) {
		ticks.Add(1)
		total += dt
	})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	r.Step(5)
	if ticks.Load() != 5 {
		t.Errorf("expected 5 ticks, got %d", ticks.Load())
	}
	if total != 10*time.Millisecond {
		t.Errorf("expected 10ms of cycle time, got %v", total)
	}
	if r.Stats().Cycles != 5 {
		t.Errorf("expected 5 cycles in stats, got %d", r.Stats().Cycles)
	}
}

func TestPostRunsBeforeTick(t *testing.T) {
	var order []string
	r := New(Config{Manual: true}, func(time.Duration) { order = append(order, "tick") })
	if err := r.Post(func() {}); !errors.Is(err, errors.SystemNotReady) {
		t.Fatalf("Post before Start: %v", err)
	}
	r.Start()
	defer r.Stop()

	r.Post(func() { order = append(order, "posted") })
	r.Step(1)
	if len(order) != 2 || order[0] != "posted" || order[1] != "tick" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestPostQueueFull(t *testing.T) {
	r := New(Config{Manual: true, QueueSize: 2}, func(time.Duration) {})
	r.Start()
	defer r.Stop()

	r.Post(func() {})
	r.Post(func() {})
	if err := r.Post(func() {}); !errors.Is(err, errors.OperationBusy) {
		t.Errorf("expected OperationBusy, got %v", err)
	}
}

func TestRunnerGoroutine(t *testing.T) {
	var ticks atomic.Int32
	r := New(Config{Period: time.Millisecond, LockThread: true}, func(time.Duration) { ticks.Add(1) })
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	done := NewCompletion()
	r.Post(func() { done.Complete(nil) })
	if err := done.Wait(time.Second); err != nil {
		t.Fatalf("posted work did not run: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	r.Stop()
	n := ticks.Load()
	if n == 0 {
		t.Fatal("cycle did not tick")
	}
	time.Sleep(10 * time.Millisecond)
	if ticks.Load() != n {
		t.Error("cycle ticked after Stop")
	}
	if r.Running() {
		t.Error("expected stopped runner")
	}
}

func TestPinCPU(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("cpu affinity is linux only")
	}
	r := New(Config{Period: time.Millisecond, PinCPU: true, CPU: 0}, func(time.Duration) {})
	if err := r.Start(); err != nil {
		t.Skipf("affinity not permitted here: %v", err)
	}
	r.Stop()
}

func TestCompletion(t *testing.T) {
	c := NewCompletion()
	if c.Test() {
		t.Error("Completion should not be done yet")
	}
	want := errors.New(errors.OperationDenied, "denied")
	c.Complete(want)
	c.Complete(nil)
	if !c.Test() {
		t.Error("Completion should be done")
	}
	if err := c.Wait(Infinite); err != want {
		t.Errorf("expected first result, got %v", err)
	}
	if err := Completed(nil).Wait(0); err != nil {
		t.Errorf("Completed(nil) = %v", err)
	}
}

func TestCompletionWaitTimeout(t *testing.T) {
	c := NewCompletion()

	start := time.Now()
	err := c.Wait(50 * time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, errors.ProcessTimeout) {
		t.Errorf("expected ProcessTimeout, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("unexpected wait time: %v", elapsed)
	}
	if c.Test() {
		t.Error("timeout must not complete the request")
	}
}

func TestCompletionWaitInfinite(t *testing.T) {
	c := NewCompletion()
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Complete(nil)
	}()
	if err := c.Wait(Infinite); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
