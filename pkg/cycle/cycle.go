// Fixed-rate control cycle
//
// A Runner calls its tick function once per period on a dedicated
// goroutine. Work posted from other goroutines runs on the cycle goroutine
// right before the next tick. In manual mode no goroutine is started and
// the owner advances the cycle with Step, which makes device behavior
// deterministic in tests.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cycle

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"nexmotion-go/pkg/errors"
	"nexmotion-go/pkg/log"
)

// TickFunc advances the device by dt.
type TickFunc func(dt time.Duration)

// Config configures a Runner.
type Config struct {
	// Period is the cycle time. Default 1ms.
	Period time.Duration

	// PinCPU binds the cycle thread to CPU.
	PinCPU bool
	CPU    int

	// LockThread locks the cycle goroutine to its OS thread. It is implied
	// by PinCPU.
	LockThread bool

	// Manual disables the goroutine; call Step to advance.
	Manual bool

	// QueueSize bounds the posted work queue. Default 1024.
	QueueSize int
}

// Stats reports cycle timing.
type Stats struct {
	Cycles       uint64
	Overruns     uint64
	LastDuration time.Duration
	MaxDuration  time.Duration
}

// Runner drives a TickFunc at a fixed rate.
type Runner struct {
	cfg    Config
	tick   TickFunc
	logger *log.Logger

	posted chan func()

	// serializes ticks between Step and the goroutine
	stepMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	cycles   atomic.Uint64
	overruns atomic.Uint64
	lastDur  atomic.Int64
	maxDur   atomic.Int64

	onOverrun func(d time.Duration)
}

// New creates a Runner. It does not start the cycle.
func New(cfg Config, tick TickFunc) *Runner {
	if cfg.Period <= 0 {
		cfg.Period = time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Runner{
		cfg:    cfg,
		tick:   tick,
		logger: log.GetLogger("cycle"),
		posted: make(chan func(), cfg.QueueSize),
	}
}

// SetLogger replaces the runner logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// OnOverrun registers a callback invoked from the cycle goroutine when a
// tick takes longer than the period.
func (r *Runner) OnOverrun(fn func(d time.Duration)) {
	r.onOverrun = fn
}

// Period returns the cycle time.
func (r *Runner) Period() time.Duration {
	return r.cfg.Period
}

// Manual reports whether the runner is stepped by its owner.
func (r *Runner) Manual() bool {
	return r.cfg.Manual
}

// Running reports whether the cycle is started.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Start starts the cycle goroutine. It is a no-op when already running.
func (r *Runner) Start() error {
	if r.running.Swap(true) {
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if r.cfg.Manual {
		return nil
	}

	started := make(chan error, 1)
	r.wg.Add(1)
	go r.loop(started)
	if err := <-started; err != nil {
		r.Stop()
		return err
	}
	return nil
}

// Stop stops the cycle goroutine and waits for it to exit. Posted work
// that has not run yet is discarded.
func (r *Runner) Stop() {
	if !r.running.Swap(false) {
		return
	}
	r.cancel()
	r.wg.Wait()
	for {
		select {
		case <-r.posted:
		default:
			return
		}
	}
}

// Post schedules fn on the cycle goroutine before the next tick. It
// never blocks; a full queue returns OperationBusy.
func (r *Runner) Post(fn func()) error {
	if !r.running.Load() {
		return errors.New(errors.SystemNotReady, "control cycle is not running")
	}
	select {
	case r.posted <- fn:
		return nil
	default:
		return errors.Busy("control cycle queue full")
	}
}

// Step runs n cycles synchronously. It is meant for manual mode but also
// works while stopped, e.g. to settle a device during shutdown.
func (r *Runner) Step(n int) {
	for i := 0; i < n; i++ {
		r.runOnce()
	}
}

func (r *Runner) loop(started chan<- error) {
	defer r.wg.Done()

	if r.cfg.LockThread || r.cfg.PinCPU {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	if r.cfg.PinCPU {
		if err := pinThread(r.cfg.CPU); err != nil {
			started <- errors.Wrap(err, errors.OutOfSystemResources, "pin control cycle")
			return
		}
		r.logger.Info("control cycle pinned to cpu %d", r.cfg.CPU)
	}
	started <- nil

	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runOnce()
		}
	}
}

func (r *Runner) runOnce() {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	for drained := false; !drained; {
		select {
		case fn := <-r.posted:
			fn()
		default:
			drained = true
		}
	}

	start := time.Now()
	r.tick(r.cfg.Period)
	d := time.Since(start)

	r.cycles.Add(1)
	r.lastDur.Store(int64(d))
	if int64(d) > r.maxDur.Load() {
		r.maxDur.Store(int64(d))
	}
	if d > r.cfg.Period && !r.cfg.Manual {
		if r.overruns.Add(1) == 1 {
			r.logger.Warn("control cycle overrun: %v > %v", d, r.cfg.Period)
		}
		if r.onOverrun != nil {
			r.onOverrun(d)
		}
	}
}

// Stats returns the cycle timing counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Cycles:       r.cycles.Load(),
		Overruns:     r.overruns.Load(),
		LastDuration: time.Duration(r.lastDur.Load()),
		MaxDuration:  time.Duration(r.maxDur.Load()),
	}
}
