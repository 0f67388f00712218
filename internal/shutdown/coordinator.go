// Package shutdown implements process-wide cooperative cancellation.
//
// A Coordinator holds one atomic flag. The first call to Shutdown sets it
// and then wakes every registered blocking point in a fixed stage order:
// the cache first, so blocked reads and writes return, then the retry
// loop, then the consumer. Components poll Requested at loop boundaries
// and select on Context(stage).Done() while blocked.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Stage orders the wake-up of blocking points during shutdown.
type Stage int

// Shutdown stages, run in declaration order.
const (
	StageCache Stage = iota
	StageRetry
	StageConsumer
	numStages
)

func (s Stage) String() string {
	switch s {
	case StageCache:
		return "cache"
	case StageRetry:
		return "retry"
	case StageConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// Coordinator owns the shutdown flag and the per-stage wake hooks.
type Coordinator struct {
	requested atomic.Bool
	logger    *slog.Logger

	mu      sync.Mutex
	hooks   [numStages][]func()
	ctxs    [numStages]context.Context
	cancels [numStages]context.CancelFunc
	reason  string

	done chan struct{}
}

// New creates a coordinator. A nil logger discards output.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Coordinator{
		logger: logger,
		done:   make(chan struct{}),
	}
	for i := range c.ctxs {
		c.ctxs[i], c.cancels[i] = context.WithCancel(context.Background())
	}
	return c
}

// Requested reports whether Shutdown has been called.
func (c *Coordinator) Requested() bool {
	return c.requested.Load()
}

// Context returns a context cancelled when stage runs.
func (c *Coordinator) Context(stage Stage) context.Context {
	return c.ctxs[stage]
}

// Done is closed after every stage has run.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Reason returns the reason passed to the first Shutdown call.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// OnShutdown registers fn to run when stage is reached. If shutdown has
// already completed, fn runs immediately.
func (c *Coordinator) OnShutdown(stage Stage, fn func()) {
	c.mu.Lock()
	if !c.requested.Load() {
		c.hooks[stage] = append(c.hooks[stage], fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	<-c.done
	fn()
}

// Shutdown sets the flag and runs the stages in order. Only the first call
// does anything; later calls return once the first has finished.
func (c *Coordinator) Shutdown(reason string) {
	c.mu.Lock()
	if !c.requested.CompareAndSwap(false, true) {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.reason = reason
	hooks := c.hooks
	c.mu.Unlock()

	c.logger.Info("Shutdown requested", "reason", reason)
	for stage := StageCache; stage < numStages; stage++ {
		c.logger.Debug("Running shutdown stage", "stage", stage.String(), "hooks", len(hooks[stage]))
		for _, fn := range hooks[stage] {
			fn()
		}
		c.cancels[stage]()
	}
	close(c.done)
}

// NotifyOnInterrupt triggers Shutdown on the first SIGINT. The returned
// function stops listening.
func (c *Coordinator) NotifyOnInterrupt() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Info("Signal received", "signal", sig.String())
			c.Shutdown("interrupt")
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
		})
	}
}
