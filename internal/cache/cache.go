package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Policy selects what a write does when the cache has no room left.
type Policy string

// Overflow policies.
const (
	PolicyOverwrite Policy = "overwrite" // discard the oldest bytes, never block
	PolicyBlock     Policy = "block"     // wait for the reader to free space
)

const (
	// DefaultCapacity is the cache size used when none is configured (10 MiB).
	DefaultCapacity = 10 * 1024 * 1024
	// MaxCapacity bounds the allocation made at construction.
	MaxCapacity = 1 << 30
)

var (
	// ErrClosed is returned by every operation once Close has been called,
	// including operations that were blocked when the cache was closed.
	ErrClosed = errors.New("cache closed")
	// ErrInvalidCapacity is returned by New for a non-positive or oversized capacity.
	ErrInvalidCapacity = errors.New("invalid cache capacity")
	// ErrInvalidPolicy is returned for an unknown overflow policy.
	ErrInvalidPolicy = errors.New("invalid overflow policy")
)

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
	Policy    Policy `json:"policy"`
	Closed    bool   `json:"closed"`
	Written   uint64 `json:"written_bytes"`
	Read      uint64 `json:"read_bytes"`
	Dropped   uint64 `json:"dropped_bytes"`
}

// Cache is a fixed-capacity byte ring shared by one producer and one consumer.
//
// Bytes come out of Read in exactly the order they went into Write. The
// cursors and the occupied length are guarded by a single mutex; blocked
// callers are woken through one-slot signal channels and the done channel
// closed by Close.
type Cache struct {
	mu     sync.Mutex
	buf    []byte
	size   int
	rPos   int
	wPos   int
	count  int
	policy Policy
	closed bool

	done    chan struct{}
	dataCh  chan struct{} // signalled after a write
	spaceCh chan struct{} // signalled after a read

	written uint64
	read    uint64
	dropped uint64
}

// New allocates a cache with the given capacity in bytes.
func New(capacity int, policy Policy) (*Cache, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if policy == "" {
		policy = PolicyOverwrite
	}
	if policy != PolicyOverwrite && policy != PolicyBlock {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}

	return &Cache{
		buf:     make([]byte, capacity),
		size:    capacity,
		policy:  policy,
		done:    make(chan struct{}),
		dataCh:  make(chan struct{}, 1),
		spaceCh: make(chan struct{}, 1),
	}, nil
}

// ParsePolicy converts a configuration string into a Policy.
// An empty string selects PolicyOverwrite.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyBlock:
		return PolicyBlock, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Write appends p to the cache.
//
// With PolicyOverwrite it never blocks: when p does not fit, the oldest
// buffered bytes are discarded and their count is returned as dropped. If p
// alone is larger than the capacity only its newest bytes are kept.
// With PolicyBlock it waits until the reader has freed enough space and
// dropped is always zero.
func (c *Cache) Write(p []byte) (dropped int, err error) {
	return c.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context bounding the wait under PolicyBlock.
// Cancellation returns the context error, which is distinct from ErrClosed.
func (c *Cache) WriteContext(ctx context.Context, p []byte) (dropped int, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	if c.policy == PolicyOverwrite {
		dropped = c.overwrite(p)
		c.mu.Unlock()
		if len(p) > 0 {
			signal(c.dataCh)
		}
		return dropped, nil
	}
	c.mu.Unlock()

	return 0, c.writeBlocking(ctx, p)
}

// overwrite stores p, discarding the oldest bytes as needed. Caller must hold c.mu.
func (c *Cache) overwrite(p []byte) int {
	dropped := 0
	c.written += uint64(len(p))

	switch free := c.size - c.count; {
	case len(p) >= c.size:
		dropped = c.count + len(p) - c.size
		p = p[len(p)-c.size:]
		c.rPos, c.wPos, c.count = 0, 0, 0
	case len(p) > free:
		dropped = len(p) - free
		c.rPos = (c.rPos + dropped) % c.size
		c.count -= dropped
	}

	c.put(p)
	c.dropped += uint64(dropped)
	return dropped
}

func (c *Cache) writeBlocking(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if free := c.size - c.count; free > 0 {
			n := min(free, len(p))
			c.put(p[:n])
			c.written += uint64(n)
			p = p[n:]
			c.mu.Unlock()
			signal(c.dataCh)
			continue
		}
		c.mu.Unlock()

		select {
		case <-c.spaceCh:
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// put copies p at the write cursor. len(p) must not exceed the free space.
// Caller must hold c.mu.
func (c *Cache) put(p []byte) {
	if len(p) == 0 {
		return
	}
	n := copy(c.buf[c.wPos:], p)
	if n < len(p) {
		copy(c.buf, p[n:])
	}
	c.wPos = (c.wPos + len(p)) % c.size
	c.count += len(p)
}

// Read removes up to len(p) bytes from the cache into p. It blocks while the
// cache is empty and returns ErrClosed once the cache is closed.
func (c *Cache) Read(p []byte) (int, error) {
	return c.ReadContext(context.Background(), p)
}

// ReadContext is Read bounded by ctx. A cancelled wait consumes nothing and
// returns the context error.
func (c *Cache) ReadContext(ctx context.Context, p []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return 0, ErrClosed
		}
		if len(p) == 0 {
			c.mu.Unlock()
			return 0, nil
		}
		if c.count > 0 {
			n := c.take(p)
			c.read += uint64(n)
			c.mu.Unlock()
			signal(c.spaceCh)
			return n, nil
		}
		c.mu.Unlock()

		select {
		case <-c.dataCh:
		case <-c.done:
			return 0, ErrClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// take moves buffered bytes into p. Caller must hold c.mu.
func (c *Cache) take(p []byte) int {
	n := min(len(p), c.count)
	first := copy(p[:n], c.buf[c.rPos:])
	if first < n {
		copy(p[first:n], c.buf[:n-first])
	}
	c.rPos = (c.rPos + n) % c.size
	c.count -= n
	return n
}

// Available returns the number of buffered bytes without blocking.
func (c *Cache) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Capacity returns the fixed size of the cache.
func (c *Cache) Capacity() int {
	return c.size
}

// Policy returns the overflow policy chosen at construction.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Closed reports whether Close has been called.
func (c *Cache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity:  c.size,
		Available: c.count,
		Policy:    c.policy,
		Closed:    c.closed,
		Written:   c.written,
		Read:      c.read,
		Dropped:   c.dropped,
	}
}

// Close marks the cache closed, wakes every blocked reader and writer with
// ErrClosed and releases the storage. Calling Close more than once is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.buf = nil
	c.rPos, c.wPos, c.count = 0, 0, 0
	close(c.done)
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
