// Package connection owns the camera session lifecycle: connect, stream,
// offline detection and retry with a fixed backoff.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/smazurov/camfeed/internal/cache"
	"github.com/smazurov/camfeed/internal/camera"
	"github.com/smazurov/camfeed/internal/events"
	"github.com/smazurov/camfeed/internal/metrics"
	"github.com/smazurov/camfeed/internal/session"
)

// DefaultBackoff is the delay between failed connect attempts.
const DefaultBackoff = 30 * time.Second

// ErrShutdown is returned by RequestReconnect once shutdown has begun.
var ErrShutdown = errors.New("connection manager shutting down")

// State is a connection manager state.
type State string

// Manager states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateShuttingDown State = "shutting_down"
)

// States lists every state, for metrics.
var States = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateShuttingDown),
}

// Params are the connect parameters for the camera.
type Params struct {
	ID       string
	Username string
	Password string
}

// Options configures a Manager.
type Options struct {
	Session *session.Session
	Factory camera.Factory
	Params  Params
	Backoff time.Duration
	Clock   clock.Clock
	Bus     *events.Bus
	Logger  *slog.Logger
	// OnStateChange is called on the manager goroutine after every transition.
	OnStateChange func(from, to State)
	// OnBackoff is called when a backoff wait starts.
	OnBackoff func(d time.Duration)
}

// Stats are the manager counters.
type Stats struct {
	State               State  `json:"state"`
	Attempts            uint64 `json:"attempts"`
	Failures            uint64 `json:"failures"`
	Reconnects          uint64 `json:"reconnects"`
	ConsecutiveFailures uint64 `json:"consecutive_failures"`
}

// Manager runs the connect, stream and retry loop for one camera.
type Manager struct {
	session *session.Session
	factory camera.Factory
	backoff time.Duration
	clock   clock.Clock
	bus     *events.Bus
	logger  *slog.Logger

	onStateChange func(from, to State)
	onBackoff     func(time.Duration)

	mu     sync.Mutex
	state  State
	params Params

	reconnectCh chan Params

	// Owned by the Run goroutine.
	cam     camera.Camera
	offline chan error

	attempts    atomic.Uint64
	failures    atomic.Uint64
	reconnects  atomic.Uint64
	consecutive atomic.Uint64
	stopped     atomic.Bool
}

// New validates opts and creates a manager in the disconnected state.
func New(opts Options) (*Manager, error) {
	if opts.Session == nil || opts.Session.Cache == nil {
		return nil, errors.New("connection manager needs a session with a cache")
	}
	if opts.Factory == nil {
		return nil, errors.New("connection manager needs a camera factory")
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Params.ID == "" {
		opts.Params.ID = opts.Session.CameraID
	}
	if opts.Params.Username == "" && opts.Params.Password == "" {
		opts.Params.Username = camera.DefaultUsername
		opts.Params.Password = camera.DefaultPassword
	}

	return &Manager{
		session:       opts.Session,
		factory:       opts.Factory,
		backoff:       opts.Backoff,
		clock:         opts.Clock,
		bus:           opts.Bus,
		logger:        opts.Logger.With("camera_id", opts.Params.ID),
		onStateChange: opts.OnStateChange,
		onBackoff:     opts.OnBackoff,
		state:         StateDisconnected,
		params:        opts.Params,
		reconnectCh:   make(chan Params, 1),
	}, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Params returns the connect parameters in use.
func (m *Manager) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:               m.State(),
		Attempts:            m.attempts.Load(),
		Failures:            m.failures.Load(),
		Reconnects:          m.reconnects.Load(),
		ConsecutiveFailures: m.consecutive.Load(),
	}
}

// RequestReconnect asks the manager to drop the current session and connect
// again with p. A zero p keeps the current parameters. It never blocks;
// pending requests are coalesced and the latest wins. A request made during
// a backoff wait ends the wait.
func (m *Manager) RequestReconnect(p Params) error {
	if m.stopped.Load() || m.shutdownRequested() {
		return ErrShutdown
	}
	if p == (Params{}) {
		p = m.Params()
	}

	for {
		select {
		case m.reconnectCh <- p:
			return nil
		default:
		}
		select {
		case <-m.reconnectCh:
		default:
		}
	}
}

// Run drives the state machine until ctx is cancelled or shutdown is
// requested on the session's coordinator, then disconnects the camera and
// closes the cache. Connect failures are retried indefinitely.
func (m *Manager) Run(ctx context.Context) error {
	defer m.stopped.Store(true)

	state := StateDisconnected
	retry := false
	for {
		switch state {
		case StateDisconnected:
			if m.stopping(ctx) {
				state = m.transition(StateShuttingDown)
				continue
			}
			if retry && !m.wait(ctx) {
				state = m.transition(StateShuttingDown)
				continue
			}
			retry = false
			state = m.transition(StateConnecting)

		case StateConnecting:
			if m.stopping(ctx) {
				state = m.transition(StateShuttingDown)
				continue
			}
			if err := m.connect(ctx); err != nil {
				m.recordFailure(err)
				retry = true
				state = m.transition(StateDisconnected)
				continue
			}
			state = m.transition(StateConnected)

		case StateConnected:
			state = m.transition(m.awaitSessionEnd(ctx))

		case StateShuttingDown:
			m.teardown()
			return nil
		}
	}
}

func (m *Manager) transition(to State) State {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from == to {
		return to
	}

	m.logger.Debug("Connection state changed", "from", from, "to", to)
	metrics.SetConnectionState(m.session.CameraID, string(to), States)
	m.bus.Publish(events.ConnectionStateChangedEvent{
		CameraID:  m.session.CameraID,
		From:      string(from),
		To:        string(to),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if m.onStateChange != nil {
		m.onStateChange(from, to)
	}
	return to
}

func (m *Manager) shutdownRequested() bool {
	return m.session.Shutdown != nil && m.session.Shutdown.Requested()
}

func (m *Manager) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || m.shutdownRequested()
}

func (m *Manager) shutdownDone() <-chan struct{} {
	if m.session.Shutdown == nil {
		return nil
	}
	return m.session.Shutdown.Done()
}

// wait sleeps for the backoff. It returns false if shutdown interrupted it.
func (m *Manager) wait(ctx context.Context) bool {
	timer := m.clock.Timer(m.backoff)
	defer timer.Stop()
	if m.onBackoff != nil {
		m.onBackoff(m.backoff)
	}

	select {
	case <-timer.C:
	case p := <-m.reconnectCh:
		m.setParams(p)
		m.logger.Info("Reconnect requested during backoff")
	case <-ctx.Done():
		return false
	case <-m.shutdownDone():
		return false
	}
	return !m.stopping(ctx)
}

func (m *Manager) setParams(p Params) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p
}

// connect performs one connect attempt and starts frame delivery.
func (m *Manager) connect(ctx context.Context) error {
	attempt := m.attempts.Add(1)
	p := m.Params()
	m.logger.Info("Connecting to camera", "attempt", attempt)

	cam, err := m.factory(p.ID)
	if err != nil {
		m.session.SetStatus(camera.StatusFailed)
		return fmt.Errorf("create camera: %w", err)
	}

	offline := make(chan error, 1)
	err = cam.Connect(ctx, camera.ConnectParams{
		ID:       p.ID,
		Username: p.Username,
		Password: p.Password,
		OnDiscover: func(d camera.Discovery) {
			m.logger.Info("Camera discovered", "codec", d.Codec, "detail", d.Detail)
			m.bus.Publish(events.CameraDiscoveredEvent{
				CameraID:  d.CameraID,
				Codec:     d.Codec,
				Detail:    d.Detail,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		},
		OnConnect: m.session.SetStatus,
		OnOffline: func(reason error) {
			select {
			case offline <- reason:
			default:
			}
		},
	})
	if err != nil {
		var ce *camera.ConnectError
		if !errors.As(err, &ce) {
			m.session.SetStatus(camera.StatusFailed)
		}
		return multierr.Append(err, cam.Disconnect())
	}

	if err := cam.StartReceiving(func(f camera.Frame) { m.handleFrame(ctx, f) }); err != nil {
		m.session.SetStatus(camera.StatusFailed)
		return multierr.Append(fmt.Errorf("start receiving: %w", err), cam.Disconnect())
	}

	m.cam = cam
	m.offline = offline
	m.consecutive.Store(0)
	m.session.SetOffline(false)
	metrics.RecordConnectAttempt(m.session.CameraID, true)
	m.logger.Info("Camera connected", "attempt", attempt)
	m.bus.Publish(events.CameraConnectedEvent{
		CameraID:  m.session.CameraID,
		Attempt:   attempt,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

func (m *Manager) recordFailure(err error) {
	m.failures.Add(1)
	m.consecutive.Add(1)
	status := m.session.Status()
	metrics.RecordConnectAttempt(m.session.CameraID, false)
	m.logger.Error("Camera connect failed",
		"error", err,
		"status", status,
		"consecutive_failures", m.consecutive.Load(),
		"retry_after", m.backoff)
	m.bus.Publish(events.CameraConnectFailedEvent{
		CameraID:   m.session.CameraID,
		Status:     status,
		Error:      err.Error(),
		RetryAfter: m.backoff.String(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// handleFrame runs on the camera goroutine.
func (m *Manager) handleFrame(ctx context.Context, f camera.Frame) {
	c := m.session.Cache
	dropped, err := c.WriteContext(ctx, f.Data)
	if err != nil {
		if !errors.Is(err, cache.ErrClosed) && !errors.Is(err, context.Canceled) {
			m.logger.Warn("Cache write failed", "error", err)
		}
		return
	}
	if dropped > 0 {
		m.logger.Debug("Cache overflow, dropped oldest bytes", "dropped", dropped)
	}

	m.session.RecordFrame(session.Frame{Size: len(f.Data), PTS: f.PTS, KeyFrame: f.KeyFrame})
	metrics.RecordFrame(m.session.CameraID, f.KeyFrame)
	metrics.RecordCacheWrite(m.session.CameraID, len(f.Data), dropped, c.Available())
}

// awaitSessionEnd blocks until the camera goes offline, a reconnect is
// requested or shutdown begins, and returns the next state.
func (m *Manager) awaitSessionEnd(ctx context.Context) State {
	select {
	case reason := <-m.offline:
		m.session.SetOffline(true)
		m.reconnects.Add(1)
		metrics.RecordOffline(m.session.CameraID)
		reasonText := ""
		if reason != nil {
			reasonText = reason.Error()
		}
		m.logger.Warn("Camera went offline", "reason", reasonText)
		m.bus.Publish(events.CameraOfflineEvent{
			CameraID:  m.session.CameraID,
			Reason:    reasonText,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		m.release()
		return StateDisconnected

	case p := <-m.reconnectCh:
		m.setParams(p)
		m.reconnects.Add(1)
		m.logger.Info("Reconnect requested")
		m.release()
		m.session.SetOffline(true)
		return StateDisconnected

	case <-ctx.Done():
		return StateShuttingDown
	case <-m.shutdownDone():
		return StateShuttingDown
	}
}

func (m *Manager) release() {
	if m.cam == nil {
		return
	}
	if err := m.cam.Disconnect(); err != nil {
		m.logger.Warn("Camera disconnect failed", "error", err)
	}
	m.cam = nil
	m.offline = nil
}

// teardown disconnects the camera and closes the cache.
func (m *Manager) teardown() {
	var err error
	if m.cam != nil {
		err = multierr.Append(err, m.cam.Disconnect())
		m.cam = nil
	}
	m.session.SetOffline(true)
	err = multierr.Append(err, m.session.Cache.Close())
	if err != nil {
		m.logger.Warn("Connection teardown incomplete", "error", err)
	} else {
		m.logger.Info("Connection manager stopped")
	}
}
