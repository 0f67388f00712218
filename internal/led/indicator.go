package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camfeed/internal/events"
)

// Indicator follows ConnectionStateChangedEvent: blinking while the camera
// is being (re)connected, solid once connected, off at shutdown.
type Indicator struct {
	controller  Controller
	eventBus    *events.Bus
	logger      *slog.Logger
	unsubscribe func()

	mu      sync.Mutex
	current Pattern
}

// NewIndicator creates an indicator. Call Start to begin following events.
func NewIndicator(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Indicator {
	return &Indicator{controller: controller, eventBus: eventBus, logger: logger}
}

// Start sets the LED blinking and subscribes to state changes.
func (i *Indicator) Start() {
	i.apply(PatternBlink)
	i.unsubscribe = i.eventBus.Subscribe(func(e events.ConnectionStateChangedEvent) {
		i.apply(patternFor(e.To))
	})
	i.logger.Info("LED indicator started", "led", i.controller.Name())
}

// Stop unsubscribes and turns the LED off.
func (i *Indicator) Stop() {
	if i.unsubscribe != nil {
		i.unsubscribe()
	}
	i.apply(PatternOff)
}

// Pattern returns the pattern last applied.
func (i *Indicator) Pattern() Pattern {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

func (i *Indicator) apply(p Pattern) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p == i.current {
		return
	}
	if err := i.controller.Set(p); err != nil {
		i.logger.Warn("Failed to set LED", "pattern", p, "error", err)
		return
	}
	i.current = p
}

func patternFor(state string) Pattern {
	switch state {
	case "connected":
		return PatternSolid
	case "shutting_down":
		return PatternOff
	default:
		return PatternBlink
	}
}
