// Package led drives a board status LED from the camera connection state.
package led

import (
	"log/slog"
	"os"
	"strings"
)

// Pattern is what the status LED shows.
type Pattern string

// Patterns.
const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// Controller sets the status LED.
type Controller interface {
	Set(p Pattern) error
	Name() string
}

const deviceTreeModelPath = "/proc/device-tree/model"

// statusLEDs maps a device tree model substring to the sysfs LED used for status.
var statusLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "sys_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a sysfs controller for name, or for the detected board's status
// LED when name is empty. Without a usable LED it returns a no-op controller.
func New(name string, logger *slog.Logger) Controller {
	if name == "" {
		model := detectBoard(deviceTreeModelPath)
		name = statusLEDFor(model)
		logger.Info("Detecting board for LED control", "board_model", model, "led", name)
	}
	if name == "" {
		logger.Info("No LED support detected, using no-op controller")
		return noop{logger: logger}
	}
	return newSysfs(sysfsLEDPath, name)
}

func statusLEDFor(model string) string {
	for _, b := range statusLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}

type noop struct {
	logger *slog.Logger
}

func (n noop) Set(p Pattern) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", p)
	return nil
}

func (noop) Name() string { return "none" }
