package process

import (
	"path/filepath"
	"strings"
)

// ParserFor picks a LogParser from the executable name of command.
func ParserFor(command string) LogParser {
	args, err := parseCommand(command)
	if err != nil || len(args) == 0 {
		return nil
	}
	switch name := filepath.Base(args[0]); {
	case strings.HasPrefix(name, "ff"):
		return ParseFFmpegLevel
	case strings.HasPrefix(name, "gst-"):
		return ParseGStreamerLevel
	default:
		return nil
	}
}

// ParseFFmpegLevel extracts the level from ffmpeg-family output produced
// with -loglevel level+info, either "[info] msg" or
// "[component @ 0x...] [level] msg". The component prefix is kept.
func ParseFFmpegLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	if bracket := line[1:end]; isFFmpegLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			if next := rest[1:nextEnd]; isFFmpegLevel(next) {
				return next, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isFFmpegLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// ParseGStreamerLevel maps gst-launch output prefixes ("ERROR:",
// "WARNING:") to levels.
func ParseGStreamerLevel(line string) (level, msg string) {
	for _, p := range []struct{ prefix, level string }{
		{"ERROR: ", "error"},
		{"WARNING: ", "warning"},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.level, rest
		}
	}
	return "info", line
}
