package consumer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/smazurov/camfeed/internal/process"
)

// Target selects where the byte stream goes. Command wins over Output.
type Target struct {
	// Command is a command line whose stdin receives the stream.
	Command string
	// Output is a file path, or "-" for stdout.
	Output string
}

// String describes the target for logs.
func (t Target) String() string {
	if t.Command != "" {
		return "command: " + t.Command
	}
	if t.Output == "-" {
		return "stdout"
	}
	return "file: " + t.Output
}

// OpenSink opens the writer for t. Failure here is fatal for the bridge.
func OpenSink(t Target, logger, processLogger *slog.Logger) (io.WriteCloser, error) {
	switch {
	case t.Command != "":
		p := process.New("consumer", t.Command, logger)
		p.SetLogParser(processLogger, process.ParserFor(t.Command))
		stdin, err := p.Start()
		if err != nil {
			return nil, fmt.Errorf("start consumer command: %w", err)
		}
		return &processSink{proc: p, stdin: stdin, logger: logger}, nil
	case t.Output == "-":
		return nopCloser{os.Stdout}, nil
	case t.Output != "":
		f, err := os.Create(t.Output)
		if err != nil {
			return nil, fmt.Errorf("open consumer output: %w", err)
		}
		return f, nil
	default:
		return nil, errors.New("no consumer command or output configured")
	}
}

type processSink struct {
	proc   *process.Process
	stdin  io.WriteCloser
	logger *slog.Logger
}

func (s *processSink) Write(p []byte) (int, error) {
	n, err := s.stdin.Write(p)
	if err != nil {
		select {
		case <-s.proc.Done():
			return n, fmt.Errorf("consumer process exited: %w", err)
		default:
		}
	}
	return n, err
}

func (s *processSink) Close() error {
	code, err := s.proc.Stop()
	if err != nil {
		return err
	}
	s.logger.Info("Consumer process stopped", "exit_code", code)
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
