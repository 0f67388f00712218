package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrNotStarted is returned when stopping a process that was never started.
var ErrNotStarted = errors.New("process not started")

// LogParser parses an output line and returns its log level and message.
type LogParser func(line string) (level, msg string)

// Process manages the lifecycle of one subprocess fed through stdin.
type Process struct {
	id              string
	command         string
	logger          *slog.Logger
	processLogger   *slog.Logger
	logParser       LogParser
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	done       chan struct{}
	outputDone chan struct{}
	exitErr    error
}

// New creates a process for command. Nothing runs until Start.
func New(id, command string, logger *slog.Logger) *Process {
	return &Process{
		id:              id,
		command:         command,
		logger:          logger.With("process_id", id),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		done:            make(chan struct{}),
	}
}

// Command returns the command line.
func (p *Process) Command() string {
	return p.command
}

// SetLogParser sets the logger used for child output and the parser that
// extracts levels from it.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetTimeouts overrides the graceful stop and kill timeouts.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Start launches the subprocess and returns a writer connected to its stdin.
func (p *Process) Start() (io.WriteCloser, error) {
	args, err := parseCommand(p.command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, fmt.Errorf("process %s already started", p.id)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	p.cmd = cmd
	p.stdin = stdin
	p.logger.Info("Process started", "pid", cmd.Process.Pid, "command", p.command)

	p.outputDone = make(chan struct{}, 2)
	go p.streamOutput(stdout, "stdout")
	go p.streamOutput(stderr, "stderr")

	go func() {
		// Output pipes must be drained before Wait closes them.
		<-p.outputDone
		<-p.outputDone
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		p.logger.Info("Process exited", "exit_code", exitCodeFromError(err))
		close(p.done)
	}()

	return stdin, nil
}

// PID returns the process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the subprocess has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait error after Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop closes stdin, sends SIGINT and waits for the process to exit,
// force-killing it after the graceful timeout. It returns the exit code,
// 137 when the process had to be killed.
func (p *Process) Stop() (int, error) {
	p.mu.Lock()
	cmd, stdin := p.cmd, p.stdin
	p.mu.Unlock()
	if cmd == nil {
		return 0, ErrNotStarted
	}

	select {
	case <-p.done:
		return exitCodeFromError(p.Err()), nil
	default:
	}

	_ = stdin.Close()
	p.logger.Info("Sending SIGINT to process", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
	return p.waitForExit(cmd), nil
}

func (p *Process) waitForExit(cmd *exec.Cmd) int {
	select {
	case <-p.done:
		return exitCodeFromError(p.Err())
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	// Kill the whole group so helpers spawned by a shell die too.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process", "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return 137
}

// exitCodeFromError returns 0 for nil, the exit code for an ExitError, and 1
// for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	defer func() { p.outputDone <- struct{}{} }()

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}
	logger = logger.With("source", source)

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		level, msg := "info", scanner.Text()
		if p.logParser != nil {
			level, msg = p.logParser(msg)
		}

		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning", "warn":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		case "quiet":
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseCommand splits a command line into arguments, honouring single and
// double quotes and backslash escapes.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	return args, nil
}
