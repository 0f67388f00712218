package process

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcess(command string) *Process {
	p := New("test", command, testLogger())
	p.SetTimeouts(500*time.Millisecond, 500*time.Millisecond)
	return p
}

func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

func TestStdinReachesProcess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	p := newTestProcess("sh -c 'cat > " + out + "'")

	stdin, err := p.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if p.PID() == 0 {
		t.Error("PID should be set after Start")
	}

	payload := []byte("\x00\x00\x00\x01frame-data")
	if _, err := stdin.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := stdin.Close(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p, 2*time.Second)

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestProcessExitsOnEOF(t *testing.T) {
	p := newTestProcess("cat")
	stdin, err := p.Start()
	if err != nil {
		t.Fatal(err)
	}
	if err := stdin.Close(); err != nil {
		t.Fatal(err)
	}

	waitDone(t, p, 2*time.Second)
	if p.Err() != nil {
		t.Errorf("expected clean exit, got %v", p.Err())
	}
	code, err := p.Stop()
	if err != nil || code != 0 {
		t.Errorf("Stop after exit = %d, %v", code, err)
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess(`sh -c "trap 'exit 0' INT; while :; do sleep 0.05; done"`)
	if _, err := p.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	code, err := p.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess(`sh -c "trap '' INT; sleep 10"`)
	p.SetTimeouts(50*time.Millisecond, time.Second)
	if _, err := p.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	code, err := p.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if code != 137 {
		t.Errorf("expected exit code 137, got %d", code)
	}
	waitDone(t, p, time.Second)
}

func TestStartFailures(t *testing.T) {
	tests := []string{"", "   ", `echo "unterminated`, "/nonexistent/binary-for-camfeed"}
	for _, cmd := range tests {
		if _, err := newTestProcess(cmd).Start(); err == nil {
			t.Errorf("Start(%q) should fail", cmd)
		}
	}
}

func TestStopBeforeStart(t *testing.T) {
	if _, err := newTestProcess("cat").Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(p))
	return len(p), nil
}

func (r *lineRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "")
}

func TestOutputIsParsedAndLogged(t *testing.T) {
	rec := &lineRecorder{}
	logger := slog.New(slog.NewTextHandler(rec, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := newTestProcess(`sh -c "echo '[error] decode failed' 1>&2; echo '[info] ready'"`)
	p.SetLogParser(logger, ParseFFmpegLevel)
	stdin, err := p.Start()
	if err != nil {
		t.Fatal(err)
	}
	stdin.Close()
	waitDone(t, p, 2*time.Second)

	out := rec.String()
	if !strings.Contains(out, `level=ERROR msg="decode failed" source=stderr`) {
		t.Errorf("stderr line not logged at error level:\n%s", out)
	}
	if !strings.Contains(out, `level=INFO msg=ready source=stdout`) {
		t.Errorf("stdout line not logged at info level:\n%s", out)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ffplay -f hevc -", []string{"ffplay", "-f", "hevc", "-"}},
		{`sh -c "cat > out"`, []string{"sh", "-c", "cat > out"}},
		{`echo 'it"s'`, []string{"echo", `it"s`}},
		{`a\ b c`, []string{"a b", "c"}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.in)
		if err != nil {
			t.Errorf("parseCommand(%q) error: %v", tt.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("parseCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
