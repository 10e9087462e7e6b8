//go:build integration

package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/schaermu/sitesync/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// fakeRsync records its arguments, one invocation per line, and exits with
// $FAKE_RSYNC_EXIT. While the slow marker file exists it hangs until killed.
const fakeRsync = `echo "$(date -u +%%Y-%%m-%%dT%%H:%%M:%%SZ) $*" >> %q
if [ -f %q ]; then exec sleep 60; fi
echo "sent 0 bytes  received 0 bytes"
exit ${FAKE_RSYNC_EXIT:-0}
`

// Harness builds the sitesync binary and runs it against a temporary
// workspace, remote directory and fake transfer tool.
type Harness struct {
	t *testing.T

	Binary     string
	Workspace  string
	Remote     string
	StateDir   string
	ConfigPath string
	ListenAddr string
	callLog    string
	slowMarker string
	rsync      string
}

// NewHarness creates the directory layout and the fake transfer tool
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	root := t.TempDir()
	h := &Harness{
		t:          t,
		Binary:     filepath.Join(root, "bin", "sitesync"),
		Workspace:  filepath.Join(root, "workspace"),
		Remote:     filepath.Join(root, "remote"),
		StateDir:   filepath.Join(root, "state"),
		ConfigPath: filepath.Join(root, "config.yaml"),
		callLog:    filepath.Join(root, "rsync.log"),
		slowMarker: filepath.Join(root, "rsync.slow"),
	}
	for _, dir := range []string{filepath.Dir(h.Binary), h.Workspace, h.Remote} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	rsync, err := testutil.WriteScript(filepath.Dir(h.Binary), "rsync", fmt.Sprintf(fakeRsync, h.callLog, h.slowMarker))
	if err != nil {
		t.Fatal(err)
	}
	h.rsync = rsync

	addr, err := testutil.FreeAddr()
	if err != nil {
		t.Fatalf("free address: %v", err)
	}
	h.ListenAddr = addr

	return h
}

// BuildBinary compiles cmd/sitesync into the harness directory
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.t.Logf("Building %s", h.Binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.Binary, "./cmd/sitesync")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// WriteConfig writes a configuration with the harness paths filled in.
// sites is appended verbatim below the "sites:" key.
func (h *Harness) WriteConfig(sites string) error {
	h.t.Helper()

	content := fmt.Sprintf(`workspace: %q
state_dir: %q
on_file_save_individual: true
serve:
  listen_addr: %q
defaults:
  executable: %q
  local_path: %q
  remote_path: %q
sites:
%s`, h.Workspace, h.StateDir, h.ListenAddr, h.rsync, h.Workspace, h.Remote, sites)

	return os.WriteFile(h.ConfigPath, []byte(content), 0o600)
}

func (h *Harness) command(ctx context.Context, args ...string) *exec.Cmd {
	args = append([]string{"--config", h.ConfigPath}, args...)
	return exec.CommandContext(ctx, h.Binary, args...)
}

// Run executes the binary and returns its output and exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()

	cmd := h.command(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// Start runs the binary without waiting for it
func (h *Harness) Start(ctx context.Context, args ...string) (*exec.Cmd, *bytes.Buffer, error) {
	h.t.Helper()

	cmd := h.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &testWriter{t: h.t, prefix: "[cli] "}
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}
	return cmd, &stderr, nil
}

// SetSlow makes the fake transfer tool hang until it is killed
func (h *Harness) SetSlow(slow bool) error {
	h.t.Helper()
	if slow {
		return os.WriteFile(h.slowMarker, nil, 0o600)
	}
	err := os.Remove(h.slowMarker)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// WaitForCalls polls the call log until it holds n entries
func (h *Harness) WaitForCalls(n int, timeout time.Duration) error {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := h.ReadCallLog()
		if err != nil {
			return err
		}
		if len(entries) >= n {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %d transfer calls", n)
}

// MustRun executes the binary and fails the test if it returns non-zero
func (h *Harness) MustRun(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout, stderr
}

// StartDaemon runs "sitesync serve" until the returned stop function is called
func (h *Harness) StartDaemon(ctx context.Context) (func(), error) {
	h.t.Helper()

	cmd := h.command(ctx, "serve", "--log-level", "debug")
	cmd.Stdout = &testWriter{t: h.t, prefix: "[daemon] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[daemon] "}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start daemon: %w", err)
	}

	stop := func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		_ = cmd.Wait()
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", h.ListenAddr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return stop, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	stop()
	return nil, fmt.Errorf("daemon did not listen on %s", h.ListenAddr)
}

// ReadCallLog reads and parses the fake transfer tool log
func (h *Harness) ReadCallLog() ([]CallLogEntry, error) {
	h.t.Helper()
	content, err := os.ReadFile(h.callLog)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []CallLogEntry
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Parse: "2024-01-01T12:00:00Z -rlptzv /src /dst"
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}

		entries = append(entries, CallLogEntry{
			Timestamp: parts[0],
			Args:      strings.Fields(parts[1]),
		})
	}

	return entries, scanner.Err()
}

// ClearCallLog truncates the fake transfer tool log
func (h *Harness) ClearCallLog() error {
	h.t.Helper()
	err := os.Remove(h.callLog)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CallLogEntry is one recorded transfer invocation
type CallLogEntry struct {
	Timestamp string
	Args      []string
}

// String returns a human-readable representation
func (e CallLogEntry) String() string {
	return fmt.Sprintf("%s: rsync %s", e.Timestamp, strings.Join(e.Args, " "))
}

// HasArgs checks if the entry starts with the given arguments
func (e CallLogEntry) HasArgs(args ...string) bool {
	if len(e.Args) < len(args) {
		return false
	}
	for i, arg := range args {
		if e.Args[i] != arg {
			return false
		}
	}
	return true
}

// EndsWith checks if the entry ends with the given arguments
func (e CallLogEntry) EndsWith(args ...string) bool {
	if len(e.Args) < len(args) {
		return false
	}
	offset := len(e.Args) - len(args)
	for i, arg := range args {
		if e.Args[offset+i] != arg {
			return false
		}
	}
	return true
}

// ContainsArg checks if the entry contains a specific argument anywhere
func (e CallLogEntry) ContainsArg(arg string) bool {
	for _, a := range e.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
