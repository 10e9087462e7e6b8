// Package output is the append-only sink for transfer and hook output.
package output

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Channel receives the raw output of every run. Everything is appended to
// the output log; the current run is also kept in memory, and copied to the
// terminal while the channel is visible.
type Channel struct {
	mu      sync.Mutex
	log     io.WriteCloser
	path    string
	term    io.Writer
	run     bytes.Buffer
	visible bool
}

// Open opens (or creates) the output log at path. term receives output while
// the channel is shown; it may be nil.
func Open(path string, term io.Writer) (*Channel, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output log: %w", err)
	}

	return &Channel{log: f, path: path, term: term}, nil
}

// New returns a Channel without an output log.
func New(term io.Writer) *Channel {
	return &Channel{term: term}
}

// Write implements io.Writer. Writes to the log and the terminal are best
// effort; output is never lost from the run buffer.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.run.Write(p)
	if c.log != nil {
		_, _ = c.log.Write(p)
	}
	if c.visible && c.term != nil {
		_, _ = c.term.Write(p)
	}
	return len(p), nil
}

// BeginRun discards the previous run's buffer.
func (c *Channel) BeginRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Reset()
}

// Show starts copying output to the terminal.
func (c *Channel) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = true
}

// Hide stops copying output to the terminal.
func (c *Channel) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
}

// Visible reports whether output is copied to the terminal.
func (c *Channel) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// RunOutput returns the output of the current run.
func (c *Channel) RunOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.String()
}

// DumpRun writes the current run's output to the terminal. It is used to
// reveal output that was captured while the channel was hidden.
func (c *Channel) DumpRun() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.term == nil {
		return nil
	}
	_, err := c.term.Write(c.run.Bytes())
	return err
}

// Path returns the output log path, or "" for a Channel without a log.
func (c *Channel) Path() string {
	return c.path
}

// Close closes the output log.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.log == nil {
		return nil
	}
	err := c.log.Close()
	c.log = nil
	return err
}

// ShowLog copies the output log at path to w. When tail is positive only the
// last tail lines are copied. A missing log is not an error.
func ShowLog(path string, w io.Writer, tail int) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open output log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if tail <= 0 {
		_, err = io.Copy(w, f)
		return err
	}

	lines := make([]string, 0, tail)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) == tail {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read output log: %w", err)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
