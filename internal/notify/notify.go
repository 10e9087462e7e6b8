// Package notify shows desktop notifications by shelling out to the
// platform's notification tool.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Level is the urgency of a notification.
type Level int

const (
	Info Level = iota
	Error
)

// Notifier displays desktop notifications.
type Notifier interface {
	// Notify shows a notification. A missing notification tool is not an
	// error.
	Notify(ctx context.Context, level Level, title, message string) error
	// IsAvailable reports whether notifications can be shown on this host.
	IsAvailable() bool
}

// Client implements Notifier with notify-send on Linux and osascript on macOS.
type Client struct {
	goos     string
	lookPath func(string) (string, error)
}

// NewClient creates a notification client for the running OS.
func NewClient() *Client {
	return &Client{goos: runtime.GOOS, lookPath: exec.LookPath}
}

// IsAvailable reports whether the notification tool is installed.
func (c *Client) IsAvailable() bool {
	name, _ := c.command(Info, "", "")
	if name == "" {
		return false
	}
	_, err := c.lookPath(name)
	return err == nil
}

// Notify shows a notification.
func (c *Client) Notify(ctx context.Context, level Level, title, message string) error {
	if !c.IsAvailable() {
		return nil
	}

	name, args := c.command(level, title, message)
	//#nosec G204 -- fixed tool, message passed as a single argument
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *Client) command(level Level, title, message string) (string, []string) {
	switch c.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		urgency := "normal"
		if level == Error {
			urgency = "critical"
		}
		return "notify-send", []string{"--app-name=sitesync", "--urgency=" + urgency, title, message}
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(message), strconv.Quote(title))
		return "osascript", []string{"-e", script}
	default:
		return "", nil
	}
}

// Nop is a Notifier that never shows anything.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Level, string, string) error { return nil }

// IsAvailable implements Notifier.
func (Nop) IsAvailable() bool { return false }
