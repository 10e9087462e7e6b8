// Package status presents session progress: the status indicator, output
// visibility and desktop notifications.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/schaermu/sitesync/internal/config"
)

// Icon is the state shown by the status indicator.
type Icon int

const (
	IconIdle Icon = iota
	IconRunning
	IconSuccess
	IconError
)

var (
	idleColor    = color.New(color.FgHiBlack)
	runningColor = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Name returns the icon's symbolic name.
func (i Icon) Name() string {
	switch i {
	case IconRunning:
		return "sync"
	case IconSuccess:
		return "check"
	case IconError:
		return "alert"
	default:
		return "info"
	}
}

// Glyph returns the character drawn for the icon.
func (i Icon) Glyph() string {
	switch i {
	case IconRunning:
		return "⟳"
	case IconSuccess:
		return "✓"
	case IconError:
		return "✗"
	default:
		return "ℹ"
	}
}

func (i Icon) color() *color.Color {
	switch i {
	case IconRunning:
		return runningColor
	case IconSuccess:
		return successColor
	case IconError:
		return errorColor
	default:
		return idleColor
	}
}

// Label combines the site's display name with the icon glyph.
func Label(site *config.Site, icon Icon) string {
	return icon.Glyph() + " " + config.DisplayName(site)
}

// Indicator tracks the current icon and site and prints the label on every
// change.
type Indicator struct {
	mu   sync.Mutex
	out  io.Writer
	icon Icon
	site *config.Site
}

// NewIndicator creates an Indicator printing to out; out may be nil.
func NewIndicator(out io.Writer) *Indicator {
	return &Indicator{out: out}
}

// Set changes the icon and the site shown next to it.
func (ind *Indicator) Set(icon Icon, site *config.Site) {
	ind.mu.Lock()
	defer ind.mu.Unlock()

	ind.icon = icon
	ind.site = site
	if ind.out != nil {
		_, _ = icon.color().Fprintln(ind.out, Label(site, icon))
	}
}

// Icon returns the current icon.
func (ind *Indicator) Icon() Icon {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.icon
}

// Label returns the current label.
func (ind *Indicator) Label() string {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return Label(ind.site, ind.icon)
}

// String implements fmt.Stringer.
func (ind *Indicator) String() string {
	return fmt.Sprintf("[%s] %s", ind.Icon().Name(), ind.Label())
}
