package status

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/notify"
	"github.com/schaermu/sitesync/internal/sync"
)

const notifyTimeout = 5 * time.Second

var warnColor = color.New(color.FgYellow, color.Bold)

// OutputView is the part of the output channel the presenter controls.
type OutputView interface {
	BeginRun()
	Show()
	Hide()
	Visible() bool
	DumpRun() error
}

// Presenter turns session events into indicator changes, output visibility
// and notifications. It implements sync.Observer.
type Presenter struct {
	logger    *slog.Logger
	indicator *Indicator
	output    OutputView
	notifier  notify.Notifier
	config    func() *config.Config
	messages  io.Writer
}

// NewPresenter creates a Presenter. cfg is read on every event so settings
// follow configuration reloads; messages receives user-visible messages.
func NewPresenter(logger *slog.Logger, indicator *Indicator, output OutputView, notifier notify.Notifier, cfg func() *config.Config, messages io.Writer) *Presenter {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if messages == nil {
		messages = io.Discard
	}
	return &Presenter{
		logger:    logger,
		indicator: indicator,
		output:    output,
		notifier:  notifier,
		config:    cfg,
		messages:  messages,
	}
}

// OnEvent implements sync.Observer.
func (p *Presenter) OnEvent(e sync.Event) {
	cfg := p.config()

	switch e.Kind {
	case sync.EventStarted:
		p.output.BeginRun()
		if cfg.AutoShowOutput {
			p.output.Show()
		}
		p.indicator.Set(IconRunning, e.Site)

	case sync.EventDeprecated:
		_, _ = warnColor.Fprintf(p.messages, "warning: %s\n", e.Message)

	case sync.EventSkipped:
		p.indicator.Set(IconSuccess, e.Site)
		_, _ = fmt.Fprintf(p.messages, "%s: %s sync skipped, site is restricted to the other direction\n", config.DisplayName(e.Site), e.Request.Direction)

	case sync.EventSucceeded:
		if cfg.AutoHideOutput {
			p.output.Hide()
		}
		p.indicator.Set(IconSuccess, e.Site)
		if cfg.Notification {
			p.notify(notify.Info, e.Site, fmt.Sprintf("%s %s finished", directionNoun(e.Request), e.Request.Direction))
		}

	case sync.EventFailed:
		if cfg.AutoShowOutputOnError && !p.output.Visible() {
			if err := p.output.DumpRun(); err != nil {
				p.logger.Warn("failed to show output", "error", err)
			}
			p.output.Show()
		}
		p.indicator.Set(IconError, e.Site)
		_, _ = errorColor.Fprintf(p.messages, "%s: %v\n", config.DisplayName(e.Site), e.Err)
		if cfg.Notification {
			p.notify(notify.Error, e.Site, fmt.Sprint(e.Err))
		}

	case sync.EventKilled:
		p.indicator.Set(IconError, e.Site)
		_, _ = errorColor.Fprintf(p.messages, "%s: %s killed\n", config.DisplayName(e.Site), directionNoun(e.Request))
		if cfg.Notification {
			p.notify(notify.Error, e.Site, "sync killed")
		}
	}
}

func (p *Presenter) notify(level notify.Level, site *config.Site, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(ctx, level, "sitesync: "+config.DisplayName(site), message); err != nil {
		p.logger.Warn("failed to show notification", "error", err)
	}
}

func directionNoun(req sync.Request) string {
	if req.DryRun {
		return "compare"
	}
	return "sync"
}
