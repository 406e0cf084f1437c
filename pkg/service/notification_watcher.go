package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/artcritique/brushup/pkg/logger"
	"github.com/artcritique/brushup/pkg/notify"
	"github.com/artcritique/brushup/pkg/presenter"
)

// WatchNotifications keeps a live session open and renders every update until
// ctx is cancelled or the process is interrupted.
func (ns *NotificationService) WatchNotifications(ctx context.Context) error {
	logger.Debug("Starting notification watcher", "endpoint", ns.opts.Endpoint)

	term := presenter.NewTerminal(ns.out)
	session := notify.NewSession(ns.opts, ns.dialer, ns.api, term)
	defer func() {
		_ = session.Close()
		term.ResetTitle()
	}()

	fmt.Fprintln(ns.out)
	color.New(color.FgCyan).Fprintf(ns.out, "🔔 Watching for notifications on %s\n", ns.opts.Endpoint)
	fmt.Fprintln(ns.out, "Press Ctrl+C to stop")
	fmt.Fprintf(ns.out, "%s\n\n", strings.Repeat("─", 60))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Resuming a stopped process counts as returning to the foreground.
	fgChan := make(chan os.Signal, 1)
	if len(foregroundSignals) > 0 {
		signal.Notify(fgChan, foregroundSignals...)
		defer signal.Stop(fgChan)
	}

	session.Connect()

	for {
		select {
		case <-fgChan:
			logger.Debug("Process resumed, checking notification channel")
			session.Foreground()
		case <-sigChan:
			fmt.Fprintln(ns.out)
			ns.printSummary(session.State())
			color.New(color.FgGreen).Fprintln(ns.out, "Notification watcher stopped")
			return nil
		case <-ctx.Done():
			ns.printSummary(session.State())
			return nil
		}
	}
}

func (ns *NotificationService) printSummary(v notify.View) {
	if len(v.Notifications) == 0 {
		return
	}
	fmt.Fprintf(ns.out, "\nLatest notifications (%s):\n", presenter.StatusBadge(v.Status))
	presenter.Dropdown(ns.out, v.Notifications, timeNow())
}
