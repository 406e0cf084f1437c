// Package presenter renders notification session state for a terminal.
package presenter

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/artcritique/brushup/pkg/notify"
)

// DropdownSize is how many records the dropdown shows.
const DropdownSize = 10

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	newMark = color.New(color.FgBlue, color.Bold)
	live    = color.New(color.FgGreen)
	offline = color.New(color.FgYellow)
)

var titleCountPrefix = regexp.MustCompile(`^\(\d+\) `)

// BadgeText returns the unread badge label; empty hides the badge.
func BadgeText(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 99:
		return "99+"
	default:
		return strconv.Itoa(unread)
	}
}

// TitleWithCount prefixes title with "(N) ", replacing any existing prefix.
func TitleWithCount(title string, unread int) string {
	base := titleCountPrefix.ReplaceAllString(title, "")
	if unread > 0 {
		return fmt.Sprintf("(%d) %s", unread, base)
	}
	return base
}

// TimeAgo formats t relative to now.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	secs := int64(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return "Just now"
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	case secs < 30*86400:
		return fmt.Sprintf("%dd ago", secs/86400)
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

// StatusBadge labels the live channel state.
func StatusBadge(status notify.Status) string {
	if status == notify.StatusConnected {
		return "Live"
	}
	return "Offline"
}

// ToastTitle is the heading used for a toast.
func ToastTitle(n notify.Notification) string {
	if n.Title == "" {
		return "New Notification"
	}
	return n.Title
}

// Dropdown writes the most recent records, marking unread ones as new.
func Dropdown(w io.Writer, list []notify.Notification, now time.Time) {
	if len(list) == 0 {
		faint.Fprintln(w, "No notifications yet")
		return
	}
	if len(list) > DropdownSize {
		list = list[:DropdownSize]
	}
	for _, n := range list {
		bold.Fprint(w, n.DisplayTitle())
		if !n.Read {
			fmt.Fprint(w, " ")
			newMark.Fprint(w, "[New]")
		}
		fmt.Fprintln(w)
		if n.Message != "" {
			fmt.Fprintf(w, "  %s\n", n.Message)
		}
		if ago := TimeAgo(n.CreatedAt.Time, now); ago != "" {
			faint.Fprintf(w, "  %s\n", ago)
		}
	}
}
