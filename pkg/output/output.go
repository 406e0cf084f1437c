package output

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"

	"github.com/artcritique/brushup/pkg/config"
	"github.com/artcritique/brushup/pkg/notify"
	"github.com/artcritique/brushup/pkg/presenter"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
	FormatText  OutputFormat = "text"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// GetOutputFormat returns the configured output format
func GetOutputFormat() OutputFormat {
	return ParseFormat(config.GetString("output.format"))
}

// ParseFormat maps a flag value to a format, defaulting to text.
func ParseFormat(format string) OutputFormat {
	switch format {
	case "json":
		return FormatJSON
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// ValidateOutputFormat checks if format is valid
func ValidateOutputFormat(format string) bool {
	return format == "json" || format == "table" || format == "text"
}

// Printer writes command results in one format.
type Printer struct {
	w      io.Writer
	format OutputFormat
	now    func() time.Time
}

// NewPrinter creates a printer. A nil writer means color.Output.
func NewPrinter(w io.Writer, format OutputFormat) *Printer {
	if w == nil {
		w = color.Output
	}
	return &Printer{w: w, format: format, now: time.Now}
}

// Notifications prints a notification list with its unread count.
func (p *Printer) Notifications(list []notify.Notification, unread int) error {
	switch p.format {
	case FormatJSON:
		return p.json(struct {
			UnreadCount   int                   `json:"unread_count"`
			Notifications []notify.Notification `json:"notifications"`
		}{unread, list})
	case FormatTable:
		headers := []string{"ID", "Status", "Title", "Message", "When"}
		rows := make([][]string, 0, len(list))
		for _, n := range list {
			status := "read"
			if !n.Read {
				status = "new"
			}
			rows = append(rows, []string{
				n.ID.String(),
				status,
				n.DisplayTitle(),
				truncate(n.Message, 50),
				presenter.TimeAgo(n.CreatedAt.Time, p.now()),
			})
		}
		p.table(headers, rows)
		return nil
	default:
		if unread > 0 {
			color.New(color.Bold).Fprintf(p.w, "🔔 %s unread\n\n", presenter.BadgeText(unread))
		}
		presenter.Dropdown(p.w, list, p.now())
		return nil
	}
}

// Count prints the unread count.
func (p *Printer) Count(unread int) error {
	switch p.format {
	case FormatJSON:
		return p.json(map[string]int{"unread_count": unread})
	case FormatTable:
		p.table([]string{"Unread"}, [][]string{{strconv.Itoa(unread)}})
		return nil
	default:
		if unread == 0 {
			fmt.Fprintln(p.w, "No unread notifications.")
			return nil
		}
		fmt.Fprintf(p.w, "📬 %d unread notification%s\n", unread, pluralize(unread))
		return nil
	}
}

// Success prints a confirmation line in text mode, or a status object in JSON.
func (p *Printer) Success(msg string, args ...interface{}) error {
	if p.format == FormatJSON {
		return p.json(map[string]string{"status": "ok", "message": fmt.Sprintf(msg, args...)})
	}
	color.New(color.FgGreen).Fprintf(p.w, "✓ "+msg+"\n", args...)
	return nil
}

func (p *Printer) json(v interface{}) error {
	enc := jsonAPI.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)

	for i, h := range headers {
		bold.Fprint(w, h)
		if i < len(headers)-1 {
			fmt.Fprint(w, "\t")
		}
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			fmt.Fprint(w, cell)
			if i < len(row)-1 {
				fmt.Fprint(w, "\t")
			}
		}
		fmt.Fprintln(w)
	}

	w.Flush()
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	color.New(color.FgGreen).Printf(msg+"\n", args...)
}

// PrintError prints an error message
func PrintError(msg string, args ...interface{}) {
	color.New(color.FgRed).Printf("Error: "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	color.New(color.FgCyan).Printf(msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	color.New(color.FgYellow).Printf("Warning: "+msg+"\n", args...)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return s
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
