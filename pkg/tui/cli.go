// Package tui renders the human-facing run output: download progress and the
// end-of-run summary. Everything here writes to the writer it is given, which
// is stderr in the CLI. Stdout belongs to the report path alone.
package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// StageTiming records how long one pipeline stage ran.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Summary is the end-of-run report printed in verbose mode.
type Summary struct {
	RequestID string
	RunID     string
	Object    string
	Bytes     int64
	Rows      int
	Columns   int
	Files     []string
	Stages    []StageTiming
	Elapsed   time.Duration

	// FailedStage is set when the run did not complete.
	FailedStage string
	Err         error
}

// PrintSummary writes the run summary to w.
func PrintSummary(w io.Writer, s *Summary) {
	fmt.Fprintln(w)
	if s.FailedStage != "" {
		fmt.Fprintln(w, accentStyle.Render("  ✗ FAILED IN "+s.FailedStage))
		if s.Err != nil {
			fmt.Fprintf(w, "  %s\n", mutedStyle.Render(s.Err.Error()))
		}
	} else {
		fmt.Fprintln(w, successStyle.Render("  ✓ PROFILE COMPLETE"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Request:"), titleStyle.Render(s.RequestID),
		mutedStyle.Render("(run "+s.RunID+")"))
	if s.Object != "" {
		fmt.Fprintf(w, "  %s %s %s\n", mutedStyle.Render("Object:"), s.Object, mutedStyle.Render(formatBytes(s.Bytes)))
	}
	if s.Rows > 0 || s.Columns > 0 {
		fmt.Fprintf(w, "  %s %s rows × %s columns\n", mutedStyle.Render("Data:"),
			titleStyle.Render(formatNumber(int64(s.Rows))), titleStyle.Render(fmt.Sprint(s.Columns)))
	}
	for _, f := range s.Files {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Wrote:"), f)
	}
	for _, st := range s.Stages {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-18s", st.Stage)), formatDuration(st.Duration))
	}
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(s.Elapsed)))
	fmt.Fprintln(w)
}

// ShowProgress creates a byte progress bar on w. A negative total renders a
// spinner, for transfers of unknown length.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
