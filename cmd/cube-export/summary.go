package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"go-cube-export/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

// skipSections lists the end-of-run sections in print order.
var skipSections = []struct {
	kind  model.SkipKind
	title string
}{
	{model.SkipPermissionDenied, "Skipped processes due to lack of permission"},
	{model.SkipProcessDisabled, "Skipped disabled processes"},
	{model.SkipDownloadFailed, "Skipped downloads that failed"},
	{model.SkipFormUnavailable, "Skipped forms that were deleted or unavailable"},
	{model.SkipFormFailed, "Forms that failed to export"},
}

func statusStyle(s model.RunStatus) lipgloss.Style {
	switch s {
	case model.RunCompleted:
		return okStyle
	case model.RunRateLimited:
		return warnStyle
	default:
		return failStyle
	}
}

func renderSummary(s *model.RunSummary, calls int64) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Cube export finished") + "\n")
	fmt.Fprintf(&b, "  run:      %s\n", detailStyle.Render(s.RunID))
	fmt.Fprintf(&b, "  status:   %s\n", statusStyle(s.Status).Render(string(s.Status)))
	fmt.Fprintf(&b, "  exported: %d forms\n", s.Exported())
	fmt.Fprintf(&b, "  api calls: %d\n", calls)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "  duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.RateLimited {
		b.WriteString(warnStyle.Render("API daily limit reached. Remaining forms stay pending for the next run.") + "\n")
	}

	if len(s.Processes) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Processes") + "\n")
		for _, p := range s.Processes {
			line := fmt.Sprintf("  %s (%d): %d/%d completed", p.Name, p.ProcessID, p.Completed, p.Backlog)
			if p.Skipped > 0 {
				line += fmt.Sprintf(", %d skipped", p.Skipped)
			}
			if p.Aborted > 0 {
				line += fmt.Sprintf(", %d aborted", p.Aborted)
			}
			if p.Reset {
				line += detailStyle.Render(" [reset]")
			}
			b.WriteString(line + "\n")
		}
	}

	for _, sec := range skipSections {
		recs := s.SkipsOf(sec.kind)
		if len(recs) == 0 {
			continue
		}
		b.WriteString("\n" + sectionStyle.Render(sec.title+":") + "\n")
		for _, r := range recs {
			if r.FormID != 0 {
				fmt.Fprintf(&b, "  Process ID: %d  FormID: %d", r.ProcessID, r.FormID)
			} else {
				fmt.Fprintf(&b, "  Process ID: %d", r.ProcessID)
			}
			if r.Reason != "" {
				b.WriteString(detailStyle.Render("  " + r.Reason))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func printSummary(w io.Writer, s *model.RunSummary, calls int64) {
	fmt.Fprint(w, "\n"+renderSummary(s, calls))
}
