// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkgbake/pkgbake/internal/config"
	"github.com/pkgbake/pkgbake/internal/fetch"
	"github.com/pkgbake/pkgbake/internal/report"

	"github.com/charmbracelet/lipgloss"
)

// Color palette shared by all CLI output.
const (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorError     = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages and positive indicators.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for error messages and failure indicators.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warnings and skipped items.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle is for names of sources, functions and config keys.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// writeReport renders rep in format. Text output is styled; json and toml
// use the report encoders.
func writeReport(w io.Writer, rep *report.Report, format config.ReportFormat) error {
	if format != config.ReportText {
		return rep.Encode(w, string(format))
	}
	_, err := io.WriteString(w, renderReportText(rep))
	return err
}

func renderReportText(rep *report.Report) string {
	var sb strings.Builder

	status := SuccessStyle.Render("ok")
	if !rep.Success {
		status = ErrorStyle.Render("failed in " + string(rep.Phase))
	}
	name := rep.Pkgbase
	if name == "" {
		name = rep.BuildFile
	}
	fmt.Fprintf(&sb, "%s %s  %s  %s\n",
		TitleStyle.Render(name), rep.Version, SubtitleStyle.Render(rep.Arch+" "+rep.Duration), status)

	if len(rep.Sources) > 0 {
		sb.WriteString("\n" + TitleStyle.Render("Sources") + "\n")
		for _, s := range rep.Sources {
			st := SuccessStyle
			switch {
			case s.Status == string(fetch.StatusFailed) || len(s.Failures) > 0:
				st = ErrorStyle
			case s.Status == string(fetch.StatusCanceled):
				st = WarningStyle
			}
			row := lipgloss.JoinHorizontal(lipgloss.Top,
				cellStyle.Render(CmdStyle.Render(s.Name)),
				cellStyle.Render(st.Render(s.Status)),
				cellStyle.Render(fmt.Sprintf("%d attempt(s)", s.Attempts)),
				cellStyle.Render(fmt.Sprintf("%d bytes", s.Bytes)),
				SubtitleStyle.Render(strings.TrimSpace(s.Algorithm+" "+s.Fingerprint)),
			)
			sb.WriteString("  " + row + "\n")
			for _, f := range s.Failures {
				fmt.Fprintf(&sb, "    %s %s\n", ErrorStyle.Render(f.Kind), f.Detail)
			}
			if s.Error != "" && len(s.Failures) == 0 {
				fmt.Fprintf(&sb, "    %s\n", ErrorStyle.Render(s.Error))
			}
		}
	}

	if len(rep.Stages) > 0 {
		sb.WriteString("\n" + TitleStyle.Render("Stages") + "\n")
		for _, st := range rep.Stages {
			mark := SuccessStyle.Render("ok")
			if !st.OK {
				mark = ErrorStyle.Render(fmt.Sprintf("exit %d", st.ExitCode))
			}
			fn := st.Function
			if st.Package != "" {
				fn += " (" + st.Package + ")"
			}
			row := lipgloss.JoinHorizontal(lipgloss.Top,
				cellStyle.Render(CmdStyle.Render(fn)),
				cellStyle.Render(mark),
				SubtitleStyle.Render(st.Duration),
			)
			sb.WriteString("  " + row + "\n")
		}
	}

	if rep.Error != "" {
		sb.WriteString("\n" + ErrorStyle.Render("Error: ") + rep.Error + "\n")
	}
	return sb.String()
}
