// Package ui provides terminal user interface components
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/muesli/termenv"

	"github.com/sonemaro/tella/internal/types"
)

var (
	// Colors
	Green   = color.New(color.FgGreen).SprintFunc()
	Yellow  = color.New(color.FgYellow).SprintFunc()
	Red     = color.New(color.FgRed).SprintFunc()
	Cyan    = color.New(color.FgCyan).SprintFunc()
	Magenta = color.New(color.FgMagenta).SprintFunc()
	Bold    = color.New(color.Bold).SprintFunc()
	Dim     = color.New(color.Faint).SprintFunc()

	// Styled
	Success = color.New(color.FgGreen, color.Bold).SprintFunc()
	Warning = color.New(color.FgYellow, color.Bold).SprintFunc()
	Error   = color.New(color.FgRed, color.Bold).SprintFunc()
	Info    = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Options selects which parts of a suggestion are shown
type Options struct {
	Color           bool
	ShowSummary     bool
	ShowExplanation bool
	ShowRisk        bool
}

// Renderer writes suggestions and status messages to a terminal
type Renderer struct {
	out  io.Writer
	opts Options
	lg   *lipgloss.Renderer
}

// NewRenderer creates a renderer writing to out
func NewRenderer(out io.Writer, opts Options) *Renderer {
	lg := lipgloss.NewRenderer(out)
	if !opts.Color {
		color.NoColor = true
		lg.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{out: out, opts: opts, lg: lg}
}

// Out returns the underlying writer
func (r *Renderer) Out() io.Writer {
	return r.out
}

// tierColor maps a tier to an ANSI palette index
func tierColor(level types.RiskLevel) lipgloss.Color {
	switch level {
	case types.RiskSafe:
		return lipgloss.Color("10")
	case types.RiskCaution:
		return lipgloss.Color("11")
	default:
		return lipgloss.Color("9")
	}
}

func getRiskColor(level types.RiskLevel) func(a ...interface{}) string {
	switch level {
	case types.RiskSafe:
		return Green
	case types.RiskCaution:
		return Yellow
	case types.RiskDangerous:
		return Red
	default:
		return fmt.Sprint
	}
}

// Suggestion renders the suggestion panel. The tier is always shown for
// non-safe commands even when risk display is turned off.
func (r *Renderer) Suggestion(s *types.Suggestion, tier types.RiskLevel, reasons []string) {
	var b strings.Builder

	b.WriteString(Bold(Cyan("$ " + s.Command)))
	if r.opts.ShowSummary && s.Summary != "" {
		b.WriteString("\n" + Dim(s.Summary))
	}
	if r.opts.ShowExplanation && s.Explanation != "" {
		b.WriteString("\n\n" + s.Explanation)
	}

	if r.opts.ShowRisk || tier != types.RiskSafe {
		b.WriteString(fmt.Sprintf("\n\n%s %s %s", tier.Emoji(), Bold("Risk:"), getRiskColor(tier)(tier.String())))
		if s.RiskNote != "" {
			b.WriteString(" " + Dim("("+s.RiskNote+")"))
		}
		for _, reason := range reasons {
			b.WriteString("\n   • " + reason)
		}
	}

	for _, w := range s.Warnings {
		b.WriteString("\n" + Warning("⚠ ") + w)
	}

	if len(s.Alternatives) > 0 {
		b.WriteString("\n\n" + Bold("Alternatives:"))
		for i, alt := range s.Alternatives {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, alt))
		}
	}

	panel := r.lg.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tierColor(tier)).
		Padding(0, 1)

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, panel.Render(b.String()))
}

// Explain renders the suggestion as markdown
func (r *Renderer) Explain(s *types.Suggestion) {
	out, err := r.explanation(s)
	if err != nil {
		// fall back to plain text
		fmt.Fprintf(r.out, "\n%s\n", explainMarkdown(s))
		return
	}
	fmt.Fprint(r.out, out)
}

func (r *Renderer) explanation(s *types.Suggestion) (string, error) {
	style := "dark"
	if !r.opts.Color {
		style = "notty"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return tr.Render(explainMarkdown(s))
}

func explainMarkdown(s *types.Suggestion) string {
	var b strings.Builder
	b.WriteString("## Command\n\n```sh\n" + s.Command + "\n```\n\n")
	if s.Summary != "" {
		b.WriteString("**" + s.Summary + "**\n\n")
	}
	if s.Explanation != "" {
		b.WriteString(s.Explanation + "\n\n")
	}
	b.WriteString("**Model risk:** " + s.Risk.String())
	if s.RiskNote != "" {
		b.WriteString(" - " + s.RiskNote)
	}
	b.WriteString("\n")
	if len(s.Warnings) > 0 {
		b.WriteString("\n### Warnings\n\n")
		for _, w := range s.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

// Menu prints the confirmation choices
func (r *Renderer) Menu(hasAlternatives bool) {
	options := "  [y] Run  [n] Cancel  [e] Explain  [c] Copy"
	if hasAlternatives {
		options += "  [a] Alternative"
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, options)
}

// DangerNotice explains the typed confirmation
func (r *Renderer) DangerNotice(phrase string) {
	fmt.Fprintf(r.out, "\n%s This command is %s. Type %s to run it, anything else cancels.\n",
		Error("⛔"), Red("DANGEROUS"), Bold(phrase))
}

// PrintSuccess displays a success message
func (r *Renderer) PrintSuccess(message string) {
	fmt.Fprintf(r.out, "\n%s %s\n", Success("✓"), message)
}

// PrintError displays an error message
func (r *Renderer) PrintError(message string) {
	fmt.Fprintf(r.out, "\n%s %s\n", Error("✗"), message)
}

// PrintWarning displays a warning message
func (r *Renderer) PrintWarning(message string) {
	fmt.Fprintf(r.out, "\n%s %s\n", Warning("⚠"), message)
}

// PrintInfo displays an info message
func (r *Renderer) PrintInfo(message string) {
	fmt.Fprintf(r.out, "\n%s %s\n", Info("ℹ"), message)
}

// Waiting shows a spinner until the returned stop function is called
func (r *Renderer) Waiting(message string) func() {
	s := NewSpinner(r.out, message)
	s.Start()
	return s.Stop
}

// PrintHistoryEntry prints one audit entry on a single line
func (r *Renderer) PrintHistoryEntry(e *types.HistoryEntry) {
	outcome := string(e.Outcome)
	switch e.Outcome {
	case types.OutcomeExecuted:
		if e.ExitCode == 0 {
			outcome = Green(outcome)
		} else {
			outcome = Red(fmt.Sprintf("%s (%d)", outcome, e.ExitCode))
		}
	case types.OutcomeAborted:
		outcome = Yellow(outcome)
	default:
		outcome = Dim(outcome)
	}

	fmt.Fprintf(r.out, "%s %s %-9s %s\n    %s %s\n",
		Dim(FormatDurationShort(time.Since(e.Timestamp))),
		e.EffectiveRisk.Emoji(),
		outcome,
		truncate(e.Query, 60),
		Dim("$"),
		Cyan(truncate(e.Command, 70)))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// FormatDurationShort formats a duration in a short human-readable format
func FormatDurationShort(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days < 30 {
		return fmt.Sprintf("%dd ago", days)
	}
	return fmt.Sprintf("%dmo ago", days/30)
}
