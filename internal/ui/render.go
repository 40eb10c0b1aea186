package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tunelab/genrescope/internal/backend"
	"github.com/tunelab/genrescope/internal/logtail"
	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/state"
)

const cardWidth = 64

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.pickerOpen {
		b.WriteString(m.renderPicker())
	} else {
		b.WriteString(m.renderFileCard())
		b.WriteString("\n")
		b.WriteString(m.renderStatus())
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.Styles().WarningText.Render(m.notice))
	}
	if diag := m.renderDiagnostic(m.snapshot.Diagnostic); diag != "" {
		b.WriteString("\n")
		b.WriteString(diag)
	}
	if m.showLogs {
		b.WriteString("\n\n")
		b.WriteString(m.renderLogPane())
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// renderHeader renders the status bar: name, profile and phase.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	phase := m.snapshot.Phase.String()
	parts := []string{
		bg.Render("genrescope", styles.Logo),
		bg.Render("profile", styles.FaintText) + bg.Space() + bg.Render(m.profile, styles.AccentText),
		styles.PhaseStyle(phase).Render(strings.ToUpper(phase)),
	}
	if m.snapshot.SubmissionID != "" {
		parts = append(parts, bg.Render(shortID(m.snapshot.SubmissionID), styles.FaintText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// renderFileCard shows the chosen file or the accepted formats.
func (m Model) renderFileCard() string {
	styles := m.theme.Styles()
	var lines []string

	if f := m.snapshot.File; f != nil {
		lines = append(lines,
			styles.Text.Bold(true).Render(truncateMiddle(f.Name, cardWidth-4)),
			styles.MutedText.Render(fileSummary(f)),
		)
	} else {
		lines = append(lines,
			styles.MutedText.Render("No file chosen. Press o to browse."),
			styles.FaintText.Render(media.SupportedText()),
		)
	}

	return styles.Card.Width(cardWidth).Render(strings.Join(lines, "\n"))
}

// renderStatus renders the phase-specific part of the screen.
func (m Model) renderStatus() string {
	styles := m.theme.Styles()
	st := m.snapshot

	switch st.Phase {
	case state.PhaseProbing:
		return m.spinner.View() + " " + styles.InfoText.Render("Checking backend...")
	case state.PhaseUploading:
		return m.spinner.View() + " " + styles.InfoText.Render("Uploading and classifying") + "\n" +
			m.progress.ViewAs(float64(st.Progress)/100) + " " + styles.MutedText.Render(fmt.Sprintf("%3d%%", st.Progress))
	case state.PhaseSucceeded:
		return m.renderResult(st.Result)
	case state.PhaseFailed:
		return m.renderError(st.ErrorMessage)
	default:
		if st.File != nil {
			return styles.MutedText.Render("Press enter to classify.")
		}
		return ""
	}
}

// renderResult renders the prediction card.
func (m Model) renderResult(pred *backend.Prediction) string {
	styles := m.theme.Styles()
	if pred == nil {
		return ""
	}

	lines := []string{
		styles.MutedText.Render("Predicted genre"),
		styles.SuccessText.Render(pred.DisplayGenre()),
	}
	if meta := resultMeta(pred); meta != "" {
		lines = append(lines, styles.FaintText.Render(meta))
	}
	if len(pred.Top3) > 0 {
		lines = append(lines, "")
		for i, score := range pred.Top3 {
			lines = append(lines, formatScore(i+1, score, 20))
		}
	}

	card := styles.Card.BorderForeground(lipgloss.Color(m.theme.Success)).Width(cardWidth)
	return card.Render(strings.Join(lines, "\n"))
}

// renderError renders the failure card.
func (m Model) renderError(msg string) string {
	styles := m.theme.Styles()
	card := styles.Card.BorderForeground(lipgloss.Color(m.theme.Danger)).Width(cardWidth)
	return card.Render(styles.DangerText.Render("Error") + "\n" + styles.Text.Render(msg) + "\n" +
		styles.FaintText.Render("Press enter to try again or r to reset."))
}

// renderDiagnostic renders the last connection test, if any.
func (m Model) renderDiagnostic(d state.Diagnostic) string {
	if d.Seq == 0 {
		return ""
	}
	styles := m.theme.Styles()
	if d.Running {
		return m.spinner.View() + " " + styles.InfoText.Render("Testing connection...")
	}
	if !d.OK {
		return styles.DangerText.Render(d.Message)
	}
	return styles.SuccessText.Render(d.Message) + " " + styles.MutedText.Render(healthSummary(d.Health, d.CheckedAt))
}

func (m Model) renderPicker() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true).Render("Choose a file") + "  " +
		styles.FaintText.Render(truncateMiddle(m.picker.CurrentDirectory, cardWidth))
	hint := styles.FaintText.Render("enter select  ←/h back  esc close")
	return title + "\n" + m.picker.View() + "\n" + hint
}

func (m Model) renderLogPane() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true).Render("Log") + "  " +
		styles.FaintText.Render(truncateMiddle(m.logPath, maxInt(m.width-10, 20)))
	pane := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(lipgloss.Color(m.theme.BorderMuted)).
		Render(m.logView.View())
	return title + "\n" + pane
}

func (m Model) renderLogLines() string {
	if len(m.logLines) == 0 {
		return m.theme.Styles().FaintText.Render("No log output yet.")
	}
	out := make([]string, 0, len(m.logLines))
	for _, line := range m.logLines {
		out = append(out, m.formatLogEntry(logtail.Parse(line)))
	}
	return strings.Join(out, "\n")
}

// formatLogEntry renders one parsed log line as "15:04:05 WARN message k=v".
func (m Model) formatLogEntry(e logtail.Entry) string {
	styles := m.theme.Styles()
	if e.Level == "" {
		return styles.Text.Render(e.Message)
	}

	levelStyle := styles.MutedText
	switch e.Level {
	case "WARN":
		levelStyle = styles.WarningText
	case "ERROR":
		levelStyle = styles.DangerText
	case "DEBUG":
		levelStyle = styles.FaintText
	}

	parts := []string{
		styles.FaintText.Render(e.ShortTime()),
		levelStyle.Render(padRight(e.Level, 5)),
		styles.Text.Render(e.Message),
	}
	if len(e.Attrs) > 0 {
		attrs := make([]string, 0, len(e.Attrs))
		for _, a := range e.Attrs {
			attrs = append(attrs, a.Key+"="+a.Value)
		}
		parts = append(parts, styles.FaintText.Render(strings.Join(attrs, " ")))
	}
	return strings.Join(parts, " ")
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	sections := []helpSection{
		{
			title: "Submission",
			items: []helpItem{
				{"o", "Choose a file"},
				{"enter/s", "Classify the chosen file"},
				{"r", "Reset"},
				{"c", "Test connection"},
			},
		},
		{
			title: "View",
			items: []helpItem{
				{"p", "Next backend profile"},
				{"l", "Toggle log pane"},
				{"j/k", "Scroll log"},
				{"T", "Cycle theme"},
			},
		},
		{
			title: "General",
			items: []helpItem{
				{"?", "Toggle help"},
				{"esc", "Close file picker"},
				{"q/ctrl+c", "Quit"},
			},
		},
	}

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Warning)).
		Width(12)
	for i, section := range sections {
		b.WriteString(styles.AccentText.Bold(true).Render(section.title))
		b.WriteString("\n")
		for _, item := range section.items {
			b.WriteString(keyStyle.Render(item.key))
			b.WriteString(styles.Text.Render(item.desc))
			b.WriteString("\n")
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(44)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

type helpSection struct {
	title string
	items []helpItem
}

type helpItem struct {
	key  string
	desc string
}

// fileSummary renders "audio · 4.2MiB".
func fileSummary(f *media.File) string {
	kind := string(f.Kind())
	if kind == "" {
		kind = "file"
	}
	return kind + " · " + f.HumanSize()
}

// resultMeta renders the optional source and feature count.
func resultMeta(pred *backend.Prediction) string {
	var parts []string
	if s := strings.TrimSpace(pred.Source); s != "" {
		parts = append(parts, "source: "+s)
	}
	if f := strings.TrimSpace(string(pred.FeaturesUsed)); f != "" {
		parts = append(parts, "features: "+f)
	}
	return strings.Join(parts, " · ")
}

// formatScore renders one ranked genre with a bar of barWidth cells.
func formatScore(rank int, score backend.GenreScore, barWidth int) string {
	prob := score.Prob
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	filled := int(prob*float64(barWidth) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("%d. %s %s %5.1f%%", rank, padRight(strings.ToLower(score.Genre), 10), bar, prob*100)
}

// healthSummary renders status, latency and the backend's info message.
func healthSummary(h backend.Health, at time.Time) string {
	parts := []string{fmt.Sprintf("HTTP %d", h.Status), h.Latency.Round(time.Millisecond).String()}
	if msg := strings.TrimSpace(h.Message); msg != "" {
		parts = append(parts, truncate(msg, 48))
	}
	if !at.IsZero() {
		parts = append(parts, at.Format("15:04:05"))
	}
	return strings.Join(parts, " · ")
}

// shortID keeps the first block of a UUID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

