package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tunelab/genrescope/internal/logtail"
	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/submit"
)

const logRefresh = time.Second

// Messages

// nudgeMsg says the controller published a new state. The model reads the
// current snapshot itself, so bursts of transitions collapse into one render.
type nudgeMsg struct{}

type submitDoneMsg struct{ err error }

type logLinesMsg []string

type logTickMsg time.Time

// Commands

func listenCmd(ctx context.Context, nudge <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-nudge:
			return nudgeMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// submitCmd runs a whole submission off the UI goroutine. Progress and the
// outcome arrive through the store, not through the returned message.
func submitCmd(ctx context.Context, ctrl *submit.Controller, f *media.File) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: ctrl.Submit(ctx, f)}
	}
}

func testCmd(ctx context.Context, ctrl *submit.Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.TestConnection(ctx)
		return nil
	}
}

func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		lines, err := logtail.Read(path, logPaneLines)
		if err != nil {
			return logLinesMsg{"log unavailable: " + err.Error()}
		}
		return logLinesMsg(lines)
	}
}

func logTickCmd() tea.Cmd {
	return tea.Tick(logRefresh, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}
