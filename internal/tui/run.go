package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"
)

func (a *App) handleRunKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		// Leaving cancels the model call.
		a.stopRun()
		a.view = ViewWorkflows
		return a, nil

	case "ctrl+c":
		a.stopRun()
		return a, tea.Quit

	case "h":
		if !a.running {
			a.view = ViewRunHistory
			return a, a.loadRuns
		}
	}

	var cmd tea.Cmd
	a.output, cmd = a.output.Update(msg)
	return a, cmd
}

// refreshOutput rewraps streamed output, following it when the user has not
// scrolled up.
func (a *App) refreshOutput() {
	wasAtBottom := a.output.AtBottom()
	a.output.SetContent(wordwrap.String(a.runOutput, max(a.output.Width, 1)))
	if wasAtBottom {
		a.output.GotoBottom()
	}
}

func (a *App) viewRun() string {
	header := fmt.Sprintf("%s %s", actionVerb(a.runKind), a.runWorkflow.Name)
	s := titleStyle.Render(header) + "  "

	switch {
	case a.running:
		s += a.spinner.View() + " " + statusRunning.Render("streaming")
	case a.runErr != nil:
		s += errorStyle.Render(a.runErr.Error())
	case a.runResult != nil:
		s += formatStatus(a.runResult.Status)
		if a.runResult.CompletedAt != nil {
			s += "  " + dimStyle.Render(formatDuration(a.runResult.CompletedAt.Sub(a.runResult.CreatedAt)))
		}
	}
	s += "\n\n"

	if a.runOutput == "" && a.running {
		s += dimStyle.Render("Waiting for the model...") + "\n"
	} else {
		s += a.output.View() + "\n"
	}

	help := "[↑/↓] scroll  [esc] back"
	if a.running {
		help = "[↑/↓] scroll  [esc] cancel and go back"
	} else {
		help += "  [h] history"
	}
	s += helpStyle.Render(help)

	return s
}
