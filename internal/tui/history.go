package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/awinspect/internal/models"
)

func (a *App) selectedRun() *models.Run {
	if len(a.runs) > 0 && a.runIdx < len(a.runs) {
		return a.runs[a.runIdx]
	}
	return nil
}

func (a *App) handleRunHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewWorkflows

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.runIdx > 0 {
			a.runIdx--
		}

	case "down", "j":
		if a.runIdx < len(a.runs)-1 {
			a.runIdx++
		}

	case "enter":
		if run := a.selectedRun(); run != nil {
			return a, a.loadReport(run)
		}

	case "r":
		return a, a.loadRuns

	case "x":
		if run := a.selectedRun(); run != nil {
			return a, a.killRun(run.ID)
		}

	case "d":
		if run := a.selectedRun(); run != nil {
			return a, a.deleteRun(run.ID)
		}

	case "R":
		if run := a.selectedRun(); run != nil {
			return a, a.resumeSession(run.ID)
		}
	}

	return a, nil
}

func (a *App) handleReportKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunHistory
		a.reportRun = nil
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.report, cmd = a.report.Update(msg)
	return a, cmd
}

func (a *App) viewRunHistory() string {
	s := titleStyle.Render("Run History") + "\n\n"

	if a.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", a.err)) + "\n\n"
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Press 'e' on a workflow to evaluate it.\n"
	} else {
		for i, run := range a.runs {
			line := formatRunLine(run)
			isSelected := i == a.runIdx

			if isSelected {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Status.Finished() {
				// Dim finished runs
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] report  [R] resume  [x] kill  [d] delete  [r] refresh  [esc] back")

	return s
}

func formatRunLine(run *models.Run) string {
	return fmt.Sprintf("#%-3d %-20s %-10s %s  %-4s  %s",
		run.ID, truncate(run.WorkflowName, 20), run.Kind, formatStatus(run.Status), formatAge(run.CreatedAt), run.ModelID)
}

func (a *App) viewReport() string {
	if a.reportRun == nil {
		return "No run selected"
	}

	run := a.reportRun
	header := fmt.Sprintf("Run #%d: %s %s", run.ID, run.Kind, run.WorkflowName)
	s := titleStyle.Render(header) + "  " + formatStatus(run.Status) + "\n"

	meta := labelStyle.Render("Model: ") + dimStyle.Render(run.ModelID)
	if run.Error != "" {
		meta += "  " + errorStyle.Render(run.Error)
	}
	s += meta + "\n"

	s += a.report.View() + "\n"
	s += helpStyle.Render("[↑/↓] scroll  [esc] back")

	return s
}
