package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/awinspect/internal/format"
	"github.com/mpataki/awinspect/internal/models"
)

func (a *App) handleWorkflowsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.workflows)-1 {
			a.selectedIdx++
		}

	case "enter":
		if wf, ok := a.selectedWorkflow(); ok {
			return a, a.loadInspection(wf)
		}

	case "e":
		return a, a.openModelPicker(models.RunKindEvaluation)

	case "s":
		return a, a.openModelPicker(models.RunKindSimulation)

	case "h":
		a.view = ViewRunHistory
		return a, a.loadRuns

	case "r":
		return a, a.loadWorkflows
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewWorkflows
		a.inspection = nil
		a.findings = nil
		return a, nil

	case "ctrl+c":
		return a, tea.Quit

	case "e":
		return a, a.openModelPicker(models.RunKindEvaluation)

	case "s":
		return a, a.openModelPicker(models.RunKindSimulation)
	}

	var cmd tea.Cmd
	a.detail, cmd = a.detail.Update(msg)
	return a, cmd
}

func (a *App) viewWorkflows() string {
	s := titleStyle.Render("Agentic Workflows") + "  " + dimStyle.Render(a.workflowsDir) + "\n\n"

	if a.err != nil {
		s += errorStyle.Render(fmt.Sprintf("Error: %v", a.err)) + "\n\n"
	}

	if len(a.workflows) == 0 {
		s += "No workflows found.\n"
	} else {
		for i, wf := range a.workflows {
			if i == a.selectedIdx {
				s += selectedStyle.Render("▶ "+wf.Name) + "\n"
			} else {
				s += "  " + wf.Name + "\n"
			}
		}
	}

	s += "\n" + helpStyle.Render("[enter] inspect  [e] evaluate  [s] simulate  [h] history  [r] refresh  [q] quit")

	return s
}

// refreshDetail rebuilds the detail viewport from the current inspection.
func (a *App) refreshDetail() {
	a.detail.SetContent(a.renderDetail(a.detail.Width))
}

func (a *App) renderDetail(width int) string {
	insp := a.inspection
	var b strings.Builder

	b.WriteString(labelStyle.Render("Path: ") + dimStyle.Render(insp.Workflow.Path) + "\n\n")

	b.WriteString(sectionStyle.Render("Frontmatter") + "\n")
	switch {
	case insp.ParseErr != nil:
		b.WriteString(errorStyle.Render(insp.ParseErr.Error()) + "\n")
	case len(insp.Fields) == 0:
		b.WriteString(dimStyle.Render("(none)") + "\n")
	default:
		for _, field := range insp.Fields {
			badges := make([]string, 0, len(field.Items))
			for _, item := range field.Items {
				badges = append(badges, format.Badge(item))
			}
			b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", field.Key)) + " " + strings.Join(badges, " ") + "\n")
		}
	}

	b.WriteString("\n" + sectionStyle.Render("Imports") + "\n")
	if len(insp.Files) <= 1 {
		b.WriteString(dimStyle.Render("(none)") + "\n")
	} else {
		// The last file is the workflow itself.
		for _, f := range insp.Files[:len(insp.Files)-1] {
			b.WriteString("  • " + insp.RelativePath(f.Path) + "\n")
		}
	}

	b.WriteString("\n" + sectionStyle.Render("Checks") + "\n")
	if len(a.findings) == 0 {
		b.WriteString(statusComplete.Render("✓ no findings") + "\n")
	} else {
		for _, f := range a.findings {
			b.WriteString("  " + formatFinding(f) + "\n")
		}
	}

	if insp.Document != nil && strings.TrimSpace(insp.Document.Body) != "" {
		b.WriteString("\n" + sectionStyle.Render("Instructions") + "\n")
		b.WriteString(renderMarkdown(insp.Document.Body, width))
	}

	return b.String()
}

func (a *App) viewDetail() string {
	if a.inspection == nil {
		return "No workflow selected"
	}

	s := titleStyle.Render(a.inspection.Workflow.Name) + "\n\n"
	s += a.detail.View() + "\n"
	s += helpStyle.Render("[↑/↓] scroll  [e] evaluate  [s] simulate  [esc] back")

	return s
}
