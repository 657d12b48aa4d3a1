package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/awinspect/internal/models"
)

// openModelPicker starts choosing a model for an action on the selected
// workflow. Models come from the shared cache.
func (a *App) openModelPicker(kind models.RunKind) tea.Cmd {
	wf, ok := a.selectedWorkflow()
	if !ok {
		return nil
	}

	a.action = kind
	a.returnView = a.view
	a.runWorkflow = wf
	a.modelErr = nil
	a.modelsLoading = true
	a.view = ViewModelPicker

	return tea.Batch(a.loadModels(false), a.spinner.Tick)
}

func (a *App) handleModelPickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		a.view = a.returnView
		a.modelsLoading = false

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.modelIdx > 0 {
			a.modelIdx--
		}

	case "down", "j":
		if a.modelIdx < len(a.chatModels)-1 {
			a.modelIdx++
		}

	case "r":
		a.modelsLoading = true
		a.modelErr = nil
		return a, tea.Batch(a.loadModels(true), a.spinner.Tick)

	case "enter":
		if a.modelsLoading || len(a.chatModels) == 0 {
			return a, nil
		}
		a.chosenModel = a.chatModels[a.modelIdx].ID

		if a.action == models.RunKindSimulation {
			a.input.Reset()
			a.view = ViewSimulationInput
			return a, a.input.Focus()
		}
		return a, a.startRun(a.runWorkflow, a.action, a.chosenModel, "")
	}

	return a, nil
}

func (a *App) handleSimulationInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.input.Blur()
		a.view = ViewModelPicker
		return a, nil

	case "ctrl+c":
		return a, tea.Quit

	case "ctrl+s":
		input := a.input.Value()
		a.input.Blur()
		return a, a.startRun(a.runWorkflow, models.RunKindSimulation, a.chosenModel, input)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) viewModelPicker() string {
	s := titleStyle.Render(fmt.Sprintf("Choose a model to %s %s", actionVerb(a.action), a.runWorkflow.Name)) + "\n\n"

	switch {
	case a.modelsLoading:
		s += a.spinner.View() + " Loading models...\n"
	case a.modelErr != nil:
		s += errorStyle.Render(fmt.Sprintf("Error: %v", a.modelErr)) + "\n"
	case len(a.chatModels) == 0:
		s += "No models available.\n"
	default:
		for i, m := range a.chatModels {
			line := fmt.Sprintf("%-24s %s", m.Name, dimStyle.Render(m.ID))
			if i == a.modelIdx {
				s += selectedStyle.Render("▶ "+fmt.Sprintf("%-24s %s", m.Name, m.ID)) + "\n"
			} else {
				s += "  " + line + "\n"
			}
		}
	}

	s += "\n" + helpStyle.Render("[enter] select  [r] reload models  [esc] back")

	return s
}

func (a *App) viewSimulationInput() string {
	s := titleStyle.Render("Simulate "+a.runWorkflow.Name) + "  " + dimStyle.Render(a.chosenModel) + "\n\n"
	s += "What should the workflow respond to?\n\n"
	s += a.input.View() + "\n\n"
	s += helpStyle.Render("[ctrl+s] run  [esc] back")
	return s
}

func actionVerb(kind models.RunKind) string {
	if kind == models.RunKindSimulation {
		return "simulate"
	}
	return "evaluate"
}
