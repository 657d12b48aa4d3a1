package tui

import (
	"context"
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/awinspect/internal/discovery"
	"github.com/mpataki/awinspect/internal/evaluator"
	"github.com/mpataki/awinspect/internal/logging"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
)

// Messages

type workflowsLoadedMsg struct {
	workflows []models.Workflow
	err       error
}

type watchStartedMsg struct {
	changes <-chan struct{}
}

type workflowsChangedMsg struct {
	changes <-chan struct{}
}

type inspectionMsg struct {
	inspection *evaluator.Inspection
	findings   []lua.Finding
	err        error
}

type modelsLoadedMsg struct {
	models []models.ChatModel
	err    error
}

type runDeltaMsg struct {
	ch    chan tea.Msg
	delta string
}

type runFinishedMsg struct {
	ch  chan tea.Msg
	run *models.Run
	err error
}

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type reportLoadedMsg struct {
	run     *models.Run
	content string
	err     error
}

type runKilledMsg struct {
	runID int64
	err   error
}

type runDeletedMsg struct {
	runID int64
	err   error
}

type sessionResumedMsg struct {
	runID int64
	err   error
}

// Commands

func (a *App) loadWorkflows() tea.Msg {
	workflows, err := discovery.Discover(a.workflowsDir)
	return workflowsLoadedMsg{workflows: workflows, err: err}
}

func (a *App) watchWorkflows() tea.Msg {
	changes, err := discovery.Watch(a.ctx, a.workflowsDir)
	if err != nil {
		logging.FromContext(a.ctx).Debug("not watching workflow directory", "dir", a.workflowsDir, "error", err)
		return nil
	}
	return watchStartedMsg{changes: changes}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return workflowsChangedMsg{changes: changes}
	}
}

func (a *App) loadInspection(wf models.Workflow) tea.Cmd {
	return func() tea.Msg {
		insp, err := a.eval.Inspect(wf)
		if err != nil {
			return inspectionMsg{err: err}
		}
		findings, err := a.eval.CheckInspection(a.ctx, insp)
		return inspectionMsg{inspection: insp, findings: findings, err: err}
	}
}

func (a *App) loadModels(force bool) tea.Cmd {
	return func() tea.Msg {
		list, err := a.eval.Models().Get(a.ctx, force)
		return modelsLoadedMsg{models: list, err: err}
	}
}

// startRun begins streaming an evaluation or simulation in the background.
// Leaving the run view cancels it.
func (a *App) startRun(wf models.Workflow, kind models.RunKind, modelID, input string) tea.Cmd {
	ctx, cancel := context.WithCancel(a.ctx)
	ch := make(chan tea.Msg, 64)

	a.runCh = ch
	a.runCancel = cancel
	a.running = true
	a.runWorkflow = wf
	a.runKind = kind
	a.runOutput = ""
	a.runResult = nil
	a.runErr = nil
	a.output.SetContent("")
	a.output.GotoTop()
	a.view = ViewRun

	go func() {
		defer close(ch)

		sink := func(delta string) {
			select {
			case ch <- runDeltaMsg{ch: ch, delta: delta}:
			case <-ctx.Done():
			}
		}

		var run *models.Run
		var err error
		if kind == models.RunKindSimulation {
			run, err = a.eval.Simulate(ctx, wf, modelID, input, sink)
		} else {
			run, err = a.eval.Evaluate(ctx, wf, modelID, sink)
		}
		ch <- runFinishedMsg{ch: ch, run: run, err: err}
	}()

	return tea.Batch(waitForRun(ch), a.spinner.Tick)
}

func waitForRun(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// stopRun cancels the active run, if any, and forgets its output channel.
func (a *App) stopRun() {
	if a.runCancel != nil {
		a.runCancel()
	}
	a.running = false
	a.runCh = nil
}

func (a *App) loadRuns() tea.Msg {
	runs, err := a.eval.ListRuns(a.maxRuns)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) loadReport(run *models.Run) tea.Cmd {
	return func() tea.Msg {
		content, err := a.eval.Report(run.ID)
		return reportLoadedMsg{run: run, content: content, err: err}
	}
}

func (a *App) killRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.eval.KillRun(id); err != nil {
			return runKilledMsg{err: err}
		}
		return runKilledMsg{runID: id}
	}
}

func (a *App) deleteRun(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.eval.DeleteRun(id); err != nil {
			return runDeletedMsg{err: err}
		}
		return runDeletedMsg{runID: id}
	}
}

func (a *App) resumeSession(id int64) tea.Cmd {
	args, err := a.eval.ResumeCommand(id)
	if err != nil {
		return func() tea.Msg { return sessionResumedMsg{runID: id, err: err} }
	}
	cmd := exec.Command(args[0], args[1:]...)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return sessionResumedMsg{runID: id, err: err}
	})
}
