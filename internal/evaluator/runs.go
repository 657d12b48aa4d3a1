package evaluator

import (
	"fmt"
	"syscall"

	"github.com/mpataki/awinspect/internal/models"
	"github.com/mpataki/awinspect/internal/workspace"
)

// Read methods for the TUI and CLI

func (e *Evaluator) ListRuns(limit int) ([]*models.Run, error) {
	return e.store.ListRuns(limit)
}

func (e *Evaluator) GetRun(id int64) (*models.Run, error) {
	return e.store.GetRun(id)
}

// Report returns the model output recorded for a run so far.
func (e *Evaluator) Report(id int64) (string, error) {
	ws, err := workspace.Open(e.reportsDir, id)
	if err != nil {
		return "", err
	}
	return ws.ReadReport()
}

// KillRun stops a running model process, possibly started by another
// awinspect process, and marks the run failed.
func (e *Evaluator) KillRun(id int64) error {
	run, err := e.store.GetRun(id)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.Status.Finished() {
		return fmt.Errorf("run %d is already %s", id, run.Status)
	}

	if run.PID != nil {
		// Kill the process group to ensure child processes are also killed
		if err := syscall.Kill(-*run.PID, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("failed to kill run %d: %w", id, err)
		}
	}

	e.logger.Info("run killed", "run_id", id)
	return e.finishRun(run, models.RunStatusFailed, "killed")
}

// DeleteRun removes a run's report directory and record.
func (e *Evaluator) DeleteRun(id int64) error {
	run, err := e.store.GetRun(id)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if !run.Status.Finished() && run.PID != nil {
		syscall.Kill(-*run.PID, syscall.SIGKILL)
	}

	if run.ReportPath != "" {
		ws := &workspace.Workspace{Path: run.ReportPath}
		if err := ws.Remove(); err != nil {
			return fmt.Errorf("failed to remove report directory: %w", err)
		}
	}

	return e.store.DeleteRun(id)
}

// ResumeCommand returns the command line that continues a run's model
// session interactively.
func (e *Evaluator) ResumeCommand(id int64) ([]string, error) {
	run, err := e.store.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run.SessionID == "" {
		return nil, fmt.Errorf("run %d has no session to resume", id)
	}
	return []string{e.claudePath, "--resume", run.SessionID}, nil
}
