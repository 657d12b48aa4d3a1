// Package evaluator runs workflows through a model: it assembles the
// import closure into a prompt, streams the model's answer and records the
// run with its report.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"

	"github.com/mpataki/awinspect/internal/imports"
	"github.com/mpataki/awinspect/internal/llm"
	"github.com/mpataki/awinspect/internal/logging"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
	"github.com/mpataki/awinspect/internal/prompt"
	"github.com/mpataki/awinspect/internal/storage"
	"github.com/mpataki/awinspect/internal/workspace"
)

// ErrRootUnreadable is returned when the workflow file itself cannot be
// read, leaving nothing to evaluate.
var ErrRootUnreadable = errors.New("workflow file could not be read")

// ModelNotFoundError is returned when the requested model is not in the
// model cache.
type ModelNotFoundError struct {
	ID string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found in cached models; reload models", e.ID)
}

// Sink receives streamed model output as it arrives.
type Sink func(delta string)

// Notifier sends a desktop notification.
type Notifier func(title, message string) error

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

type Evaluator struct {
	store      *storage.Storage
	reportsDir string
	provider   llm.Provider
	cache      *llm.ModelCache
	resolver   *imports.Resolver
	checks     *lua.Runtime
	checkDirs  []string
	promptsDir string
	claudePath string
	notify     Notifier
	logger     *slog.Logger
}

type Option func(*Evaluator)

// WithPromptsDir sets the directory holding template overrides.
func WithPromptsDir(dir string) Option {
	return func(e *Evaluator) {
		e.promptsDir = dir
	}
}

// WithCheckDirs sets the directories check scripts are loaded from.
func WithCheckDirs(dirs ...string) Option {
	return func(e *Evaluator) {
		e.checkDirs = dirs
	}
}

// WithClaudePath sets the CLI used for resume commands.
func WithClaudePath(path string) Option {
	return func(e *Evaluator) {
		e.claudePath = path
	}
}

// WithNotifier enables completion notifications. Pass nil for the desktop
// default.
func WithNotifier(n Notifier) Option {
	return func(e *Evaluator) {
		if n == nil {
			n = beeepNotify
		}
		e.notify = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func New(store *storage.Storage, reportsDir string, provider llm.Provider, cache *llm.ModelCache, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:      store,
		reportsDir: reportsDir,
		provider:   provider,
		cache:      cache,
		claudePath: "claude",
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = imports.New(imports.WithLogger(e.logger))
	e.checks = lua.NewRuntime(lua.WithLogger(e.logger))
	return e
}

// Models returns the model cache shared with callers.
func (e *Evaluator) Models() *llm.ModelCache {
	return e.cache
}

// Prepared is a workflow assembled into a prompt.
type Prepared struct {
	Files  []models.ResolvedFile
	Block  string
	Prompt string
}

// Prepare resolves the workflow's imports and renders the prompt for kind.
// input is only used for simulations.
func (e *Evaluator) Prepare(wf models.Workflow, kind prompt.Kind, input string) (*Prepared, error) {
	files := e.resolver.Resolve(wf.Path, imports.Visited{})
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRootUnreadable, wf.Path)
	}

	block := prompt.BuildContext(files, filepath.Dir(wf.Path))

	tmpl, err := prompt.LoadTemplate(kind, e.promptsDir)
	if err != nil {
		return nil, err
	}

	var text string
	if kind == prompt.KindSimulation {
		text = prompt.RenderSimulation(tmpl, block, input)
	} else {
		text = prompt.Render(tmpl, block)
	}

	return &Prepared{Files: files, Block: block, Prompt: text}, nil
}

// Evaluate asks the model to review the workflow. Output is streamed to
// sink. A cancelled ctx marks the run cancelled and is not an error.
func (e *Evaluator) Evaluate(ctx context.Context, wf models.Workflow, modelID string, sink Sink) (*models.Run, error) {
	return e.execute(ctx, wf, models.RunKindEvaluation, modelID, "", sink)
}

// Simulate asks the model how the workflow would respond to input.
func (e *Evaluator) Simulate(ctx context.Context, wf models.Workflow, modelID, input string, sink Sink) (*models.Run, error) {
	return e.execute(ctx, wf, models.RunKindSimulation, modelID, input, sink)
}

func (e *Evaluator) execute(ctx context.Context, wf models.Workflow, kind models.RunKind, modelID, input string, sink Sink) (*models.Run, error) {
	logger := e.logger.With("workflow", wf.Name, "kind", kind, "model", modelID)

	prepared, err := e.Prepare(wf, prompt.Kind(kind), input)
	if err != nil {
		return nil, err
	}

	if _, ok := e.cache.Lookup(modelID); !ok {
		return nil, &ModelNotFoundError{ID: modelID}
	}

	run, ws, err := e.startRun(wf, kind, modelID, input, prepared)
	if err != nil {
		return run, err
	}
	logger = logger.With("run_id", run.ID)
	logger.Info("run started", "files", len(prepared.Files))

	events, err := e.provider.Stream(ctx, llm.Request{
		ModelID:   modelID,
		Prompt:    prepared.Prompt,
		SessionID: run.SessionID,
		OnStart: func(pid int) {
			if err := e.store.UpdateRunPID(run.ID, pid); err != nil {
				logger.Warn("failed to record pid", "pid", pid, "error", err)
			}
		},
	})
	if err != nil {
		return run, e.failRun(run, err)
	}

	var streamErr error
	for ev := range events {
		if ev.Err != nil {
			streamErr = ev.Err
			continue
		}
		if sink != nil {
			sink(ev.Delta)
		}
		if err := ws.AppendReport(ev.Delta); err != nil {
			logger.Warn("failed to append report", "error", err)
		}
	}

	if ctx.Err() != nil {
		logger.Info("run cancelled")
		return run, e.finishRun(run, models.RunStatusCancelled, "")
	}

	if streamErr != nil {
		logger.Warn("run failed", "error", streamErr)
		return run, e.failRun(run, streamErr)
	}

	logger.Info("run complete")
	if err := e.finishRun(run, models.RunStatusComplete, ""); err != nil {
		return run, err
	}
	e.sendNotification(run)
	return run, nil
}

// startRun records the run and its report directory. Once the record exists,
// any later failure marks it failed.
func (e *Evaluator) startRun(wf models.Workflow, kind models.RunKind, modelID, input string, prepared *Prepared) (*models.Run, *workspace.Workspace, error) {
	run := &models.Run{
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
		WorkflowName: wf.Name,
		WorkflowPath: wf.Path,
		ModelID:      modelID,
		SessionID:    uuid.NewString(),
		Input:        input,
		Status:       models.RunStatusRunning,
	}

	runID, err := e.store.CreateRun(run)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}
	run.ID = runID

	ws, err := workspace.Create(e.reportsDir, runID)
	if err != nil {
		return run, nil, e.failRun(run, fmt.Errorf("failed to create report directory: %w", err))
	}

	run.ReportPath = ws.Path
	if err := e.store.UpdateRun(run); err != nil {
		return run, nil, e.failRun(run, fmt.Errorf("failed to update run with report path: %w", err))
	}

	if err := ws.WriteContext(prepared.Block); err != nil {
		return run, nil, e.failRun(run, err)
	}

	files := make([]string, 0, len(prepared.Files))
	for _, f := range prepared.Files {
		files = append(files, f.Path)
	}
	meta := &workspace.RunMetadata{
		RunID:        run.ID,
		Kind:         string(kind),
		WorkflowName: wf.Name,
		WorkflowPath: wf.Path,
		ModelID:      modelID,
		SessionID:    run.SessionID,
		Input:        input,
		Files:        files,
		CreatedAt:    run.CreatedAt,
	}
	if err := ws.WriteRunMetadata(meta); err != nil {
		return run, nil, e.failRun(run, err)
	}

	return run, ws, nil
}

func (e *Evaluator) finishRun(run *models.Run, status models.RunStatus, reason string) error {
	now := time.Now().UTC()
	run.Status = status
	run.Error = reason
	run.CompletedAt = &now
	return e.store.UpdateRun(run)
}

// failRun records cause on the run and returns the error reported to the
// caller.
func (e *Evaluator) failRun(run *models.Run, cause error) error {
	err := fmt.Errorf("evaluation failed: %w", cause)
	if updateErr := e.finishRun(run, models.RunStatusFailed, err.Error()); updateErr != nil {
		e.logger.Warn("failed to mark run failed", "run_id", run.ID, "error", updateErr)
	}
	return err
}

func (e *Evaluator) sendNotification(run *models.Run) {
	if e.notify == nil {
		return
	}
	message := fmt.Sprintf("%s %s finished", run.WorkflowName, run.Kind)
	if err := e.notify("awinspect", message); err != nil {
		e.logger.Warn("failed to send notification", "error", err)
	}
}
