package evaluator

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/awinspect/internal/llm"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
	"github.com/mpataki/awinspect/internal/prompt"
	"github.com/mpataki/awinspect/internal/storage"
	"github.com/mpataki/awinspect/internal/workspace"
)

// fakeProvider streams scripted deltas instead of running a model.
type fakeProvider struct {
	mu       sync.Mutex
	models   []models.ChatModel
	deltas   []string
	err      error
	startErr error
	block    bool
	requests []llm.Request
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]models.ChatModel, error) {
	return f.models, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		if req.OnStart != nil {
			req.OnStart(999999)
		}
		for _, d := range f.deltas {
			select {
			case events <- llm.Event{Delta: d}:
			case <-ctx.Done():
				return
			}
		}
		if f.block {
			<-ctx.Done()
			return
		}
		if f.err != nil {
			events <- llm.Event{Err: f.err}
		}
	}()
	return events, nil
}

func (f *fakeProvider) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

type fixture struct {
	eval       *Evaluator
	store      *storage.Storage
	provider   *fakeProvider
	reportsDir string
	workflow   models.Workflow
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	root := t.TempDir()
	wfDir := filepath.Join(root, ".github", "workflows")
	require.NoError(t, os.MkdirAll(filepath.Join(wfDir, "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "shared", "reporting.md"), []byte("Report in a table."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "triage.md"), []byte(
		"---\non:\n  schedule: \"0 9 * * 1\"\npermissions:\n  issues: write\nimports:\n  - shared/reporting.md\n---\nTriage new issues.\n",
	), 0644))

	store, err := storage.New(filepath.Join(root, "awinspect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider := &fakeProvider{
		models: []models.ChatModel{{ID: "sonnet", Name: "Claude Sonnet"}},
		deltas: []string{"## Summary\n", "Triage ", "looks fine."},
	}
	cache := llm.NewModelCache(provider)
	_, err = cache.Get(context.Background(), false)
	require.NoError(t, err)

	reportsDir := filepath.Join(root, "reports")
	return &fixture{
		eval:       New(store, reportsDir, provider, cache, opts...),
		store:      store,
		provider:   provider,
		reportsDir: reportsDir,
		workflow:   models.Workflow{Name: "triage", Path: filepath.Join(wfDir, "triage.md")},
	}
}

func TestEvaluate_Success(t *testing.T) {
	f := newFixture(t)

	var streamed strings.Builder
	run, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", func(d string) {
		streamed.WriteString(d)
	})
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nTriage looks fine.", streamed.String())

	stored, err := f.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, stored.Status)
	assert.Equal(t, models.RunKindEvaluation, stored.Kind)
	assert.Equal(t, "sonnet", stored.ModelID)
	assert.NotEmpty(t, stored.SessionID)
	assert.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.PID)
	assert.Equal(t, 999999, *stored.PID)

	report, err := f.eval.Report(run.ID)
	require.NoError(t, err)
	assert.Equal(t, streamed.String(), report)

	ws, err := workspace.Open(f.reportsDir, run.ID)
	require.NoError(t, err)
	block, err := ws.ReadContext()
	require.NoError(t, err)
	assert.Equal(t,
		"\n=== File: shared/reporting.md ===\nReport in a table.\n"+
			"\n=== File: triage.md ===\n"+mustRead(t, f.workflow.Path)+"\n",
		block)

	meta, err := ws.ReadRunMetadata()
	require.NoError(t, err)
	assert.Equal(t, stored.SessionID, meta.SessionID)
	assert.Len(t, meta.Files, 2)

	req := f.provider.lastRequest(t)
	assert.Equal(t, "sonnet", req.ModelID)
	assert.Equal(t, stored.SessionID, req.SessionID)
	assert.Contains(t, req.Prompt, block)
	assert.NotContains(t, req.Prompt, prompt.Placeholder)
}

func TestSimulate_AppendsInput(t *testing.T) {
	f := newFixture(t)

	run, err := f.eval.Simulate(context.Background(), f.workflow, "sonnet", "Issue #12: crash on start", nil)
	require.NoError(t, err)

	stored, err := f.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunKindSimulation, stored.Kind)
	assert.Equal(t, "Issue #12: crash on start", stored.Input)

	req := f.provider.lastRequest(t)
	assert.Contains(t, req.Prompt, "## Simulated Input\n\nIssue #12: crash on start\n")
}

func TestEvaluate_ModelNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.eval.Evaluate(context.Background(), f.workflow, "gpt-4", nil)
	require.Error(t, err)
	assert.Equal(t, `model "gpt-4" not found in cached models; reload models`, err.Error())

	var notFound *ModelNotFoundError
	assert.ErrorAs(t, err, &notFound)

	runs, err := f.eval.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs, "no run is recorded")
}

func TestEvaluate_RootUnreadable(t *testing.T) {
	f := newFixture(t)

	missing := models.Workflow{Name: "gone", Path: filepath.Join(t.TempDir(), "gone.md")}
	_, err := f.eval.Evaluate(context.Background(), missing, "sonnet", nil)
	assert.ErrorIs(t, err, ErrRootUnreadable)
}

func TestEvaluate_TemplateError(t *testing.T) {
	promptsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "evaluation.md"), []byte("no placeholder here"), 0644))
	f := newFixture(t, WithPromptsDir(promptsDir))

	_, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	assert.ErrorIs(t, err, prompt.ErrTemplate)
}

func TestEvaluate_TemplateOverride(t *testing.T) {
	promptsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "evaluation.md"), []byte("Review:\n{{CLI_OUTPUT}}\nBe brief."), 0644))
	f := newFixture(t, WithPromptsDir(promptsDir))

	_, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	require.NoError(t, err)

	req := f.provider.lastRequest(t)
	assert.True(t, strings.HasPrefix(req.Prompt, "Review:\n\n=== File: shared/reporting.md ==="))
	assert.True(t, strings.HasSuffix(req.Prompt, "\nBe brief."))
}

func TestEvaluate_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &llm.ProcessError{Message: "Prompt is too long", ExitCode: 1}

	run, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	require.Error(t, err)
	assert.Equal(t, "evaluation failed: Prompt is too long", err.Error())

	stored, err := f.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, "evaluation failed: Prompt is too long", stored.Error)
}

func TestEvaluate_StreamStartFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.startErr = llm.ErrCLINotFound

	run, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	assert.ErrorIs(t, err, llm.ErrCLINotFound)
	require.NotNil(t, run)

	stored, err := f.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
}

func TestEvaluate_ReportDirFailureFinishesRun(t *testing.T) {
	f := newFixture(t)
	// A file where the reports directory should be.
	require.NoError(t, os.WriteFile(f.reportsDir, []byte("x"), 0644))

	run, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report directory")
	require.NotNil(t, run)
	assert.Empty(t, f.provider.requests, "model is not called")

	stored, err := f.store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Contains(t, stored.Error, "failed to create report directory")
}

func TestEvaluate_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.provider.block = true

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan struct{}, 10)

	done := make(chan struct{})
	var run *models.Run
	var err error
	go func() {
		defer close(done)
		run, err = f.eval.Evaluate(ctx, f.workflow, "sonnet", func(string) {
			received <- struct{}{}
		})
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("expected streamed output")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation did not stop after cancel")
	}

	require.NoError(t, err, "cancellation is not an error")
	stored, getErr := f.store.GetRun(run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RunStatusCancelled, stored.Status)
}

func TestEvaluate_Notification(t *testing.T) {
	var titles, messages []string
	notifier := func(title, message string) error {
		titles = append(titles, title)
		messages = append(messages, message)
		return errors.New("no notification daemon")
	}
	f := newFixture(t, WithNotifier(notifier))

	_, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	require.NoError(t, err, "notification failures are only logged")
	assert.Equal(t, []string{"awinspect"}, titles)
	assert.Equal(t, []string{"triage evaluation finished"}, messages)
}

func TestRunManagement(t *testing.T) {
	f := newFixture(t, WithClaudePath("/usr/local/bin/claude"))

	run, err := f.eval.Evaluate(context.Background(), f.workflow, "sonnet", nil)
	require.NoError(t, err)

	runs, err := f.eval.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	cmd, err := f.eval.ResumeCommand(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/local/bin/claude", "--resume", run.SessionID}, cmd)

	err = f.eval.KillRun(run.ID)
	assert.ErrorContains(t, err, "already complete")

	require.NoError(t, f.eval.DeleteRun(run.ID))
	_, err = f.eval.GetRun(run.ID)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
	_, err = os.Stat(run.ReportPath)
	assert.True(t, os.IsNotExist(err))
}

func TestKillRun_KillsProcessGroup(t *testing.T) {
	f := newFixture(t)

	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())

	id, err := f.store.CreateRun(&models.Run{
		WorkflowName: "triage",
		WorkflowPath: f.workflow.Path,
		ModelID:      "sonnet",
		Status:       models.RunStatusRunning,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateRunPID(id, cmd.Process.Pid))

	require.NoError(t, f.eval.KillRun(id))

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	select {
	case err := <-waitErr:
		assert.Error(t, err, "sleep should die from SIGKILL")
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("process was not killed")
	}

	stored, err := f.store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, "killed", stored.Error)
}

func TestInspectAndCheck(t *testing.T) {
	checkDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(checkDir, "write-perms.lua"), []byte(`
function check(wf)
  if wf.frontmatter.permissions and wf.frontmatter.permissions.issues == "write" then
    warn("issues: write")
  end
  if wf.files[1] ~= "shared/reporting.md" then fail("unexpected first file " .. wf.files[1]) end
end
`), 0644))
	f := newFixture(t, WithCheckDirs(checkDir))

	insp, err := f.eval.Inspect(f.workflow)
	require.NoError(t, err)
	require.NotNil(t, insp.Document)
	assert.Equal(t, []string{"on", "permissions", "imports"}, insp.Document.Keys)
	require.Len(t, insp.Fields, 3)
	assert.Equal(t, "on", insp.Fields[0].Key)
	require.Len(t, insp.Files, 2)
	assert.Equal(t, "shared/reporting.md", insp.RelativePath(insp.Files[0].Path))

	findings, err := f.eval.Check(context.Background(), f.workflow)
	require.NoError(t, err)
	assert.Equal(t, []lua.Finding{{Script: "write-perms", Level: lua.LevelWarn, Message: "issues: write"}}, findings)
}

func TestCheck_MalformedFrontmatter(t *testing.T) {
	f := newFixture(t, WithCheckDirs(t.TempDir()))

	path := filepath.Join(filepath.Dir(f.workflow.Path), "broken.md")
	require.NoError(t, os.WriteFile(path, []byte("---\non: [\n---\nbody\n"), 0644))
	wf := models.Workflow{Name: "broken", Path: path}

	insp, err := f.eval.Inspect(wf)
	require.NoError(t, err)
	assert.Nil(t, insp.Document)
	assert.Error(t, insp.ParseErr)
	require.Len(t, insp.Files, 1, "malformed frontmatter means no imports")

	findings, err := f.eval.Check(context.Background(), wf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, lua.LevelFail, findings[0].Level)
	assert.Equal(t, "frontmatter", findings[0].Script)
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
