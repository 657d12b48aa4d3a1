package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/awinspect/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "awinspect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage_CreateAndGetRun(t *testing.T) {
	s := newTestStorage(t)

	run := &models.Run{
		Kind:         models.RunKindSimulation,
		WorkflowName: "triage",
		WorkflowPath: "/repo/.github/workflows/triage.md",
		ModelID:      "sonnet",
		SessionID:    "session-1",
		Input:        "issue #42 was opened",
	}
	id, err := s.CreateRun(run)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, models.RunKindSimulation, got.Kind)
	assert.Equal(t, models.RunStatusPending, got.Status)
	assert.Equal(t, "triage", got.WorkflowName)
	assert.Equal(t, "sonnet", got.ModelID)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, "issue #42 was opened", got.Input)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.PID)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)
}

func TestStorage_GetRunNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetRun(99)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStorage_UpdateRun(t *testing.T) {
	s := newTestStorage(t)

	run := &models.Run{WorkflowName: "triage", WorkflowPath: "/p", ModelID: "sonnet"}
	id, err := s.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.Error = "evaluation failed: boom"
	run.CompletedAt = &now
	run.ReportPath = "/data/reports/run-1"
	require.NoError(t, s.UpdateRun(run))
	require.NoError(t, s.UpdateRunPID(id, 4242))

	got, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "evaluation failed: boom", got.Error)
	assert.Equal(t, "/data/reports/run-1", got.ReportPath)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.PID)
	assert.Equal(t, 4242, *got.PID)
}

func TestStorage_ListRuns(t *testing.T) {
	s := newTestStorage(t)

	base := time.Now().UTC()
	for i, name := range []string{"first", "second", "third"} {
		_, err := s.CreateRun(&models.Run{
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			WorkflowName: name,
			WorkflowPath: "/p",
			ModelID:      "sonnet",
		})
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].WorkflowName)
	assert.Equal(t, "second", runs[1].WorkflowName)

	all, err := s.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStorage_DeleteRun(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.CreateRun(&models.Run{WorkflowName: "triage", WorkflowPath: "/p", ModelID: "sonnet"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(id))
	_, err = s.GetRun(id)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStorage_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "awinspect.db")

	s, err := New(path)
	require.NoError(t, err)
	id, err := s.CreateRun(&models.Run{WorkflowName: "triage", WorkflowPath: "/p", ModelID: "sonnet"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "triage", got.WorkflowName)
}
