package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	contextFile = "context.md"
	reportFile  = "report.md"
	metaFile    = "run.json"
)

// Workspace is the report directory of a single run.
type Workspace struct {
	Path string
}

type RunMetadata struct {
	RunID        int64     `json:"run_id"`
	Kind         string    `json:"kind"`
	WorkflowName string    `json:"workflow_name"`
	WorkflowPath string    `json:"workflow_path"`
	ModelID      string    `json:"model_id"`
	SessionID    string    `json:"session_id"`
	Input        string    `json:"input,omitempty"`
	Files        []string  `json:"files"`
	CreatedAt    time.Time `json:"created_at"`
}

func runDir(baseDir string, runID int64) string {
	return filepath.Join(baseDir, fmt.Sprintf("run-%d", runID))
}

func Create(baseDir string, runID int64) (*Workspace, error) {
	path := runDir(baseDir, runID)

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	// Start with an empty report so readers never see a missing file.
	if err := os.WriteFile(filepath.Join(path, reportFile), nil, 0644); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	return &Workspace{Path: path}, nil
}

func Open(baseDir string, runID int64) (*Workspace, error) {
	path := runDir(baseDir, runID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("report directory for run %d does not exist", runID)
	}

	return &Workspace{Path: path}, nil
}

// WriteContext stores the assembled context block sent with the prompt.
func (w *Workspace) WriteContext(block string) error {
	if err := os.WriteFile(filepath.Join(w.Path, contextFile), []byte(block), 0644); err != nil {
		return fmt.Errorf("failed to write context: %w", err)
	}
	return nil
}

func (w *Workspace) ReadContext() (string, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, contextFile))
	if err != nil {
		return "", fmt.Errorf("failed to read context: %w", err)
	}
	return string(data), nil
}

// AppendReport adds streamed model output to report.md.
func (w *Workspace) AppendReport(delta string) error {
	f, err := os.OpenFile(filepath.Join(w.Path, reportFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(delta); err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}
	return nil
}

func (w *Workspace) ReadReport() (string, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, reportFile))
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}

func (w *Workspace) WriteRunMetadata(meta *RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(w.Path, metaFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write run.json: %w", err)
	}

	return nil
}

func (w *Workspace) ReadRunMetadata() (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(w.Path, metaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read run.json: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse run.json: %w", err)
	}
	return &meta, nil
}

// Remove deletes the report directory. Removing a missing directory is not
// an error.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Path)
}
