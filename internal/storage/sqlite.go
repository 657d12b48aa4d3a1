package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpataki/awinspect/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL DEFAULT 'evaluation',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		workflow_name TEXT NOT NULL,
		workflow_path TEXT NOT NULL,
		model_id TEXT NOT NULL,
		session_id TEXT,
		input TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		report_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Migration: add pid column if it doesn't exist
	s.db.Exec(`ALTER TABLE runs ADD COLUMN pid INTEGER`)

	return nil
}

const runColumns = `id, kind, created_at, completed_at, workflow_name, workflow_path, model_id,
	session_id, input, status, error, report_path, pid`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var completedAt sql.NullTime
	var sessionID, input, runErr sql.NullString
	var pid sql.NullInt64

	err := row.Scan(
		&run.ID, &run.Kind, &run.CreatedAt, &completedAt, &run.WorkflowName, &run.WorkflowPath,
		&run.ModelID, &sessionID, &input, &run.Status, &runErr, &run.ReportPath, &pid,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.SessionID = sessionID.String
	run.Input = input.String
	run.Error = runErr.String
	if pid.Valid {
		p := int(pid.Int64)
		run.PID = &p
	}

	return &run, nil
}

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Kind == "" {
		run.Kind = models.RunKindEvaluation
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	result, err := s.db.Exec(
		`INSERT INTO runs (kind, created_at, workflow_name, workflow_path, model_id, session_id, input, status, report_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Kind, run.CreatedAt, run.WorkflowName, run.WorkflowPath, run.ModelID,
		run.SessionID, run.Input, run.Status, run.ReportPath,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return result.LastInsertId()
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Storage) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, error = ?, report_path = ?, session_id = ? WHERE id = ?`,
		run.CompletedAt, run.Status, run.Error, run.ReportPath, run.SessionID, run.ID,
	)
	return err
}

func (s *Storage) UpdateRunPID(id int64, pid int) error {
	_, err := s.db.Exec(`UPDATE runs SET pid = ? WHERE id = ?`, pid, id)
	return err
}

// ListRuns returns the newest runs first. A non-positive limit returns all
// runs.
func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *Storage) DeleteRun(id int64) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}
