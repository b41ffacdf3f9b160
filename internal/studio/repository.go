package studio

import (
	"context"
	"database/sql"
	"time"

	"github.com/versohq/verso-agent/internal/lyrics"
)

type Repository interface {
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByAudioPath(ctx context.Context, path string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error
	UpdateProjectAudio(ctx context.Context, id, audioPath string, duration float64) error
	UpdateProjectAudioPresent(ctx context.Context, id string, present bool) error
	UpdateProjectStyle(ctx context.Context, id, style string) error

	ReplaceLines(ctx context.Context, projectID string, lines []lyrics.Line) error
	GetLines(ctx context.Context, projectID string) ([]lyrics.Line, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int, phase string) error
	SetJobOutput(ctx context.Context, id, outputPath string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, audio_path, audio_present, track_duration, style, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.AudioPath, boolToInt(p.AudioPresent), p.TrackDuration, p.Style,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, audio_path, audio_present, track_duration, style, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	return r.scanProject(row)
}

func (r *SQLiteRepository) GetProjectByAudioPath(ctx context.Context, path string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, audio_path, audio_present, track_duration, style, created_at, updated_at
		FROM projects WHERE audio_path = ?
	`, path)
	return r.scanProject(row)
}

func (r *SQLiteRepository) scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var present int
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.AudioPath, &present, &p.TrackDuration, &p.Style, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.AudioPresent = present == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, audio_path, audio_present, track_duration, style, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var present int
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Name, &p.AudioPath, &present, &p.TrackDuration, &p.Style, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.AudioPresent = present == 1
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateProjectAudio(ctx context.Context, id, audioPath string, duration float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET audio_path = ?, audio_present = 1, track_duration = ?, updated_at = datetime('now')
		WHERE id = ?
	`, audioPath, duration, id)
	return err
}

func (r *SQLiteRepository) UpdateProjectAudioPresent(ctx context.Context, id string, present bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET audio_present = ?, updated_at = datetime('now') WHERE id = ?
	`, boolToInt(present), id)
	return err
}

func (r *SQLiteRepository) UpdateProjectStyle(ctx context.Context, id, style string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET style = ?, updated_at = datetime('now') WHERE id = ?
	`, style, id)
	return err
}

// ReplaceLines swaps the full line set for a project in one transaction.
// Line order is the sequence order used by the resolver.
func (r *SQLiteRepository) ReplaceLines(ctx context.Context, projectID string, lines []lyrics.Line) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM lines WHERE project_id = ?", projectID); err != nil {
		return err
	}

	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lines (project_id, seq, text, start_sec, end_sec)
			VALUES (?, ?, ?, ?, ?)
		`, projectID, i, line.Text, line.Start, line.End); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE projects SET updated_at = datetime('now') WHERE id = ?", projectID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetLines(ctx context.Context, projectID string) ([]lyrics.Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT text, start_sec, end_sec FROM lines WHERE project_id = ? ORDER BY seq
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []lyrics.Line
	for rows.Next() {
		var l lyrics.Line
		if err := rows.Scan(&l.Text, &l.Start, &l.End); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, type, status, progress, phase, mode, output_path, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.ProjectID, j.Type, j.Status, j.Progress, j.Phase, j.Mode, j.OutputPath, j.Error,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, type, status, progress, phase, mode, output_path, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.ProjectID, &j.Type, &j.Status, &j.Progress, &j.Phase, &j.Mode, &j.OutputPath, &j.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, type, status, progress, phase, mode, output_path, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, type, status, progress, phase, mode, output_path, error, created_at, updated_at
		FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Type, &j.Status, &j.Progress, &j.Phase, &j.Mode, &j.OutputPath, &j.Error, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, errorMsg, id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int, phase string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, phase = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, phase, id)
	return err
}

func (r *SQLiteRepository) SetJobOutput(ctx context.Context, id, outputPath string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET output_path = ?, updated_at = datetime('now') WHERE id = ?
	`, outputPath, id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
