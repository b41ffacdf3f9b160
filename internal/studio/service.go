package studio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/versohq/verso-agent/internal/align"
	"github.com/versohq/verso-agent/internal/export"
	"github.com/versohq/verso-agent/internal/lyrics"
	"github.com/versohq/verso-agent/internal/render"
)

type StudioService interface {
	CreateProject(ctx context.Context, name string) (*Project, error)
	RemoveProject(ctx context.Context, id string) error
	GetProjects(ctx context.Context) ([]*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetLines(ctx context.Context, projectID string) ([]lyrics.Line, error)
	AttachAudio(ctx context.Context, projectID, path string) (*Project, error)
	SetLyricsText(ctx context.Context, projectID, text string) ([]lyrics.Line, error)
	ApplyTimingMarks(ctx context.Context, projectID string, marks []float64) ([]lyrics.Line, error)
	AlignProject(ctx context.Context, projectID string) ([]lyrics.Line, error)
	SetStyle(ctx context.Context, projectID, style string) error
	RequestExport(ctx context.Context, projectID, mode string) (*Job, error)
}

type Service struct {
	repo    Repository
	aligner align.Aligner
	prober  export.Prober
	logger  *slog.Logger
}

func NewService(repo Repository, aligner align.Aligner, prober export.Prober, logger *slog.Logger) *Service {
	return &Service{repo: repo, aligner: aligner, prober: prober, logger: logger}
}

func (s *Service) CreateProject(ctx context.Context, name string) (*Project, error) {
	if lyrics.NormalizeText(name) == "" {
		return nil, fmt.Errorf("project name is required")
	}

	now := time.Now()
	project := &Project{
		ID:        NewID(),
		Name:      lyrics.NormalizeText(name),
		Style:     render.StyleScroll,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("project created", "project_id", project.ID, "name", project.Name)
	}
	return project, nil
}

func (s *Service) RemoveProject(ctx context.Context, id string) error {
	return s.repo.DeleteProject(ctx, id)
}

func (s *Service) GetProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *Service) GetLines(ctx context.Context, projectID string) ([]lyrics.Line, error) {
	return s.repo.GetLines(ctx, projectID)
}

// AttachAudio links an audio file to the project and probes its
// duration. The duration anchors timing derivation and export length.
func (s *Service) AttachAudio(ctx context.Context, projectID, path string) (*Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("audio file does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("audio path is a directory")
	}
	if !IsAudioFile(absPath) {
		return nil, fmt.Errorf("unsupported audio format %q", filepath.Ext(absPath))
	}

	duration, err := s.prober.Duration(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot probe audio duration: %w", err)
	}

	if err := s.repo.UpdateProjectAudio(ctx, projectID, absPath, duration); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("audio attached", "project_id", projectID, "duration", duration)
	}
	return s.repo.GetProject(ctx, projectID)
}

// SetLyricsText replaces the project's lines with the given raw text,
// one line per non-empty text row, all timings reset to zero.
func (s *Service) SetLyricsText(ctx context.Context, projectID, text string) ([]lyrics.Line, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}

	texts := lyrics.SplitText(text)
	lines := make([]lyrics.Line, len(texts))
	for i, t := range texts {
		lines[i] = lyrics.Line{Text: t}
	}

	if err := s.repo.ReplaceLines(ctx, projectID, lines); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("lyrics updated", "project_id", projectID, "line_count", len(lines))
	}
	return lines, nil
}

// ApplyTimingMarks derives line windows from tap-along timestamps: mark
// i starts line i, the next mark ends it, and the last line runs to the
// end of the track.
func (s *Service) ApplyTimingMarks(ctx context.Context, projectID string, marks []float64) ([]lyrics.Line, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}
	if project.TrackDuration <= 0 {
		return nil, fmt.Errorf("project has no audio attached")
	}

	existing, err := s.repo.GetLines(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("project has no lyrics")
	}

	texts := make([]string, len(existing))
	for i, l := range existing {
		texts[i] = l.Text
	}

	lines := lyrics.DeriveTiming(texts, marks, project.TrackDuration)
	if err := lyrics.Validate(lines); err != nil {
		return nil, fmt.Errorf("derived timing invalid: %w", err)
	}

	if err := s.repo.ReplaceLines(ctx, projectID, lines); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("timing marks applied", "project_id", projectID, "mark_count", len(marks))
	}
	return lines, nil
}

// AlignProject times the project's lines against its audio using the
// configured aligner.
func (s *Service) AlignProject(ctx context.Context, projectID string) ([]lyrics.Line, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}
	if !project.AudioPresent || project.AudioPath == "" {
		return nil, fmt.Errorf("project has no audio attached")
	}

	existing, err := s.repo.GetLines(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("project has no lyrics")
	}

	texts := make([]string, len(existing))
	for i, l := range existing {
		texts[i] = l.Text
	}

	lines, err := s.aligner.Align(ctx, project.AudioPath, texts, project.TrackDuration)
	if err != nil {
		return nil, err
	}
	if err := lyrics.Validate(lines); err != nil {
		return nil, fmt.Errorf("aligner output invalid: %w", err)
	}

	if err := s.repo.ReplaceLines(ctx, projectID, lines); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("project aligned", "project_id", projectID, "line_count", len(lines))
	}
	return lines, nil
}

func (s *Service) SetStyle(ctx context.Context, projectID, style string) error {
	if _, err := render.NewRenderer(style); err != nil {
		return err
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project not found")
	}

	return s.repo.UpdateProjectStyle(ctx, projectID, style)
}

// RequestExport enqueues an export job for the runner. Only the
// deterministic frame-stepped mode runs through the queue; real-time
// capture is driven by the live preview player.
func (s *Service) RequestExport(ctx context.Context, projectID, mode string) (*Job, error) {
	if mode == "" {
		mode = string(export.ModeFrameStepped)
	}
	if mode != string(export.ModeFrameStepped) {
		return nil, fmt.Errorf("unsupported queued export mode %q", mode)
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project not found")
	}
	if !project.AudioPresent || project.AudioPath == "" {
		return nil, fmt.Errorf("project has no audio attached")
	}

	lines, err := s.repo.GetLines(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("project has no lyrics")
	}
	if err := lyrics.Validate(lines); err != nil {
		return nil, fmt.Errorf("project lines are invalid: %w", err)
	}
	if lyrics.TotalDuration(lines) <= 0 {
		return nil, fmt.Errorf("project lines are not timed")
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		ProjectID: projectID,
		Type:      JobTypeExport,
		Status:    JobStatusPending,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("export job created", "job_id", job.ID, "project_id", projectID)
	}
	return job, nil
}
