package studio

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/versohq/verso-agent/internal/export"
	"github.com/versohq/verso-agent/internal/render"
)

// EncoderFactory builds a fresh encoder per export job.
type EncoderFactory func() (export.Encoder, export.Prober, error)

type RunnerOptions struct {
	ExportDir string
	FrameRate int
	Width     int
	Height    int
}

// Runner polls the job queue and drives export pipelines. One job runs
// at a time; a running job can be cancelled through CancelJob.
type Runner struct {
	repo         Repository
	encoders     EncoderFactory
	opts         RunnerOptions
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool

	mu     sync.Mutex
	active map[string]*export.Pipeline
}

func NewRunner(repo Repository, encoders EncoderFactory, opts RunnerOptions, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		encoders:     encoders,
		opts:         opts,
		logger:       logger,
		pollInterval: 2 * time.Second,
		active:       make(map[string]*export.Pipeline),
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("export runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("export runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("export runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// CancelJob cancels a pending or running export job. Reports whether
// the job was found in a cancellable state.
func (r *Runner) CancelJob(ctx context.Context, jobID string) bool {
	r.mu.Lock()
	pipeline, isActive := r.active[jobID]
	r.mu.Unlock()

	if isActive {
		pipeline.Cancel()
		return true
	}

	job, err := r.repo.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return false
	}
	if job.Status != JobStatusPending {
		return false
	}
	if err := r.repo.UpdateJobStatus(ctx, jobID, JobStatusCancelled, ""); err != nil {
		r.logger.Error("failed to cancel pending job", "job_id", jobID, "error", err)
		return false
	}
	return true
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	r.logger.Info("processing job", "job_id", job.ID, "type", job.Type)

	switch job.Type {
	case JobTypeExport:
		r.processExportJob(ctx, job)
	default:
		r.logger.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
}

func (r *Runner) processExportJob(ctx context.Context, job *Job) {
	project, err := r.repo.GetProject(ctx, job.ProjectID)
	if err != nil || project == nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "project not found")
		return
	}

	lines, err := r.repo.GetLines(ctx, job.ProjectID)
	if err != nil || len(lines) == 0 {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "project has no lines")
		return
	}

	if err := os.MkdirAll(r.opts.ExportDir, 0755); err != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "cannot create export dir: "+err.Error())
		return
	}
	if err := export.ValidateOutputDir(r.opts.ExportDir); err != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
		return
	}

	encoder, prober, err := r.encoders()
	if err != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "encoder unavailable: "+err.Error())
		return
	}

	outPath := filepath.Join(r.opts.ExportDir, export.ArtifactName(project.Name, project.Style))

	pipeline, err := export.NewPipeline(export.Options{
		Lines:     lines,
		AudioPath: project.AudioPath,
		OutPath:   outPath,
		Mode:      export.Mode(job.Mode),
		FrameRate: r.opts.FrameRate,
		Width:     r.opts.Width,
		Height:    r.opts.Height,
		Style:     project.Style,
		Theme:     render.DefaultTheme(),
		Encoder:   encoder,
		Prober:    prober,
		OnProgress: func(p export.Progress) {
			r.repo.UpdateJobProgress(ctx, job.ID, p.Percent, p.Phase)
		},
		Logger: r.logger.With("job_id", job.ID),
	})
	if err != nil {
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
		return
	}

	r.mu.Lock()
	r.active[job.ID] = pipeline
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, job.ID)
		r.mu.Unlock()
	}()

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")

	artifact, err := pipeline.Run(ctx)
	switch {
	case errors.Is(err, export.ErrCancelled):
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCancelled, "")
		r.logger.Info("export job cancelled", "job_id", job.ID)
	case err != nil:
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, err.Error())
		r.logger.Error("export job failed", "job_id", job.ID, "error", err)
	default:
		r.repo.SetJobOutput(ctx, job.ID, artifact)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
		r.logger.Info("export job completed", "job_id", job.ID, "artifact", artifact)
	}
}

func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}
