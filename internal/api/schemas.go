package api

import (
	"time"

	"github.com/versohq/verso-agent/internal/lyrics"
	"github.com/versohq/verso-agent/internal/studio"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State         string       `json:"state"`
	LastError     string       `json:"last_error,omitempty"`
	ProjectsCount int          `json:"projects_count"`
	JobsRunning   int          `json:"jobs_running"`
	ActiveJob     *JobResponse `json:"active_job,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type ProjectResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	AudioPath     string  `json:"audio_path,omitempty"`
	AudioPresent  bool    `json:"audio_present"`
	TrackDuration float64 `json:"track_duration"`
	Style         string  `json:"style"`
	LineCount     int     `json:"line_count"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type AttachAudioRequest struct {
	Path string `json:"path"`
}

type LyricsRequest struct {
	Text string `json:"text"`
}

type TimingMarksRequest struct {
	Marks []float64 `json:"marks"`
}

type StyleRequest struct {
	Style string `json:"style"`
}

type LinesResponse struct {
	Lines []lyrics.Line `json:"lines"`
}

type ResolveResponse struct {
	Time            float64 `json:"time"`
	ActiveIndex     int     `json:"active_index"`
	ContinuousIndex float64 `json:"continuous_index"`
	InGap           bool    `json:"in_gap"`
}

type ExportRequest struct {
	Mode string `json:"mode,omitempty"`
}

type ExportResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id,omitempty"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Phase      string `json:"phase,omitempty"`
	Mode       string `json:"mode"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *studio.Project, lineCount int) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		AudioPath:     p.AudioPath,
		AudioPresent:  p.AudioPresent,
		TrackDuration: p.TrackDuration,
		Style:         p.Style,
		LineCount:     lineCount,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *studio.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		ProjectID:  j.ProjectID,
		Type:       j.Type,
		Status:     j.Status,
		Progress:   j.Progress,
		Phase:      j.Phase,
		Mode:       j.Mode,
		OutputPath: j.OutputPath,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}
