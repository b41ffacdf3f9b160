// Package studio holds the project catalog: lyric projects, their timed
// lines and the export job queue.
package studio

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/versohq/verso-agent/internal/lyrics"
)

type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AudioPath     string    `json:"audio_path,omitempty"`
	AudioPresent  bool      `json:"audio_present"`
	TrackDuration float64   `json:"track_duration"`
	Style         string    `json:"style"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	JobTypeExport = "export"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

type Job struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id,omitempty"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Phase      string    `json:"phase,omitempty"`
	Mode       string    `json:"mode"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

func NewID() string {
	return lyrics.NewID()
}

func IsAudioFile(filename string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(filename))]
}
