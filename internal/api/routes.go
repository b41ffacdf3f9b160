package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/versohq/verso-agent/internal/config"
	"github.com/versohq/verso-agent/internal/export"
	"github.com/versohq/verso-agent/internal/resolver"
	"github.com/versohq/verso-agent/internal/studio"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))
		r.Post("/projects/{id}/audio", attachAudioHandler(cfg))
		r.Put("/projects/{id}/lyrics", setLyricsHandler(cfg))
		r.Get("/projects/{id}/lines", getLinesHandler(cfg))
		r.Put("/projects/{id}/marks", timingMarksHandler(cfg))
		r.Post("/projects/{id}/align", alignHandler(cfg))
		r.Put("/projects/{id}/style", setStyleHandler(cfg))
		r.Get("/projects/{id}/resolve", resolveHandler(cfg))
		r.Get("/projects/{id}/subtitles", subtitlesHandler(cfg))
		r.Post("/projects/{id}/export", exportHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/jobs/{id}/cancel", cancelJobHandler(cfg))

		r.Get("/playback/audio", playbackHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  config.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.StudioService.GetProjects(ctx)
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Status == studio.JobStatusRunning {
				state = "exporting"
				resp := JobToResponse(j)
				activeJob = &resp
				jobsRunning++
			}
			if j.Status == studio.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:         state,
			LastError:     lastError,
			ProjectsCount: len(projects),
			JobsRunning:   jobsRunning,
			ActiveJob:     activeJob,
		})
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.StudioService.GetProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			lines, _ := cfg.StudioService.GetLines(r.Context(), p.ID)
			resp.Projects[i] = ProjectToResponse(p, len(lines))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		project, err := cfg.StudioService.CreateProject(r.Context(), req.Name)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, ProjectToResponse(project, 0))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := loadProject(w, r, cfg)
		if !ok {
			return
		}
		lines, _ := cfg.StudioService.GetLines(r.Context(), project.ID)
		WriteJSON(w, http.StatusOK, ProjectToResponse(project, len(lines)))
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		if err := cfg.StudioService.RemoveProject(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func attachAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req AttachAudioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		project, err := cfg.StudioService.AttachAudio(r.Context(), id, req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		lines, _ := cfg.StudioService.GetLines(r.Context(), id)
		WriteJSON(w, http.StatusOK, ProjectToResponse(project, len(lines)))
	}
}

func setLyricsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req LyricsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		lines, err := cfg.StudioService.SetLyricsText(r.Context(), id, req.Text)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, LinesResponse{Lines: lines})
	}
}

func getLinesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := loadProject(w, r, cfg)
		if !ok {
			return
		}

		lines, err := cfg.StudioService.GetLines(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, LinesResponse{Lines: lines})
	}
}

func timingMarksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req TimingMarksRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.Marks) == 0 {
			WriteError(w, http.StatusBadRequest, "marks must not be empty", "BAD_REQUEST")
			return
		}

		lines, err := cfg.StudioService.ApplyTimingMarks(r.Context(), id, req.Marks)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, LinesResponse{Lines: lines})
	}
}

func alignHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		lines, err := cfg.StudioService.AlignProject(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, LinesResponse{Lines: lines})
	}
}

func setStyleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req StyleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := cfg.StudioService.SetStyle(r.Context(), id, req.Style); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// resolveHandler evaluates the index resolver at a given playback time,
// so UI clients can preview sync behavior without running a player.
func resolveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := loadProject(w, r, cfg)
		if !ok {
			return
		}

		t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "query parameter t must be a number", "BAD_REQUEST")
			return
		}
		playing := r.URL.Query().Get("playing") != "false"
		ended := r.URL.Query().Get("ended") == "true"

		lines, err := cfg.StudioService.GetLines(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		res := resolver.Resolve(t, lines, playing, ended)
		WriteJSON(w, http.StatusOK, ResolveResponse{
			Time:            t,
			ActiveIndex:     res.ActiveIndex,
			ContinuousIndex: res.ContinuousIndex,
			InGap:           res.InGap,
		})
	}
}

func subtitlesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := loadProject(w, r, cfg)
		if !ok {
			return
		}

		lines, err := cfg.StudioService.GetLines(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if len(lines) == 0 {
			WriteError(w, http.StatusBadRequest, "project has no lyrics", "BAD_REQUEST")
			return
		}

		format := r.URL.Query().Get("format")
		if format == "" {
			format = "srt"
		}

		name := export.SanitizeName(project.Name, 120)
		if name == "" {
			name = "subtitles"
		}

		var body, contentType, ext string
		switch format {
		case "srt":
			body = export.GenerateSRT(lines)
			contentType = "application/x-subrip"
			ext = "srt"
		case "ass":
			body = export.GenerateASS(lines, project.Name)
			contentType = "text/x-ssa"
			ext = "ass"
		default:
			WriteError(w, http.StatusBadRequest, "format must be srt or ass", "BAD_REQUEST")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+ext))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.StudioService.RequestExport(r.Context(), id, req.Mode)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusAccepted, ExportResponse{JobID: job.ID})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		if cfg.Runner == nil {
			WriteError(w, http.StatusInternalServerError, "export runner unavailable", "INTERNAL_ERROR")
			return
		}

		if !cfg.Runner.CancelJob(r.Context(), id) {
			WriteError(w, http.StatusConflict, "job is not pending or running", "NOT_CANCELLABLE")
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.URL.Query().Get("project_id")
		if projectID == "" {
			WriteError(w, http.StatusBadRequest, "project_id is required", "BAD_REQUEST")
			return
		}

		project, err := cfg.StudioService.GetProject(r.Context(), projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if project == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		if !project.AudioPresent || project.AudioPath == "" {
			WriteError(w, http.StatusNotFound, "project audio is not available", "AUDIO_MISSING")
			return
		}

		if err := cfg.AudioServer.ServeAudio(w, r, project.AudioPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "project_id", projectID)
		}
	}
}

func loadProject(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*studio.Project, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
		return nil, false
	}

	project, err := cfg.StudioService.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	if project == nil {
		WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
		return nil, false
	}
	return project, true
}
