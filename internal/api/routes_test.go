package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/versohq/verso-agent/internal/align"
	"github.com/versohq/verso-agent/internal/db"
	"github.com/versohq/verso-agent/internal/playback"
	"github.com/versohq/verso-agent/internal/studio"
)

const testToken = "test-token"

type stubProber struct {
	duration float64
}

func (p stubProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.duration, nil
}

func setupTestRouter(t *testing.T) (*chi.Mux, studio.Repository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := studio.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), "auth_token", testToken); err != nil {
		t.Fatalf("failed to seed auth token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := studio.NewService(repo, align.NewStubAligner(nil), stubProber{duration: 10}, logger)
	runner := studio.NewRunner(repo, nil, studio.RunnerOptions{ExportDir: t.TempDir()}, logger)

	cfg := ServerConfig{
		Port:          0,
		StudioService: svc,
		AudioServer:   playback.NewServer(logger),
		Repository:    repo,
		Runner:        runner,
		Logger:        logger,
		StartTime:     time.Now(),
		DeviceID:      "test-device",
	}
	return NewRouter(cfg), repo
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode JSON body %q: %v", rr.Body.String(), err)
	}
	return body
}

func createTestProject(t *testing.T, router http.Handler, name string) string {
	t.Helper()
	rr := doRequest(t, router, http.MethodPost, "/projects", CreateProjectRequest{Name: name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("create project response missing id")
	}
	return id
}

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
		t.Fatalf("failed to write audio file: %v", err)
	}
	return path
}

// prepareTimedProject runs a project through the full authoring flow:
// create, attach audio, set lyrics, apply timing marks.
func prepareTimedProject(t *testing.T, router http.Handler) string {
	t.Helper()
	id := createTestProject(t, router, "Test Song")

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: writeTestAudio(t)})
	if rr.Code != http.StatusOK {
		t.Fatalf("attach audio status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodPut, "/projects/"+id+"/lyrics", LyricsRequest{Text: "Hello there\nGoodbye now"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set lyrics status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodPut, "/projects/"+id+"/marks", TimingMarksRequest{Marks: []float64{0, 5}})
	if rr.Code != http.StatusOK {
		t.Fatalf("apply marks status = %d, body = %s", rr.Code, rr.Body.String())
	}
	return id
}

func TestHealth_NoAuthRequired(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["device_id"] != "test-device" {
		t.Errorf("device_id = %v, want test-device", body["device_id"])
	}
}

func TestAuth_Rejections(t *testing.T) {
	router, _ := setupTestRouter(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"wrong token", "Bearer wrong-token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			body := decodeJSONBody(t, rr)
			if body["code"] != "UNAUTHORIZED" {
				t.Errorf("error code = %v, want UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestStatus_Idle(t *testing.T) {
	router, _ := setupTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
}

func TestProjectLifecycle(t *testing.T) {
	router, _ := setupTestRouter(t)

	id := createTestProject(t, router, "My Song")

	rr := doRequest(t, router, http.MethodGet, "/projects", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	projects, ok := body["projects"].([]interface{})
	if !ok || len(projects) != 1 {
		t.Fatalf("projects = %v, want one entry", body["projects"])
	}

	rr = doRequest(t, router, http.MethodGet, "/projects/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	body = decodeJSONBody(t, rr)
	if body["name"] != "My Song" {
		t.Errorf("name = %v, want My Song", body["name"])
	}
	if body["style"] != "scroll" {
		t.Errorf("style = %v, want scroll (default)", body["style"])
	}

	rr = doRequest(t, router, http.MethodDelete, "/projects/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doRequest(t, router, http.MethodGet, "/projects/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCreateProject_EmptyName(t *testing.T) {
	router, _ := setupTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/projects", CreateProjectRequest{Name: "   "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAttachAudio_UpdatesDuration(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Audio Test")

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: writeTestAudio(t)})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	body := decodeJSONBody(t, rr)
	if got, _ := body["audio_present"].(bool); !got {
		t.Error("audio_present = false, want true")
	}
	if got, _ := body["track_duration"].(float64); got != 10 {
		t.Errorf("track_duration = %v, want 10", got)
	}
}

func TestAttachAudio_MissingFile(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Audio Test")

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: "/nonexistent/song.mp3"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestLyricsAndMarks(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/lines", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get lines status = %d", rr.Code)
	}

	body := decodeJSONBody(t, rr)
	lines, ok := body["lines"].([]interface{})
	if !ok || len(lines) != 2 {
		t.Fatalf("lines = %v, want two entries", body["lines"])
	}

	first := lines[0].(map[string]interface{})
	if first["text"] != "Hello there" {
		t.Errorf("first line text = %v, want Hello there", first["text"])
	}
	if first["start"].(float64) != 0 || first["end"].(float64) != 5 {
		t.Errorf("first line window = [%v, %v), want [0, 5)", first["start"], first["end"])
	}

	second := lines[1].(map[string]interface{})
	if second["start"].(float64) != 5 || second["end"].(float64) != 10 {
		t.Errorf("second line window = [%v, %v), want [5, 10)", second["start"], second["end"])
	}
}

func TestTimingMarks_EmptyRejected(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Marks Test")

	rr := doRequest(t, router, http.MethodPut, "/projects/"+id+"/marks", TimingMarksRequest{Marks: []float64{}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAlign_StubAligner(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Align Test")

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: writeTestAudio(t)})
	if rr.Code != http.StatusOK {
		t.Fatalf("attach audio status = %d", rr.Code)
	}
	rr = doRequest(t, router, http.MethodPut, "/projects/"+id+"/lyrics", LyricsRequest{Text: "one\ntwo\nthree\nfour"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set lyrics status = %d", rr.Code)
	}

	rr = doRequest(t, router, http.MethodPost, "/projects/"+id+"/align", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("align status = %d, body = %s", rr.Code, rr.Body.String())
	}

	body := decodeJSONBody(t, rr)
	lines := body["lines"].([]interface{})
	if len(lines) != 4 {
		t.Fatalf("aligned lines = %d, want 4", len(lines))
	}
	last := lines[3].(map[string]interface{})
	if last["end"].(float64) != 10 {
		t.Errorf("last line end = %v, want track duration 10", last["end"])
	}
}

func TestSetStyle(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Style Test")

	rr := doRequest(t, router, http.MethodPut, "/projects/"+id+"/style", StyleRequest{Style: "karaoke"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d, body = %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/projects/"+id, nil)
	body := decodeJSONBody(t, rr)
	if body["style"] != "karaoke" {
		t.Errorf("style = %v, want karaoke", body["style"])
	}

	rr = doRequest(t, router, http.MethodPut, "/projects/"+id+"/style", StyleRequest{Style: "disco"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown style status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestResolveEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/resolve?t=2.5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	body := decodeJSONBody(t, rr)
	if got := body["active_index"].(float64); got != 0 {
		t.Errorf("active_index at t=2.5 = %v, want 0", got)
	}
	if got := body["in_gap"].(bool); got {
		t.Error("in_gap at t=2.5 = true, want false")
	}

	rr = doRequest(t, router, http.MethodGet, "/projects/"+id+"/resolve?t=7.0", nil)
	body = decodeJSONBody(t, rr)
	if got := body["active_index"].(float64); got != 1 {
		t.Errorf("active_index at t=7.0 = %v, want 1", got)
	}
}

func TestResolveEndpoint_BadTime(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/resolve?t=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSubtitles_SRT(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/subtitles", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-subrip" {
		t.Errorf("Content-Type = %q, want application/x-subrip", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, ".srt") {
		t.Errorf("Content-Disposition = %q, want .srt filename", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "1\n") {
		t.Errorf("SRT body should start with cue index 1, got %q", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Hello there") {
		t.Error("SRT body missing first line text")
	}
}

func TestSubtitles_ASS(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/subtitles?format=ass", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/x-ssa" {
		t.Errorf("Content-Type = %q, want text/x-ssa", ct)
	}
	if !strings.Contains(rr.Body.String(), "[Script Info]") {
		t.Error("ASS body missing [Script Info] section")
	}
}

func TestSubtitles_BadFormat(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/subtitles?format=vtt", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSubtitles_NoLyrics(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Empty")

	rr := doRequest(t, router, http.MethodGet, "/projects/"+id+"/subtitles", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestExport_QueueAndCancel(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/export", ExportRequest{})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("export status = %d, want %d, body = %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("export response missing job_id")
	}

	rr = doRequest(t, router, http.MethodGet, "/jobs/"+jobID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get job status = %d", rr.Code)
	}
	body = decodeJSONBody(t, rr)
	if body["status"] != "pending" {
		t.Errorf("job status = %v, want pending", body["status"])
	}
	if body["mode"] != "frame_stepped" {
		t.Errorf("job mode = %v, want frame_stepped", body["mode"])
	}

	rr = doRequest(t, router, http.MethodGet, "/jobs", nil)
	body = decodeJSONBody(t, rr)
	jobs, ok := body["jobs"].([]interface{})
	if !ok || len(jobs) != 1 {
		t.Fatalf("jobs = %v, want one entry", body["jobs"])
	}

	rr = doRequest(t, router, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want %d", rr.Code, http.StatusAccepted)
	}

	rr = doRequest(t, router, http.MethodGet, "/jobs/"+jobID, nil)
	body = decodeJSONBody(t, rr)
	if body["status"] != "cancelled" {
		t.Errorf("job status after cancel = %v, want cancelled", body["status"])
	}

	rr = doRequest(t, router, http.MethodPost, "/jobs/"+jobID+"/cancel", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want %d", rr.Code, http.StatusConflict)
	}
	body = decodeJSONBody(t, rr)
	if body["code"] != "NOT_CANCELLABLE" {
		t.Errorf("error code = %v, want NOT_CANCELLABLE", body["code"])
	}
}

func TestExport_UntimedRejected(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Untimed")

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: writeTestAudio(t)})
	if rr.Code != http.StatusOK {
		t.Fatalf("attach audio status = %d", rr.Code)
	}
	rr = doRequest(t, router, http.MethodPut, "/projects/"+id+"/lyrics", LyricsRequest{Text: "untimed line"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set lyrics status = %d", rr.Code)
	}

	rr = doRequest(t, router, http.MethodPost, "/projects/"+id+"/export", ExportRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestExport_RealTimeModeRejected(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := prepareTimedProject(t, router)

	rr := doRequest(t, router, http.MethodPost, "/projects/"+id+"/export", ExportRequest{Mode: "real_time"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/jobs/no-such-job", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestPlaybackAudio(t *testing.T) {
	router, _ := setupTestRouter(t)
	id := createTestProject(t, router, "Playback Test")

	rr := doRequest(t, router, http.MethodGet, "/playback/audio", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing project_id status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(t, router, http.MethodGet, "/playback/audio?project_id=nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown project status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = doRequest(t, router, http.MethodGet, "/playback/audio?project_id="+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("no-audio project status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "AUDIO_MISSING" {
		t.Errorf("error code = %v, want AUDIO_MISSING", body["code"])
	}

	rr = doRequest(t, router, http.MethodPost, "/projects/"+id+"/audio", AttachAudioRequest{Path: writeTestAudio(t)})
	if rr.Code != http.StatusOK {
		t.Fatalf("attach audio status = %d", rr.Code)
	}

	rr = doRequest(t, router, http.MethodGet, "/playback/audio?project_id="+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("playback status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != "not really audio" {
		t.Errorf("playback body = %q, want file contents", rr.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	id := rr.Header().Get("X-Request-ID")
	if len(id) != 8 {
		t.Errorf("X-Request-ID = %q, want 8 characters", id)
	}
}
