// Package align produces line-level timings for lyric text against an
// audio track. The HTTP aligner delegates to a hosted forced-alignment
// service; the stub distributes lines evenly across the track so the
// rest of the app works without credentials.
package align

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/versohq/verso-agent/internal/lyrics"
)

// Aligner returns one timed line per input text, in input order.
type Aligner interface {
	Align(ctx context.Context, audioPath string, texts []string, trackDuration float64) ([]lyrics.Line, error)
}

// AlignError represents an error response from the alignment endpoint.
type AlignError struct {
	StatusCode int
	Body       string
}

func (e *AlignError) Error() string {
	return fmt.Sprintf("alignment failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *AlignError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type alignRequest struct {
	AudioPath string   `json:"audio_path"`
	Duration  float64  `json:"duration"`
	Texts     []string `json:"texts"`
}

type alignResponse struct {
	Lines []lyrics.Line `json:"lines"`
}

// HTTPAligner calls the hosted alignment service.
type HTTPAligner struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPAligner(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPAligner {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPAligner{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *HTTPAligner) SetDeviceID(id string) {
	a.deviceID = id
}

func (a *HTTPAligner) Align(ctx context.Context, audioPath string, texts []string, trackDuration float64) ([]lyrics.Line, error) {
	body, err := json.Marshal(alignRequest{AudioPath: audioPath, Duration: trackDuration, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal align request: %w", err)
	}

	url := fmt.Sprintf("%s/api/align/lines", a.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("X-Verso-Request-Id", generateRequestID())
	if a.deviceID != "" {
		req.Header.Set("X-Verso-Device-Id", a.deviceID)
	}

	a.logger.Info("requesting alignment",
		"url", url,
		"line_count", len(texts),
		"duration", trackDuration,
	)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AlignError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result alignResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode align response: %w", err)
	}
	if len(result.Lines) != len(texts) {
		return nil, fmt.Errorf("aligner returned %d lines for %d texts", len(result.Lines), len(texts))
	}

	a.logger.Info("alignment succeeded", "line_count", len(result.Lines))
	return result.Lines, nil
}

// StubAligner distributes lines evenly across the track duration.
type StubAligner struct {
	logger *slog.Logger
}

func NewStubAligner(logger *slog.Logger) *StubAligner {
	return &StubAligner{logger: logger}
}

func (s *StubAligner) Align(ctx context.Context, audioPath string, texts []string, trackDuration float64) ([]lyrics.Line, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if trackDuration <= 0 {
		return nil, fmt.Errorf("track duration must be positive")
	}

	if s.logger != nil {
		s.logger.Info("align stub: distributing lines evenly", "line_count", len(texts))
	}

	per := trackDuration / float64(len(texts))
	lines := make([]lyrics.Line, len(texts))
	for i, text := range texts {
		lines[i] = lyrics.Line{
			Text:  lyrics.NormalizeText(text),
			Start: float64(i) * per,
			End:   float64(i+1) * per,
		}
	}
	lines[len(lines)-1].End = trackDuration
	return lines, nil
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
