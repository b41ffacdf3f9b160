package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

const maxStderrBytes = 8 * 1024 // stderr tail kept for diagnostics

// EncodeSpec describes one encode run.
type EncodeSpec struct {
	AudioPath string
	OutPath   string
	FrameRate int
	Width     int
	Height    int
}

// Encoder consumes rasterized frames and produces the muxed video
// artifact. Exactly one of Finish or Abort terminates a started run.
type Encoder interface {
	Start(ctx context.Context, spec EncodeSpec) error
	WriteFrame(img image.Image) error
	// Finish flushes remaining frames and waits for the artifact.
	Finish() error
	// Abort stops the encoder immediately and discards its output.
	// Safe to call at any point, including before Start and after
	// Finish.
	Abort()
}

// Prober reports the duration of an audio file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFmpegEncoder muxes a PNG frame stream with the source audio through
// an ffmpeg subprocess (image2pipe on stdin). The output container is
// mp4 with h264 video and aac audio, clipped to the shorter stream so
// artifact duration tracks the audio.
type FFmpegEncoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *limitedWriter
}

// NewFFmpegEncoder resolves the ffmpeg/ffprobe binaries. Empty paths
// fall back to PATH lookup; a missing binary is reported here, before
// any export starts.
func NewFFmpegEncoder(ffmpegPath, ffprobePath string, logger *slog.Logger) (*FFmpegEncoder, error) {
	ffmpeg, err := resolveBinary(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &FFmpegEncoder{ffmpegPath: ffmpeg, ffprobePath: ffprobe, logger: logger}, nil
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func (e *FFmpegEncoder) Start(ctx context.Context, spec EncodeSpec) error {
	if e.cmd != nil {
		return fmt.Errorf("encoder already started")
	}

	fps := strconv.Itoa(spec.FrameRate)
	args := []string{
		"-y",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-framerate", fps,
		"-i", "-",
		"-i", spec.AudioPath,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-c:a", "aac",
		"-shortest",
		spec.OutPath,
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	e.stderr = &limitedWriter{limit: maxStderrBytes}
	cmd.Stderr = e.stderr
	cmd.Stdout = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("cannot open encoder stdin: %w", err)
	}

	e.logger.Info("starting encoder",
		"frame_rate", spec.FrameRate,
		"size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	return nil
}

func (e *FFmpegEncoder) WriteFrame(img image.Image) error {
	if e.stdin == nil {
		return fmt.Errorf("encoder not started")
	}
	if err := png.Encode(e.stdin, img); err != nil {
		return fmt.Errorf("cannot write frame: %w (encoder: %s)", err, e.stderrTail())
	}
	return nil
}

func (e *FFmpegEncoder) Finish() error {
	if e.cmd == nil {
		return fmt.Errorf("encoder not started")
	}
	e.stdin.Close()
	err := e.cmd.Wait()
	cmd := e.cmd
	e.cmd = nil
	e.stdin = nil
	if err != nil {
		return fmt.Errorf("ffmpeg exited %d: %s", cmd.ProcessState.ExitCode(), e.stderrTail())
	}
	e.logger.Info("encode complete")
	return nil
}

func (e *FFmpegEncoder) Abort() {
	if e.cmd == nil {
		return
	}
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
	e.cmd = nil
	e.stdin = nil
	e.logger.Info("encoder aborted")
}

func (e *FFmpegEncoder) stderrTail() string {
	if e.stderr == nil {
		return ""
	}
	return strings.TrimSpace(e.stderr.String())
}

// Duration probes the audio file with ffprobe.
func (e *FFmpegEncoder) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration %v", d)
	}
	return d, nil
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	buf   bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.buf.Write(p)
	if lw.buf.Len() > lw.limit {
		b := lw.buf.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.buf.Reset()
		lw.buf.Write(tail)
	}
	return n, nil
}

func (lw *limitedWriter) String() string { return lw.buf.String() }
