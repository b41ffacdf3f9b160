// Package export renders a timed lyric sequence into a video artifact
// muxed with the source audio, and serializes subtitle files. The
// pipeline is a small state machine: Idle → Initializing →
// (Recording | FrameStepping) → Encoding → Completed, with Cancelled
// reachable from every non-terminal state and Failed from everything
// but Completed. Entering a terminal state runs teardown exactly once.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/versohq/verso-agent/internal/lyrics"
	"github.com/versohq/verso-agent/internal/render"
	"github.com/versohq/verso-agent/internal/resolver"
	"github.com/versohq/verso-agent/internal/transport"
)

// Mode selects how the pipeline drives the clock.
type Mode string

const (
	// ModeFrameStepped evaluates frame i at exactly i/frameRate and is
	// bit-for-bit reproducible regardless of host speed.
	ModeFrameStepped Mode = "frame_stepped"
	// ModeRealTime samples a live transport at the frame interval;
	// wall-clock accurate but subject to render jitter.
	ModeRealTime Mode = "real_time"
)

// State is the export lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateInitializing  State = "initializing"
	StateRecording     State = "recording"
	StateFrameStepping State = "frame_stepping"
	StateEncoding      State = "encoding"
	StateCompleted     State = "completed"
	StateCancelled     State = "cancelled"
	StateFailed        State = "failed"
)

// ErrCancelled is returned by Run when the export was cancelled.
// Cancellation is an expected outcome, not a failure.
var ErrCancelled = errors.New("export cancelled")

// FailureKind classifies terminal export failures; remediation differs
// per kind.
type FailureKind string

const (
	FailEnvironment FailureKind = "environment" // encoder/codec unavailable
	FailFetch       FailureKind = "fetch"       // audio could not be read
	FailEncode      FailureKind = "encode"      // encoder rejected the run
)

// Error is the single terminal error an export attempt surfaces.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("export failed (%s): %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Progress is reported to the caller at a bounded rate. Percent is
// monotonically non-decreasing within one run.
type Progress struct {
	Percent int    `json:"percent"`
	Phase   string `json:"phase"`
}

const (
	progressMinInterval = 200 * time.Millisecond
	renderShare         = 95 // % of the bar spent rendering; the rest is encode flush
)

// Options configures one export run.
type Options struct {
	Lines     []lyrics.Line
	AudioPath string
	OutPath   string
	Mode      Mode
	FrameRate int
	Width     int
	Height    int
	Style     string
	Theme     render.Theme

	// Transport is the live preview clock. Required for ModeRealTime;
	// optional for ModeFrameStepped, where it is only snapshotted and
	// restored so the preview comes back untouched.
	Transport transport.Transport

	Encoder    Encoder
	Prober     Prober
	OnProgress func(Progress)
	Logger     *slog.Logger
}

// Pipeline executes one export. A pipeline is single-use: Run may be
// called once; Cancel may be called at any time from any goroutine.
type Pipeline struct {
	opts     Options
	renderer render.Renderer

	mu    sync.Mutex
	state State

	cancelled atomic.Bool
	teardown  sync.Once

	snapshot    *transport.Snapshot
	workDir     string
	encStarted  bool
	encFinished bool

	lastEmit    time.Time
	lastPercent int
}

// NewPipeline validates options and prepares a pipeline in StateIdle.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.AudioPath == "" {
		return nil, fmt.Errorf("audio path is required")
	}
	if opts.OutPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Encoder == nil || opts.Prober == nil {
		return nil, fmt.Errorf("encoder and prober are required")
	}
	if opts.Mode == ModeRealTime && opts.Transport == nil {
		return nil, fmt.Errorf("real-time mode requires a transport")
	}
	if opts.Mode != ModeRealTime && opts.Mode != ModeFrameStepped {
		return nil, fmt.Errorf("unknown export mode %q", opts.Mode)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	renderer, err := render.NewRenderer(opts.Style)
	if err != nil {
		return nil, err
	}

	return &Pipeline{opts: opts, renderer: renderer, state: StateIdle}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel requests cooperative cancellation. Safe to call from any
// state and any goroutine; calls after the first (or after completion)
// are no-ops.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

// Run executes the export and returns the artifact path. A cancelled
// run returns ErrCancelled; failures return *Error. Teardown (resource
// release, transport restore, partial artifact removal) runs exactly
// once on every exit path.
func (p *Pipeline) Run(ctx context.Context) (string, error) {
	if !p.setState(StateInitializing, StateIdle) {
		return "", fmt.Errorf("pipeline already ran")
	}
	p.emit(Progress{Percent: 0, Phase: "initializing"})

	if p.opts.Transport != nil {
		snap := transport.TakeSnapshot(p.opts.Transport)
		p.snapshot = &snap
		// The capture run owns the transport until teardown.
		p.opts.Transport.SetMuted(true)
	}

	duration, err := p.initialize(ctx)
	if err != nil {
		return "", p.fail(err)
	}
	if p.cancelled.Load() {
		return "", p.cancel()
	}

	switch p.opts.Mode {
	case ModeFrameStepped:
		p.setState(StateFrameStepping, StateInitializing)
		err = p.stepFrames(ctx, duration)
	case ModeRealTime:
		p.setState(StateRecording, StateInitializing)
		err = p.recordRealTime(ctx, duration)
	}
	if err != nil {
		return "", p.fail(err)
	}
	if p.cancelled.Load() {
		return "", p.cancel()
	}

	p.setState(StateEncoding, StateFrameStepping, StateRecording)
	p.emit(Progress{Percent: renderShare, Phase: "encoding"})

	if err := p.opts.Encoder.Finish(); err != nil {
		return "", p.fail(&Error{Kind: FailEncode, Err: err})
	}
	p.encFinished = true
	if p.cancelled.Load() {
		return "", p.cancel()
	}

	p.setState(StateCompleted, StateEncoding)
	p.emitFinal(Progress{Percent: 100, Phase: "completed"})
	p.runTeardown(true)

	p.opts.Logger.Info("export completed", "out", p.opts.OutPath, "mode", string(p.opts.Mode))
	return p.opts.OutPath, nil
}

// initialize fetches the audio, probes its duration and starts the
// encoder. Any failure here is terminal for the attempt.
func (p *Pipeline) initialize(ctx context.Context) (float64, error) {
	// The audio is fetched once as a byte buffer and staged into the
	// work dir; the encoder never touches the library file.
	audio, err := os.ReadFile(p.opts.AudioPath)
	if err != nil {
		return 0, &Error{Kind: FailFetch, Err: err}
	}
	if len(audio) == 0 {
		return 0, &Error{Kind: FailFetch, Err: fmt.Errorf("audio file %s is empty", p.opts.AudioPath)}
	}

	workDir, err := os.MkdirTemp("", "verso-export-")
	if err != nil {
		return 0, &Error{Kind: FailEnvironment, Err: err}
	}
	p.workDir = workDir

	staged := filepath.Join(workDir, "audio"+filepath.Ext(p.opts.AudioPath))
	if err := os.WriteFile(staged, audio, 0o644); err != nil {
		return 0, &Error{Kind: FailEnvironment, Err: err}
	}

	duration, err := p.opts.Prober.Duration(ctx, staged)
	if err != nil {
		return 0, &Error{Kind: FailFetch, Err: err}
	}

	spec := EncodeSpec{
		AudioPath: staged,
		OutPath:   p.opts.OutPath,
		FrameRate: p.opts.FrameRate,
		Width:     p.opts.Width,
		Height:    p.opts.Height,
	}
	if err := p.opts.Encoder.Start(ctx, spec); err != nil {
		return 0, &Error{Kind: FailEnvironment, Err: err}
	}
	p.encStarted = true

	return duration, nil
}

// stepFrames renders every frame at its authoritative time i/frameRate.
func (p *Pipeline) stepFrames(ctx context.Context, duration float64) error {
	fps := float64(p.opts.FrameRate)
	total := int(math.Ceil(duration * fps))

	for i := 0; i < total; i++ {
		if p.cancelled.Load() || ctx.Err() != nil {
			p.cancelled.Store(true)
			return nil
		}

		t := float64(i) / fps
		if err := p.renderFrame(t); err != nil {
			return &Error{Kind: FailEncode, Err: err}
		}

		p.emit(Progress{
			Percent: int(float64(i+1) / float64(total) * renderShare),
			Phase:   "rendering frames",
		})
	}
	return nil
}

// recordRealTime plays the transport and samples it at the frame
// interval until the track ends or the run is cancelled.
func (p *Pipeline) recordRealTime(ctx context.Context, duration float64) error {
	tr := p.opts.Transport

	ended := make(chan struct{})
	var endOnce sync.Once
	tr.OnEnded(func() { endOnce.Do(func() { close(ended) }) })

	tr.Seek(0)
	tr.SetRate(1)
	tr.Play()

	interval := time.Duration(float64(time.Second) / float64(p.opts.FrameRate))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.cancelled.Store(true)
			return nil
		case <-ended:
			return nil
		case <-ticker.C:
			if p.cancelled.Load() {
				return nil
			}
			pos := tr.Position()
			if err := p.renderFrame(pos); err != nil {
				return &Error{Kind: FailEncode, Err: err}
			}
			if pos >= duration {
				return nil
			}
			p.emit(Progress{
				Percent: int(pos / duration * renderShare),
				Phase:   "recording",
			})
		}
	}
}

func (p *Pipeline) renderFrame(t float64) error {
	res := resolver.Resolve(t, p.opts.Lines, true, false)
	frame := p.renderer.Frame(t, res, p.opts.Lines)
	img := render.Rasterize(frame, p.opts.Theme, p.opts.Width, p.opts.Height)
	return p.opts.Encoder.WriteFrame(img)
}

// cancel moves the pipeline to Cancelled and tears down. Not an error
// path: the caller gets ErrCancelled, no error-level logging happens.
func (p *Pipeline) cancel() error {
	p.forceState(StateCancelled)
	p.runTeardown(false)
	p.opts.Logger.Info("export cancelled", "out", p.opts.OutPath)
	return ErrCancelled
}

// fail moves the pipeline to Failed and tears down. The returned error
// is the single user-facing report for this attempt.
func (p *Pipeline) fail(err error) error {
	if p.cancelled.Load() {
		// Cancellation raced the failure; the user asked to stop, so
		// report that instead.
		return p.cancel()
	}
	p.forceState(StateFailed)
	p.runTeardown(false)
	p.opts.Logger.Error("export failed", "error", err)
	return err
}

// runTeardown releases everything the run acquired, in a fixed order,
// exactly once: encoder, staging dir, transport state, partial
// artifact. keepArtifact is true only on completion.
func (p *Pipeline) runTeardown(keepArtifact bool) {
	p.teardown.Do(func() {
		if p.encStarted && !p.encFinished {
			p.opts.Encoder.Abort()
		}
		if p.workDir != "" {
			os.RemoveAll(p.workDir)
		}
		if p.snapshot != nil {
			p.snapshot.Restore(p.opts.Transport)
		}
		if !keepArtifact {
			os.Remove(p.opts.OutPath)
		}
	})
}

// setState transitions to next if the current state is one of from;
// reports whether the transition happened.
func (p *Pipeline) setState(next State, from ...State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range from {
		if p.state == f {
			p.state = next
			return true
		}
	}
	return false
}

func (p *Pipeline) forceState(next State) {
	p.mu.Lock()
	p.state = next
	p.mu.Unlock()
}

// emit reports progress at a bounded rate. Percent never decreases and
// nothing is emitted after cancellation.
func (p *Pipeline) emit(pr Progress) {
	if p.opts.OnProgress == nil || p.cancelled.Load() {
		return
	}
	now := time.Now()
	if now.Sub(p.lastEmit) < progressMinInterval && pr.Percent < 100 {
		return
	}
	if pr.Percent < p.lastPercent {
		pr.Percent = p.lastPercent
	}
	p.lastEmit = now
	p.lastPercent = pr.Percent
	p.opts.OnProgress(pr)
}

// emitFinal bypasses rate limiting so terminal progress always lands.
func (p *Pipeline) emitFinal(pr Progress) {
	if p.opts.OnProgress == nil || p.cancelled.Load() {
		return
	}
	if pr.Percent < p.lastPercent {
		pr.Percent = p.lastPercent
	}
	p.lastPercent = pr.Percent
	p.opts.OnProgress(pr)
}
