package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/versohq/verso-agent/internal/align"
	"github.com/versohq/verso-agent/internal/api"
	"github.com/versohq/verso-agent/internal/config"
	"github.com/versohq/verso-agent/internal/db"
	"github.com/versohq/verso-agent/internal/export"
	"github.com/versohq/verso-agent/internal/logging"
	"github.com/versohq/verso-agent/internal/playback"
	"github.com/versohq/verso-agent/internal/studio"
	"github.com/versohq/verso-agent/internal/ui"
	"github.com/versohq/verso-agent/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ExportDir(), 0755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting verso agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := studio.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                     VERSO AGENT v" + config.Version + "                     ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	encoder, err := export.NewFFmpegEncoder(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	var aligner align.Aligner
	if cfg.AlignerURL() != "" {
		aligner = align.NewHTTPAligner(cfg.AlignerURL(), cfg.AlignerToken(), cfg.AlignerTimeout(), logger)
		logger.Info("forced alignment enabled", "base_url", cfg.AlignerURL())
	} else {
		aligner = align.NewStubAligner(logger)
	}

	studioSvc := studio.NewService(repo, aligner, encoder, logger)
	playbackSvc := playback.NewServer(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	encoders := studio.EncoderFactory(func() (export.Encoder, export.Prober, error) {
		return encoder, encoder, nil
	})
	runner := studio.NewRunner(repo, encoders, studio.RunnerOptions{
		ExportDir: cfg.ExportDir(),
		FrameRate: cfg.FrameRate(),
		Width:     cfg.Width(),
		Height:    cfg.Height(),
	}, logger)
	go runner.Start(ctx)

	if cfg.LibraryDir() != "" {
		go watchLibrary(ctx, cfg.LibraryDir(), repo, logger)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port(),
		StudioService: studioSvc,
		AudioServer:   playbackSvc,
		Repository:    repo,
		Runner:        runner,
		Logger:        logger,
		StartTime:     startTime,
		DeviceID:      deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			StudioService: studioSvc,
			Runner:        runner,
			Logger:        logger,
			OnOpenStudio: func() error {
				logger.Info("open studio requested from tray (browser launch not implemented in v0)")
				return nil
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// watchLibrary tracks the audio library directory and flips the
// audio_present flag on projects whose backing file appears or goes
// away, so stale paths surface in the UI instead of failing mid-export.
func watchLibrary(ctx context.Context, dir string, repo studio.Repository, logger *slog.Logger) {
	w := watcher.NewFSWatcher(logger)
	w.OnChange(func(path string, event watcher.EventType) {
		if !studio.IsAudioFile(path) {
			return
		}

		project, err := repo.GetProjectByAudioPath(ctx, path)
		if err != nil || project == nil {
			return
		}

		present := event != watcher.EventDelete
		if project.AudioPresent == present {
			return
		}

		if err := repo.UpdateProjectAudioPresent(ctx, project.ID, present); err != nil {
			logger.Error("failed to update audio presence", "error", err, "project_id", project.ID)
			return
		}
		logger.Info("library change detected",
			"project_id", project.ID,
			"path", logging.SanitizePath(path),
			"present", present,
		)
	})

	if err := w.Watch(ctx, dir); err != nil {
		logger.Warn("library watcher stopped", "error", err, "dir", logging.SanitizePath(dir))
	}
}

func ensureDeviceID(repo studio.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo studio.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
