package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/versohq/verso-agent/internal/studio"
)

type Tray struct {
	studioSvc studio.StudioService
	runner    *studio.Runner
	logger    *slog.Logger

	statusItem   *systray.MenuItem
	projectsItem *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu sync.Mutex

	onOpenStudio func() error
	onQuit       func()
}

type TrayConfig struct {
	StudioService studio.StudioService
	Runner        *studio.Runner
	Logger        *slog.Logger
	OnOpenStudio  func() error
	OnQuit        func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		studioSvc:    cfg.StudioService,
		runner:       cfg.Runner,
		logger:       cfg.Logger,
		onOpenStudio: cfg.OnOpenStudio,
		onQuit:       cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Verso")
	systray.SetTooltip("Verso Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem("Projects: 0", "Lyric projects")
	t.projectsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Exports", "Pause the export queue")

	openStudioItem := systray.AddMenuItem("Open Studio...", "Open the studio UI in a browser")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Verso Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openStudioItem.ClickedCh:
				t.handleOpenStudio()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Exports")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Exports")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleOpenStudio() {
	if t.onOpenStudio != nil {
		if err := t.onOpenStudio(); err != nil {
			t.logger.Error("failed to open studio", "error", err)
		}
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) UpdateProjectsCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.projectsItem.SetTitle(fmt.Sprintf("Projects: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
