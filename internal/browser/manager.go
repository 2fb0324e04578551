// Package browser owns the Chrome process and adapts Rod pages to the
// engine-agnostic Page interface the pipeline consumes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"permitwatch/internal/config"
)

// Manager launches or attaches to a Chrome instance and hands out pages.
// One manager serves one pipeline run; teardown is guaranteed by the
// pipeline's cleanup phase.
type Manager struct {
	cfg        config.BrowserConfig
	log        *zap.Logger
	browser    *rod.Browser
	controlURL string
}

func NewManager(cfg config.BrowserConfig, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one using Rod's
// launcher.
func (m *Manager) Start(ctx context.Context) error {
	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	m.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// NewPage opens a fresh page in an incognito context, with the stealth
// profile applied when configured, and returns the engine-agnostic wrapper.
func (m *Manager) NewPage(ctx context.Context) (Page, error) {
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	var page *rod.Page
	if m.cfg.UseStealth() {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.log.Warn("failed to set viewport", zap.Error(err))
	}

	return newRodPage(page.Context(ctx)), nil
}

// Shutdown closes the underlying browser. Safe to call on a manager that
// never started.
func (m *Manager) Shutdown() error {
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	m.controlURL = ""
	m.log.Info("browser shutdown complete")
	return err
}
