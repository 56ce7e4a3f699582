// Package rodpage drives a real browser page through the Chrome DevTools Protocol.
package rodpage

import (
	"context"
	"fmt"

	"waenhancer/internal/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/sirupsen/logrus"
)

// Connect attaches to the browser at cfg.ControlURL, or launches one. The returned
// cleanup closes the browser and, when launched here, kills the process.
func Connect(ctx context.Context, cfg models.MonitorConfig, logger *logrus.Logger) (*rod.Browser, func(), error) {
	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(cfg.Headless)
		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.UserDataDir != "" {
			// keeps the host session logged in across runs
			l = l.UserDataDir(cfg.UserDataDir)
		}
		url, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
		logger.WithField("headless", cfg.Headless).Info("Launched browser")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}

	cleanup := func() {
		_ = browser.Close()
		if l != nil {
			l.Kill()
		}
	}
	return browser, cleanup, nil
}
