// File: cmd/qrcode/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/qrcode-generator/internal/cache"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/notification"
	"github.com/smartdevs17/qrcode-generator/internal/qrcode"
	"github.com/smartdevs17/qrcode-generator/internal/repository"
	"github.com/smartdevs17/qrcode-generator/internal/server"
	"github.com/smartdevs17/qrcode-generator/internal/storage"
	"github.com/smartdevs17/qrcode-generator/internal/viewstate"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Application wires the history store, codec and outer surfaces together
type Application struct {
	config         *config.Config
	logger         *logrus.Entry
	metricsManager *metrics.Manager
	storage        storage.Storage
	repository     *repository.Repository
	cache          cache.Cache
	renderer       *qrcode.Renderer
	decoder        *qrcode.Decoder
	settings       *viewstate.SettingsModel
	notifier       *notification.Notifier
	server         *server.HTTPServer
	startTime      time.Time
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewApplication creates the core components shared by every command
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:    cfg,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.ComponentLogger("app")
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")

	return nil
}

// initializeComponents initializes the components every command needs
func (app *Application) initializeComponents() error {
	app.metricsManager = metrics.NewManagerWithRegistry(prometheus.NewRegistry())

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeCodec(); err != nil {
		return fmt.Errorf("failed to initialize codec: %w", err)
	}

	app.settings = viewstate.NewSettingsModel(app.repository, app.config.UI)
	if err := app.settings.Load(app.ctx); err != nil {
		app.logger.WithError(err).Warn("Failed to load settings")
	}

	app.logger.Debug("Core components initialized")
	return nil
}

// initializeStorage connects and migrates the history database
func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	app.storage = store

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.repository = repository.New(storage.NewStorageWithMetrics(store, app.metricsManager))

	app.logger.WithField("type", app.config.Storage.Type).Debug("Storage initialized")
	return nil
}

// initializeCodec builds the encoder, render cache and decoder
func (app *Application) initializeCodec() error {
	encoder, err := qrcode.NewEncoder(&app.config.QR)
	if err != nil {
		return err
	}

	app.cache, err = cache.New(&app.config.Cache)
	if err != nil {
		// A broken cache never blocks generation
		app.logger.WithError(err).Warn("Render cache unavailable, continuing without it")
		app.cache = cache.NewNoopCache()
	}

	app.renderer = qrcode.NewRenderer(encoder, app.cache, app.config.Cache.TTL, app.metricsManager)
	app.decoder = qrcode.NewDecoder()
	return nil
}

// initializeNotification starts webhook delivery when enabled
func (app *Application) initializeNotification() error {
	if !app.config.Notifications.Enabled {
		return nil
	}

	notifier, err := notification.NewNotifier(&app.config.Notifications, app.repository, app.metricsManager)
	if err != nil {
		return err
	}
	if err := notifier.Start(app.ctx); err != nil {
		return err
	}
	app.notifier = notifier
	return nil
}

// initializeServer creates the HTTP server
func (app *Application) initializeServer() error {
	var err error
	app.server, err = server.NewHTTPServer(&app.config.Server, server.Dependencies{
		Repository:     app.repository,
		Renderer:       app.renderer,
		Decoder:        app.decoder,
		Settings:       app.settings,
		MetricsManager: app.metricsManager,
		MaxUploadBytes: app.config.Scanner.MaxUploadBytes,
		Version:        app.config.App.Version,
	})
	return err
}

// Serve starts notifications and the HTTP server
func (app *Application) Serve() error {
	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if err := app.server.Start(); err != nil {
		return err
	}

	app.logger.WithFields(logrus.Fields{
		"version":        app.config.App.Version,
		"environment":    app.config.App.Environment,
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"storage":        app.config.Storage.Type,
		"cache":          app.config.Cache.Type,
		"webhooks":       len(app.config.Notifications.Webhooks),
	}).Info("QR code service started")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() {
	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.notifier != nil {
		app.notifier.Stop()
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close render cache")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.WithField("uptime", time.Since(app.startTime).Round(time.Millisecond).String()).Debug("Application stopped")
}
