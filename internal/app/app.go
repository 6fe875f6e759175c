package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"parcel/internal/api"
	"parcel/internal/client"
	"parcel/internal/config"
	"parcel/internal/event"
	"parcel/internal/hostapi"
	"parcel/internal/notify"
	"parcel/internal/service"
	"parcel/internal/store"
	"parcel/internal/upload"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger *zap.Logger
	store  *store.DB
	bus    *event.Bus

	host     *hostapi.Client
	uploader *upload.Uploader

	uploadService *service.UploadService
	statsService  *service.StatsService

	httpServer *http.Server
	router     *api.Router

	wg           sync.WaitGroup
	stopNotifier context.CancelFunc
}

// New wires the application. ctx bounds the HTTP client used to reach the
// file host.
func New(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	bus := event.NewBus()

	host := hostapi.New(ctx, cfg.Server, cfg.Token, l, client.FromConfig(cfg)...)
	uploader := upload.New(host.Sender(), l,
		upload.WithChunkSize(cfg.ChunkSize),
		upload.WithPipeCapacity(cfg.PipeCapacity),
	)

	us := service.NewUploadService(s, uploader, bus, host.Destination(), service.Options{
		StreamThreshold: cfg.StreamThreshold,
		MaxUploads:      cfg.MaxUploads,
	}, l)
	ss := service.NewStatsService(s, us)

	// API
	router := api.NewRouter(cfg.APIKey, cfg.AllowedOrigins, l)
	router.MountV1(router.V1(api.Handlers{
		Uploads: api.NewUploadHandler(us, cfg.UploadRoot),
		Stats:   api.NewStatsHandler(ss),
		Events:  api.NewEventHandler(bus),
		WS:      api.NewWSHandler(bus, l, api.OriginPatterns(cfg.AllowedOrigins)...),
	}))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		config:        cfg,
		logger:        l.With(zap.String("component", "app")),
		store:         s,
		bus:           bus,
		host:          host,
		uploader:      uploader,
		uploadService: us,
		statsService:  ss,
		httpServer:    srv,
		router:        router,
	}, nil
}

func (a *App) Events() *event.Bus {
	return a.bus
}

// Addr is the address the control API listens on.
func (a *App) Addr() string {
	return a.httpServer.Addr
}

func (a *App) Handler() http.Handler {
	return a.router.Handler()
}

// Start resets stale history and, when a server is configured, subscribes
// to its event stream.
func (a *App) Start(ctx context.Context) error {
	if err := a.uploadService.Start(ctx); err != nil {
		return err
	}
	if a.config.Server == "" {
		return nil
	}

	ln, err := notify.NewListener(a.config.Server, a.config.Token, a.bus, a.logger)
	if err != nil {
		a.logger.Warn("server events disabled", zap.Error(err))
		return nil
	}
	nctx, cancel := context.WithCancel(ctx)
	a.stopNotifier = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := ln.Listen(nctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("server events stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) StartServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("control API listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server closed", zap.Error(err))
		}
	}()
}

// Stop shuts the HTTP server down, cancels uploads in flight and closes
// the history database.
func (a *App) Stop() {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown", zap.Error(err))
	}

	if a.stopNotifier != nil {
		a.stopNotifier()
	}
	a.uploadService.Stop()
	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.logger.Warn("close history", zap.Error(err))
	}
}

// Close releases resources for commands that never called Start.
func (a *App) Close() error {
	a.uploadService.Stop()
	return a.store.Close()
}

// Run serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.config.CheckExposure(); err != nil {
		a.Close()
		return err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return err
	}
	a.StartServer()

	<-ctx.Done()
	a.Stop()
	return nil
}
