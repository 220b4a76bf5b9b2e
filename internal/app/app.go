package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tiliavir/study-timer/internal/config"
	"github.com/Tiliavir/study-timer/internal/httpapi"
)

type App struct {
	httpServer *http.Server
	infra      *Infra
	logger     *slog.Logger
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	infra, err := SetupInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(infra.Service, logger)

	return &App{
		httpServer: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: router,
		},
		infra:  infra,
		logger: logger,
	}, nil
}

// Addr is the configured listen address.
func (a *App) Addr() string { return a.httpServer.Addr }

// Run serves until Shutdown is called.
func (a *App) Run() error {
	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight syncs and closes
// the store.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return a.infra.Close()
}
