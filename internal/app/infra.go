package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tiliavir/study-timer/internal/bridge"
	"github.com/Tiliavir/study-timer/internal/config"
	"github.com/Tiliavir/study-timer/internal/notion"
	"github.com/Tiliavir/study-timer/internal/resolver"
	"github.com/Tiliavir/study-timer/internal/storage"
	"github.com/Tiliavir/study-timer/internal/tracker"
)

// Infra holds the wired dependencies shared by the CLI and the server.
type Infra struct {
	Store   storage.Store
	Bridge  *bridge.Bridge
	Service *tracker.Service
}

// Close waits for pending syncs and releases the store.
func (i *Infra) Close() error {
	i.Service.Wait()
	return i.Store.Close()
}

// StoreOptions translates the store config section.
func StoreOptions(cfg config.StoreConfig) storage.Options {
	return storage.Options{
		Driver:        cfg.Driver,
		Path:          cfg.Path,
		DSN:           cfg.DSN,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}
}

// NewBridge builds the Notion bridge. It is unconfigured unless both token
// and database id are set.
func NewBridge(ctx context.Context, cfg config.NotionConfig, logger *slog.Logger) *bridge.Bridge {
	bcfg := bridge.Config{
		DatabaseID:    cfg.DatabaseID,
		TagDatabaseID: cfg.TagDatabaseID,
		TagName:       cfg.TagName,
		TagProperty:   cfg.TagProperty,
		DefaultTitle:  cfg.DefaultTitle,
	}
	if !cfg.Enabled() {
		return bridge.New(nil, bcfg, logger)
	}
	client := notion.NewClient(ctx, cfg.Token,
		notion.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	return bridge.New(client, bcfg, logger)
}

// SetupInfra opens the store and wires resolver, bridge and service.
func SetupInfra(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Infra, error) {
	store, err := storage.Open(ctx, StoreOptions(cfg.Store))
	if err != nil {
		return nil, err
	}
	logger.Debug("store ready", "driver", cfg.Store.Driver)

	b := NewBridge(ctx, cfg.Notion, logger)
	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithSyncWait(time.Duration(cfg.Server.SyncWaitSeconds) * time.Second),
	}
	if b.Configured() {
		opts = append(opts, tracker.WithSyncer(b))
		logger.Debug("notion sync enabled", "database_id", cfg.Notion.DatabaseID)
	}

	r := resolver.New(store, resolver.WithLogger(logger))
	return &Infra{
		Store:   store,
		Bridge:  b,
		Service: tracker.New(store, r, opts...),
	}, nil
}
