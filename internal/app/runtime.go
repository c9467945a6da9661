// Package app assembles the shared backend pieces the entry points run on.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/database"
	"diagdesk/internal/domain"
	"diagdesk/internal/events"
	"diagdesk/internal/gateway"
	"diagdesk/internal/google"
	"diagdesk/internal/logging"
	"diagdesk/internal/models"
	"diagdesk/internal/repository"
	"diagdesk/internal/service"
	"diagdesk/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Runtime is everything a front end needs to serve dashboards.
type Runtime struct {
	Config     *config.Config
	Redis      *redis.Client
	Storage    domain.LocalStorage
	Gateway    *gateway.Client
	Bus        *events.EventBus
	Worker     *worker.SheetsWorker
	Workspaces *service.Workspaces

	sqlite *database.DB
	logger *zerolog.Logger
}

// Build connects storage, the backend gateway and the optional Sheets mirror.
// Redis is dialed whenever an address is configured; it is only required
// when it backs local storage.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, logger: logging.Component(logger, "runtime")}

	if cfg.Redis.Address != "" {
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			_ = client.Close()
			if cfg.Storage.Driver == "redis" {
				return nil, err
			}
			rt.logger.Warn().Err(err).Msg("Redis unavailable, continuing without it")
		} else {
			rt.Redis = client
		}
	}

	if err := rt.openStorage(logger); err != nil {
		rt.Close()
		return nil, err
	}

	rt.Gateway = gateway.New(cfg.Backend, logger)
	rt.Bus = events.NewEventBus(logger)
	service.RegisterSubscribers(rt.Bus, logger)

	var syncer domain.SyncWorker
	if cfg.Google.CredentialsFile != "" && cfg.Google.SpreadsheetID != "" {
		sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, logger)
		if err != nil {
			rt.logger.Error().Err(err).Msg("Google Sheets disabled")
		} else {
			rt.Worker = worker.NewSheetsWorker(rt.Gateway, sheets, rt.Redis, worker.DefaultRetryPolicy(), logger)
			syncer = rt.Worker
		}
	}

	rt.Workspaces = service.NewWorkspaces(rt.Storage, rt.Gateway, cfg.Booking, rt.Bus, syncer, logger)
	return rt, nil
}

func (rt *Runtime) openStorage(logger *zerolog.Logger) error {
	cfg := rt.Config.Storage
	switch cfg.Driver {
	case "sqlite":
		db, err := database.NewDB(cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("open local storage: %w", err)
		}
		rt.sqlite = db
		rt.Storage = db
	case "redis":
		if rt.Redis == nil {
			return errors.New("storage.driver=redis needs a reachable Redis")
		}
		prefix := cfg.KeyPrefix
		if prefix == "" {
			prefix = rt.Config.App.Name + ":"
		}
		rt.Storage = repository.NewRedisStorage(rt.Redis, prefix, 0)
	default:
		rt.Storage = repository.NewMemoryStorage()
	}
	rt.logger.Info().Str("driver", cfg.Driver).Msg("Local storage ready")
	return nil
}

// StartWorker runs the Sheets worker until ctx is done. It is a no-op
// without a Sheets configuration.
func (rt *Runtime) StartWorker(ctx context.Context) {
	if rt.Worker != nil {
		go rt.Worker.Start(ctx)
	}
}

// Probe reports whether the durable storage answers.
func (rt *Runtime) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rt.sqlite != nil {
		if err := rt.sqlite.PingContext(ctx); err != nil {
			return err
		}
	}
	if rt.Config.Storage.Driver == "redis" && rt.Redis != nil {
		return repository.Ping(ctx, rt.Redis)
	}
	return nil
}

// StateRepository returns dialog state storage: Redis with an in-memory
// fallback when Redis is up, memory alone otherwise.
func (rt *Runtime) StateRepository() domain.StateRepository {
	ttl := time.Duration(models.DefaultRedisTTL) * time.Second
	memory := repository.NewMemoryStateRepository(ttl)
	if rt.Redis == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(rt.Redis, ttl), memory, rt.logger)
}

func (rt *Runtime) Close() {
	if rt.sqlite != nil {
		if err := rt.sqlite.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close local storage")
		}
	}
	if err := repository.Close(rt.Redis); err != nil {
		rt.logger.Warn().Err(err).Msg("close Redis")
	}
}
