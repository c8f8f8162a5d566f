// Package app provides the command-line interface of the engine
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrcode/loop-engine/internal/cache"
	"github.com/mrcode/loop-engine/internal/config"
	"github.com/mrcode/loop-engine/internal/logging"
	"github.com/mrcode/loop-engine/internal/loop"
	"github.com/mrcode/loop-engine/internal/models"
	"github.com/mrcode/loop-engine/internal/validation"
)

// Version is the application version, overridden at link time
var Version = "1.0.0"

// app holds the wired dependencies of one command
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *Service
	closers []func() error
}

// wireApp builds the engine and its collaborators from cfg
func wireApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	opts := []loop.Option{loop.WithLogger(logger)}

	if cfg.Validation.Enabled {
		opts = append(opts, loop.WithValidator(validation.DefaultPlausibility()))
	}

	ttl := models.Minutes(cfg.Cache.TTL)
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		opts = append(opts, loop.WithCache(cache.NewMemory(ttl)))
	case config.CacheRedis:
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("wire effect cache: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts = append(opts, loop.WithCache(cache.NewRedis(client, cfg.Cache.Prefix, ttl)))
	}

	engine := loop.NewEngine(cfg.Engine.Settings(), opts...)
	a.service = NewService(engine, logger)

	logger.Debug("engine wired",
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("validation", cfg.Validation.Enabled),
	)
	return a, nil
}

// Close releases connections and flushes the logger
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
