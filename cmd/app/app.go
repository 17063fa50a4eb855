package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/api"
	"github.com/campus-loyalty/points-api/internal/cache"
	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/db"
	"github.com/campus-loyalty/points-api/internal/logger"
)

func Start() error {
	conf, err := config.LoadAndWatch("./cmd/app/config.yml", func(level string) {
		if err := logger.SetLevel(level); err != nil {
			zap.L().Warn("ignoring log level change", zap.String("level", level), zap.Error(err))
			return
		}
		zap.L().Info("log level changed", zap.String("level", level))
	})
	if err != nil {
		return fmt.Errorf("failed to initialize config -> %w", err)
	}

	if err = logger.Init(conf.API.Environment, conf.Log); err != nil {
		return fmt.Errorf("failed to initialize logger -> %w", err)
	}
	defer logger.Sync()

	database, err := db.Open(conf.Postgres, os.Getenv("DATABASE_URL"))
	if err != nil {
		return fmt.Errorf("failed to initialize database -> %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := cache.NewRedis(ctx, conf.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize redis -> %w", err)
	}
	if rdb == nil {
		zap.L().Warn("redis is not configured, caches are kept in process")
	}

	s := api.NewServer(conf, database, rdb)
	go s.Hub.Run(ctx)

	addr := ":" + s.Config.API.Port
	zap.L().Info(fmt.Sprintf("starting server at %v", addr))
	if err = s.Router.Run(addr); err != nil {
		return fmt.Errorf("failed to start the server -> %w", err)
	}

	return nil
}
