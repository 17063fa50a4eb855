package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload" // Autoload .env file.
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/db"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/logger"
	"github.com/campus-loyalty/points-api/internal/repository"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

// seed creates the superuser named by SEED_UTORID and SEED_PASSWORD. An
// existing account with that utorid is left as is.
func main() {
	if err := run(context.Background()); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	utorid, password := os.Getenv("SEED_UTORID"), os.Getenv("SEED_PASSWORD")
	if utorid == "" || password == "" {
		return errors.New("SEED_UTORID and SEED_PASSWORD must be set")
	}

	conf, err := config.Load("./cmd/app/config.yml")
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

	users := repository.NewUserRepository(dao.NewUserDAO(database), nil)

	existing, err := users.FindByUTORid(ctx, utorid)
	switch {
	case err == nil:
		zap.L().Info("superuser already exists", zap.String("utorid", existing.UTORid), zap.String("role", string(existing.Role)))
		return nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("users.FindByUTORid -> %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bcrypt.GenerateFromPassword -> %w", err)
	}

	email := os.Getenv("SEED_EMAIL")
	if email == "" {
		email = utorid + "@mail.utoronto.ca"
	}

	created, err := users.Create(ctx, domain.User{
		UTORid:   utorid,
		Name:     utorid,
		Email:    email,
		Password: string(hash),
		Role:     domain.RoleSuperuser,
		Verified: true,
	})
	if err != nil {
		return fmt.Errorf("users.Create -> %w", err)
	}

	zap.L().Info("superuser created", zap.Uint("id", created.ID), zap.String("utorid", created.UTORid))

	return nil
}
