package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

func OpenPostgres(conf *config.PostgresConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		conf.Host, conf.Port, conf.User, conf.Password, conf.DB, conf.SSLMode,
	)

	return open(postgres.Open(dsn))
}

func OpenPostgresWithURL(url string) (*gorm.DB, error) {
	return open(postgres.Open(url))
}

// OpenSQLite is used for local runs without a postgres server and in tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	return open(sqlite.Open(path))
}

// Open picks the driver configured in conf. A non-empty url always wins and
// is treated as a postgres connection string.
func Open(conf *config.PostgresConfig, url string) (*gorm.DB, error) {
	if url != "" {
		return OpenPostgresWithURL(url)
	}
	if conf.Driver == "sqlite" {
		return OpenSQLite(conf.SQLitePath)
	}

	return OpenPostgres(conf)
}

func open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open -> %w", err)
	}

	if err = dao.InitTables(db); err != nil {
		return nil, fmt.Errorf("dao.InitTables -> %w", err)
	}

	return db, nil
}
