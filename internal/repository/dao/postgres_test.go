package dao_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campus-loyalty/points-api/internal/db"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

// openDockerPostgres starts a disposable postgres container. The test is
// skipped when docker is not reachable.
func openDockerPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=loyalty",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=loyalty",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})
	_ = resource.Expire(120)

	url := fmt.Sprintf("postgres://loyalty:secret@%s/loyalty?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var gdb *gorm.DB
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		var openErr error
		gdb, openErr = db.OpenPostgresWithURL(url)
		return openErr
	})
	require.NoError(t, err)

	return gdb
}

func TestPostgres_LedgerInvariants(t *testing.T) {
	gdb := openDockerPostgres(t)
	ctx := context.Background()
	users := dao.NewUserDAO(gdb)
	txs := dao.NewTransactionDAO(gdb)

	u, err := users.Insert(ctx, dao.User{UTORid: "student01", Name: "Student", Email: "student01@mail.utoronto.ca", Role: "regular", Points: 500, Verified: true})
	require.NoError(t, err)

	_, err = users.Insert(ctx, dao.User{UTORid: "student01", Name: "Dup", Email: "dup@mail.utoronto.ca"})
	assert.ErrorIs(t, err, dao.ErrUserExists)

	req, err := txs.CreateRedemption(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeRedemption, Amount: -200, Remark: "snack bar", CreatedBy: u.UTORid})
	require.NoError(t, err)

	_, err = txs.ProcessRedemption(ctx, req.ID, "cashier1")
	require.NoError(t, err)
	_, err = txs.ProcessRedemption(ctx, req.ID, "cashier1")
	assert.ErrorIs(t, err, dao.ErrAlreadyProcessed)

	fresh, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, fresh.Points)
}
