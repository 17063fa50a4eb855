package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-loyalty/points-api/internal/domain"
)

func TestPromotionService_Visibility(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPromotionService(env.promos, env.users)
	svc.now = env.clock
	txSvc := env.transactionService()
	ctx := context.Background()

	manager := env.seedUser(t, "manager1", domain.RoleManager, 0)
	cashier := env.seedUser(t, "cashier1", domain.RoleCashier, 0)
	regular := env.seedUser(t, "student01", domain.RoleRegular, 0)

	bonus := 5
	env.now = env.now.Add(-2 * time.Hour)
	active, err := svc.Create(ctx, domain.Promotion{
		Name:      "welcome",
		Type:      domain.PromotionOneTime,
		StartTime: env.now.Add(time.Hour),
		EndTime:   env.now.Add(4 * time.Hour),
		Points:    &bonus,
	})
	require.NoError(t, err)
	future, err := svc.Create(ctx, domain.Promotion{
		Name:      "spring",
		Type:      domain.PromotionAutomatic,
		StartTime: env.now.Add(10 * time.Hour),
		EndTime:   env.now.Add(20 * time.Hour),
	})
	require.NoError(t, err)
	env.advance(2 * time.Hour)

	_, count, err := svc.List(ctx, manager, domain.PromotionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, count, err = svc.List(ctx, cashier, domain.PromotionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = svc.Get(ctx, regular, future.ID)
	assert.ErrorIs(t, err, ErrPromotionNotFound)

	_, err = txSvc.CreatePurchase(ctx, cashier, PurchaseInput{UTORid: "student01", Spent: 1, PromotionIDs: []uint{active.ID}})
	require.NoError(t, err)

	_, count, err = svc.List(ctx, regular, domain.PromotionFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = svc.Get(ctx, regular, active.ID)
	assert.ErrorIs(t, err, ErrPromotionNotFound)
}

func TestPromotionService_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPromotionService(env.promos, env.users)
	svc.now = env.clock
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Promotion{Name: "x", Type: "weekly", StartTime: env.now, EndTime: env.now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidPromotionType)

	p, err := svc.Create(ctx, domain.Promotion{
		Name:      "flash",
		Type:      domain.PromotionAutomatic,
		StartTime: env.now.Add(time.Hour),
		EndTime:   env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	name := "flash sale"
	updated, err := svc.Update(ctx, p.ID, PromotionPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "flash sale", updated.Name)

	env.advance(90 * time.Minute)
	_, err = svc.Update(ctx, p.ID, PromotionPatch{Name: &name})
	assert.ErrorIs(t, err, ErrPromotionStarted)

	end := env.now.Add(time.Hour)
	_, err = svc.Update(ctx, p.ID, PromotionPatch{EndTime: &end})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, p.ID), ErrPromotionStarted)
}
