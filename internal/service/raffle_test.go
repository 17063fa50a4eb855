package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-loyalty/points-api/internal/domain"
)

func (e *testEnv) raffleService() *RaffleService {
	svc := NewRaffleService(e.raffles, e.users, e.notes)
	svc.now = e.clock

	return svc
}

func (e *testEnv) raffle(t *testing.T, svc *RaffleService, cost int) domain.Raffle {
	t.Helper()

	r, err := svc.Create(context.Background(), domain.Raffle{
		Name:        "Hoodie",
		PointCost:   cost,
		PrizePoints: 500,
		StartTime:   e.now.Add(time.Hour),
		EndTime:     e.now.Add(2 * time.Hour),
		DrawTime:    e.now.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	return r
}

func TestRaffleService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.raffleService()

	_, err := svc.Create(context.Background(), domain.Raffle{
		PrizePoints: 1,
		StartTime:   env.now,
		EndTime:     env.now.Add(2 * time.Hour),
		DrawTime:    env.now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidRaffleWindow)

	_, err = svc.Create(context.Background(), domain.Raffle{StartTime: env.now, EndTime: env.now, DrawTime: env.now})
	assert.ErrorIs(t, err, ErrInvalidPrize)

	_, err = svc.Create(context.Background(), domain.Raffle{PrizePoints: domain.MaxPoints + 1, StartTime: env.now, EndTime: env.now, DrawTime: env.now})
	assert.ErrorIs(t, err, ErrPointsOutOfRange)
}

func TestRaffleService_EnterWindow(t *testing.T) {
	env := newTestEnv(t)
	svc := env.raffleService()
	ctx := context.Background()
	user := env.seedUser(t, "student01", domain.RoleRegular, 50)
	r := env.raffle(t, svc, 20)
	assert.Equal(t, domain.RaffleUpcoming, r.Status)

	_, err := svc.Enter(ctx, user, r.ID)
	assert.ErrorIs(t, err, ErrRaffleNotStarted)
	assert.EqualError(t, err, "Raffle has not started yet")

	env.advance(90 * time.Minute)
	entered, err := svc.Enter(ctx, user, r.ID)
	require.NoError(t, err)
	assert.True(t, entered.Entered)
	assert.Equal(t, 1, entered.EntryCount)
	assert.Equal(t, 30, env.points(t, user.ID))

	_, err = svc.Enter(ctx, user, r.ID)
	assert.ErrorIs(t, err, ErrAlreadyEntered)

	poor := env.seedUser(t, "student02", domain.RoleRegular, 5)
	_, err = svc.Enter(ctx, poor, r.ID)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	env.advance(time.Hour)
	_, err = svc.Enter(ctx, poor, r.ID)
	assert.ErrorIs(t, err, ErrRaffleEnded)
}

func TestRaffleService_Draw(t *testing.T) {
	env := newTestEnv(t)
	svc := env.raffleService()
	ctx := context.Background()
	manager := env.seedUser(t, "manager1", domain.RoleManager, 0)
	a := env.seedUser(t, "student01", domain.RoleRegular, 0)
	b := env.seedUser(t, "student02", domain.RoleRegular, 0)

	empty := env.raffle(t, svc, 0)
	r := env.raffle(t, svc, 0)

	env.advance(90 * time.Minute)
	_, err := svc.Enter(ctx, a, r.ID)
	require.NoError(t, err)
	_, err = svc.Enter(ctx, b, r.ID)
	require.NoError(t, err)

	_, _, err = svc.Draw(ctx, manager, r.ID)
	assert.ErrorIs(t, err, ErrRaffleDrawTimeNotYet)

	env.advance(2 * time.Hour)
	_, _, err = svc.Draw(ctx, manager, empty.ID)
	assert.ErrorIs(t, err, ErrRaffleNoEntries)
	assert.EqualError(t, err, "No entries in this raffle")

	svc.pick = func(n int) (int, error) {
		require.Equal(t, 2, n)
		return 1, nil
	}
	drawn, prize, err := svc.Draw(ctx, manager, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RaffleDrawn, drawn.Status)
	require.NotNil(t, drawn.Winner)
	assert.Equal(t, b.ID, drawn.Winner.ID)
	assert.Equal(t, 500, prize.Amount)
	assert.Equal(t, 500, env.points(t, b.ID))
	assert.Contains(t, env.notes.types(a.ID), domain.NotifyRaffleDrawn)

	_, _, err = svc.Draw(ctx, manager, r.ID)
	assert.ErrorIs(t, err, ErrRaffleAlreadyDrawn)
}

func TestRaffleService_ListStatus(t *testing.T) {
	env := newTestEnv(t)
	svc := env.raffleService()
	ctx := context.Background()
	user := env.seedUser(t, "student01", domain.RoleRegular, 0)
	env.raffle(t, svc, 0)

	env.advance(150 * time.Minute)
	raffles, count, err := svc.List(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	require.Len(t, raffles, 1)
	assert.Equal(t, domain.RaffleClosed, raffles[0].Status)
	assert.False(t, raffles[0].Entered)
}
