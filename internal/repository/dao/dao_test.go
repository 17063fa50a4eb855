package dao_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campus-loyalty/points-api/internal/db/dbtest"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

func seedUser(t *testing.T, db *gorm.DB, utorid string, points int) dao.User {
	t.Helper()

	u, err := dao.NewUserDAO(db).Insert(context.Background(), dao.User{
		UTORid:   utorid,
		Name:     utorid,
		Email:    utorid + "@mail.utoronto.ca",
		Role:     "regular",
		Points:   points,
		Verified: true,
	})
	require.NoError(t, err)

	return u
}

func TestUserDAO_InsertDuplicate(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewUserDAO(db)
	ctx := context.Background()

	seedUser(t, db, "student1", 0)

	_, err := d.Insert(ctx, dao.User{UTORid: "student1", Name: "x", Email: "other@mail.utoronto.ca"})
	assert.ErrorIs(t, err, dao.ErrUserExists)

	_, err = d.Insert(ctx, dao.User{UTORid: "student2", Name: "x", Email: "student1@mail.utoronto.ca"})
	assert.ErrorIs(t, err, dao.ErrUserExists)

	_, err = d.FindByUTORid(ctx, "nobody00")
	assert.ErrorIs(t, err, dao.ErrUserNotFound)
}

func TestUserDAO_List(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewUserDAO(db)

	seedUser(t, db, "alice001", 0)
	seedUser(t, db, "bob00001", 0)
	seedUser(t, db, "alice002", 0)

	users, count, err := d.List(context.Background(), dao.UserQuery{Name: "ALICE", Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	require.Len(t, users, 1)
	assert.Equal(t, "alice001", users[0].UTORid)
}

func TestTransactionDAO_ProcessRedemptionOnce(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 500)

	req, err := d.CreateRedemption(ctx, dao.Transaction{
		UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeRedemption, Amount: -200, Remark: "snack bar", CreatedBy: u.UTORid,
	})
	require.NoError(t, err)
	assert.False(t, req.Processed)

	fresh, err := dao.NewUserDAO(db).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, fresh.Points, "request alone must not change the balance")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.ProcessRedemption(ctx, req.ID, "cashier1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, dao.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, successes)

	fresh, err = dao.NewUserDAO(db).FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, fresh.Points)
}

func TestTransactionDAO_ProcessRedemptionInsufficient(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 100)

	req, err := d.CreateRedemption(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeRedemption, Amount: -100, CreatedBy: u.UTORid})
	require.NoError(t, err)

	require.NoError(t, db.Model(&dao.User{}).Where("id = ?", u.ID).Update("points", 50).Error)

	_, err = d.ProcessRedemption(ctx, req.ID, "cashier1")
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)

	again, err := d.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, again.Processed, "failed processing must roll back")

	_, err = d.CreateRedemption(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeRedemption, Amount: -51, CreatedBy: u.UTORid})
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)
}

func TestTransactionDAO_ProcessNonRedemption(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 0)

	p, err := d.CreatePurchase(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypePurchase, Amount: 40, CreatedBy: "cashier1"}, nil)
	require.NoError(t, err)

	_, err = d.ProcessRedemption(ctx, p.ID, "cashier1")
	assert.ErrorIs(t, err, dao.ErrNotRedemption)

	_, err = d.ProcessRedemption(ctx, 9999, "cashier1")
	assert.ErrorIs(t, err, dao.ErrTransactionNotFound)
}

func TestTransactionDAO_Transfer(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	users := dao.NewUserDAO(db)
	ctx := context.Background()
	sender := seedUser(t, db, "sender01", 100)
	recipient := seedUser(t, db, "recvr001", 5)

	out, in, err := d.CreateTransfer(ctx,
		dao.Transaction{UserID: sender.ID, UTORid: sender.UTORid, Type: dao.TypeTransfer, Amount: -60, RelatedID: &recipient.ID, CreatedBy: sender.UTORid},
		dao.Transaction{UserID: recipient.ID, UTORid: recipient.UTORid, Type: dao.TypeTransfer, Amount: 60, RelatedID: &sender.ID, CreatedBy: sender.UTORid},
	)
	require.NoError(t, err)
	assert.NotZero(t, out.ID)
	assert.NotZero(t, in.ID)

	_, _, err = d.CreateTransfer(ctx,
		dao.Transaction{UserID: sender.ID, UTORid: sender.UTORid, Type: dao.TypeTransfer, Amount: -60, CreatedBy: sender.UTORid},
		dao.Transaction{UserID: recipient.ID, UTORid: recipient.UTORid, Type: dao.TypeTransfer, Amount: 60, CreatedBy: sender.UTORid},
	)
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)

	s, err := users.FindByID(ctx, sender.ID)
	require.NoError(t, err)
	r, err := users.FindByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, s.Points)
	assert.Equal(t, 65, r.Points)

	_, count, err := d.List(ctx, dao.TransactionQuery{Type: dao.TypeTransfer})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "failed transfer must not leave rows behind")
}

func TestTransactionDAO_Adjustment(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice001", 0)
	bob := seedUser(t, db, "bob00001", 0)

	p, err := d.CreatePurchase(ctx, dao.Transaction{UserID: alice.ID, UTORid: alice.UTORid, Type: dao.TypePurchase, Amount: 40, CreatedBy: "cashier1"}, nil)
	require.NoError(t, err)

	missing := uint(12345)
	_, err = d.CreateAdjustment(ctx, dao.Transaction{UserID: alice.ID, UTORid: alice.UTORid, Type: dao.TypeAdjustment, Amount: -10, RelatedID: &missing, CreatedBy: "manager1"})
	assert.ErrorIs(t, err, dao.ErrRelatedTransactionNotFound)

	_, err = d.CreateAdjustment(ctx, dao.Transaction{UserID: bob.ID, UTORid: bob.UTORid, Type: dao.TypeAdjustment, Amount: 10, RelatedID: &p.ID, CreatedBy: "manager1"})
	assert.ErrorIs(t, err, dao.ErrRelatedTransactionMismatch)

	_, err = d.CreateAdjustment(ctx, dao.Transaction{UserID: alice.ID, UTORid: alice.UTORid, Type: dao.TypeAdjustment, Amount: -41, RelatedID: &p.ID, CreatedBy: "manager1"})
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)

	adj, err := d.CreateAdjustment(ctx, dao.Transaction{UserID: alice.ID, UTORid: alice.UTORid, Type: dao.TypeAdjustment, Amount: -15, RelatedID: &p.ID, CreatedBy: "manager1"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, *adj.RelatedID)

	a, err := dao.NewUserDAO(db).FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, a.Points)
}

func TestTransactionDAO_SetSuspicious(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	users := dao.NewUserDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 0)

	p, err := d.CreatePurchase(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypePurchase, Amount: 40, CreatedBy: "cashier1"}, nil)
	require.NoError(t, err)

	points := func() int {
		fresh, err := users.FindByID(ctx, u.ID)
		require.NoError(t, err)
		return fresh.Points
	}
	assert.Equal(t, 40, points())

	_, err = d.SetSuspicious(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, points())

	_, err = d.SetSuspicious(ctx, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, points(), "unchanged flag is a no-op")

	updated, err := d.SetSuspicious(ctx, p.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Suspicious)
	assert.Equal(t, 40, points())
}

func TestTransactionDAO_SetSuspiciousKeepsBalanceNonNegative(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	users := dao.NewUserDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 100)
	friend := seedUser(t, db, "friend01", 0)

	points := func(id uint) int {
		fresh, err := users.FindByID(ctx, id)
		require.NoError(t, err)
		return fresh.Points
	}

	// A flagged redemption is processed without a deduction.
	req, err := d.CreateRedemption(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeRedemption, Amount: -100, CreatedBy: u.UTORid})
	require.NoError(t, err)
	_, err = d.SetSuspicious(ctx, req.ID, true)
	require.NoError(t, err)
	_, err = d.ProcessRedemption(ctx, req.ID, "cashier1")
	require.NoError(t, err)
	assert.Equal(t, 100, points(u.ID))

	_, _, err = d.CreateTransfer(ctx,
		dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeTransfer, Amount: -100, RelatedID: &friend.ID, CreatedBy: u.UTORid},
		dao.Transaction{UserID: friend.ID, UTORid: friend.UTORid, Type: dao.TypeTransfer, Amount: 100, RelatedID: &u.ID, CreatedBy: u.UTORid},
	)
	require.NoError(t, err)

	_, err = d.SetSuspicious(ctx, req.ID, false)
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)
	assert.Equal(t, 0, points(u.ID))

	still, err := d.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, still.Suspicious, "flag must stay set when clearing it fails")

	// Reversing a purchase whose points were already spent is refused too.
	p, err := d.CreatePurchase(ctx, dao.Transaction{UserID: friend.ID, UTORid: friend.UTORid, Type: dao.TypePurchase, Amount: 40, CreatedBy: "cashier1"}, nil)
	require.NoError(t, err)
	_, _, err = d.CreateTransfer(ctx,
		dao.Transaction{UserID: friend.ID, UTORid: friend.UTORid, Type: dao.TypeTransfer, Amount: -140, RelatedID: &u.ID, CreatedBy: friend.UTORid},
		dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypeTransfer, Amount: 140, RelatedID: &friend.ID, CreatedBy: friend.UTORid},
	)
	require.NoError(t, err)

	_, err = d.SetSuspicious(ctx, p.ID, true)
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)
	assert.Equal(t, 0, points(friend.ID))
}

func TestTransactionDAO_PurchaseWithPromotions(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewTransactionDAO(db)
	promos := dao.NewPromotionDAO(db)
	ctx := context.Background()
	u := seedUser(t, db, "student01", 0)

	now := time.Now()
	bonus := 10
	promo, err := promos.Insert(ctx, dao.Promotion{Name: "welcome", Description: "d", Type: "one-time", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Points: &bonus})
	require.NoError(t, err)

	spent := 5.0
	p, err := d.CreatePurchase(ctx, dao.Transaction{
		UserID: u.ID, UTORid: u.UTORid, Type: dao.TypePurchase, Amount: 30, Spent: &spent, CreatedBy: "cashier1",
		PromotionIDs: []uint{promo.ID},
	}, []uint{promo.ID})
	require.NoError(t, err)

	found, err := d.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{promo.ID}, found.PromotionIDs)

	_, err = d.CreatePurchase(ctx, dao.Transaction{UserID: u.ID, UTORid: u.UTORid, Type: dao.TypePurchase, Amount: 30, CreatedBy: "cashier1"}, []uint{promo.ID})
	assert.ErrorIs(t, err, dao.ErrPromotionAlreadyUsed)

	list, count, err := d.List(ctx, dao.TransactionQuery{PromotionID: promo.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, p.ID, list[0].ID)

	unused, _, err := promos.List(ctx, dao.PromotionQuery{UnusedBy: u.ID, ActiveOnly: true, Now: now})
	require.NoError(t, err)
	assert.Empty(t, unused)
}

func TestEventDAO_GuestCapacity(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewEventDAO(db)
	ctx := context.Background()
	now := time.Now()

	capacity := 1
	event, err := d.Insert(ctx, dao.Event{Name: "Hack night", Description: "d", Location: "BA", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour), Capacity: &capacity, PointsRemain: 100})
	require.NoError(t, err)

	alice := seedUser(t, db, "alice001", 0)
	bob := seedUser(t, db, "bob00001", 0)
	org := seedUser(t, db, "organiz1", 0)

	require.NoError(t, d.AddOrganizer(ctx, event.ID, org.ID, now))
	_, err = d.AddGuest(ctx, event.ID, org.ID, now)
	assert.ErrorIs(t, err, dao.ErrUserIsOrganizer)

	got, err := d.AddGuest(ctx, event.ID, alice.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumGuests)

	_, err = d.AddGuest(ctx, event.ID, alice.ID, now)
	assert.ErrorIs(t, err, dao.ErrAlreadyGuest)

	_, err = d.AddGuest(ctx, event.ID, bob.ID, now)
	assert.ErrorIs(t, err, dao.ErrEventFull)

	assert.ErrorIs(t, d.AddOrganizer(ctx, event.ID, alice.ID, now), dao.ErrUserIsGuest)

	got, err = d.RemoveGuest(ctx, event.ID, alice.ID, &now)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumGuests)

	_, err = d.RemoveGuest(ctx, event.ID, alice.ID, &now)
	assert.ErrorIs(t, err, dao.ErrNotGuest)

	later := now.Add(3 * time.Hour)
	_, err = d.AddGuest(ctx, event.ID, bob.ID, later)
	assert.ErrorIs(t, err, dao.ErrEventEnded)
}

func TestEventDAO_Award(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewEventDAO(db)
	ctx := context.Background()
	now := time.Now()

	event, err := d.Insert(ctx, dao.Event{Name: "Talk", Description: "d", Location: "BA", StartTime: now, EndTime: now.Add(time.Hour), PointsRemain: 50})
	require.NoError(t, err)

	alice := seedUser(t, db, "alice001", 0)
	bob := seedUser(t, db, "bob00001", 0)

	created, err := d.Award(ctx, event.ID, []dao.User{alice, bob}, 20, "thanks", "manager1")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, event.ID, *created[0].RelatedID)

	_, err = d.Award(ctx, event.ID, []dao.User{alice, bob}, 20, "again", "manager1")
	assert.ErrorIs(t, err, dao.ErrInsufficientEventPoints)

	got, err := d.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.PointsRemain)
	assert.Equal(t, 40, got.PointsAwarded)
}

func TestEventDAO_AwardOverflow(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewEventDAO(db)
	ctx := context.Background()
	now := time.Now()

	event, err := d.Insert(ctx, dao.Event{Name: "Talk", Description: "d", Location: "BA", StartTime: now, EndTime: now.Add(time.Hour), PointsRemain: 50})
	require.NoError(t, err)

	var guests []dao.User
	for _, utorid := range []string{"guest001", "guest002", "guest003", "guest004"} {
		guests = append(guests, seedUser(t, db, utorid, 0))
	}

	// 4 * 2^62 wraps to zero in int arithmetic.
	_, err = d.Award(ctx, event.ID, guests, 1<<62, "overflow", "manager1")
	assert.ErrorIs(t, err, dao.ErrInsufficientEventPoints)

	got, err := d.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.PointsRemain)
	assert.Equal(t, 0, got.PointsAwarded)

	fresh, err := dao.NewUserDAO(db).FindByID(ctx, guests[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Points)
}

func TestRaffleDAO_EnterAndDraw(t *testing.T) {
	db := dbtest.New(t)
	d := dao.NewRaffleDAO(db)
	users := dao.NewUserDAO(db)
	ctx := context.Background()
	now := time.Now()

	raffle, err := d.Insert(ctx, dao.Raffle{
		Name: "Hoodie", Description: "d", PointCost: 10, PrizePoints: 500,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), DrawTime: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	alice := seedUser(t, db, "alice001", 15)
	poor := seedUser(t, db, "poor0001", 5)

	entered, err := d.Enter(ctx, raffle.ID, alice, now)
	require.NoError(t, err)
	assert.Equal(t, 1, entered.EntryCount)

	_, err = d.Enter(ctx, raffle.ID, alice, now)
	assert.ErrorIs(t, err, dao.ErrAlreadyEntered)

	_, err = d.Enter(ctx, raffle.ID, poor, now)
	assert.ErrorIs(t, err, dao.ErrInsufficientPoints)

	_, _, err = d.Draw(ctx, raffle.ID, now, "manager1", func(int) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, dao.ErrRaffleTooEarly)

	drawAt := now.Add(3 * time.Hour)
	drawn, prize, err := d.Draw(ctx, raffle.ID, drawAt, "manager1", func(n int) (int, error) {
		assert.Equal(t, 1, n)
		return 0, nil
	})
	require.NoError(t, err)
	assert.True(t, drawn.Drawn)
	require.NotNil(t, drawn.Winner)
	assert.Equal(t, alice.ID, drawn.Winner.ID)
	assert.Equal(t, 500, prize.Amount)

	a, err := users.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 505, a.Points)

	_, _, err = d.Draw(ctx, raffle.ID, drawAt, "manager1", func(int) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, dao.ErrRaffleDrawn)
}
