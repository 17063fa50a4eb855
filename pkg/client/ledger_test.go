package client

import (
	"context"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoints(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr string
	}{
		{raw: "501", want: 501},
		{raw: " 20 ", want: 20},
		{raw: "0", wantErr: "must be greater than zero"},
		{raw: "-5", wantErr: "must be greater than zero"},
		{raw: "-0.5", wantErr: "must be greater than zero"},
		{raw: "12.5", wantErr: "amount must be a whole number"},
		{raw: "ten", wantErr: "amount must be a whole number"},
		{raw: "", wantErr: "amount is required"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePoints(tt.raw)
			if tt.wantErr != "" {
				requireErr(t, err, KindValidation, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePromotionIDs(t *testing.T) {
	ids, err := ParsePromotionIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = ParsePromotionIDs("3, 7,12")
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 7, 12}, ids)

	_, err = ParsePromotionIDs("3,,7")
	require.Error(t, err)
	assert.Equal(t, "promotionIds", err.(*Error).Field)

	_, err = ParsePromotionIDs("0")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("relatedId", "42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = ParseID("relatedId", "-1")
	requireErr(t, err, KindValidation, "relatedId must be a positive integer")
	_, err = ParseID("relatedId", "abc")
	requireErr(t, err, KindValidation, "relatedId must be a positive integer")
}

func TestRequestRedemption_RefusedLocally(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	ctx := context.Background()

	amount, err := ParsePoints("501")
	require.NoError(t, err)
	_, err = c.RequestRedemption(ctx, amount, "")
	requireErr(t, err, KindValidation, "You do not have enough points")

	_, err = ParsePoints("0")
	requireErr(t, err, KindValidation, "must be greater than zero")
	_, err = c.RequestRedemption(ctx, 0, "")
	requireErr(t, err, KindValidation, "must be greater than zero")

	assert.Zero(t, f.count(http.MethodPost, "/users/me/transactions"))
}

func TestRequestRedemption_Submits(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodPost, "/users/me/transactions", http.StatusCreated, Transaction{
		ID: 17, UTORid: "student01", Type: "redemption", Amount: 500, Remark: "snack bar",
	})

	tx, err := c.RequestRedemption(context.Background(), 500, "snack bar")
	require.NoError(t, err)
	assert.Equal(t, uint(17), tx.ID)
	assert.False(t, tx.Processed)

	body := f.body(http.MethodPost, "/users/me/transactions")
	assert.Equal(t, "redemption", body["type"])
	assert.EqualValues(t, 500, body["amount"])
	assert.Equal(t, "snack bar", body["remark"])
}

func TestRequestRedemption_LoadsUserWhenNothingCached(t *testing.T) {
	f, c := newFakeAPI(t)
	require.NoError(t, c.Restore(context.Background(), Session{Token: "tok", ExpiresAt: testNow.Add(time.Hour)}))
	f.setMe(User{ID: 1, UTORid: "student01", Role: RoleRegular, Points: 10})
	c.forgetMe()

	_, err := c.RequestRedemption(context.Background(), 11, "")
	requireErr(t, err, KindValidation, "You do not have enough points")
	assert.Equal(t, 2, f.count(http.MethodGet, "/users/me"))
}

func TestTransfer_ReceiverNotFound(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodGet, "/users/resolve/doesnotexist1", http.StatusNotFound, map[string]string{"error": "Receiver not found"})

	_, err := c.Transfer(context.Background(), "doesnotexist1", 10, "")
	requireErr(t, err, KindNotFound, "Receiver not found")
	assert.Equal(t, 1, f.count(http.MethodGet, "/users/resolve/doesnotexist1"))
	assert.Zero(t, f.countPrefix(http.MethodPost, "/users/"))
}

func TestTransfer_ResolvesThenPosts(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodGet, "/users/resolve/friend001", http.StatusOK, UserSummary{ID: 9, UTORid: "friend001", Name: "Friend"})
	f.respond(http.MethodPost, "/users/9/transactions", http.StatusCreated, Transfer{
		ID: 30, Sender: "student01", Recipient: "friend001", Type: "transfer", Sent: 25, CreatedBy: "student01",
	})

	_, err := c.Transfer(context.Background(), "friend001", 0, "")
	requireErr(t, err, KindValidation, "must be greater than zero")
	assert.Zero(t, f.count(http.MethodGet, "/users/resolve/friend001"))

	transfer, err := c.Transfer(context.Background(), "friend001", 25, "lunch")
	require.NoError(t, err)
	assert.Equal(t, 25, transfer.Sent)
	assert.Equal(t, "friend001", transfer.Recipient)

	body := f.body(http.MethodPost, "/users/9/transactions")
	assert.Equal(t, "transfer", body["type"])
	assert.EqualValues(t, 25, body["amount"])

	// The balance moved, so the cached user is dropped.
	_, ok := c.CurrentUser()
	assert.False(t, ok)
}

func TestTransfer_ResolveServerErrorIsNotReceiverNotFound(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodGet, "/users/resolve/friend001", http.StatusInternalServerError, map[string]string{"error": "internal server error"})

	_, err := c.Transfer(context.Background(), "friend001", 5, "")
	requireErr(t, err, KindServer, "internal server error")
	assert.Zero(t, f.countPrefix(http.MethodPost, "/users/"))
}

func TestCreatePurchase(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	earned := 80
	f.respond(http.MethodPost, "/transactions", http.StatusCreated, Transaction{
		ID: 5, UTORid: "student02", Type: "purchase", Amount: 80, Earned: &earned, PromotionIDs: []uint{2},
	})
	ctx := context.Background()

	_, err := c.CreatePurchase(ctx, PurchaseInput{UTORid: "", Spent: 1})
	requireErr(t, err, KindValidation, "utorid is required")
	_, err = c.CreatePurchase(ctx, PurchaseInput{UTORid: "student02", Spent: -0.01})
	requireErr(t, err, KindValidation, "spent must be a non-negative number")
	_, err = c.CreatePurchase(ctx, PurchaseInput{UTORid: "student02", Spent: math.Inf(1)})
	requireErr(t, err, KindValidation, "spent must be a non-negative number")
	assert.Zero(t, f.count(http.MethodPost, "/transactions"))

	tx, err := c.CreatePurchase(ctx, PurchaseInput{UTORid: "student02", Spent: 19.99, PromotionIDs: []uint{2}})
	require.NoError(t, err)
	require.NotNil(t, tx.Earned)
	assert.Equal(t, 80, *tx.Earned)

	body := f.body(http.MethodPost, "/transactions")
	assert.Equal(t, "purchase", body["type"])
	assert.Equal(t, 19.99, body["spent"])
	assert.Equal(t, []any{float64(2)}, body["promotionIds"])
}

func TestCreatePurchase_BackendMessageVerbatim(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodPost, "/transactions", http.StatusBadRequest, map[string]string{"error": "promotion 4 is not available"})

	_, err := c.CreatePurchase(context.Background(), PurchaseInput{UTORid: "student02", Spent: 10, PromotionIDs: []uint{4}})
	requireErr(t, err, KindBadRequest, "promotion 4 is not available")
}

func TestCreateAdjustment(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	ctx := context.Background()
	in := AdjustmentInput{UTORid: "student02", Amount: -40, RelatedID: 12, Remark: "refund"}

	_, err := c.CreateAdjustment(ctx, in)
	requireErr(t, err, KindForbidden, "only a manager or above can create adjustments")

	f.setMe(User{ID: 2, UTORid: "manager1", Role: RoleManager})
	login(t, c)

	_, err = c.CreateAdjustment(ctx, AdjustmentInput{UTORid: "student02", RelatedID: 12})
	requireErr(t, err, KindValidation, "amount must not be zero")
	_, err = c.CreateAdjustment(ctx, AdjustmentInput{UTORid: "student02", Amount: 5})
	requireErr(t, err, KindValidation, "relatedId must be a positive integer")
	assert.Zero(t, f.count(http.MethodPost, "/transactions"))

	related := uint(12)
	f.respond(http.MethodPost, "/transactions", http.StatusCreated, Transaction{
		ID: 13, UTORid: "student02", Type: "adjustment", Amount: -40, RelatedID: &related,
	})
	tx, err := c.CreateAdjustment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, -40, tx.Amount)

	body := f.body(http.MethodPost, "/transactions")
	assert.Equal(t, "adjustment", body["type"])
	assert.EqualValues(t, 12, body["relatedId"])
	assert.EqualValues(t, -40, body["amount"])
}

func TestSetSuspicious(t *testing.T) {
	f, c := newFakeAPI(t)
	f.setMe(User{ID: 2, UTORid: "manager1", Role: RoleManager})
	login(t, c)
	f.respond(http.MethodPatch, "/transactions/8/suspicious", http.StatusOK, Transaction{ID: 8, Suspicious: true})

	tx, err := c.SetSuspicious(context.Background(), 8, true)
	require.NoError(t, err)
	assert.True(t, tx.Suspicious)
	assert.Equal(t, true, f.body(http.MethodPatch, "/transactions/8/suspicious")["suspicious"])
}

func TestRedemptionQueue_ProcessRemovesItem(t *testing.T) {
	f, c := newFakeAPI(t)
	f.setMe(User{ID: 3, UTORid: "cashier1", Role: RoleCashier})
	login(t, c)
	f.handle(http.MethodGet, "/transactions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "student01", q.Get("name"))
		assert.Equal(t, "redemption", q.Get("type"))
		assert.Equal(t, "false", q.Get("processed"))
		writeJSON(w, http.StatusOK, map[string]any{
			"count": 3,
			"results": []Transaction{
				{ID: 17, UTORid: "student01", Type: "redemption", Amount: 200, Remark: "snack bar"},
				{ID: 18, UTORid: "student011", Type: "redemption", Amount: 50},
				{ID: 21, UTORid: "student01", Type: "redemption", Amount: 10},
			},
		})
	})
	f.respond(http.MethodPatch, "/transactions/17/processed", http.StatusOK, Transaction{
		ID: 17, UTORid: "student01", Type: "redemption", Amount: 200, Processed: true, ProcessedBy: "cashier1", Remark: "snack bar",
	})
	ctx := context.Background()

	queue, err := c.UnprocessedRedemptions(ctx, "student01")
	require.NoError(t, err)
	require.Len(t, queue.Items(), 2)

	tx, err := queue.Process(ctx, 17)
	require.NoError(t, err)
	assert.True(t, tx.Processed)
	assert.Equal(t, 1, f.count(http.MethodPatch, "/transactions/17/processed"))
	assert.Equal(t, map[string]any{"processed": true}, f.body(http.MethodPatch, "/transactions/17/processed"))

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, uint(21), items[0].ID)
	assert.Equal(t, 1, f.count(http.MethodGet, "/transactions"))

	_, err = queue.Process(ctx, 17)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 1, f.count(http.MethodPatch, "/transactions/17/processed"))
}

func TestProcessRedemption_RequiresCashier(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)

	_, err := c.ProcessRedemption(context.Background(), 17)
	requireErr(t, err, KindForbidden, "only a cashier or above can process redemptions")
	_, err = c.UnprocessedRedemptions(context.Background(), "student01")
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Zero(t, f.countPrefix(http.MethodPatch, "/transactions/"))
}

func TestProcessRedemption_AlreadyProcessed(t *testing.T) {
	f, c := newFakeAPI(t)
	f.setMe(User{ID: 3, UTORid: "cashier1", Role: RoleCashier})
	login(t, c)
	f.respond(http.MethodPatch, "/transactions/17/processed", http.StatusBadRequest, map[string]string{"error": "redemption has already been processed"})

	_, err := c.ProcessRedemption(context.Background(), 17)
	requireErr(t, err, KindBadRequest, "redemption has already been processed")
}
