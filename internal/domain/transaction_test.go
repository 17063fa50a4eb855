package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		in      string
		want    TransactionType
		wantErr bool
	}{
		{in: "purchase", want: TxPurchase},
		{in: "redemption", want: TxRedemption},
		{in: "redeem", want: TxRedemption},
		{in: " Transfer ", want: TxTransfer},
		{in: "adjustment", want: TxAdjustment},
		{in: "event", want: TxEvent},
		{in: "refund", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransactionType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownTransactionType)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransaction_Effective(t *testing.T) {
	assert.True(t, Transaction{Type: TxPurchase}.Effective())
	assert.False(t, Transaction{Type: TxPurchase, Suspicious: true}.Effective())
	assert.False(t, Transaction{Type: TxRedemption}.Effective())
	assert.True(t, Transaction{Type: TxRedemption, Processed: true}.Effective())
}

func TestTransaction_FillTypeFields(t *testing.T) {
	redemption := Transaction{Type: TxRedemption, Amount: -200}
	redemption.FillTypeFields()
	assert.Equal(t, 200, *redemption.Redeemed)

	transfer := Transaction{Type: TxTransfer, Amount: -50}
	transfer.FillTypeFields()
	assert.Equal(t, 50, *transfer.Sent)

	purchase := Transaction{Type: TxPurchase, Amount: 80}
	purchase.FillTypeFields()
	assert.Equal(t, 80, *purchase.Earned)
	assert.Nil(t, purchase.Sent)
}

func TestPurchasePoints(t *testing.T) {
	minSpending := 10.0
	rate := 0.01
	bonus := 20
	now := time.Now()

	automatic := Promotion{Type: PromotionAutomatic, StartTime: now, EndTime: now.Add(time.Hour), MinSpending: &minSpending, Rate: &rate}
	oneTime := Promotion{Type: PromotionOneTime, Points: &bonus}

	assert.Equal(t, 80, BasePoints(19.99))
	assert.Equal(t, 4, BasePoints(1))
	assert.Equal(t, 0, BasePoints(0))

	// 20 dollars: 80 base, 2000 cents * 0.01 = 20 from rate, 20 flat.
	earned, err := PurchasePoints(20, []Promotion{automatic, oneTime})
	require.NoError(t, err)
	assert.Equal(t, 120, earned)
	assert.True(t, automatic.Qualifies(10))
	assert.False(t, automatic.Qualifies(9.99))
	assert.True(t, oneTime.Qualifies(0))
}

func TestPurchasePoints_Bounds(t *testing.T) {
	earned, err := PurchasePoints(MaxSpent, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxSpent*PointsPerDollar, earned)

	for _, spent := range []float64{MaxSpent + 0.01, 3e18, 1e300} {
		_, err = PurchasePoints(spent, nil)
		assert.ErrorIs(t, err, ErrSpentTooLarge, "spent %v", spent)
	}

	rate := 1e12
	_, err = PurchasePoints(100, []Promotion{{Type: PromotionAutomatic, Rate: &rate}})
	assert.ErrorIs(t, err, ErrPointsOutOfRange)

	huge := math.MaxInt
	_, err = PurchasePoints(1, []Promotion{{Type: PromotionOneTime, Points: &huge}})
	assert.ErrorIs(t, err, ErrPointsOutOfRange)
}

func TestPointsInRange(t *testing.T) {
	assert.True(t, PointsInRange(MaxPoints))
	assert.True(t, PointsInRange(-MaxPoints))
	assert.False(t, PointsInRange(MaxPoints+1))
	assert.False(t, PointsInRange(math.MinInt))
}

func TestPromotion_ActiveAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Promotion{StartTime: start, EndTime: start.Add(24 * time.Hour)}

	assert.False(t, p.ActiveAt(start.Add(-time.Second)))
	assert.True(t, p.ActiveAt(start))
	assert.True(t, p.ActiveAt(start.Add(24*time.Hour)))
	assert.False(t, p.ActiveAt(start.Add(25*time.Hour)))
}

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, RoleSuperuser.AtLeast(RoleManager))
	assert.True(t, RoleCashier.AtLeast(RoleCashier))
	assert.False(t, RoleRegular.AtLeast(RoleCashier))
	assert.False(t, Role("admin").AtLeast(RoleRegular))
	assert.False(t, Role("admin").Valid())
}
