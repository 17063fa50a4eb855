package domain

import (
	"errors"
	"math"
	"strings"
	"time"
)

type TransactionType string

const (
	TxPurchase   TransactionType = "purchase"
	TxRedemption TransactionType = "redemption"
	TxTransfer   TransactionType = "transfer"
	TxAdjustment TransactionType = "adjustment"
	TxEvent      TransactionType = "event"
)

// PointsPerDollar is the base earning rate of a purchase: one point per 25 cents.
const PointsPerDollar = 4

const (
	// MaxPoints bounds a single change to a balance or an event budget.
	MaxPoints = 1_000_000_000
	// MaxSpent bounds the dollar amount of a single purchase.
	MaxSpent = 1_000_000
)

var (
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrSpentTooLarge          = errors.New("spent cannot exceed 1000000")
	ErrPointsOutOfRange       = errors.New("amount cannot exceed 1000000000 points")
)

// PointsInRange reports whether |n| is an acceptable single ledger change.
func PointsInRange(n int) bool {
	return n >= -MaxPoints && n <= MaxPoints
}

// ParseTransactionType accepts the legacy spelling "redeem" for redemptions.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TxPurchase, TxRedemption, TxTransfer, TxAdjustment, TxEvent:
		return t, nil
	case "redeem":
		return TxRedemption, nil
	default:
		return "", ErrUnknownTransactionType
	}
}

type Transaction struct {
	ID           uint            `json:"id"`
	UserID       uint            `json:"-"`
	UTORid       string          `json:"utorid"`
	Type         TransactionType `json:"type"`
	Amount       int             `json:"amount"`
	Spent        *float64        `json:"spent,omitempty"`
	Earned       *int            `json:"earned,omitempty"`
	Redeemed     *int            `json:"redeemed,omitempty"`
	Awarded      *int            `json:"awarded,omitempty"`
	Sent         *int            `json:"sent,omitempty"`
	RelatedID    *uint           `json:"relatedId,omitempty"`
	Remark       string          `json:"remark"`
	PromotionIDs []uint          `json:"promotionIds"`
	CreatedBy    string          `json:"createdBy"`
	Processed    bool            `json:"processed"`
	ProcessedBy  string          `json:"processedBy,omitempty"`
	Suspicious   bool            `json:"suspicious"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Effective reports whether the amount of t is reflected in the owner's
// balance. Suspicious transactions and unprocessed redemptions are not.
func (t Transaction) Effective() bool {
	if t.Suspicious {
		return false
	}
	if t.Type == TxRedemption && !t.Processed {
		return false
	}

	return true
}

// FillTypeFields derives the per-type view (earned, redeemed, sent, awarded)
// from the signed amount.
func (t *Transaction) FillTypeFields() {
	v := t.Amount
	switch t.Type {
	case TxPurchase:
		t.Earned = &v
	case TxRedemption:
		r := -v
		t.Redeemed = &r
	case TxTransfer:
		s := v
		if s < 0 {
			s = -s
		}
		t.Sent = &s
	case TxEvent:
		t.Awarded = &v
	}
}

type TransactionFilter struct {
	Name        string
	CreatedBy   string
	UserID      uint
	Suspicious  *bool
	Processed   *bool
	PromotionID uint
	Type        TransactionType
	RelatedID   uint
	Amount      *int
	// Operator is "gte" or "lte" and applies to Amount.
	Operator string
	Page     int
	Limit    int
}

// BasePoints is the number of points a purchase earns before promotions.
func BasePoints(spent float64) int {
	return int(math.Round(spent * PointsPerDollar))
}

// PurchasePoints adds the bonus of every promotion in promos to the base
// points. The sum is computed in floating point so an oversized purchase or
// promotion is reported instead of wrapping.
func PurchasePoints(spent float64, promos []Promotion) (int, error) {
	if spent > MaxSpent {
		return 0, ErrSpentTooLarge
	}

	earned := math.Round(spent * PointsPerDollar)
	for _, p := range promos {
		earned += p.bonus(spent)
	}
	if math.IsNaN(earned) || earned > MaxPoints || earned < -MaxPoints {
		return 0, ErrPointsOutOfRange
	}

	return int(earned), nil
}
