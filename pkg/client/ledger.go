package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	msgNotEnoughPoints  = "You do not have enough points"
	msgMustBePositive   = "must be greater than zero"
	msgReceiverNotFound = "Receiver not found"
)

// ParsePoints reads a point amount typed by a user. It must be a positive
// whole number.
func ParsePoints(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, validationErr("amount", "amount is required")
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil && f <= 0 {
			return 0, validationErr("amount", msgMustBePositive)
		}
		return 0, validationErr("amount", "amount must be a whole number")
	}
	if n <= 0 {
		return 0, validationErr("amount", msgMustBePositive)
	}

	return n, nil
}

// ParseID reads an id typed by a user, such as the related transaction of an
// adjustment.
func ParseID(field, raw string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 0)
	if err != nil || n == 0 {
		return 0, validationErr(field, field+" must be a positive integer")
	}

	return uint(n), nil
}

// ParsePromotionIDs reads a comma separated list of promotion ids. An empty
// string is an empty list.
func ParsePromotionIDs(raw string) ([]uint, error) {
	ids := []uint{}
	if strings.TrimSpace(raw) == "" {
		return ids, nil
	}

	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 0)
		if err != nil || n == 0 {
			return nil, validationErr("promotionIds", "promotion ids must be a comma separated list of positive integers")
		}
		ids = append(ids, uint(n))
	}

	return ids, nil
}

type PurchaseInput struct {
	UTORid       string
	Spent        float64
	PromotionIDs []uint
	Remark       string
}

// CreatePurchase records a purchase for a customer. Whether the promotions
// still apply is left to the server; Earned on the result is what was
// credited.
func (c *Client) CreatePurchase(ctx context.Context, in PurchaseInput) (Transaction, error) {
	utorid := strings.TrimSpace(in.UTORid)
	if utorid == "" {
		return Transaction{}, validationErr("utorid", "utorid is required")
	}
	if math.IsNaN(in.Spent) || math.IsInf(in.Spent, 0) || in.Spent < 0 {
		return Transaction{}, validationErr("spent", "spent must be a non-negative number")
	}

	body := map[string]any{
		"utorid":       utorid,
		"type":         "purchase",
		"spent":        in.Spent,
		"promotionIds": nonNilIDs(in.PromotionIDs),
		"remark":       in.Remark,
	}

	var tx Transaction
	if err := c.do(ctx, "create purchase", http.MethodPost, "/transactions", body, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// RequestRedemption asks for amount points to be redeemed. The balance check
// uses the cached user, so a stale cache is caught by the server instead.
// Points leave the balance only once a cashier processes the request.
func (c *Client) RequestRedemption(ctx context.Context, amount int, remark string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, validationErr("amount", msgMustBePositive)
	}

	user, err := c.currentUser(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if amount > user.Points {
		return Transaction{}, validationErr("amount", msgNotEnoughPoints)
	}

	body := map[string]any{
		"type":   "redemption",
		"amount": amount,
		"remark": remark,
	}

	var tx Transaction
	if err = c.do(ctx, "request redemption", http.MethodPost, "/users/me/transactions", body, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// ProcessRedemption marks a redemption processed, which is when the points
// are actually deducted. Cashiers and above only.
func (c *Client) ProcessRedemption(ctx context.Context, id uint) (Transaction, error) {
	if id == 0 {
		return Transaction{}, validationErr("transactionId", "transactionId must be a positive integer")
	}
	if err := c.requireRole(ctx, RoleCashier, "process redemptions"); err != nil {
		return Transaction{}, err
	}

	var tx Transaction
	path := fmt.Sprintf("/transactions/%d/processed", id)
	if err := c.do(ctx, "process redemption", http.MethodPatch, path, map[string]bool{"processed": true}, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// RedemptionQueue is the list of unprocessed redemptions of one customer a
// cashier picks from.
type RedemptionQueue struct {
	client *Client
	utorid string
	items  []Transaction
}

// UnprocessedRedemptions loads the pending redemptions of utorid.
func (c *Client) UnprocessedRedemptions(ctx context.Context, utorid string) (*RedemptionQueue, error) {
	utorid = strings.TrimSpace(utorid)
	if utorid == "" {
		return nil, validationErr("utorid", "utorid is required")
	}
	if err := c.requireRole(ctx, RoleCashier, "process redemptions"); err != nil {
		return nil, err
	}

	path := "/transactions" + query(map[string]string{
		"name":      utorid,
		"type":      "redemption",
		"processed": "false",
		"limit":     "100",
	})

	var list listResponse[Transaction]
	if err := c.do(ctx, "load redemptions", http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	// The name filter is a substring match.
	items := make([]Transaction, 0, len(list.Results))
	for _, tx := range list.Results {
		if strings.EqualFold(tx.UTORid, utorid) {
			items = append(items, tx)
		}
	}

	return &RedemptionQueue{client: c, utorid: utorid, items: items}, nil
}

func (q *RedemptionQueue) UTORid() string {
	return q.utorid
}

func (q *RedemptionQueue) Items() []Transaction {
	out := make([]Transaction, len(q.items))
	copy(out, q.items)

	return out
}

// Process processes the redemption with the given id and drops it from the
// queue without reloading it.
func (q *RedemptionQueue) Process(ctx context.Context, id uint) (Transaction, error) {
	idx := -1
	for i, tx := range q.items {
		if tx.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Transaction{}, validationErr("transactionId", "transaction is not an unprocessed redemption of "+q.utorid)
	}

	tx, err := q.client.ProcessRedemption(ctx, id)
	if err != nil {
		return Transaction{}, err
	}

	q.items = append(q.items[:idx], q.items[idx+1:]...)

	return tx, nil
}

// ResolveUser looks a utorid up.
func (c *Client) ResolveUser(ctx context.Context, utorid string) (UserSummary, error) {
	var summary UserSummary
	path := "/users/resolve/" + url.PathEscape(utorid)
	if err := c.do(ctx, "look up user", http.MethodGet, path, nil, &summary); err != nil {
		return UserSummary{}, err
	}

	return summary, nil
}

// Transfer sends points to another user. The recipient is resolved first and
// nothing is posted when that fails.
func (c *Client) Transfer(ctx context.Context, utorid string, amount int, remark string) (Transfer, error) {
	utorid = strings.TrimSpace(utorid)
	if utorid == "" {
		return Transfer{}, validationErr("utorid", "utorid is required")
	}
	if amount <= 0 {
		return Transfer{}, validationErr("amount", msgMustBePositive)
	}

	recipient, err := c.ResolveUser(ctx, utorid)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindNotFound {
			return Transfer{}, &Error{Kind: KindNotFound, Status: e.Status, Message: msgReceiverNotFound, Field: "utorid"}
		}
		return Transfer{}, err
	}

	body := map[string]any{
		"type":   "transfer",
		"amount": amount,
		"remark": remark,
	}

	var transfer Transfer
	path := fmt.Sprintf("/users/%d/transactions", recipient.ID)
	if err = c.do(ctx, "transfer points", http.MethodPost, path, body, &transfer); err != nil {
		return Transfer{}, err
	}

	c.forgetMe()

	return transfer, nil
}

type AdjustmentInput struct {
	UTORid string
	// Amount is signed and must not be zero.
	Amount       int
	RelatedID    uint
	PromotionIDs []uint
	Remark       string
}

// CreateAdjustment corrects the effect of an earlier transaction. Managers
// and above only.
func (c *Client) CreateAdjustment(ctx context.Context, in AdjustmentInput) (Transaction, error) {
	utorid := strings.TrimSpace(in.UTORid)
	if utorid == "" {
		return Transaction{}, validationErr("utorid", "utorid is required")
	}
	if in.Amount == 0 {
		return Transaction{}, validationErr("amount", "amount must not be zero")
	}
	if in.RelatedID == 0 {
		return Transaction{}, validationErr("relatedId", "relatedId must be a positive integer")
	}
	if err := c.requireRole(ctx, RoleManager, "create adjustments"); err != nil {
		return Transaction{}, err
	}

	body := map[string]any{
		"utorid":       utorid,
		"type":         "adjustment",
		"amount":       in.Amount,
		"relatedId":    in.RelatedID,
		"promotionIds": nonNilIDs(in.PromotionIDs),
		"remark":       in.Remark,
	}

	var tx Transaction
	if err := c.do(ctx, "create adjustment", http.MethodPost, "/transactions", body, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// SetSuspicious flags or clears a transaction. Managers and above only.
func (c *Client) SetSuspicious(ctx context.Context, id uint, suspicious bool) (Transaction, error) {
	if id == 0 {
		return Transaction{}, validationErr("transactionId", "transactionId must be a positive integer")
	}
	if err := c.requireRole(ctx, RoleManager, "flag transactions"); err != nil {
		return Transaction{}, err
	}

	var tx Transaction
	path := fmt.Sprintf("/transactions/%d/suspicious", id)
	if err := c.do(ctx, "update transaction", http.MethodPatch, path, map[string]bool{"suspicious": suspicious}, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// MyTransactions lists the current user's transactions, newest first.
func (c *Client) MyTransactions(ctx context.Context, page, limit int) ([]Transaction, int64, error) {
	path := "/users/me/transactions" + query(map[string]string{
		"page":  positiveOrEmpty(page),
		"limit": positiveOrEmpty(limit),
	})

	var list listResponse[Transaction]
	if err := c.do(ctx, "load transactions", http.MethodGet, path, nil, &list); err != nil {
		return nil, 0, err
	}

	return list.Results, list.Count, nil
}

func nonNilIDs(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}

	return ids
}

func positiveOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}

	return strconv.Itoa(n)
}
