package request

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/campus-loyalty/points-api/internal/domain"
)

var (
	errTypeNotAllowed   = errors.New("type is not allowed here")
	errAmountPositive   = errors.New("amount must be greater than zero")
	errAmountNonZero    = errors.New("amount must be a non-zero integer")
	errSpentInvalid     = errors.New("spent must be a non-negative number")
	errRelatedIDInvalid = errors.New("relatedId must be a positive integer")
	errProcessedTrue    = errors.New("processed can only be set to true")
)

// CreateTransactionRequest is posted by cashiers (purchase) and managers
// (adjustment). Type accepts the legacy spelling "redeem".
type CreateTransactionRequest struct {
	UTORid       string   `json:"utorid"`
	Type         string   `json:"type"`
	Spent        *float64 `json:"spent"`
	Amount       *int     `json:"amount"`
	RelatedID    *int     `json:"relatedId"`
	PromotionIDs []uint   `json:"promotionIds"`
	Remark       string   `json:"remark"`
}

func (req *CreateTransactionRequest) TxType() domain.TransactionType {
	t, _ := domain.ParseTransactionType(req.Type)
	return t
}

func (req *CreateTransactionRequest) Validate() error {
	err := validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required),
		validation.Field(&req.Type, validation.Required),
	)
	if err != nil {
		return err
	}

	switch req.TxType() {
	case domain.TxPurchase:
		if req.Spent == nil || math.IsNaN(*req.Spent) || math.IsInf(*req.Spent, 0) || *req.Spent < 0 {
			return errSpentInvalid
		}
		if *req.Spent > domain.MaxSpent {
			return domain.ErrSpentTooLarge
		}
	case domain.TxAdjustment:
		if req.Amount == nil || *req.Amount == 0 {
			return errAmountNonZero
		}
		if !domain.PointsInRange(*req.Amount) {
			return domain.ErrPointsOutOfRange
		}
		if req.RelatedID == nil || *req.RelatedID <= 0 {
			return errRelatedIDInvalid
		}
	default:
		return errTypeNotAllowed
	}

	return nil
}

// UserTransactionRequest is a redemption on /users/me/transactions or a
// transfer on /users/:userId/transactions.
type UserTransactionRequest struct {
	Type   string `json:"type"`
	Amount *int   `json:"amount"`
	Remark string `json:"remark"`
}

func (req *UserTransactionRequest) Validate(allowed domain.TransactionType) error {
	if err := validation.ValidateStruct(req, validation.Field(&req.Type, validation.Required)); err != nil {
		return err
	}
	if t, err := domain.ParseTransactionType(req.Type); err != nil || t != allowed {
		return errTypeNotAllowed
	}
	if req.Amount == nil || *req.Amount <= 0 {
		return errAmountPositive
	}
	if *req.Amount > domain.MaxPoints {
		return domain.ErrPointsOutOfRange
	}

	return nil
}

type ProcessedRequest struct {
	Processed *bool `json:"processed"`
}

func (req *ProcessedRequest) Validate() error {
	if req.Processed == nil || !*req.Processed {
		return errProcessedTrue
	}

	return nil
}

type SuspiciousRequest struct {
	Suspicious *bool `json:"suspicious"`
}

func (req *SuspiciousRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Suspicious, validation.NotNil),
	)
}

type AwardRequest struct {
	Type   string `json:"type"`
	UTORid string `json:"utorid"`
	Amount *int   `json:"amount"`
	Remark string `json:"remark"`
}

func (req *AwardRequest) Validate() error {
	if t, err := domain.ParseTransactionType(req.Type); err != nil || t != domain.TxEvent {
		return errTypeNotAllowed
	}
	if req.Amount == nil || *req.Amount <= 0 {
		return errAmountPositive
	}
	if *req.Amount > domain.MaxPoints {
		return domain.ErrPointsOutOfRange
	}

	return nil
}

// TransactionQuery binds the list filters. Page and limit are checked by the
// gin validator.
type TransactionQuery struct {
	Name        string `form:"name"`
	CreatedBy   string `form:"createdBy"`
	Suspicious  *bool  `form:"suspicious"`
	Processed   *bool  `form:"processed"`
	PromotionID uint   `form:"promotionId"`
	Type        string `form:"type"`
	RelatedID   uint   `form:"relatedId"`
	Amount      *int   `form:"amount"`
	Operator    string `form:"operator" binding:"omitempty,oneof=gte lte"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *TransactionQuery) Filter() (domain.TransactionFilter, error) {
	f := domain.TransactionFilter{
		Name:        q.Name,
		CreatedBy:   q.CreatedBy,
		Suspicious:  q.Suspicious,
		Processed:   q.Processed,
		PromotionID: q.PromotionID,
		RelatedID:   q.RelatedID,
		Amount:      q.Amount,
		Operator:    q.Operator,
		Page:        pageOrDefault(q.Page),
		Limit:       limitOrDefault(q.Limit),
	}
	if q.Type != "" {
		t, err := domain.ParseTransactionType(q.Type)
		if err != nil {
			return domain.TransactionFilter{}, err
		}
		f.Type = t
	}

	return f, nil
}
