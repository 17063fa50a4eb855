package request

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/campus-loyalty/points-api/internal/domain"
)

type CreatePromotionRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MinSpending *float64  `json:"minSpending"`
	Rate        *float64  `json:"rate"`
	Points      *int      `json:"points"`
}

func (req *CreatePromotionRequest) Validate() error {
	err := validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Description, validation.Required),
		validation.Field(&req.Type, validation.Required, validation.In("automatic", "one-time", "one_time")),
		validation.Field(&req.StartTime, validation.Required),
		validation.Field(&req.EndTime, validation.Required),
		validation.Field(&req.MinSpending, validation.Min(0.0)),
		validation.Field(&req.Rate, validation.Min(0.0)),
		validation.Field(&req.Points, validation.Min(0), validation.Max(domain.MaxPoints)),
	)
	if err != nil {
		return err
	}
	if !req.EndTime.After(req.StartTime) {
		return errEndBeforeStart
	}

	return nil
}

type UpdatePromotionRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	MinSpending *float64   `json:"minSpending"`
	Rate        *float64   `json:"rate"`
	Points      *int       `json:"points"`
}

func (req *UpdatePromotionRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.NilOrNotEmpty),
		validation.Field(&req.Type, validation.NilOrNotEmpty, validation.In("automatic", "one-time", "one_time")),
		validation.Field(&req.MinSpending, validation.Min(0.0)),
		validation.Field(&req.Rate, validation.Min(0.0)),
		validation.Field(&req.Points, validation.Min(0), validation.Max(domain.MaxPoints)),
	)
}

// NormalizePromotionType maps the underscore spelling some clients send.
func NormalizePromotionType(t string) string {
	if t == "one_time" {
		return "one-time"
	}
	return t
}

type CreateRaffleRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PointCost   *int      `json:"pointCost"`
	PrizePoints int       `json:"prizePoints"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DrawTime    time.Time `json:"drawTime"`
}

func (req *CreateRaffleRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.PointCost, validation.Min(0), validation.Max(domain.MaxPoints)),
		validation.Field(&req.PrizePoints, validation.Required, validation.Min(1), validation.Max(domain.MaxPoints)),
		validation.Field(&req.StartTime, validation.Required),
		validation.Field(&req.EndTime, validation.Required),
		validation.Field(&req.DrawTime, validation.Required),
	)
}
