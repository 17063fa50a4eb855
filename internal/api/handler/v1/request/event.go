package request

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/campus-loyalty/points-api/internal/domain"
)

var errEndBeforeStart = errors.New("endTime must be after startTime")

type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Capacity    *int      `json:"capacity"`
	Points      *int      `json:"points"`
}

func (req *CreateEventRequest) Validate() error {
	err := validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Description, validation.Required),
		validation.Field(&req.Location, validation.Required),
		validation.Field(&req.StartTime, validation.Required),
		validation.Field(&req.EndTime, validation.Required),
		validation.Field(&req.Capacity, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&req.Points, validation.NotNil, validation.Min(0), validation.Max(domain.MaxPoints)),
	)
	if err != nil {
		return err
	}
	if !req.EndTime.After(req.StartTime) {
		return errEndBeforeStart
	}

	return nil
}

type UpdateEventRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Capacity    *int       `json:"capacity"`
	Points      *int       `json:"points"`
	Published   *bool      `json:"published"`
}

func (req *UpdateEventRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.NilOrNotEmpty),
		validation.Field(&req.Description, validation.NilOrNotEmpty),
		validation.Field(&req.Location, validation.NilOrNotEmpty),
		validation.Field(&req.Capacity, validation.Min(1)),
		validation.Field(&req.Points, validation.Min(0), validation.Max(domain.MaxPoints)),
	)
}

type UTORidRequest struct {
	UTORid string `json:"utorid"`
}

func (req *UTORidRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.UTORid, validation.Required),
	)
}
