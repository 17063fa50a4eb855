package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/campus-loyalty/points-api/internal/domain"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

func pageOrDefault(page int) int {
	if page <= 0 {
		return defaultPage
	}
	return page
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// BindError flattens gin binding errors into one readable message.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", lowerFirst(fe.Field())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", lowerFirst(fe.Field()), fe.Param()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", lowerFirst(fe.Field()), map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", lowerFirst(fe.Field())))
		}
	}

	return errors.New(strings.Join(msgs, "; "))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

type UserQuery struct {
	Name      string `form:"name"`
	Role      string `form:"role" binding:"omitempty,oneof=regular cashier manager superuser"`
	Verified  *bool  `form:"verified"`
	Activated *bool  `form:"activated"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *UserQuery) Filter() domain.UserFilter {
	return domain.UserFilter{
		Name:      q.Name,
		Role:      domain.Role(q.Role),
		Verified:  q.Verified,
		Activated: q.Activated,
		Page:      pageOrDefault(q.Page),
		Limit:     limitOrDefault(q.Limit),
	}
}

type EventQuery struct {
	Name      string `form:"name"`
	Location  string `form:"location"`
	Started   *bool  `form:"started"`
	Ended     *bool  `form:"ended"`
	ShowFull  bool   `form:"showFull"`
	Published *bool  `form:"published"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

var errStartedAndEnded = errors.New("started and ended cannot both be set")

func (q *EventQuery) Filter() (domain.EventFilter, error) {
	if q.Started != nil && q.Ended != nil {
		return domain.EventFilter{}, errStartedAndEnded
	}

	return domain.EventFilter{
		Name:      q.Name,
		Location:  q.Location,
		Started:   q.Started,
		Ended:     q.Ended,
		ShowFull:  q.ShowFull,
		Published: q.Published,
		Page:      pageOrDefault(q.Page),
		Limit:     limitOrDefault(q.Limit),
	}, nil
}

type PromotionQuery struct {
	Name    string `form:"name"`
	Type    string `form:"type" binding:"omitempty,oneof=automatic one-time"`
	Started *bool  `form:"started"`
	Ended   *bool  `form:"ended"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *PromotionQuery) Filter() (domain.PromotionFilter, error) {
	if q.Started != nil && q.Ended != nil {
		return domain.PromotionFilter{}, errStartedAndEnded
	}

	return domain.PromotionFilter{
		Name:    q.Name,
		Type:    domain.PromotionType(q.Type),
		Started: q.Started,
		Ended:   q.Ended,
		Page:    pageOrDefault(q.Page),
		Limit:   limitOrDefault(q.Limit),
	}, nil
}

type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q *PageQuery) Values() (int, int) {
	return pageOrDefault(q.Page), limitOrDefault(q.Limit)
}
