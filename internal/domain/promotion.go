package domain

import (
	"math"
	"time"
)

type PromotionType string

const (
	PromotionAutomatic PromotionType = "automatic"
	PromotionOneTime   PromotionType = "one-time"
)

type Promotion struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        PromotionType `json:"type"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	MinSpending *float64      `json:"minSpending"`
	Rate        *float64      `json:"rate"`
	Points      *int          `json:"points"`
}

func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartTime) && !now.After(p.EndTime)
}

func (p Promotion) HasStarted(now time.Time) bool {
	return !now.Before(p.StartTime)
}

func (p Promotion) HasEnded(now time.Time) bool {
	return now.After(p.EndTime)
}

// Qualifies reports whether a purchase of spent dollars meets the minimum spending.
func (p Promotion) Qualifies(spent float64) bool {
	return p.MinSpending == nil || spent >= *p.MinSpending
}

// bonus is the flat bonus plus rate extra points per cent spent.
func (p Promotion) bonus(spent float64) float64 {
	var bonus float64
	if p.Points != nil {
		bonus += float64(*p.Points)
	}
	if p.Rate != nil {
		bonus += math.Round(spent * 100 * *p.Rate)
	}

	return bonus
}

type PromotionFilter struct {
	Name    string
	Type    PromotionType
	Started *bool
	Ended   *bool
	Page    int
	Limit   int
}
