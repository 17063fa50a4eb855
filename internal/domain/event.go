package domain

import "time"

type Event struct {
	ID            uint          `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Location      string        `json:"location"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Capacity      *int          `json:"capacity"`
	NumGuests     int           `json:"numGuests"`
	PointsRemain  int           `json:"pointsRemain"`
	PointsAwarded int           `json:"pointsAwarded"`
	Published     bool          `json:"published"`
	Organizers    []UserSummary `json:"organizers"`
	Guests        []UserSummary `json:"guests,omitempty"`
}

func (e Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartTime)
}

// HasEnded is true from EndTime on. Guests may only be added strictly before it.
func (e Event) HasEnded(now time.Time) bool {
	return !now.Before(e.EndTime)
}

func (e Event) IsFull() bool {
	return e.Capacity != nil && e.NumGuests >= *e.Capacity
}

func (e Event) IsOrganizer(userID uint) bool {
	for _, o := range e.Organizers {
		if o.ID == userID {
			return true
		}
	}

	return false
}

func (e Event) IsGuest(userID uint) bool {
	for _, g := range e.Guests {
		if g.ID == userID {
			return true
		}
	}

	return false
}

type EventFilter struct {
	Name      string
	Location  string
	Started   *bool
	Ended     *bool
	ShowFull  bool
	Published *bool
	Page      int
	Limit     int
}
