package domain

import (
	"time"

	"github.com/campus-loyalty/points-api/pkg/raffle"
)

type RaffleStatus = raffle.Status

const (
	RaffleUpcoming    = raffle.Upcoming
	RaffleOpen        = raffle.Open
	RaffleClosed      = raffle.Closed
	RaffleReadyToDraw = raffle.ReadyToDraw
	RaffleDrawn       = raffle.Drawn
)

var (
	ErrRaffleNotStarted     = raffle.ErrNotStarted
	ErrRaffleEnded          = raffle.ErrEnded
	ErrRaffleAlreadyDrawn   = raffle.ErrAlreadyDrawn
	ErrRaffleDrawTimeNotYet = raffle.ErrDrawTimeNotYet
	ErrRaffleNoEntries      = raffle.ErrNoEntries
)

type Raffle struct {
	ID          uint         `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	PointCost   int          `json:"pointCost"`
	PrizePoints int          `json:"prizePoints"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	DrawTime    time.Time    `json:"drawTime"`
	Drawn       bool         `json:"drawn"`
	Winner      *UserSummary `json:"winner"`
	EntryCount  int          `json:"entryCount"`
	Status      RaffleStatus `json:"status"`
	Entered     bool         `json:"entered"`
}

func RaffleStatusAt(now, start, end, draw time.Time, drawn bool) RaffleStatus {
	return raffle.StatusAt(now, start, end, draw, drawn)
}

func (r Raffle) StatusAt(now time.Time) RaffleStatus {
	return RaffleStatusAt(now, r.StartTime, r.EndTime, r.DrawTime, r.Drawn)
}

// CheckJoin returns nil when an entry is allowed at now.
func (r Raffle) CheckJoin(now time.Time) error {
	switch {
	case r.Drawn:
		return ErrRaffleAlreadyDrawn
	case now.Before(r.StartTime):
		return ErrRaffleNotStarted
	case now.After(r.EndTime):
		return ErrRaffleEnded
	}

	return nil
}

// CheckDraw returns nil when the raffle may be drawn at now.
func (r Raffle) CheckDraw(now time.Time) error {
	switch {
	case r.Drawn:
		return ErrRaffleAlreadyDrawn
	case now.Before(r.DrawTime):
		return ErrRaffleDrawTimeNotYet
	case r.EntryCount == 0:
		return ErrRaffleNoEntries
	}

	return nil
}
