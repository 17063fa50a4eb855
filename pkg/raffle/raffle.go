// Package raffle holds the raffle status labels and rule messages shared by
// the API and its Go client.
package raffle

import (
	"errors"
	"time"
)

type Status string

const (
	Upcoming    Status = "Upcoming"
	Open        Status = "Open"
	Closed      Status = "Closed"
	ReadyToDraw Status = "Ready to Draw"
	Drawn       Status = "Drawn"
)

var (
	ErrNotStarted     = errors.New("Raffle has not started yet")
	ErrEnded          = errors.New("Raffle has ended")
	ErrAlreadyDrawn   = errors.New("Raffle has already been drawn")
	ErrDrawTimeNotYet = errors.New("Draw time has not been reached")
	ErrNoEntries      = errors.New("No entries in this raffle")
)

// StatusAt derives the status label from the raffle window alone.
func StatusAt(now, start, end, draw time.Time, drawn bool) Status {
	switch {
	case drawn:
		return Drawn
	case now.Before(start):
		return Upcoming
	case !now.After(end):
		return Open
	case now.Before(draw):
		return Closed
	default:
		return ReadyToDraw
	}
}
