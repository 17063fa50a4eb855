package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/campus-loyalty/points-api/pkg/raffle"
)

// RaffleStatus is the label shown for a raffle: Upcoming, Open, Closed,
// Ready to Draw or Drawn. It only depends on its arguments, so it is stale
// as soon as now moves past one of the raffle's times.
func RaffleStatus(now time.Time, r Raffle) string {
	return string(raffle.StatusAt(now, r.StartTime, r.EndTime, r.DrawTime, r.Drawn))
}

type RaffleGuard struct {
	Raffle Raffle
}

func (g RaffleGuard) Status(now time.Time) string {
	return RaffleStatus(now, g.Raffle)
}

// CanJoin reports whether entering is allowed at now.
func (g RaffleGuard) CanJoin(now time.Time) error {
	switch {
	case g.Raffle.Drawn:
		return validationErr("", raffle.ErrAlreadyDrawn.Error())
	case now.Before(g.Raffle.StartTime):
		return validationErr("", raffle.ErrNotStarted.Error())
	case now.After(g.Raffle.EndTime):
		return validationErr("", raffle.ErrEnded.Error())
	}

	return nil
}

// CanDraw reports whether a user with role may draw at now.
func (g RaffleGuard) CanDraw(now time.Time, role string) error {
	switch {
	case !roleAtLeast(role, RoleManager):
		return &Error{Kind: KindForbidden, Message: "only a manager or above can draw a raffle"}
	case g.Raffle.Drawn:
		return validationErr("", raffle.ErrAlreadyDrawn.Error())
	case now.Before(g.Raffle.DrawTime):
		return validationErr("", raffle.ErrDrawTimeNotYet.Error())
	case g.Raffle.EntryCount == 0:
		return validationErr("", raffle.ErrNoEntries.Error())
	}

	return nil
}

func (c *Client) GetRaffle(ctx context.Context, id uint) (Raffle, error) {
	var r Raffle
	if err := c.do(ctx, "load raffle", http.MethodGet, fmt.Sprintf("/raffles/%d", id), nil, &r); err != nil {
		return Raffle{}, err
	}

	return r, nil
}

// EnterRaffle spends the raffle's point cost on one entry.
func (c *Client) EnterRaffle(ctx context.Context, r Raffle) (Raffle, error) {
	if err := (RaffleGuard{Raffle: r}).CanJoin(c.now()); err != nil {
		return Raffle{}, err
	}

	var updated Raffle
	if err := c.do(ctx, "enter raffle", http.MethodPost, fmt.Sprintf("/raffles/%d/enter", r.ID), nil, &updated); err != nil {
		return Raffle{}, err
	}

	c.forgetMe()

	return updated, nil
}

// DrawRaffle picks the winner. The prize transaction is returned with the
// drawn raffle.
func (c *Client) DrawRaffle(ctx context.Context, r Raffle) (RaffleDraw, error) {
	user, err := c.currentUser(ctx)
	if err != nil {
		return RaffleDraw{}, err
	}
	if err = (RaffleGuard{Raffle: r}).CanDraw(c.now(), user.Role); err != nil {
		return RaffleDraw{}, err
	}

	var draw RaffleDraw
	if err = c.do(ctx, "draw raffle", http.MethodPost, fmt.Sprintf("/raffles/%d/draw", r.ID), nil, &draw); err != nil {
		return RaffleDraw{}, err
	}

	return draw, nil
}
