package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	msgEventFullOrEnded = "Event is full or has ended"
	msgAlreadyRSVPed    = "You have already RSVPed"
)

func (c *Client) GetEvent(ctx context.Context, id uint) (Event, error) {
	var event Event
	if err := c.do(ctx, "load event", http.MethodGet, fmt.Sprintf("/events/%d", id), nil, &event); err != nil {
		return Event{}, err
	}

	return event, nil
}

// RSVPGuard is the local view of an event from the current user's side.
type RSVPGuard struct {
	Event     Event
	Attending bool
}

// Check reports whether toggling the RSVP may be attempted at now. Leaving
// a full event is always allowed before it ends.
func (g RSVPGuard) Check(now time.Time) error {
	if now.After(g.Event.EndTime) {
		return validationErr("", "Event has ended")
	}
	if g.Attending || g.Event.Capacity == nil || g.Event.NumGuests < *g.Event.Capacity {
		return nil
	}

	return validationErr("", "Event is full")
}

type guestCount struct {
	NumGuests *int `json:"numGuests"`
}

// ToggleRSVP joins or leaves g.Event and updates g. The guest count comes
// from the response when the server sends one; otherwise the event is
// reloaded.
func (c *Client) ToggleRSVP(ctx context.Context, g *RSVPGuard) error {
	if err := g.Check(c.now()); err != nil {
		return err
	}

	path := fmt.Sprintf("/events/%d/guests/me", g.Event.ID)

	var resp guestCount
	if g.Attending {
		if err := c.do(ctx, "cancel RSVP", http.MethodDelete, path, nil, &resp); err != nil {
			return rsvpErr(err, false)
		}
	} else {
		if err := c.do(ctx, "RSVP", http.MethodPost, path, nil, &resp); err != nil {
			return rsvpErr(err, true)
		}
	}

	g.Attending = !g.Attending
	c.applyGuestCount(ctx, g, resp.NumGuests)

	return nil
}

func (c *Client) applyGuestCount(ctx context.Context, g *RSVPGuard, count *int) {
	if count != nil {
		g.Event.NumGuests = *count
		return
	}

	event, err := c.GetEvent(ctx, g.Event.ID)
	if err == nil {
		g.Event = event
		return
	}

	zap.L().Warn("could not reload event after RSVP", zap.Uint("event_id", g.Event.ID), zap.Error(err))
	if g.Attending {
		g.Event.NumGuests++
	} else if g.Event.NumGuests > 0 {
		g.Event.NumGuests--
	}
}

func rsvpErr(err error, joining bool) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}

	switch {
	case e.Kind == KindGone:
		return &Error{Kind: KindGone, Status: e.Status, Message: msgEventFullOrEnded, Err: e}
	case e.Kind == KindBadRequest && joining:
		return &Error{Kind: KindBadRequest, Status: e.Status, Message: msgAlreadyRSVPed, Err: e}
	}

	return e
}

// PersonResult is the outcome of adding one organizer or guest.
type PersonResult struct {
	UTORid string
	// As is "organizer" or "guest".
	As  string
	Err error
}

// SaveEventPeople adds organizers then guests to an event one at a time.
// A failure is reported for its utorid and does not undo earlier additions.
func (c *Client) SaveEventPeople(ctx context.Context, eventID uint, organizers, guests []string) []PersonResult {
	results := make([]PersonResult, 0, len(organizers)+len(guests))

	add := func(as, segment string, utorids []string) {
		for _, utorid := range utorids {
			utorid = strings.TrimSpace(utorid)
			if utorid == "" {
				continue
			}

			path := fmt.Sprintf("/events/%d/%s", eventID, segment)
			err := c.do(ctx, "add "+as+" "+utorid, http.MethodPost, path, map[string]string{"utorid": utorid}, nil)
			results = append(results, PersonResult{UTORid: utorid, As: as, Err: err})
		}
	}

	add("organizer", "organizers", organizers)
	add("guest", "guests", guests)

	return results
}
