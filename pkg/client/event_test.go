package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int {
	return &n
}

func TestRSVPGuard_Check(t *testing.T) {
	open := Event{ID: 3, EndTime: testNow.Add(time.Hour), Capacity: intPtr(5), NumGuests: 4}
	full := Event{ID: 3, EndTime: testNow.Add(time.Hour), Capacity: intPtr(5), NumGuests: 5}
	unlimited := Event{ID: 3, EndTime: testNow.Add(time.Hour), NumGuests: 500}
	ended := Event{ID: 3, EndTime: testNow.Add(-time.Minute), NumGuests: 1}

	assert.NoError(t, RSVPGuard{Event: open}.Check(testNow))
	assert.NoError(t, RSVPGuard{Event: unlimited}.Check(testNow))
	assert.NoError(t, RSVPGuard{Event: full, Attending: true}.Check(testNow))
	assert.NoError(t, RSVPGuard{Event: open}.Check(open.EndTime))

	err := RSVPGuard{Event: full}.Check(testNow)
	requireErr(t, err, KindValidation, "Event is full")

	err = RSVPGuard{Event: ended, Attending: true}.Check(testNow)
	requireErr(t, err, KindValidation, "Event has ended")
}

func TestToggleRSVP_RoundTripRestoresGuestCount(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodPost, "/events/3/guests/me", http.StatusCreated, map[string]any{
		"id": 3, "name": "Games night", "numGuests": 5,
		"guestAdded": UserSummary{ID: 1, UTORid: "student01"},
	})
	f.respond(http.MethodDelete, "/events/3/guests/me", http.StatusOK, map[string]any{"id": 3, "numGuests": 4})
	ctx := context.Background()

	g := &RSVPGuard{Event: Event{ID: 3, EndTime: testNow.Add(time.Hour), Capacity: intPtr(5), NumGuests: 4}}

	require.NoError(t, c.ToggleRSVP(ctx, g))
	assert.True(t, g.Attending)
	assert.Equal(t, 5, g.Event.NumGuests)

	// Full, but leaving is still allowed.
	require.NoError(t, c.ToggleRSVP(ctx, g))
	assert.False(t, g.Attending)
	assert.Equal(t, 4, g.Event.NumGuests)

	assert.Equal(t, 1, f.count(http.MethodPost, "/events/3/guests/me"))
	assert.Equal(t, 1, f.count(http.MethodDelete, "/events/3/guests/me"))
	assert.Zero(t, f.count(http.MethodGet, "/events/3"))
}

func TestToggleRSVP_ReloadsWhenCountMissing(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.handle(http.MethodPost, "/events/3/guests/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	})
	f.respond(http.MethodGet, "/events/3", http.StatusOK, Event{ID: 3, EndTime: testNow.Add(time.Hour), NumGuests: 7})

	g := &RSVPGuard{Event: Event{ID: 3, EndTime: testNow.Add(time.Hour), NumGuests: 5}}
	require.NoError(t, c.ToggleRSVP(context.Background(), g))
	assert.Equal(t, 7, g.Event.NumGuests)
	assert.Equal(t, 1, f.count(http.MethodGet, "/events/3"))
}

func TestToggleRSVP_FallsBackToLocalCount(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.handle(http.MethodDelete, "/events/3/guests/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	f.respond(http.MethodGet, "/events/3", http.StatusInternalServerError, map[string]string{"error": "internal server error"})

	g := &RSVPGuard{Event: Event{ID: 3, EndTime: testNow.Add(time.Hour)}, Attending: true}
	require.NoError(t, c.ToggleRSVP(context.Background(), g))
	assert.False(t, g.Attending)
	assert.Zero(t, g.Event.NumGuests)
}

func TestToggleRSVP_StatusMessages(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	ctx := context.Background()

	f.respond(http.MethodPost, "/events/3/guests/me", http.StatusGone, map[string]string{"error": "event is full"})
	g := &RSVPGuard{Event: Event{ID: 3, EndTime: testNow.Add(time.Hour), NumGuests: 1}}
	err := c.ToggleRSVP(ctx, g)
	requireErr(t, err, KindGone, "Event is full or has ended")
	assert.False(t, g.Attending)
	assert.Equal(t, 1, g.Event.NumGuests)

	f.respond(http.MethodPost, "/events/3/guests/me", http.StatusBadRequest, map[string]string{"error": "duplicate guest"})
	err = c.ToggleRSVP(ctx, g)
	requireErr(t, err, KindBadRequest, "You have already RSVPed")

	f.respond(http.MethodPost, "/events/3/guests/me", http.StatusNotFound, map[string]string{"error": "Event not found"})
	err = c.ToggleRSVP(ctx, g)
	requireErr(t, err, KindNotFound, "Event not found")
}

func TestToggleRSVP_EndedEventSendsNothing(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)

	g := &RSVPGuard{Event: Event{ID: 3, EndTime: testNow.Add(-time.Second)}}
	err := c.ToggleRSVP(context.Background(), g)
	requireErr(t, err, KindValidation, "Event has ended")
	assert.Zero(t, f.countPrefix(http.MethodPost, "/events/"))
}

func TestSaveEventPeople_ReportsEachFailure(t *testing.T) {
	f, c := newFakeAPI(t)
	login(t, c)
	f.respond(http.MethodPost, "/events/3/organizers", http.StatusCreated, Event{ID: 3})
	f.handle(http.MethodPost, "/events/3/guests", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		n := f.calls["POST /events/3/guests"]
		f.mu.Unlock()
		if n == 1 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 3, "numGuests": 1})
	})

	results := c.SaveEventPeople(context.Background(), 3, []string{"organizer1"}, []string{"ghost0001", "", "student02"})
	require.Len(t, results, 3)

	assert.Equal(t, PersonResult{UTORid: "organizer1", As: "organizer"}, results[0])

	assert.Equal(t, "ghost0001", results[1].UTORid)
	assert.Equal(t, "guest", results[1].As)
	requireErr(t, results[1].Err, KindNotFound, "User not found")

	assert.Equal(t, "student02", results[2].UTORid)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, 1, f.count(http.MethodPost, "/events/3/organizers"))
	assert.Equal(t, 2, f.count(http.MethodPost, "/events/3/guests"))
}
