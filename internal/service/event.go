package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/metrics"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrEventNotFound           = repository.ErrEventNotFound
	ErrEventFull               = repository.ErrEventFull
	ErrEventEnded              = repository.ErrEventEnded
	ErrAlreadyGuest            = repository.ErrAlreadyGuest
	ErrAlreadyOrganizer        = repository.ErrAlreadyOrganizer
	ErrUserIsGuest             = repository.ErrUserIsGuest
	ErrUserIsOrganizer         = repository.ErrUserIsOrganizer
	ErrNotGuest                = repository.ErrNotGuest
	ErrNotOrganizer            = repository.ErrNotOrganizer
	ErrInsufficientEventPoints = repository.ErrInsufficientEventPoints

	ErrNotEventManager     = errors.New("only managers and organizers of this event may do this")
	ErrManagerOnlyField    = errors.New("only managers may change published or points")
	ErrInvalidTimeRange    = errors.New("endTime must be after startTime")
	ErrTimeInPast          = errors.New("times cannot be in the past")
	ErrInvalidCapacity     = errors.New("capacity must be a positive integer")
	ErrCapacityBelowGuests = errors.New("capacity cannot be below the number of guests")
	ErrNegativePoints      = errors.New("points must be a non-negative integer")
	ErrPointsBelowAwarded  = errors.New("points cannot be less than what has already been awarded")
	ErrEventStarted        = errors.New("event has already started")
	ErrEventAlreadyEnded   = errors.New("event has already ended")
	ErrPublishOnlyTrue     = errors.New("published can only be set to true")
	ErrEventPublished      = errors.New("published events cannot be deleted")
	ErrRecipientNotGuest   = errors.New("recipient is not a guest of this event")
	ErrNoGuests            = errors.New("event has no guests to award")
)

type EventRepository interface {
	Create(ctx context.Context, e domain.Event) (domain.Event, error)
	FindByID(ctx context.Context, id uint) (domain.Event, error)
	List(ctx context.Context, filter domain.EventFilter, now time.Time) ([]domain.Event, int64, error)
	Update(ctx context.Context, id uint, upd repository.EventUpdate) (domain.Event, error)
	Delete(ctx context.Context, id uint) error
	AddOrganizer(ctx context.Context, eventID, userID uint, now time.Time) error
	RemoveOrganizer(ctx context.Context, eventID, userID uint) error
	AddGuest(ctx context.Context, eventID, userID uint, now time.Time) (domain.Event, error)
	RemoveGuest(ctx context.Context, eventID, userID uint, now *time.Time) (domain.Event, error)
	Award(ctx context.Context, eventID uint, recipients []domain.UserSummary, amount int, remark, createdBy string) ([]domain.Transaction, error)
}

type UserFinder interface {
	FindByUTORid(ctx context.Context, utorid string) (domain.User, error)
}

type EventInput struct {
	Name        string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    *int
	Points      int
}

type EventPatch struct {
	Name        *string
	Description *string
	Location    *string
	StartTime   *time.Time
	EndTime     *time.Time
	Capacity    *int
	Points      *int
	Published   *bool
}

type EventService struct {
	repo     EventRepository
	users    UserFinder
	notifier Notifier
	now      clock
}

func NewEventService(repo EventRepository, users UserFinder, notifier Notifier) *EventService {
	return &EventService{
		repo:     repo,
		users:    users,
		notifier: notifierOrNop(notifier),
		now:      time.Now,
	}
}

func (s *EventService) Create(ctx context.Context, in EventInput) (domain.Event, error) {
	now := s.now()
	switch {
	case !in.EndTime.After(in.StartTime):
		return domain.Event{}, ErrInvalidTimeRange
	case in.StartTime.Before(now):
		return domain.Event{}, ErrTimeInPast
	case in.Capacity != nil && *in.Capacity <= 0:
		return domain.Event{}, ErrInvalidCapacity
	case in.Points < 0:
		return domain.Event{}, ErrNegativePoints
	case in.Points > domain.MaxPoints:
		return domain.Event{}, ErrPointsOutOfRange
	}

	created, err := s.repo.Create(ctx, domain.Event{
		Name:         in.Name,
		Description:  in.Description,
		Location:     in.Location,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Capacity:     in.Capacity,
		PointsRemain: in.Points,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.Create -> %w", err)
	}

	return created, nil
}

// Get hides unpublished events from users who neither manage nor organize
// them, and guest lists from everyone but managers and organizers.
func (s *EventService) Get(ctx context.Context, viewer domain.User, id uint) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	privileged := viewer.Role.AtLeast(domain.RoleManager) || event.IsOrganizer(viewer.ID)
	if !privileged {
		if !event.Published {
			return domain.Event{}, ErrEventNotFound
		}
		event.Guests = nil
	}

	return event, nil
}

func (s *EventService) List(ctx context.Context, viewer domain.User, filter domain.EventFilter) ([]domain.Event, int64, error) {
	if !viewer.Role.AtLeast(domain.RoleManager) {
		published := true
		filter.Published = &published
	}

	events, count, err := s.repo.List(ctx, filter, s.now())
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.List -> %w", err)
	}

	return events, count, nil
}

func (s *EventService) Update(ctx context.Context, actor domain.User, id uint, patch EventPatch) (domain.Event, error) {
	event, err := s.authorize(ctx, actor, id)
	if err != nil {
		return domain.Event{}, err
	}

	isManager := actor.Role.AtLeast(domain.RoleManager)
	if (patch.Published != nil || patch.Points != nil) && !isManager {
		return domain.Event{}, ErrManagerOnlyField
	}
	if patch.Published != nil && !*patch.Published {
		return domain.Event{}, ErrPublishOnlyTrue
	}

	now := s.now()
	started, ended := event.HasStarted(now), event.HasEnded(now)
	changesBeforeStart := patch.Name != nil || patch.Description != nil || patch.Location != nil || patch.StartTime != nil || patch.Capacity != nil
	if started && changesBeforeStart {
		return domain.Event{}, ErrEventStarted
	}
	if ended && patch.EndTime != nil {
		return domain.Event{}, ErrEventAlreadyEnded
	}

	start, end := event.StartTime, event.EndTime
	if patch.StartTime != nil {
		if patch.StartTime.Before(now) {
			return domain.Event{}, ErrTimeInPast
		}
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		if patch.EndTime.Before(now) {
			return domain.Event{}, ErrTimeInPast
		}
		end = *patch.EndTime
	}
	if !end.After(start) {
		return domain.Event{}, ErrInvalidTimeRange
	}

	if patch.Capacity != nil {
		if *patch.Capacity <= 0 {
			return domain.Event{}, ErrInvalidCapacity
		}
		if *patch.Capacity < event.NumGuests {
			return domain.Event{}, ErrCapacityBelowGuests
		}
	}

	var remain *int
	if patch.Points != nil {
		if *patch.Points < 0 {
			return domain.Event{}, ErrNegativePoints
		}
		if *patch.Points > domain.MaxPoints {
			return domain.Event{}, ErrPointsOutOfRange
		}
		r := *patch.Points - event.PointsAwarded
		if r < 0 {
			return domain.Event{}, ErrPointsBelowAwarded
		}
		remain = &r
	}

	updated, err := s.repo.Update(ctx, id, repository.EventUpdate{
		Name:         patch.Name,
		Description:  patch.Description,
		Location:     patch.Location,
		StartTime:    patch.StartTime,
		EndTime:      patch.EndTime,
		Capacity:     patch.Capacity,
		Published:    patch.Published,
		PointsRemain: remain,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	return updated, nil
}

func (s *EventService) Delete(ctx context.Context, id uint) error {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("s.repo.FindByID -> %w", err)
	}
	if event.Published {
		return ErrEventPublished
	}

	if err = s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("s.repo.Delete -> %w", err)
	}

	return nil
}

func (s *EventService) AddOrganizer(ctx context.Context, id uint, utorid string) (domain.Event, error) {
	user, err := s.users.FindByUTORid(ctx, utorid)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.users.FindByUTORid -> %w", err)
	}

	if err = s.repo.AddOrganizer(ctx, id, user.ID, s.now()); err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.AddOrganizer -> %w", err)
	}

	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	return event, nil
}

func (s *EventService) RemoveOrganizer(ctx context.Context, id, userID uint) error {
	if err := s.repo.RemoveOrganizer(ctx, id, userID); err != nil {
		return fmt.Errorf("s.repo.RemoveOrganizer -> %w", err)
	}

	return nil
}

// AddGuest lets a manager or organizer put utorid on the guest list.
func (s *EventService) AddGuest(ctx context.Context, actor domain.User, id uint, utorid string) (domain.Event, domain.UserSummary, error) {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return domain.Event{}, domain.UserSummary{}, err
	}

	user, err := s.users.FindByUTORid(ctx, utorid)
	if err != nil {
		return domain.Event{}, domain.UserSummary{}, fmt.Errorf("s.users.FindByUTORid -> %w", err)
	}

	event, err := s.repo.AddGuest(ctx, id, user.ID, s.now())
	if err != nil {
		return domain.Event{}, domain.UserSummary{}, fmt.Errorf("s.repo.AddGuest -> %w", err)
	}

	return event, user.Summary(), nil
}

func (s *EventService) RemoveGuest(ctx context.Context, id, userID uint) error {
	if _, err := s.repo.RemoveGuest(ctx, id, userID, nil); err != nil {
		return fmt.Errorf("s.repo.RemoveGuest -> %w", err)
	}

	return nil
}

// RSVP adds the caller to a published event.
func (s *EventService) RSVP(ctx context.Context, user domain.User, id uint) (domain.Event, error) {
	if _, err := s.Get(ctx, user, id); err != nil {
		return domain.Event{}, err
	}

	event, err := s.repo.AddGuest(ctx, id, user.ID, s.now())
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.AddGuest -> %w", err)
	}

	zap.L().Info("rsvp added", zap.Uint("eventId", id), zap.String("utorid", user.UTORid), zap.Int("numGuests", event.NumGuests))

	return event, nil
}

func (s *EventService) CancelRSVP(ctx context.Context, user domain.User, id uint) (domain.Event, error) {
	now := s.now()
	event, err := s.repo.RemoveGuest(ctx, id, user.ID, &now)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.RemoveGuest -> %w", err)
	}

	zap.L().Info("rsvp removed", zap.Uint("eventId", id), zap.String("utorid", user.UTORid), zap.Int("numGuests", event.NumGuests))

	return event, nil
}

// Award credits amount points to the guest utorid, or to every guest when
// utorid is empty, drawing from the event's remaining points.
func (s *EventService) Award(ctx context.Context, actor domain.User, id uint, utorid string, amount int, remark string) ([]domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrAmountNotPositive
	}
	if amount > domain.MaxPoints {
		return nil, ErrPointsOutOfRange
	}

	event, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	recipients := event.Guests
	if utorid != "" {
		recipients = nil
		for _, g := range event.Guests {
			if g.UTORid == utorid {
				recipients = []domain.UserSummary{g}
				break
			}
		}
		if recipients == nil {
			return nil, ErrRecipientNotGuest
		}
	}
	if len(recipients) == 0 {
		return nil, ErrNoGuests
	}
	if amount > event.PointsRemain/len(recipients) {
		return nil, ErrInsufficientEventPoints
	}

	txs, err := s.repo.Award(ctx, id, recipients, amount, remark, actor.UTORid)
	metrics.Ledger(string(domain.TxEvent), amount*len(recipients), err)
	if err != nil {
		return nil, fmt.Errorf("s.repo.Award -> %w", err)
	}

	zap.L().Info("event points awarded", zap.Uint("eventId", id), zap.Int("amount", amount), zap.Int("recipients", len(txs)))
	for _, tx := range txs {
		s.notifier.Notify(pointsChanged(tx))
	}

	return txs, nil
}

func (s *EventService) authorize(ctx context.Context, actor domain.User, id uint) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	if !actor.Role.AtLeast(domain.RoleManager) && !event.IsOrganizer(actor.ID) {
		return domain.Event{}, ErrNotEventManager
	}

	return event, nil
}
