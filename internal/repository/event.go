package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

var (
	ErrEventNotFound           = dao.ErrEventNotFound
	ErrEventFull               = dao.ErrEventFull
	ErrEventEnded              = dao.ErrEventEnded
	ErrAlreadyGuest            = dao.ErrAlreadyGuest
	ErrAlreadyOrganizer        = dao.ErrAlreadyOrganizer
	ErrUserIsGuest             = dao.ErrUserIsGuest
	ErrUserIsOrganizer         = dao.ErrUserIsOrganizer
	ErrNotGuest                = dao.ErrNotGuest
	ErrNotOrganizer            = dao.ErrNotOrganizer
	ErrInsufficientEventPoints = dao.ErrInsufficientEventPoints
)

type EventDAO interface {
	Insert(ctx context.Context, event dao.Event) (dao.Event, error)
	FindByID(ctx context.Context, id uint) (dao.Event, error)
	List(ctx context.Context, q dao.EventQuery) ([]dao.Event, int64, error)
	Update(ctx context.Context, id uint, updates map[string]any) (dao.Event, error)
	Delete(ctx context.Context, id uint) error
	AddOrganizer(ctx context.Context, eventID, userID uint, now time.Time) error
	RemoveOrganizer(ctx context.Context, eventID, userID uint) error
	AddGuest(ctx context.Context, eventID, userID uint, now time.Time) (dao.Event, error)
	RemoveGuest(ctx context.Context, eventID, userID uint, now *time.Time) (dao.Event, error)
	Award(ctx context.Context, eventID uint, recipients []dao.User, amount int, remark, createdBy string) ([]dao.Transaction, error)
}

// EventUpdate lists the columns to change. Nil fields are left untouched.
type EventUpdate struct {
	Name         *string
	Description  *string
	Location     *string
	StartTime    *time.Time
	EndTime      *time.Time
	Capacity     *int
	Published    *bool
	PointsRemain *int
}

type EventRepository struct {
	dao   EventDAO
	cache UserCache
}

func NewEventRepository(dao EventDAO, cache UserCache) *EventRepository {
	return &EventRepository{
		dao:   dao,
		cache: cache,
	}
}

func (r *EventRepository) Create(ctx context.Context, e domain.Event) (domain.Event, error) {
	created, err := r.dao.Insert(ctx, dao.Event{
		Name:         e.Name,
		Description:  e.Description,
		Location:     e.Location,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Capacity:     e.Capacity,
		Published:    e.Published,
		PointsRemain: e.PointsRemain,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	return eventToDomain(created), nil
}

func (r *EventRepository) FindByID(ctx context.Context, id uint) (domain.Event, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return eventToDomain(found), nil
}

func (r *EventRepository) List(ctx context.Context, filter domain.EventFilter, now time.Time) ([]domain.Event, int64, error) {
	found, count, err := r.dao.List(ctx, dao.EventQuery{
		Name:      filter.Name,
		Location:  filter.Location,
		Started:   filter.Started,
		Ended:     filter.Ended,
		ShowFull:  filter.ShowFull,
		Published: filter.Published,
		Now:       now,
		Page:      filter.Page,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("r.dao.List -> %w", err)
	}

	events := make([]domain.Event, 0, len(found))
	for _, e := range found {
		ev := eventToDomain(e)
		ev.Guests = nil
		events = append(events, ev)
	}

	return events, count, nil
}

func (r *EventRepository) Update(ctx context.Context, id uint, upd EventUpdate) (domain.Event, error) {
	updates := map[string]any{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.Location != nil {
		updates["location"] = *upd.Location
	}
	if upd.StartTime != nil {
		updates["start_time"] = *upd.StartTime
	}
	if upd.EndTime != nil {
		updates["end_time"] = *upd.EndTime
	}
	if upd.Capacity != nil {
		updates["capacity"] = *upd.Capacity
	}
	if upd.Published != nil {
		updates["published"] = *upd.Published
	}
	if upd.PointsRemain != nil {
		updates["points_remain"] = *upd.PointsRemain
	}

	if len(updates) == 0 {
		return r.FindByID(ctx, id)
	}

	updated, err := r.dao.Update(ctx, id, updates)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.Update -> %w", err)
	}

	return eventToDomain(updated), nil
}

func (r *EventRepository) Delete(ctx context.Context, id uint) error {
	if err := r.dao.Delete(ctx, id); err != nil {
		return fmt.Errorf("r.dao.Delete -> %w", err)
	}

	return nil
}

func (r *EventRepository) AddOrganizer(ctx context.Context, eventID, userID uint, now time.Time) error {
	if err := r.dao.AddOrganizer(ctx, eventID, userID, now); err != nil {
		return fmt.Errorf("r.dao.AddOrganizer -> %w", err)
	}

	return nil
}

func (r *EventRepository) RemoveOrganizer(ctx context.Context, eventID, userID uint) error {
	if err := r.dao.RemoveOrganizer(ctx, eventID, userID); err != nil {
		return fmt.Errorf("r.dao.RemoveOrganizer -> %w", err)
	}

	return nil
}

func (r *EventRepository) AddGuest(ctx context.Context, eventID, userID uint, now time.Time) (domain.Event, error) {
	updated, err := r.dao.AddGuest(ctx, eventID, userID, now)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.AddGuest -> %w", err)
	}

	return eventToDomain(updated), nil
}

func (r *EventRepository) RemoveGuest(ctx context.Context, eventID, userID uint, now *time.Time) (domain.Event, error) {
	updated, err := r.dao.RemoveGuest(ctx, eventID, userID, now)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.RemoveGuest -> %w", err)
	}

	return eventToDomain(updated), nil
}

func (r *EventRepository) Award(ctx context.Context, eventID uint, recipients []domain.UserSummary, amount int, remark, createdBy string) ([]domain.Transaction, error) {
	users := make([]dao.User, 0, len(recipients))
	ids := make([]uint, 0, len(recipients))
	for _, u := range recipients {
		users = append(users, dao.User{ID: u.ID, UTORid: u.UTORid})
		ids = append(ids, u.ID)
	}

	created, err := r.dao.Award(ctx, eventID, users, amount, remark, createdBy)
	if r.cache != nil {
		r.cache.Invalidate(ctx, ids...)
	}
	if err != nil {
		return nil, fmt.Errorf("r.dao.Award -> %w", err)
	}

	txs := make([]domain.Transaction, 0, len(created))
	for _, t := range created {
		txs = append(txs, transactionToDomain(t))
	}

	return txs, nil
}

func eventToDomain(e dao.Event) domain.Event {
	return domain.Event{
		ID:            e.ID,
		Name:          e.Name,
		Description:   e.Description,
		Location:      e.Location,
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		Capacity:      e.Capacity,
		NumGuests:     e.NumGuests,
		PointsRemain:  e.PointsRemain,
		PointsAwarded: e.PointsAwarded,
		Published:     e.Published,
		Organizers:    summaries(e.Organizers),
		Guests:        summaries(e.Guests),
	}
}

func summaries(users []dao.User) []domain.UserSummary {
	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, domain.UserSummary{ID: u.ID, UTORid: u.UTORid, Name: u.Name})
	}

	return out
}
