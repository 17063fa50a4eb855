package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrPromotionNotFound    = repository.ErrPromotionNotFound
	ErrInvalidPromotionType = errors.New("type must be automatic or one-time")
	ErrNegativePromoValue   = errors.New("minSpending, rate and points must be non-negative")
	ErrPromotionStarted     = errors.New("promotion has already started")
	ErrPromotionEnded       = errors.New("promotion has already ended")
)

type PromotionRepository interface {
	Create(ctx context.Context, p domain.Promotion) (domain.Promotion, error)
	FindByID(ctx context.Context, id uint) (domain.Promotion, error)
	List(ctx context.Context, filter domain.PromotionFilter, vis repository.PromotionVisibility) ([]domain.Promotion, int64, error)
	Update(ctx context.Context, id uint, upd repository.PromotionUpdate) (domain.Promotion, error)
	Delete(ctx context.Context, id uint) error
}

type UsedPromotionLister interface {
	UsedPromotionIDs(ctx context.Context, userID uint) ([]uint, error)
}

type PromotionPatch struct {
	Name        *string
	Description *string
	Type        *domain.PromotionType
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *float64
	Rate        *float64
	Points      *int
}

type PromotionService struct {
	repo  PromotionRepository
	users UsedPromotionLister
	now   clock
}

func NewPromotionService(repo PromotionRepository, users UsedPromotionLister) *PromotionService {
	return &PromotionService{
		repo:  repo,
		users: users,
		now:   time.Now,
	}
}

func (s *PromotionService) Create(ctx context.Context, p domain.Promotion) (domain.Promotion, error) {
	if p.Type != domain.PromotionAutomatic && p.Type != domain.PromotionOneTime {
		return domain.Promotion{}, ErrInvalidPromotionType
	}
	if p.StartTime.Before(s.now()) {
		return domain.Promotion{}, ErrTimeInPast
	}
	if !p.EndTime.After(p.StartTime) {
		return domain.Promotion{}, ErrInvalidTimeRange
	}
	if negative(p.MinSpending, p.Rate, p.Points) {
		return domain.Promotion{}, ErrNegativePromoValue
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("s.repo.Create -> %w", err)
	}

	return created, nil
}

// visibility scopes what viewer may see. Managers see everything, cashiers
// only active promotions, and regular users additionally lose the one-time
// promotions they have already used.
func (s *PromotionService) visibility(viewer domain.User) repository.PromotionVisibility {
	switch {
	case viewer.Role.AtLeast(domain.RoleManager):
		return repository.PromotionVisibility{}
	case viewer.Role == domain.RoleCashier:
		return repository.PromotionVisibility{ActiveOnly: true, Now: s.now()}
	default:
		return repository.PromotionVisibility{ActiveOnly: true, UnusedBy: viewer.ID, Now: s.now()}
	}
}

func (s *PromotionService) List(ctx context.Context, viewer domain.User, filter domain.PromotionFilter) ([]domain.Promotion, int64, error) {
	vis := s.visibility(viewer)
	vis.Now = s.now()

	promos, count, err := s.repo.List(ctx, filter, vis)
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.List -> %w", err)
	}

	return promos, count, nil
}

func (s *PromotionService) Get(ctx context.Context, viewer domain.User, id uint) (domain.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	vis := s.visibility(viewer)
	if vis.ActiveOnly && !promo.ActiveAt(s.now()) {
		return domain.Promotion{}, ErrPromotionNotFound
	}
	if vis.UnusedBy != 0 && promo.Type == domain.PromotionOneTime {
		used, err := s.users.UsedPromotionIDs(ctx, viewer.ID)
		if err != nil {
			return domain.Promotion{}, fmt.Errorf("s.users.UsedPromotionIDs -> %w", err)
		}
		for _, u := range used {
			if u == id {
				return domain.Promotion{}, ErrPromotionNotFound
			}
		}
	}

	return promo, nil
}

func (s *PromotionService) Update(ctx context.Context, id uint, patch PromotionPatch) (domain.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	now := s.now()
	fixedAtStart := patch.Name != nil || patch.Description != nil || patch.Type != nil || patch.StartTime != nil ||
		patch.MinSpending != nil || patch.Rate != nil || patch.Points != nil
	if promo.HasStarted(now) && fixedAtStart {
		return domain.Promotion{}, ErrPromotionStarted
	}
	if promo.HasEnded(now) && patch.EndTime != nil {
		return domain.Promotion{}, ErrPromotionEnded
	}
	if patch.Type != nil && *patch.Type != domain.PromotionAutomatic && *patch.Type != domain.PromotionOneTime {
		return domain.Promotion{}, ErrInvalidPromotionType
	}
	if negative(patch.MinSpending, patch.Rate, patch.Points) {
		return domain.Promotion{}, ErrNegativePromoValue
	}

	start, end := promo.StartTime, promo.EndTime
	if patch.StartTime != nil {
		if patch.StartTime.Before(now) {
			return domain.Promotion{}, ErrTimeInPast
		}
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		if patch.EndTime.Before(now) {
			return domain.Promotion{}, ErrTimeInPast
		}
		end = *patch.EndTime
	}
	if !end.After(start) {
		return domain.Promotion{}, ErrInvalidTimeRange
	}

	updated, err := s.repo.Update(ctx, id, repository.PromotionUpdate{
		Name:        patch.Name,
		Description: patch.Description,
		Type:        patch.Type,
		StartTime:   patch.StartTime,
		EndTime:     patch.EndTime,
		MinSpending: patch.MinSpending,
		Rate:        patch.Rate,
		Points:      patch.Points,
	})
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	return updated, nil
}

func (s *PromotionService) Delete(ctx context.Context, id uint) error {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("s.repo.FindByID -> %w", err)
	}
	if promo.HasStarted(s.now()) {
		return ErrPromotionStarted
	}

	if err = s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("s.repo.Delete -> %w", err)
	}

	return nil
}

func negative(minSpending, rate *float64, points *int) bool {
	return (minSpending != nil && *minSpending < 0) ||
		(rate != nil && *rate < 0) ||
		(points != nil && *points < 0)
}
