package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

var ErrPromotionNotFound = dao.ErrPromotionNotFound

type PromotionDAO interface {
	Insert(ctx context.Context, promo dao.Promotion) (dao.Promotion, error)
	FindByID(ctx context.Context, id uint) (dao.Promotion, error)
	FindByIDs(ctx context.Context, ids []uint) ([]dao.Promotion, error)
	List(ctx context.Context, q dao.PromotionQuery) ([]dao.Promotion, int64, error)
	ActiveAutomatic(ctx context.Context, now time.Time) ([]dao.Promotion, error)
	Update(ctx context.Context, id uint, updates map[string]any) (dao.Promotion, error)
	Delete(ctx context.Context, id uint) error
}

// PromotionVisibility narrows listing for callers below manager.
type PromotionVisibility struct {
	ActiveOnly bool
	UnusedBy   uint
	Now        time.Time
}

// PromotionUpdate lists the columns to change. Nil fields are left untouched.
type PromotionUpdate struct {
	Name        *string
	Description *string
	Type        *domain.PromotionType
	StartTime   *time.Time
	EndTime     *time.Time
	MinSpending *float64
	Rate        *float64
	Points      *int
}

type PromotionRepository struct {
	dao PromotionDAO
}

func NewPromotionRepository(dao PromotionDAO) *PromotionRepository {
	return &PromotionRepository{
		dao: dao,
	}
}

func (r *PromotionRepository) Create(ctx context.Context, p domain.Promotion) (domain.Promotion, error) {
	created, err := r.dao.Insert(ctx, dao.Promotion{
		Name:        p.Name,
		Description: p.Description,
		Type:        string(p.Type),
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		MinSpending: p.MinSpending,
		Rate:        p.Rate,
		Points:      p.Points,
	})
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	return promotionToDomain(created), nil
}

func (r *PromotionRepository) FindByID(ctx context.Context, id uint) (domain.Promotion, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return promotionToDomain(found), nil
}

func (r *PromotionRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Promotion, error) {
	found, err := r.dao.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindByIDs -> %w", err)
	}

	return promotionsToDomain(found), nil
}

func (r *PromotionRepository) List(ctx context.Context, filter domain.PromotionFilter, vis PromotionVisibility) ([]domain.Promotion, int64, error) {
	found, count, err := r.dao.List(ctx, dao.PromotionQuery{
		Name:       filter.Name,
		Type:       string(filter.Type),
		Started:    filter.Started,
		Ended:      filter.Ended,
		ActiveOnly: vis.ActiveOnly,
		UnusedBy:   vis.UnusedBy,
		Now:        vis.Now,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("r.dao.List -> %w", err)
	}

	return promotionsToDomain(found), count, nil
}

func (r *PromotionRepository) ActiveAutomatic(ctx context.Context, now time.Time) ([]domain.Promotion, error) {
	found, err := r.dao.ActiveAutomatic(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("r.dao.ActiveAutomatic -> %w", err)
	}

	return promotionsToDomain(found), nil
}

func (r *PromotionRepository) Update(ctx context.Context, id uint, upd PromotionUpdate) (domain.Promotion, error) {
	updates := map[string]any{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.Type != nil {
		updates["type"] = string(*upd.Type)
	}
	if upd.StartTime != nil {
		updates["start_time"] = *upd.StartTime
	}
	if upd.EndTime != nil {
		updates["end_time"] = *upd.EndTime
	}
	if upd.MinSpending != nil {
		updates["min_spending"] = *upd.MinSpending
	}
	if upd.Rate != nil {
		updates["rate"] = *upd.Rate
	}
	if upd.Points != nil {
		updates["points"] = *upd.Points
	}

	if len(updates) == 0 {
		return r.FindByID(ctx, id)
	}

	updated, err := r.dao.Update(ctx, id, updates)
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("r.dao.Update -> %w", err)
	}

	return promotionToDomain(updated), nil
}

func (r *PromotionRepository) Delete(ctx context.Context, id uint) error {
	if err := r.dao.Delete(ctx, id); err != nil {
		return fmt.Errorf("r.dao.Delete -> %w", err)
	}

	return nil
}

func promotionToDomain(p dao.Promotion) domain.Promotion {
	return domain.Promotion{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        domain.PromotionType(p.Type),
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		MinSpending: p.MinSpending,
		Rate:        p.Rate,
		Points:      p.Points,
	}
}

func promotionsToDomain(ps []dao.Promotion) []domain.Promotion {
	promos := make([]domain.Promotion, 0, len(ps))
	for _, p := range ps {
		promos = append(promos, promotionToDomain(p))
	}

	return promos
}
