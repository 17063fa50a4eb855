package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

var (
	ErrRaffleNotFound  = dao.ErrRaffleNotFound
	ErrAlreadyEntered  = dao.ErrAlreadyEntered
	ErrRaffleNotOpen   = dao.ErrRaffleNotOpen
	ErrRaffleDrawn     = dao.ErrRaffleDrawn
	ErrRaffleNoEntries = dao.ErrRaffleNoEntries
	ErrRaffleTooEarly  = dao.ErrRaffleTooEarly
)

type RaffleDAO interface {
	Insert(ctx context.Context, raffle dao.Raffle) (dao.Raffle, error)
	FindByID(ctx context.Context, id uint) (dao.Raffle, error)
	List(ctx context.Context, q dao.RaffleQuery) ([]dao.Raffle, int64, error)
	EnteredRaffleIDs(ctx context.Context, userID uint, raffleIDs []uint) ([]uint, error)
	EntrantIDs(ctx context.Context, raffleID uint) ([]uint, error)
	Enter(ctx context.Context, raffleID uint, user dao.User, now time.Time) (dao.Raffle, error)
	Draw(ctx context.Context, raffleID uint, now time.Time, createdBy string, pick func(n int) (int, error)) (dao.Raffle, dao.Transaction, error)
}

type RaffleRepository struct {
	dao   RaffleDAO
	cache UserCache
}

func NewRaffleRepository(dao RaffleDAO, cache UserCache) *RaffleRepository {
	return &RaffleRepository{
		dao:   dao,
		cache: cache,
	}
}

func (r *RaffleRepository) Create(ctx context.Context, raffle domain.Raffle) (domain.Raffle, error) {
	created, err := r.dao.Insert(ctx, dao.Raffle{
		Name:        raffle.Name,
		Description: raffle.Description,
		PointCost:   raffle.PointCost,
		PrizePoints: raffle.PrizePoints,
		StartTime:   raffle.StartTime,
		EndTime:     raffle.EndTime,
		DrawTime:    raffle.DrawTime,
	})
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	return raffleToDomain(created), nil
}

func (r *RaffleRepository) FindByID(ctx context.Context, id uint) (domain.Raffle, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return raffleToDomain(found), nil
}

func (r *RaffleRepository) List(ctx context.Context, page, limit int) ([]domain.Raffle, int64, error) {
	found, count, err := r.dao.List(ctx, dao.RaffleQuery{Page: page, Limit: limit})
	if err != nil {
		return nil, 0, fmt.Errorf("r.dao.List -> %w", err)
	}

	raffles := make([]domain.Raffle, 0, len(found))
	for _, rf := range found {
		raffles = append(raffles, raffleToDomain(rf))
	}

	return raffles, count, nil
}

func (r *RaffleRepository) EnteredRaffleIDs(ctx context.Context, userID uint, raffleIDs []uint) (map[uint]bool, error) {
	ids, err := r.dao.EnteredRaffleIDs(ctx, userID, raffleIDs)
	if err != nil {
		return nil, fmt.Errorf("r.dao.EnteredRaffleIDs -> %w", err)
	}

	entered := make(map[uint]bool, len(ids))
	for _, id := range ids {
		entered[id] = true
	}

	return entered, nil
}

func (r *RaffleRepository) EntrantIDs(ctx context.Context, raffleID uint) ([]uint, error) {
	ids, err := r.dao.EntrantIDs(ctx, raffleID)
	if err != nil {
		return nil, fmt.Errorf("r.dao.EntrantIDs -> %w", err)
	}

	return ids, nil
}

func (r *RaffleRepository) Enter(ctx context.Context, raffleID uint, user domain.User, now time.Time) (domain.Raffle, error) {
	updated, err := r.dao.Enter(ctx, raffleID, dao.User{ID: user.ID, UTORid: user.UTORid}, now)
	if r.cache != nil {
		r.cache.Invalidate(ctx, user.ID)
	}
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("r.dao.Enter -> %w", err)
	}

	return raffleToDomain(updated), nil
}

func (r *RaffleRepository) Draw(ctx context.Context, raffleID uint, now time.Time, createdBy string, pick func(n int) (int, error)) (domain.Raffle, domain.Transaction, error) {
	drawn, prize, err := r.dao.Draw(ctx, raffleID, now, createdBy, pick)
	if err != nil {
		return domain.Raffle{}, domain.Transaction{}, fmt.Errorf("r.dao.Draw -> %w", err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, prize.UserID)
	}

	return raffleToDomain(drawn), transactionToDomain(prize), nil
}

func raffleToDomain(r dao.Raffle) domain.Raffle {
	raffle := domain.Raffle{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		PointCost:   r.PointCost,
		PrizePoints: r.PrizePoints,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		DrawTime:    r.DrawTime,
		Drawn:       r.Drawn,
		EntryCount:  r.EntryCount,
	}
	if r.Winner != nil {
		raffle.Winner = &domain.UserSummary{ID: r.Winner.ID, UTORid: r.Winner.UTORid, Name: r.Winner.Name}
	}

	return raffle
}
