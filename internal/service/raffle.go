package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/metrics"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrRaffleNotFound       = repository.ErrRaffleNotFound
	ErrAlreadyEntered       = repository.ErrAlreadyEntered
	ErrRaffleNotStarted     = domain.ErrRaffleNotStarted
	ErrRaffleEnded          = domain.ErrRaffleEnded
	ErrRaffleAlreadyDrawn   = domain.ErrRaffleAlreadyDrawn
	ErrRaffleDrawTimeNotYet = domain.ErrRaffleDrawTimeNotYet
	ErrRaffleNoEntries      = domain.ErrRaffleNoEntries

	ErrInvalidRaffleWindow = errors.New("raffle times must satisfy startTime <= endTime <= drawTime")
	ErrInvalidPrize        = errors.New("prizePoints must be greater than zero")
	ErrNegativeCost        = errors.New("pointCost must be non-negative")
)

type RaffleRepository interface {
	Create(ctx context.Context, raffle domain.Raffle) (domain.Raffle, error)
	FindByID(ctx context.Context, id uint) (domain.Raffle, error)
	List(ctx context.Context, page, limit int) ([]domain.Raffle, int64, error)
	EnteredRaffleIDs(ctx context.Context, userID uint, raffleIDs []uint) (map[uint]bool, error)
	EntrantIDs(ctx context.Context, raffleID uint) ([]uint, error)
	Enter(ctx context.Context, raffleID uint, user domain.User, now time.Time) (domain.Raffle, error)
	Draw(ctx context.Context, raffleID uint, now time.Time, createdBy string, pick func(n int) (int, error)) (domain.Raffle, domain.Transaction, error)
}

type BalanceReader interface {
	FindFreshByID(ctx context.Context, id uint) (domain.User, error)
}

type RaffleService struct {
	repo     RaffleRepository
	users    BalanceReader
	notifier Notifier
	now      clock
	pick     func(n int) (int, error)
}

func NewRaffleService(repo RaffleRepository, users BalanceReader, notifier Notifier) *RaffleService {
	return &RaffleService{
		repo:     repo,
		users:    users,
		notifier: notifierOrNop(notifier),
		now:      time.Now,
		pick:     randomIndex,
	}
}

func randomIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("rand.Int -> %w", err)
	}

	return int(i.Int64()), nil
}

func (s *RaffleService) Create(ctx context.Context, raffle domain.Raffle) (domain.Raffle, error) {
	switch {
	case raffle.EndTime.Before(raffle.StartTime) || raffle.DrawTime.Before(raffle.EndTime):
		return domain.Raffle{}, ErrInvalidRaffleWindow
	case raffle.PrizePoints <= 0:
		return domain.Raffle{}, ErrInvalidPrize
	case raffle.PointCost < 0:
		return domain.Raffle{}, ErrNegativeCost
	case raffle.PrizePoints > domain.MaxPoints || raffle.PointCost > domain.MaxPoints:
		return domain.Raffle{}, ErrPointsOutOfRange
	}

	created, err := s.repo.Create(ctx, raffle)
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("s.repo.Create -> %w", err)
	}
	created.Status = created.StatusAt(s.now())

	return created, nil
}

func (s *RaffleService) List(ctx context.Context, viewer domain.User, page, limit int) ([]domain.Raffle, int64, error) {
	raffles, count, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.List -> %w", err)
	}

	ids := make([]uint, 0, len(raffles))
	for _, r := range raffles {
		ids = append(ids, r.ID)
	}
	entered, err := s.repo.EnteredRaffleIDs(ctx, viewer.ID, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.EnteredRaffleIDs -> %w", err)
	}

	now := s.now()
	for i := range raffles {
		raffles[i].Status = raffles[i].StatusAt(now)
		raffles[i].Entered = entered[raffles[i].ID]
	}

	return raffles, count, nil
}

func (s *RaffleService) Get(ctx context.Context, viewer domain.User, id uint) (domain.Raffle, error) {
	raffle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	entered, err := s.repo.EnteredRaffleIDs(ctx, viewer.ID, []uint{id})
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("s.repo.EnteredRaffleIDs -> %w", err)
	}
	raffle.Entered = entered[id]
	raffle.Status = raffle.StatusAt(s.now())

	return raffle, nil
}

// Enter buys one entry for user, debiting the raffle's point cost.
func (s *RaffleService) Enter(ctx context.Context, user domain.User, id uint) (domain.Raffle, error) {
	raffle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	now := s.now()
	if err = raffle.CheckJoin(now); err != nil {
		return domain.Raffle{}, err
	}

	fresh, err := s.users.FindFreshByID(ctx, user.ID)
	if err != nil {
		return domain.Raffle{}, fmt.Errorf("s.users.FindFreshByID -> %w", err)
	}
	if fresh.Points < raffle.PointCost {
		return domain.Raffle{}, ErrInsufficientPoints
	}

	updated, err := s.repo.Enter(ctx, id, fresh, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRaffleDrawn):
			return domain.Raffle{}, ErrRaffleAlreadyDrawn
		case errors.Is(err, repository.ErrRaffleNotOpen):
			if joinErr := raffle.CheckJoin(s.now()); joinErr != nil {
				return domain.Raffle{}, joinErr
			}
			return domain.Raffle{}, ErrRaffleEnded
		}
		return domain.Raffle{}, fmt.Errorf("s.repo.Enter -> %w", err)
	}

	if raffle.PointCost > 0 {
		metrics.Ledger(string(domain.TxRedemption), raffle.PointCost, nil)
		s.notifier.Notify(domain.Notification{
			Type:    domain.NotifyPointsChanged,
			UserID:  user.ID,
			Payload: map[string]any{"raffleId": id, "amount": -raffle.PointCost},
		})
	}
	zap.L().Info("raffle entered", zap.Uint("raffleId", id), zap.String("utorid", user.UTORid))

	updated.Entered = true
	updated.Status = updated.StatusAt(now)

	return updated, nil
}

// Draw picks a uniformly random entrant and credits the prize.
func (s *RaffleService) Draw(ctx context.Context, manager domain.User, id uint) (domain.Raffle, domain.Transaction, error) {
	raffle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Raffle{}, domain.Transaction{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	now := s.now()
	if err = raffle.CheckDraw(now); err != nil {
		return domain.Raffle{}, domain.Transaction{}, err
	}

	drawn, prize, err := s.repo.Draw(ctx, id, now, manager.UTORid, s.pick)
	metrics.Ledger(string(domain.TxEvent), raffle.PrizePoints, err)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRaffleDrawn):
			return domain.Raffle{}, domain.Transaction{}, ErrRaffleAlreadyDrawn
		case errors.Is(err, repository.ErrRaffleTooEarly):
			return domain.Raffle{}, domain.Transaction{}, ErrRaffleDrawTimeNotYet
		case errors.Is(err, repository.ErrRaffleNoEntries):
			return domain.Raffle{}, domain.Transaction{}, ErrRaffleNoEntries
		}
		return domain.Raffle{}, domain.Transaction{}, fmt.Errorf("s.repo.Draw -> %w", err)
	}

	zap.L().Info("raffle drawn", zap.Uint("raffleId", id), zap.String("winner", prize.UTORid), zap.Int("prize", prize.Amount))
	s.notifyEntrants(ctx, drawn)
	s.notifier.Notify(pointsChanged(prize))

	drawn.Status = drawn.StatusAt(now)

	return drawn, prize, nil
}

func (s *RaffleService) notifyEntrants(ctx context.Context, drawn domain.Raffle) {
	entrants, err := s.repo.EntrantIDs(ctx, drawn.ID)
	if err != nil {
		zap.L().Warn("could not load raffle entrants", zap.Uint("raffleId", drawn.ID), zap.Error(err))
		return
	}

	for _, uid := range entrants {
		s.notifier.Notify(domain.Notification{
			Type:    domain.NotifyRaffleDrawn,
			UserID:  uid,
			Payload: map[string]any{"raffleId": drawn.ID, "winner": drawn.Winner},
		})
	}
}
