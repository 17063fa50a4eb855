package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/metrics"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrTransactionNotFound        = repository.ErrTransactionNotFound
	ErrNotRedemption              = repository.ErrNotRedemption
	ErrAlreadyProcessed           = repository.ErrAlreadyProcessed
	ErrRelatedTransactionNotFound = repository.ErrRelatedTransactionNotFound
	ErrRelatedTransactionMismatch = repository.ErrRelatedTransactionMismatch
	ErrPromotionAlreadyUsed       = repository.ErrPromotionAlreadyUsed
	ErrSpentTooLarge              = domain.ErrSpentTooLarge
	ErrPointsOutOfRange           = domain.ErrPointsOutOfRange

	ErrInvalidSpent       = errors.New("spent must be a non-negative number")
	ErrAmountNotPositive  = errors.New("amount must be greater than zero")
	ErrAmountZero         = errors.New("amount must not be zero")
	ErrInvalidRelatedID   = errors.New("relatedId must be a positive integer")
	ErrNotVerified        = errors.New("user is not verified")
	ErrSelfTransfer       = errors.New("cannot transfer points to yourself")
	ErrPromotionInactive  = errors.New("promotion is not active")
	ErrPromotionMinSpend  = errors.New("purchase does not meet the promotion minimum spending")
	ErrPromotionNotOneUse = errors.New("only one-time promotions can be applied explicitly")
)

type TransactionRepository interface {
	FindByID(ctx context.Context, id uint) (domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	CreatePurchase(ctx context.Context, t domain.Transaction, oneTime []uint) (domain.Transaction, error)
	CreateRedemption(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	ProcessRedemption(ctx context.Context, id uint, processedBy string) (domain.Transaction, error)
	CreateTransfer(ctx context.Context, sender, recipient domain.Transaction) (domain.Transaction, domain.Transaction, error)
	CreateAdjustment(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	SetSuspicious(ctx context.Context, id uint, suspicious bool) (domain.Transaction, error)
}

type LedgerUserRepository interface {
	FindFreshByID(ctx context.Context, id uint) (domain.User, error)
	FindByUTORid(ctx context.Context, utorid string) (domain.User, error)
	UsedPromotionIDs(ctx context.Context, userID uint) ([]uint, error)
}

type PromotionFinder interface {
	FindByIDs(ctx context.Context, ids []uint) ([]domain.Promotion, error)
	ActiveAutomatic(ctx context.Context, now time.Time) ([]domain.Promotion, error)
}

type PurchaseInput struct {
	UTORid       string
	Spent        float64
	PromotionIDs []uint
	Remark       string
}

type AdjustmentInput struct {
	UTORid       string
	Amount       int
	RelatedID    uint
	PromotionIDs []uint
	Remark       string
}

type TransactionService struct {
	repo     TransactionRepository
	users    LedgerUserRepository
	promos   PromotionFinder
	notifier Notifier
	now      clock
}

func NewTransactionService(repo TransactionRepository, users LedgerUserRepository, promos PromotionFinder, notifier Notifier) *TransactionService {
	return &TransactionService{
		repo:     repo,
		users:    users,
		promos:   promos,
		notifier: notifierOrNop(notifier),
		now:      time.Now,
	}
}

// CreatePurchase rings up a purchase for the customer identified by
// in.UTORid. Explicit promotions must be one-time, active and unused by the
// customer; every active automatic promotion whose minimum is met applies
// on top. Purchases entered by a suspicious cashier are stored flagged and
// credit nothing until cleared.
func (s *TransactionService) CreatePurchase(ctx context.Context, cashier domain.User, in PurchaseInput) (domain.Transaction, error) {
	if math.IsNaN(in.Spent) || math.IsInf(in.Spent, 0) || in.Spent < 0 {
		return domain.Transaction{}, ErrInvalidSpent
	}
	if in.Spent > domain.MaxSpent {
		return domain.Transaction{}, ErrSpentTooLarge
	}

	customer, err := s.users.FindByUTORid(ctx, in.UTORid)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.users.FindByUTORid -> %w", err)
	}

	now := s.now()
	applied, oneTime, err := s.explicitPromotions(ctx, customer.ID, in.PromotionIDs, in.Spent, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	auto, err := s.promos.ActiveAutomatic(ctx, now)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.promos.ActiveAutomatic -> %w", err)
	}
	for _, p := range auto {
		if p.Qualifies(in.Spent) {
			applied = append(applied, p)
		}
	}

	ids := make([]uint, 0, len(applied))
	for _, p := range applied {
		ids = append(ids, p.ID)
	}

	earned, err := domain.PurchasePoints(in.Spent, applied)
	if err != nil {
		zap.L().Warn("purchase points out of range", zap.String("utorid", customer.UTORid), zap.Float64("spent", in.Spent))
		return domain.Transaction{}, err
	}

	spent := in.Spent
	created, err := s.repo.CreatePurchase(ctx, domain.Transaction{
		UserID:       customer.ID,
		UTORid:       customer.UTORid,
		Type:         domain.TxPurchase,
		Amount:       earned,
		Spent:        &spent,
		Remark:       in.Remark,
		PromotionIDs: ids,
		CreatedBy:    cashier.UTORid,
		Suspicious:   cashier.Suspicious,
	}, oneTime)
	metrics.Ledger(string(domain.TxPurchase), earned, err)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.repo.CreatePurchase -> %w", err)
	}

	zap.L().Info("purchase created",
		zap.String("utorid", created.UTORid),
		zap.Int("earned", earned),
		zap.String("cashier", cashier.UTORid),
		zap.Bool("suspicious", created.Suspicious),
	)
	if created.Effective() {
		s.notifier.Notify(pointsChanged(created))
	}

	return created, nil
}

func (s *TransactionService) explicitPromotions(ctx context.Context, userID uint, ids []uint, spent float64, now time.Time) ([]domain.Promotion, []uint, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	promos, err := s.promos.FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, nil, fmt.Errorf("s.promos.FindByIDs -> %w", err)
	}

	used, err := s.users.UsedPromotionIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("s.users.UsedPromotionIDs -> %w", err)
	}
	usedSet := make(map[uint]bool, len(used))
	for _, id := range used {
		usedSet[id] = true
	}

	oneTime := make([]uint, 0, len(promos))
	for _, p := range promos {
		switch {
		case p.Type != domain.PromotionOneTime:
			return nil, nil, ErrPromotionNotOneUse
		case !p.ActiveAt(now):
			return nil, nil, ErrPromotionInactive
		case usedSet[p.ID]:
			return nil, nil, ErrPromotionAlreadyUsed
		case !p.Qualifies(spent):
			return nil, nil, ErrPromotionMinSpend
		}
		oneTime = append(oneTime, p.ID)
	}

	return promos, oneTime, nil
}

// CreateRedemption records an unprocessed redemption request. The balance is
// re-read from storage, never from the cache.
func (s *TransactionService) CreateRedemption(ctx context.Context, userID uint, amount int, remark string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, ErrAmountNotPositive
	}
	if !domain.PointsInRange(amount) {
		return domain.Transaction{}, ErrPointsOutOfRange
	}

	user, err := s.users.FindFreshByID(ctx, userID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.users.FindFreshByID -> %w", err)
	}
	if !user.Verified {
		return domain.Transaction{}, ErrNotVerified
	}
	if amount > user.Points {
		zap.L().Warn("redemption exceeds balance", zap.String("utorid", user.UTORid), zap.Int("amount", amount), zap.Int("points", user.Points))
		return domain.Transaction{}, ErrInsufficientPoints
	}

	created, err := s.repo.CreateRedemption(ctx, domain.Transaction{
		UserID:    user.ID,
		UTORid:    user.UTORid,
		Type:      domain.TxRedemption,
		Amount:    -amount,
		Remark:    remark,
		CreatedBy: user.UTORid,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.repo.CreateRedemption -> %w", err)
	}

	zap.L().Info("redemption requested", zap.String("utorid", user.UTORid), zap.Int("amount", amount))

	return created, nil
}

// ProcessRedemption deducts a pending redemption. Only the first of
// concurrent calls for the same id succeeds.
func (s *TransactionService) ProcessRedemption(ctx context.Context, cashier domain.User, id uint) (domain.Transaction, error) {
	processed, err := s.repo.ProcessRedemption(ctx, id, cashier.UTORid)
	metrics.Ledger(string(domain.TxRedemption), processed.Amount, err)
	if err != nil {
		if !errors.Is(err, ErrTransactionNotFound) {
			zap.L().Warn("redemption not processed", zap.Uint("id", id), zap.Error(err))
		}
		return domain.Transaction{}, fmt.Errorf("s.repo.ProcessRedemption -> %w", err)
	}

	zap.L().Info("redemption processed",
		zap.Uint("id", id),
		zap.String("utorid", processed.UTORid),
		zap.Int("amount", processed.Amount),
		zap.String("cashier", cashier.UTORid),
	)
	s.notifier.Notify(domain.Notification{
		Type:    domain.NotifyRedemptionProcessed,
		UserID:  processed.UserID,
		Payload: processed,
	})

	return processed, nil
}

// CreateTransfer moves amount points from sender to recipientID. Both rows
// are written atomically.
func (s *TransactionService) CreateTransfer(ctx context.Context, senderID, recipientID uint, amount int, remark string) (domain.Transaction, domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, domain.Transaction{}, ErrAmountNotPositive
	}
	if !domain.PointsInRange(amount) {
		return domain.Transaction{}, domain.Transaction{}, ErrPointsOutOfRange
	}
	if senderID == recipientID {
		return domain.Transaction{}, domain.Transaction{}, ErrSelfTransfer
	}

	sender, err := s.users.FindFreshByID(ctx, senderID)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("s.users.FindFreshByID -> %w", err)
	}
	if !sender.Verified {
		return domain.Transaction{}, domain.Transaction{}, ErrNotVerified
	}
	if amount > sender.Points {
		return domain.Transaction{}, domain.Transaction{}, ErrInsufficientPoints
	}

	recipient, err := s.users.FindFreshByID(ctx, recipientID)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("s.users.FindFreshByID -> %w", err)
	}

	senderRelated, recipientRelated := recipient.ID, sender.ID
	sent, received, err := s.repo.CreateTransfer(ctx,
		domain.Transaction{
			UserID:    sender.ID,
			UTORid:    sender.UTORid,
			Type:      domain.TxTransfer,
			Amount:    -amount,
			RelatedID: &senderRelated,
			Remark:    remark,
			CreatedBy: sender.UTORid,
		},
		domain.Transaction{
			UserID:    recipient.ID,
			UTORid:    recipient.UTORid,
			Type:      domain.TxTransfer,
			Amount:    amount,
			RelatedID: &recipientRelated,
			Remark:    remark,
			CreatedBy: sender.UTORid,
		},
	)
	metrics.Ledger(string(domain.TxTransfer), amount, err)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("s.repo.CreateTransfer -> %w", err)
	}

	zap.L().Info("transfer created", zap.String("sender", sender.UTORid), zap.String("recipient", recipient.UTORid), zap.Int("amount", amount))
	s.notifier.Notify(pointsChanged(sent))
	s.notifier.Notify(pointsChanged(received))

	return sent, received, nil
}

// CreateAdjustment corrects a customer's balance against one of their
// existing transactions.
func (s *TransactionService) CreateAdjustment(ctx context.Context, manager domain.User, in AdjustmentInput) (domain.Transaction, error) {
	if in.Amount == 0 {
		return domain.Transaction{}, ErrAmountZero
	}
	if !domain.PointsInRange(in.Amount) {
		return domain.Transaction{}, ErrPointsOutOfRange
	}
	if in.RelatedID == 0 {
		return domain.Transaction{}, ErrInvalidRelatedID
	}

	customer, err := s.users.FindByUTORid(ctx, in.UTORid)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.users.FindByUTORid -> %w", err)
	}

	related := in.RelatedID
	ids := in.PromotionIDs
	if ids == nil {
		ids = []uint{}
	}
	created, err := s.repo.CreateAdjustment(ctx, domain.Transaction{
		UserID:       customer.ID,
		UTORid:       customer.UTORid,
		Type:         domain.TxAdjustment,
		Amount:       in.Amount,
		RelatedID:    &related,
		Remark:       in.Remark,
		PromotionIDs: ids,
		CreatedBy:    manager.UTORid,
	})
	metrics.Ledger(string(domain.TxAdjustment), in.Amount, err)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.repo.CreateAdjustment -> %w", err)
	}

	zap.L().Info("adjustment created",
		zap.String("utorid", customer.UTORid),
		zap.Int("amount", in.Amount),
		zap.Uint("relatedId", related),
		zap.String("manager", manager.UTORid),
	)
	s.notifier.Notify(pointsChanged(created))

	return created, nil
}

func (s *TransactionService) SetSuspicious(ctx context.Context, id uint, suspicious bool) (domain.Transaction, error) {
	updated, err := s.repo.SetSuspicious(ctx, id, suspicious)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.repo.SetSuspicious -> %w", err)
	}

	zap.L().Info("transaction suspicious flag set", zap.Uint("id", id), zap.Bool("suspicious", suspicious))
	s.notifier.Notify(domain.Notification{
		Type:    domain.NotifyPointsChanged,
		UserID:  updated.UserID,
		Payload: updated,
	})

	return updated, nil
}

func (s *TransactionService) Get(ctx context.Context, id uint) (domain.Transaction, error) {
	tx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	return tx, nil
}

func (s *TransactionService) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	txs, count, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.List -> %w", err)
	}

	return txs, count, nil
}

var exportHeader = []string{"id", "utorid", "type", "amount", "spent", "relatedId", "remark", "createdBy", "processed", "suspicious", "createdAt"}

const exportPageSize = 500

// Export writes every transaction matching filter as CSV, paging through
// storage so large ledgers are not loaded at once.
func (s *TransactionService) Export(ctx context.Context, w io.Writer, filter domain.TransactionFilter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("cw.Write -> %w", err)
	}

	filter.Limit = exportPageSize
	for page := 1; ; page++ {
		filter.Page = page
		txs, count, err := s.repo.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("s.repo.List -> %w", err)
		}

		for _, t := range txs {
			if err = cw.Write(exportRow(t)); err != nil {
				return fmt.Errorf("cw.Write -> %w", err)
			}
		}

		if len(txs) == 0 || int64(page*exportPageSize) >= count {
			break
		}
	}

	cw.Flush()

	return cw.Error()
}

func exportRow(t domain.Transaction) []string {
	spent, related := "", ""
	if t.Spent != nil {
		spent = strconv.FormatFloat(*t.Spent, 'f', 2, 64)
	}
	if t.RelatedID != nil {
		related = strconv.FormatUint(uint64(*t.RelatedID), 10)
	}

	return []string{
		strconv.FormatUint(uint64(t.ID), 10),
		t.UTORid,
		string(t.Type),
		strconv.Itoa(t.Amount),
		spent,
		related,
		t.Remark,
		t.CreatedBy,
		strconv.FormatBool(t.Processed),
		strconv.FormatBool(t.Suspicious),
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}
