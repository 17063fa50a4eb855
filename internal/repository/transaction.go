package repository

import (
	"context"
	"fmt"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

var (
	ErrTransactionNotFound        = dao.ErrTransactionNotFound
	ErrNotRedemption              = dao.ErrNotRedemption
	ErrAlreadyProcessed           = dao.ErrAlreadyProcessed
	ErrRelatedTransactionNotFound = dao.ErrRelatedTransactionNotFound
	ErrRelatedTransactionMismatch = dao.ErrRelatedTransactionMismatch
	ErrPromotionAlreadyUsed       = dao.ErrPromotionAlreadyUsed
)

type TransactionDAO interface {
	FindByID(ctx context.Context, id uint) (dao.Transaction, error)
	List(ctx context.Context, q dao.TransactionQuery) ([]dao.Transaction, int64, error)
	CreatePurchase(ctx context.Context, t dao.Transaction, oneTime []uint) (dao.Transaction, error)
	CreateRedemption(ctx context.Context, t dao.Transaction) (dao.Transaction, error)
	ProcessRedemption(ctx context.Context, id uint, processedBy string) (dao.Transaction, error)
	CreateTransfer(ctx context.Context, sender, recipient dao.Transaction) (dao.Transaction, dao.Transaction, error)
	CreateAdjustment(ctx context.Context, t dao.Transaction) (dao.Transaction, error)
	SetSuspicious(ctx context.Context, id uint, suspicious bool) (dao.Transaction, error)
}

// TransactionRepository drops cached users whenever a ledger write may have
// moved their balance.
type TransactionRepository struct {
	dao   TransactionDAO
	cache UserCache
}

func NewTransactionRepository(dao TransactionDAO, cache UserCache) *TransactionRepository {
	return &TransactionRepository{
		dao:   dao,
		cache: cache,
	}
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint) (domain.Transaction, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return transactionToDomain(found), nil
}

func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	found, count, err := r.dao.List(ctx, dao.TransactionQuery{
		Name:        filter.Name,
		CreatedBy:   filter.CreatedBy,
		UserID:      filter.UserID,
		Suspicious:  filter.Suspicious,
		Processed:   filter.Processed,
		PromotionID: filter.PromotionID,
		Type:        string(filter.Type),
		RelatedID:   filter.RelatedID,
		Amount:      filter.Amount,
		Operator:    filter.Operator,
		Page:        filter.Page,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("r.dao.List -> %w", err)
	}

	txs := make([]domain.Transaction, 0, len(found))
	for _, t := range found {
		txs = append(txs, transactionToDomain(t))
	}

	return txs, count, nil
}

func (r *TransactionRepository) CreatePurchase(ctx context.Context, t domain.Transaction, oneTime []uint) (domain.Transaction, error) {
	created, err := r.dao.CreatePurchase(ctx, transactionToDAO(t), oneTime)
	r.invalidate(ctx, t.UserID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.CreatePurchase -> %w", err)
	}

	return transactionToDomain(created), nil
}

func (r *TransactionRepository) CreateRedemption(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	created, err := r.dao.CreateRedemption(ctx, transactionToDAO(t))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.CreateRedemption -> %w", err)
	}

	return transactionToDomain(created), nil
}

func (r *TransactionRepository) ProcessRedemption(ctx context.Context, id uint, processedBy string) (domain.Transaction, error) {
	processed, err := r.dao.ProcessRedemption(ctx, id, processedBy)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.ProcessRedemption -> %w", err)
	}
	r.invalidate(ctx, processed.UserID)

	return transactionToDomain(processed), nil
}

func (r *TransactionRepository) CreateTransfer(ctx context.Context, sender, recipient domain.Transaction) (domain.Transaction, domain.Transaction, error) {
	out, in, err := r.dao.CreateTransfer(ctx, transactionToDAO(sender), transactionToDAO(recipient))
	r.invalidate(ctx, sender.UserID, recipient.UserID)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("r.dao.CreateTransfer -> %w", err)
	}

	return transactionToDomain(out), transactionToDomain(in), nil
}

func (r *TransactionRepository) CreateAdjustment(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	created, err := r.dao.CreateAdjustment(ctx, transactionToDAO(t))
	r.invalidate(ctx, t.UserID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.CreateAdjustment -> %w", err)
	}

	return transactionToDomain(created), nil
}

func (r *TransactionRepository) SetSuspicious(ctx context.Context, id uint, suspicious bool) (domain.Transaction, error) {
	updated, err := r.dao.SetSuspicious(ctx, id, suspicious)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("r.dao.SetSuspicious -> %w", err)
	}
	r.invalidate(ctx, updated.UserID)

	return transactionToDomain(updated), nil
}

func (r *TransactionRepository) invalidate(ctx context.Context, ids ...uint) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, ids...)
	}
}

func transactionToDAO(t domain.Transaction) dao.Transaction {
	return dao.Transaction{
		ID:           t.ID,
		UserID:       t.UserID,
		UTORid:       t.UTORid,
		Type:         string(t.Type),
		Amount:       t.Amount,
		Spent:        t.Spent,
		RelatedID:    t.RelatedID,
		Remark:       t.Remark,
		CreatedBy:    t.CreatedBy,
		Processed:    t.Processed,
		ProcessedBy:  t.ProcessedBy,
		Suspicious:   t.Suspicious,
		PromotionIDs: t.PromotionIDs,
	}
}

func transactionToDomain(t dao.Transaction) domain.Transaction {
	ids := t.PromotionIDs
	if ids == nil {
		ids = []uint{}
	}

	tx := domain.Transaction{
		ID:           t.ID,
		UserID:       t.UserID,
		UTORid:       t.UTORid,
		Type:         domain.TransactionType(t.Type),
		Amount:       t.Amount,
		Spent:        t.Spent,
		RelatedID:    t.RelatedID,
		Remark:       t.Remark,
		PromotionIDs: ids,
		CreatedBy:    t.CreatedBy,
		Processed:    t.Processed,
		ProcessedBy:  t.ProcessedBy,
		Suspicious:   t.Suspicious,
		CreatedAt:    t.CreatedAt,
	}
	tx.FillTypeFields()

	return tx
}
