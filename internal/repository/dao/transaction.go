package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrNotRedemption              = errors.New("transaction is not a redemption")
	ErrAlreadyProcessed           = errors.New("redemption has already been processed")
	ErrRelatedTransactionNotFound = errors.New("related transaction not found")
	ErrRelatedTransactionMismatch = errors.New("related transaction belongs to a different user")
	ErrPromotionAlreadyUsed       = errors.New("promotion has already been used")
)

const (
	TypePurchase   = "purchase"
	TypeRedemption = "redemption"
	TypeTransfer   = "transfer"
	TypeAdjustment = "adjustment"
	TypeEvent      = "event"
)

type Transaction struct {
	ID uint `gorm:"primaryKey"`

	UserID uint   `gorm:"not null;index"`
	UTORid string `gorm:"column:utorid;not null;index"`
	Type   string `gorm:"not null;index"`
	Amount int    `gorm:"not null"`
	Spent  *float64

	// RelatedID is the corrected transaction for adjustments, the other party
	// for transfers and the event for event awards.
	RelatedID *uint `gorm:"index"`
	Remark    string

	CreatedBy   string `gorm:"not null"`
	Processed   bool   `gorm:"not null;default:false"`
	ProcessedBy string
	Suspicious  bool `gorm:"not null;default:false"`

	PromotionIDs []uint `gorm:"-"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type TransactionPromotion struct {
	TransactionID uint `gorm:"primaryKey"`
	PromotionID   uint `gorm:"primaryKey;index"`
}

func (t Transaction) effective() bool {
	if t.Suspicious {
		return false
	}

	return t.Type != TypeRedemption || t.Processed
}

type TransactionQuery struct {
	Name        string
	CreatedBy   string
	UserID      uint
	Suspicious  *bool
	Processed   *bool
	PromotionID uint
	Type        string
	RelatedID   uint
	Amount      *int
	Operator    string
	Page        int
	Limit       int
}

type TransactionDAO struct {
	db *gorm.DB
}

func NewTransactionDAO(db *gorm.DB) *TransactionDAO {
	return &TransactionDAO{
		db: db,
	}
}

func (d *TransactionDAO) FindByID(ctx context.Context, id uint) (Transaction, error) {
	tx, err := findTransaction(d.db.WithContext(ctx), id)
	if err != nil {
		return Transaction{}, err
	}

	if err = loadPromotionIDs(d.db.WithContext(ctx), []*Transaction{&tx}); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

func findTransaction(db *gorm.DB, id uint) (Transaction, error) {
	var tx Transaction

	result := db.First(&tx, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Transaction{}, ErrTransactionNotFound
		}

		return Transaction{}, result.Error
	}

	return tx, nil
}

func (d *TransactionDAO) List(ctx context.Context, q TransactionQuery) ([]Transaction, int64, error) {
	db := d.db.WithContext(ctx).Model(&Transaction{})
	if q.Name != "" {
		db = db.Where("user_id IN (?)",
			d.db.Model(&User{}).Select("id").
				Where("LOWER(utorid) LIKE ? OR LOWER(name) LIKE ?", likePattern(q.Name), likePattern(q.Name)))
	}
	if q.UserID != 0 {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.CreatedBy != "" {
		db = db.Where("created_by = ?", q.CreatedBy)
	}
	if q.Suspicious != nil {
		db = db.Where("suspicious = ?", *q.Suspicious)
	}
	if q.Processed != nil {
		db = db.Where("processed = ?", *q.Processed)
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.RelatedID != 0 {
		db = db.Where("related_id = ?", q.RelatedID)
	}
	if q.PromotionID != 0 {
		db = db.Where("id IN (?)",
			d.db.Model(&TransactionPromotion{}).Select("transaction_id").Where("promotion_id = ?", q.PromotionID))
	}
	if q.Amount != nil {
		switch q.Operator {
		case "gte":
			db = db.Where("amount >= ?", *q.Amount)
		case "lte":
			db = db.Where("amount <= ?", *q.Amount)
		default:
			db = db.Where("amount = ?", *q.Amount)
		}
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var txs []Transaction
	if err := db.Order("id").Scopes(paginate(q.Page, q.Limit)).Find(&txs).Error; err != nil {
		return nil, 0, err
	}

	ptrs := make([]*Transaction, len(txs))
	for i := range txs {
		ptrs[i] = &txs[i]
	}
	if err := loadPromotionIDs(d.db.WithContext(ctx), ptrs); err != nil {
		return nil, 0, err
	}

	return txs, count, nil
}

func loadPromotionIDs(db *gorm.DB, txs []*Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	byID := make(map[uint]*Transaction, len(txs))
	ids := make([]uint, 0, len(txs))
	for _, t := range txs {
		t.PromotionIDs = []uint{}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	var links []TransactionPromotion
	if err := db.Where("transaction_id IN ?", ids).Order("promotion_id").Find(&links).Error; err != nil {
		return err
	}
	for _, l := range links {
		t := byID[l.TransactionID]
		t.PromotionIDs = append(t.PromotionIDs, l.PromotionID)
	}

	return nil
}

func insertTransaction(tx *gorm.DB, t *Transaction) error {
	if err := tx.Create(t).Error; err != nil {
		return err
	}
	for _, pid := range t.PromotionIDs {
		if err := tx.Create(&TransactionPromotion{TransactionID: t.ID, PromotionID: pid}).Error; err != nil {
			return err
		}
	}
	if t.PromotionIDs == nil {
		t.PromotionIDs = []uint{}
	}

	return nil
}

// CreatePurchase stores a purchase and credits its amount unless the
// transaction is suspicious. oneTime promotions are marked as used by the
// customer in the same database transaction.
func (d *TransactionDAO) CreatePurchase(ctx context.Context, t Transaction, oneTime []uint) (Transaction, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pid := range oneTime {
			err := tx.Create(&UsedPromotion{UserID: t.UserID, PromotionID: pid}).Error
			if err != nil {
				if isUniqueViolation(err, "", "used_promotions.") {
					return ErrPromotionAlreadyUsed
				}
				return err
			}
		}

		if err := insertTransaction(tx, &t); err != nil {
			return err
		}

		if !t.effective() {
			return nil
		}

		return addPoints(tx, t.UserID, t.Amount, false)
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}

// CreateRedemption stores an unprocessed redemption request. The balance is
// checked but not changed.
func (d *TransactionDAO) CreateRedemption(ctx context.Context, t Transaction) (Transaction, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.Select("points").First(&user, t.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.Points+t.Amount < 0 {
			return ErrInsufficientPoints
		}

		t.Processed = false
		return insertTransaction(tx, &t)
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}

// ProcessRedemption marks a redemption processed and deducts its points. Only
// one caller can win for a given id.
func (d *TransactionDAO) ProcessRedemption(ctx context.Context, id uint, processedBy string) (Transaction, error) {
	var processed Transaction

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Transaction{}).
			Where("id = ? AND type = ? AND processed = ?", id, TypeRedemption, false).
			Updates(map[string]any{"processed": true, "processed_by": processedBy})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			existing, err := findTransaction(tx, id)
			if err != nil {
				return err
			}
			if existing.Type != TypeRedemption {
				return ErrNotRedemption
			}
			return ErrAlreadyProcessed
		}

		var err error
		processed, err = findTransaction(tx, id)
		if err != nil {
			return err
		}

		if processed.Suspicious {
			return nil
		}

		return addPoints(tx, processed.UserID, processed.Amount, true)
	})
	if err != nil {
		return Transaction{}, err
	}

	if err = loadPromotionIDs(d.db.WithContext(ctx), []*Transaction{&processed}); err != nil {
		return Transaction{}, err
	}

	return processed, nil
}

// CreateTransfer debits the sender and credits the recipient atomically.
// sender.Amount is negative, recipient.Amount positive.
func (d *TransactionDAO) CreateTransfer(ctx context.Context, sender, recipient Transaction) (Transaction, Transaction, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := addPoints(tx, sender.UserID, sender.Amount, true); err != nil {
			return err
		}
		if err := addPoints(tx, recipient.UserID, recipient.Amount, false); err != nil {
			return err
		}
		if err := insertTransaction(tx, &sender); err != nil {
			return err
		}

		return insertTransaction(tx, &recipient)
	})
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	return sender, recipient, nil
}

// CreateAdjustment requires RelatedID to reference a transaction of the same
// user and never lets the balance drop below zero.
func (d *TransactionDAO) CreateAdjustment(ctx context.Context, t Transaction) (Transaction, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.RelatedID == nil {
			return ErrRelatedTransactionNotFound
		}

		related, err := findTransaction(tx, *t.RelatedID)
		if err != nil {
			if errors.Is(err, ErrTransactionNotFound) {
				return ErrRelatedTransactionNotFound
			}
			return err
		}
		if related.UserID != t.UserID {
			return ErrRelatedTransactionMismatch
		}

		if err = insertTransaction(tx, &t); err != nil {
			return err
		}

		if t.Suspicious {
			return nil
		}

		return addPoints(tx, t.UserID, t.Amount, true)
	})
	if err != nil {
		return Transaction{}, err
	}

	return t, nil
}

// SetSuspicious flips the flag and reverses or re-applies the amount when the
// transaction is one that affects the balance.
func (d *TransactionDAO) SetSuspicious(ctx context.Context, id uint, suspicious bool) (Transaction, error) {
	var updated Transaction

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findTransaction(forUpdate(tx), id)
		if err != nil {
			return err
		}

		if current.Suspicious == suspicious {
			updated = current
			return nil
		}

		wasEffective := current.effective()
		result := tx.Model(&Transaction{}).
			Where("id = ? AND suspicious = ?", id, current.Suspicious).
			Update("suspicious", suspicious)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost a race with another toggle to the same value.
			updated, err = findTransaction(tx, id)
			return err
		}

		current.Suspicious = suspicious
		updated = current

		var delta int
		switch {
		case wasEffective && !current.effective():
			delta = -current.Amount
		case !wasEffective && current.effective():
			delta = current.Amount
		default:
			return nil
		}

		// A debit never takes the balance below zero.
		return addPoints(tx, current.UserID, delta, delta < 0)
	})
	if err != nil {
		return Transaction{}, err
	}

	if err = loadPromotionIDs(d.db.WithContext(ctx), []*Transaction{&updated}); err != nil {
		return Transaction{}, err
	}

	return updated, nil
}
