package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRaffleNotFound  = errors.New("raffle not found")
	ErrAlreadyEntered  = errors.New("you have already entered this raffle")
	ErrRaffleNotOpen   = errors.New("raffle is not open for entries")
	ErrRaffleDrawn     = errors.New("raffle has already been drawn")
	ErrRaffleNoEntries = errors.New("raffle has no entries")
	ErrRaffleTooEarly  = errors.New("raffle draw time has not been reached")
)

type Raffle struct {
	ID uint `gorm:"primaryKey"`

	Name        string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	PointCost   int       `gorm:"not null;default:0"`
	PrizePoints int       `gorm:"not null"`
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`
	DrawTime    time.Time `gorm:"not null"`

	Drawn      bool `gorm:"not null;default:false"`
	WinnerID   *uint
	Winner     *User
	EntryCount int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type RaffleEntry struct {
	ID uint `gorm:"primaryKey"`

	RaffleID uint `gorm:"not null;uniqueIndex:idx_raffle_entries_raffle_user"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_raffle_entries_raffle_user"`

	CreatedAt time.Time `gorm:"not null"`
}

type RaffleQuery struct {
	Page  int
	Limit int
}

type RaffleDAO struct {
	db *gorm.DB
}

func NewRaffleDAO(db *gorm.DB) *RaffleDAO {
	return &RaffleDAO{
		db: db,
	}
}

func (d *RaffleDAO) Insert(ctx context.Context, raffle Raffle) (Raffle, error) {
	if err := d.db.WithContext(ctx).Omit("Winner").Create(&raffle).Error; err != nil {
		return Raffle{}, err
	}

	return raffle, nil
}

func (d *RaffleDAO) FindByID(ctx context.Context, id uint) (Raffle, error) {
	var raffle Raffle

	result := d.db.WithContext(ctx).Preload("Winner").First(&raffle, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Raffle{}, ErrRaffleNotFound
		}

		return Raffle{}, result.Error
	}

	return raffle, nil
}

func (d *RaffleDAO) List(ctx context.Context, q RaffleQuery) ([]Raffle, int64, error) {
	db := d.db.WithContext(ctx).Model(&Raffle{})

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var raffles []Raffle
	if err := db.Preload("Winner").Order("draw_time DESC, id").Scopes(paginate(q.Page, q.Limit)).Find(&raffles).Error; err != nil {
		return nil, 0, err
	}

	return raffles, count, nil
}

// EnteredRaffleIDs returns which of raffleIDs userID has entered.
func (d *RaffleDAO) EnteredRaffleIDs(ctx context.Context, userID uint, raffleIDs []uint) ([]uint, error) {
	if len(raffleIDs) == 0 {
		return nil, nil
	}

	var ids []uint
	err := d.db.WithContext(ctx).Model(&RaffleEntry{}).
		Where("user_id = ? AND raffle_id IN ?", userID, raffleIDs).
		Pluck("raffle_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (d *RaffleDAO) EntrantIDs(ctx context.Context, raffleID uint) ([]uint, error) {
	var ids []uint

	err := d.db.WithContext(ctx).Model(&RaffleEntry{}).
		Where("raffle_id = ?", raffleID).
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// Enter records the entry, bumps the entry count while the raffle is open and
// debits the point cost as an already processed redemption.
func (d *RaffleDAO) Enter(ctx context.Context, raffleID uint, user User, now time.Time) (Raffle, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var raffle Raffle
		if err := forUpdate(tx).First(&raffle, raffleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaffleNotFound
			}
			return err
		}

		result := tx.Model(&Raffle{}).
			Where("id = ? AND drawn = ? AND start_time <= ? AND end_time >= ?", raffleID, false, now, now).
			Update("entry_count", gorm.Expr("entry_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if raffle.Drawn {
				return ErrRaffleDrawn
			}
			return ErrRaffleNotOpen
		}

		if err := tx.Create(&RaffleEntry{RaffleID: raffleID, UserID: user.ID}).Error; err != nil {
			if isUniqueViolation(err, "idx_raffle_entries_raffle_user", "raffle_entries.") {
				return ErrAlreadyEntered
			}
			return err
		}

		if raffle.PointCost == 0 {
			return nil
		}

		if err := addPoints(tx, user.ID, -raffle.PointCost, true); err != nil {
			return err
		}

		return insertTransaction(tx, &Transaction{
			UserID:      user.ID,
			UTORid:      user.UTORid,
			Type:        TypeRedemption,
			Amount:      -raffle.PointCost,
			Remark:      fmt.Sprintf("raffle entry #%d", raffleID),
			CreatedBy:   user.UTORid,
			Processed:   true,
			ProcessedBy: user.UTORid,
		})
	})
	if err != nil {
		return Raffle{}, err
	}

	return d.FindByID(ctx, raffleID)
}

// Draw marks the raffle drawn with winner and credits the prize. pick gets
// the number of entries and returns the index of the winning entry.
func (d *RaffleDAO) Draw(ctx context.Context, raffleID uint, now time.Time, createdBy string, pick func(n int) (int, error)) (Raffle, Transaction, error) {
	var prize Transaction

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var raffle Raffle
		if err := forUpdate(tx).First(&raffle, raffleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRaffleNotFound
			}
			return err
		}
		if raffle.Drawn {
			return ErrRaffleDrawn
		}
		if now.Before(raffle.DrawTime) {
			return ErrRaffleTooEarly
		}

		var entrants []uint
		if err := tx.Model(&RaffleEntry{}).Where("raffle_id = ?", raffleID).Order("id").Pluck("user_id", &entrants).Error; err != nil {
			return err
		}
		if len(entrants) == 0 {
			return ErrRaffleNoEntries
		}

		idx, err := pick(len(entrants))
		if err != nil {
			return err
		}
		winnerID := entrants[idx]

		result := tx.Model(&Raffle{}).
			Where("id = ? AND drawn = ?", raffleID, false).
			Updates(map[string]any{"drawn": true, "winner_id": winnerID})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRaffleDrawn
		}

		var winner User
		if err = tx.First(&winner, winnerID).Error; err != nil {
			return err
		}

		prize = Transaction{
			UserID:    winner.ID,
			UTORid:    winner.UTORid,
			Type:      TypeEvent,
			Amount:    raffle.PrizePoints,
			Remark:    fmt.Sprintf("raffle prize #%d", raffleID),
			CreatedBy: createdBy,
		}
		if err = insertTransaction(tx, &prize); err != nil {
			return err
		}

		return addPoints(tx, winner.ID, raffle.PrizePoints, false)
	})
	if err != nil {
		return Raffle{}, Transaction{}, err
	}

	raffle, err := d.FindByID(ctx, raffleID)
	if err != nil {
		return Raffle{}, Transaction{}, err
	}

	return raffle, prize, nil
}
