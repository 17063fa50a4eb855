package dao

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound           = errors.New("event not found")
	ErrEventFull               = errors.New("event is full")
	ErrEventEnded              = errors.New("event has ended")
	ErrAlreadyGuest            = errors.New("user is already a guest")
	ErrAlreadyOrganizer        = errors.New("user is already an organizer")
	ErrUserIsGuest             = errors.New("user is a guest of this event")
	ErrUserIsOrganizer         = errors.New("user is an organizer of this event")
	ErrNotGuest                = errors.New("user is not a guest of this event")
	ErrNotOrganizer            = errors.New("user is not an organizer of this event")
	ErrInsufficientEventPoints = errors.New("event does not have enough points remaining")
)

type Event struct {
	ID uint `gorm:"primaryKey"`

	Name        string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	Location    string    `gorm:"not null"`
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`
	Capacity    *int
	NumGuests   int  `gorm:"not null;default:0"`
	Published   bool `gorm:"not null;default:false"`

	PointsRemain  int `gorm:"not null;default:0"`
	PointsAwarded int `gorm:"not null;default:0"`

	Organizers []User `gorm:"many2many:event_organizers"`
	Guests     []User `gorm:"many2many:event_guests"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type EventOrganizer struct {
	EventID   uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

type EventGuest struct {
	EventID   uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

type EventQuery struct {
	Name      string
	Location  string
	Started   *bool
	Ended     *bool
	ShowFull  bool
	Published *bool
	Now       time.Time
	Page      int
	Limit     int
}

type EventDAO struct {
	db *gorm.DB
}

func NewEventDAO(db *gorm.DB) *EventDAO {
	return &EventDAO{
		db: db,
	}
}

func (d *EventDAO) Insert(ctx context.Context, event Event) (Event, error) {
	event.Organizers = nil
	event.Guests = nil

	if err := d.db.WithContext(ctx).Omit("Organizers", "Guests").Create(&event).Error; err != nil {
		return Event{}, err
	}

	return event, nil
}

func (d *EventDAO) FindByID(ctx context.Context, id uint) (Event, error) {
	var event Event

	result := d.db.WithContext(ctx).
		Preload("Organizers", func(db *gorm.DB) *gorm.DB { return db.Order("users.id") }).
		Preload("Guests", func(db *gorm.DB) *gorm.DB { return db.Order("users.id") }).
		First(&event, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Event{}, ErrEventNotFound
		}

		return Event{}, result.Error
	}

	return event, nil
}

func (d *EventDAO) List(ctx context.Context, q EventQuery) ([]Event, int64, error) {
	db := d.db.WithContext(ctx).Model(&Event{})
	if q.Name != "" {
		db = db.Where("LOWER(name) LIKE ?", likePattern(q.Name))
	}
	if q.Location != "" {
		db = db.Where("LOWER(location) LIKE ?", likePattern(q.Location))
	}
	if q.Started != nil {
		if *q.Started {
			db = db.Where("start_time <= ?", q.Now)
		} else {
			db = db.Where("start_time > ?", q.Now)
		}
	}
	if q.Ended != nil {
		if *q.Ended {
			db = db.Where("end_time <= ?", q.Now)
		} else {
			db = db.Where("end_time > ?", q.Now)
		}
	}
	if !q.ShowFull {
		db = db.Where("capacity IS NULL OR num_guests < capacity")
	}
	if q.Published != nil {
		db = db.Where("published = ?", *q.Published)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var events []Event
	err := db.Preload("Organizers").Order("start_time, id").Scopes(paginate(q.Page, q.Limit)).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, count, nil
}

func (d *EventDAO) Update(ctx context.Context, id uint, updates map[string]any) (Event, error) {
	result := d.db.WithContext(ctx).Model(&Event{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return Event{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Event{}, ErrEventNotFound
	}

	return d.FindByID(ctx, id)
}

func (d *EventDAO) Delete(ctx context.Context, id uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&EventOrganizer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&EventGuest{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&Event{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEventNotFound
		}

		return nil
	})
}

func (d *EventDAO) AddOrganizer(ctx context.Context, eventID, userID uint, now time.Time) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		if !now.Before(event.EndTime) {
			return ErrEventEnded
		}

		if exists, err := rowExists(tx, &EventGuest{}, eventID, userID); err != nil {
			return err
		} else if exists {
			return ErrUserIsGuest
		}

		if err = tx.Create(&EventOrganizer{EventID: eventID, UserID: userID}).Error; err != nil {
			if isUniqueViolation(err, "", "event_organizers.") {
				return ErrAlreadyOrganizer
			}
			return err
		}

		return nil
	})
}

func (d *EventDAO) RemoveOrganizer(ctx context.Context, eventID, userID uint) error {
	result := d.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&EventOrganizer{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotOrganizer
	}

	return nil
}

// AddGuest reserves a seat with a conditional update so the guest count never
// exceeds capacity, then records the guest.
func (d *EventDAO) AddGuest(ctx context.Context, eventID, userID uint, now time.Time) (Event, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}

		if exists, err := rowExists(tx, &EventOrganizer{}, eventID, userID); err != nil {
			return err
		} else if exists {
			return ErrUserIsOrganizer
		}
		if exists, err := rowExists(tx, &EventGuest{}, eventID, userID); err != nil {
			return err
		} else if exists {
			return ErrAlreadyGuest
		}

		result := tx.Model(&Event{}).
			Where("id = ? AND end_time > ? AND (capacity IS NULL OR num_guests < capacity)", eventID, now).
			Update("num_guests", gorm.Expr("num_guests + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if !now.Before(event.EndTime) {
				return ErrEventEnded
			}
			return ErrEventFull
		}

		if err = tx.Create(&EventGuest{EventID: eventID, UserID: userID}).Error; err != nil {
			if isUniqueViolation(err, "", "event_guests.") {
				return ErrAlreadyGuest
			}
			return err
		}

		return nil
	})
	if err != nil {
		return Event{}, err
	}

	return d.FindByID(ctx, eventID)
}

// RemoveGuest deletes the guest row. When now is set, removal after the end
// of the event is refused.
func (d *EventDAO) RemoveGuest(ctx context.Context, eventID, userID uint, now *time.Time) (Event, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		if now != nil && !now.Before(event.EndTime) {
			return ErrEventEnded
		}

		result := tx.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&EventGuest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotGuest
		}

		return tx.Model(&Event{}).
			Where("id = ? AND num_guests > 0", eventID).
			Update("num_guests", gorm.Expr("num_guests - 1")).Error
	})
	if err != nil {
		return Event{}, err
	}

	return d.FindByID(ctx, eventID)
}

// Award moves amount points from the event budget to each recipient and
// records one event transaction per recipient.
func (d *EventDAO) Award(ctx context.Context, eventID uint, recipients []User, amount int, remark, createdBy string) ([]Transaction, error) {
	var created []Transaction
	if len(recipients) > 0 && amount > math.MaxInt/len(recipients) {
		return nil, ErrInsufficientEventPoints
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		total := amount * len(recipients)
		result := tx.Model(&Event{}).
			Where("id = ? AND points_remain >= ?", eventID, total).
			Updates(map[string]any{
				"points_remain":  gorm.Expr("points_remain - ?", total),
				"points_awarded": gorm.Expr("points_awarded + ?", total),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := lockEvent(tx, eventID); err != nil {
				return err
			}
			return ErrInsufficientEventPoints
		}

		related := eventID
		for _, u := range recipients {
			t := Transaction{
				UserID:    u.ID,
				UTORid:    u.UTORid,
				Type:      TypeEvent,
				Amount:    amount,
				RelatedID: &related,
				Remark:    remark,
				CreatedBy: createdBy,
			}
			if err := insertTransaction(tx, &t); err != nil {
				return err
			}
			if err := addPoints(tx, u.ID, amount, false); err != nil {
				return err
			}
			created = append(created, t)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func lockEvent(tx *gorm.DB, id uint) (Event, error) {
	var event Event

	if err := forUpdate(tx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, err
	}

	return event, nil
}

func rowExists(tx *gorm.DB, model any, eventID, userID uint) (bool, error) {
	var count int64

	err := tx.Model(model).Where("event_id = ? AND user_id = ?", eventID, userID).Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
