package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrPromotionNotFound = errors.New("promotion not found")

type Promotion struct {
	ID uint `gorm:"primaryKey"`

	Name        string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	Type        string    `gorm:"not null;index"`
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`
	MinSpending *float64
	Rate        *float64
	Points      *int

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type PromotionQuery struct {
	Name    string
	Type    string
	Started *bool
	Ended   *bool
	// ActiveOnly keeps promotions whose window contains Now.
	ActiveOnly bool
	// UnusedBy hides one-time promotions the given user already spent.
	UnusedBy uint
	Now      time.Time
	Page     int
	Limit    int
}

type PromotionDAO struct {
	db *gorm.DB
}

func NewPromotionDAO(db *gorm.DB) *PromotionDAO {
	return &PromotionDAO{
		db: db,
	}
}

func (d *PromotionDAO) Insert(ctx context.Context, promo Promotion) (Promotion, error) {
	if err := d.db.WithContext(ctx).Create(&promo).Error; err != nil {
		return Promotion{}, err
	}

	return promo, nil
}

func (d *PromotionDAO) FindByID(ctx context.Context, id uint) (Promotion, error) {
	var promo Promotion

	result := d.db.WithContext(ctx).First(&promo, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Promotion{}, ErrPromotionNotFound
		}

		return Promotion{}, result.Error
	}

	return promo, nil
}

// FindByIDs fails with ErrPromotionNotFound when any id is unknown.
func (d *PromotionDAO) FindByIDs(ctx context.Context, ids []uint) ([]Promotion, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var promos []Promotion
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&promos).Error; err != nil {
		return nil, err
	}

	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	if len(promos) != len(unique) {
		return nil, ErrPromotionNotFound
	}

	return promos, nil
}

func (d *PromotionDAO) List(ctx context.Context, q PromotionQuery) ([]Promotion, int64, error) {
	db := d.db.WithContext(ctx).Model(&Promotion{})
	if q.Name != "" {
		db = db.Where("LOWER(name) LIKE ?", likePattern(q.Name))
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
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
			db = db.Where("end_time < ?", q.Now)
		} else {
			db = db.Where("end_time >= ?", q.Now)
		}
	}
	if q.ActiveOnly {
		db = db.Where("start_time <= ? AND end_time >= ?", q.Now, q.Now)
	}
	if q.UnusedBy != 0 {
		db = db.Where("id NOT IN (?)",
			d.db.Model(&UsedPromotion{}).Select("promotion_id").Where("user_id = ?", q.UnusedBy))
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var promos []Promotion
	if err := db.Order("id").Scopes(paginate(q.Page, q.Limit)).Find(&promos).Error; err != nil {
		return nil, 0, err
	}

	return promos, count, nil
}

// ActiveAutomatic returns the automatic promotions running at now.
func (d *PromotionDAO) ActiveAutomatic(ctx context.Context, now time.Time) ([]Promotion, error) {
	var promos []Promotion

	err := d.db.WithContext(ctx).
		Where("type = ? AND start_time <= ? AND end_time >= ?", "automatic", now, now).
		Order("id").
		Find(&promos).Error
	if err != nil {
		return nil, err
	}

	return promos, nil
}

func (d *PromotionDAO) Update(ctx context.Context, id uint, updates map[string]any) (Promotion, error) {
	result := d.db.WithContext(ctx).Model(&Promotion{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return Promotion{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Promotion{}, ErrPromotionNotFound
	}

	return d.FindByID(ctx, id)
}

func (d *PromotionDAO) Delete(ctx context.Context, id uint) error {
	result := d.db.WithContext(ctx).Delete(&Promotion{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPromotionNotFound
	}

	return nil
}
