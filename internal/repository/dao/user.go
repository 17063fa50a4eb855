package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	ID uint `gorm:"primaryKey"`

	UTORid   string `gorm:"column:utorid;uniqueIndex:uni_users_utorid;size:20;not null"`
	Name     string `gorm:"size:50;not null"`
	Email    string `gorm:"uniqueIndex:uni_users_email;not null"`
	Password string

	Role       string `gorm:"not null;default:regular"`
	Points     int    `gorm:"not null;default:0"`
	Verified   bool   `gorm:"not null;default:false"`
	Suspicious bool   `gorm:"not null;default:false"`
	Activated  bool   `gorm:"not null;default:false"`

	Birthday  *datatypes.Date
	AvatarURL string

	ResetToken     *string `gorm:"uniqueIndex"`
	ResetExpiresAt *time.Time
	LastLogin      *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// UsedPromotion records a one-time promotion a user has already spent.
type UsedPromotion struct {
	UserID      uint `gorm:"primaryKey"`
	PromotionID uint `gorm:"primaryKey"`
	CreatedAt   time.Time
}

type UserQuery struct {
	Name      string
	Role      string
	Verified  *bool
	Activated *bool
	Page      int
	Limit     int
}

type UserDAO struct {
	db *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{
		db: db,
	}
}

func (d *UserDAO) Insert(ctx context.Context, user User) (User, error) {
	result := d.db.WithContext(ctx).Create(&user)
	if result.Error != nil {
		if isUniqueViolation(result.Error, "uni_users_", "users.") {
			return User{}, ErrUserExists
		}

		return User{}, result.Error
	}

	return user, nil
}

func (d *UserDAO) FindByID(ctx context.Context, id uint) (User, error) {
	return d.first(ctx, "id = ?", id)
}

func (d *UserDAO) FindByUTORid(ctx context.Context, utorid string) (User, error) {
	return d.first(ctx, "utorid = ?", utorid)
}

func (d *UserDAO) FindByEmail(ctx context.Context, email string) (User, error) {
	return d.first(ctx, "email = ?", email)
}

func (d *UserDAO) FindByResetToken(ctx context.Context, token string) (User, error) {
	return d.first(ctx, "reset_token = ?", token)
}

func (d *UserDAO) first(ctx context.Context, query string, args ...any) (User, error) {
	var user User

	result := d.db.WithContext(ctx).Where(query, args...).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}

		return User{}, result.Error
	}

	return user, nil
}

func (d *UserDAO) List(ctx context.Context, q UserQuery) ([]User, int64, error) {
	db := d.db.WithContext(ctx).Model(&User{})
	if q.Name != "" {
		db = db.Where("LOWER(utorid) LIKE ? OR LOWER(name) LIKE ?", likePattern(q.Name), likePattern(q.Name))
	}
	if q.Role != "" {
		db = db.Where("role = ?", q.Role)
	}
	if q.Verified != nil {
		db = db.Where("verified = ?", *q.Verified)
	}
	if q.Activated != nil {
		db = db.Where("activated = ?", *q.Activated)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	var users []User
	if err := db.Order("id").Scopes(paginate(q.Page, q.Limit)).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, count, nil
}

// Update writes the given columns and returns the fresh row.
func (d *UserDAO) Update(ctx context.Context, id uint, updates map[string]any) (User, error) {
	result := d.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		if isUniqueViolation(result.Error, "uni_users_", "users.") {
			return User{}, ErrUserExists
		}

		return User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUserNotFound
	}

	return d.FindByID(ctx, id)
}

func (d *UserDAO) UsedPromotionIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint

	err := d.db.WithContext(ctx).Model(&UsedPromotion{}).
		Where("user_id = ?", userID).
		Order("promotion_id").
		Pluck("promotion_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}
