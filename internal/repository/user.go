package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
)

var (
	ErrUserExists         = dao.ErrUserExists
	ErrUserNotFound       = dao.ErrUserNotFound
	ErrInsufficientPoints = dao.ErrInsufficientPoints
)

const birthdayLayout = "2006-01-02"

type UserDAO interface {
	Insert(ctx context.Context, user dao.User) (dao.User, error)
	FindByID(ctx context.Context, id uint) (dao.User, error)
	FindByUTORid(ctx context.Context, utorid string) (dao.User, error)
	FindByEmail(ctx context.Context, email string) (dao.User, error)
	FindByResetToken(ctx context.Context, token string) (dao.User, error)
	List(ctx context.Context, q dao.UserQuery) ([]dao.User, int64, error)
	Update(ctx context.Context, id uint, updates map[string]any) (dao.User, error)
	UsedPromotionIDs(ctx context.Context, userID uint) ([]uint, error)
}

// UserCache is satisfied by *cache.UserCache. A nil UserCache disables caching.
type UserCache interface {
	Get(ctx context.Context, id uint) (domain.User, bool)
	Set(ctx context.Context, user domain.User)
	Invalidate(ctx context.Context, ids ...uint)
}

// UserUpdate lists the columns to change. Nil fields are left untouched.
type UserUpdate struct {
	Name           *string
	Email          *string
	Password       *string
	Role           *domain.Role
	Verified       *bool
	Suspicious     *bool
	Activated      *bool
	Birthday       *string
	AvatarURL      *string
	LastLogin      *time.Time
	ResetToken     *string
	ResetExpiresAt *time.Time
	// ClearReset removes any pending reset token.
	ClearReset bool
}

type UserRepository struct {
	dao   UserDAO
	cache UserCache
}

func NewUserRepository(dao UserDAO, cache UserCache) *UserRepository {
	return &UserRepository{
		dao:   dao,
		cache: cache,
	}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	created, err := r.dao.Insert(ctx, dao.User{
		UTORid:         user.UTORid,
		Name:           user.Name,
		Email:          user.Email,
		Password:       user.Password,
		Role:           string(user.Role),
		Points:         user.Points,
		Verified:       user.Verified,
		ResetToken:     nonEmpty(user.ResetToken),
		ResetExpiresAt: user.ResetExpiresAt,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	return r.daoToDomain(created), nil
}

// FindByID is served from the cache when possible. Callers that need an
// authoritative balance should use FindFreshByID.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (domain.User, error) {
	if r.cache != nil {
		if user, ok := r.cache.Get(ctx, id); ok {
			return user, nil
		}
	}

	user, err := r.FindFreshByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, user)
	}

	return user, nil
}

func (r *UserRepository) FindFreshByID(ctx context.Context, id uint) (domain.User, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return r.daoToDomain(found), nil
}

func (r *UserRepository) FindByUTORid(ctx context.Context, utorid string) (domain.User, error) {
	found, err := r.dao.FindByUTORid(ctx, utorid)
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.FindByUTORid -> %w", err)
	}

	return r.daoToDomain(found), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	found, err := r.dao.FindByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.FindByEmail -> %w", err)
	}

	return r.daoToDomain(found), nil
}

func (r *UserRepository) FindByResetToken(ctx context.Context, token string) (domain.User, error) {
	found, err := r.dao.FindByResetToken(ctx, token)
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.FindByResetToken -> %w", err)
	}

	return r.daoToDomain(found), nil
}

func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error) {
	found, count, err := r.dao.List(ctx, dao.UserQuery{
		Name:      filter.Name,
		Role:      string(filter.Role),
		Verified:  filter.Verified,
		Activated: filter.Activated,
		Page:      filter.Page,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("r.dao.List -> %w", err)
	}

	users := make([]domain.User, 0, len(found))
	for _, u := range found {
		users = append(users, r.daoToDomain(u))
	}

	return users, count, nil
}

func (r *UserRepository) Update(ctx context.Context, id uint, upd UserUpdate) (domain.User, error) {
	updates := map[string]any{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Email != nil {
		updates["email"] = *upd.Email
	}
	if upd.Password != nil {
		updates["password"] = *upd.Password
	}
	if upd.Role != nil {
		updates["role"] = string(*upd.Role)
	}
	if upd.Verified != nil {
		updates["verified"] = *upd.Verified
	}
	if upd.Suspicious != nil {
		updates["suspicious"] = *upd.Suspicious
	}
	if upd.Activated != nil {
		updates["activated"] = *upd.Activated
	}
	if upd.Birthday != nil {
		d, err := time.Parse(birthdayLayout, *upd.Birthday)
		if err != nil {
			return domain.User{}, fmt.Errorf("time.Parse -> %w", err)
		}
		updates["birthday"] = datatypes.Date(d)
	}
	if upd.AvatarURL != nil {
		updates["avatar_url"] = *upd.AvatarURL
	}
	if upd.LastLogin != nil {
		updates["last_login"] = *upd.LastLogin
	}
	if upd.ResetToken != nil {
		updates["reset_token"] = *upd.ResetToken
		updates["reset_expires_at"] = upd.ResetExpiresAt
	}
	if upd.ClearReset {
		updates["reset_token"] = nil
		updates["reset_expires_at"] = nil
	}

	if len(updates) == 0 {
		return r.FindFreshByID(ctx, id)
	}

	updated, err := r.dao.Update(ctx, id, updates)
	r.invalidate(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("r.dao.Update -> %w", err)
	}

	return r.daoToDomain(updated), nil
}

func (r *UserRepository) UsedPromotionIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := r.dao.UsedPromotionIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("r.dao.UsedPromotionIDs -> %w", err)
	}

	return ids, nil
}

func (r *UserRepository) invalidate(ctx context.Context, ids ...uint) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, ids...)
	}
}

func (r *UserRepository) daoToDomain(u dao.User) domain.User {
	user := domain.User{
		ID:             u.ID,
		UTORid:         u.UTORid,
		Name:           u.Name,
		Email:          u.Email,
		Password:       u.Password,
		Role:           domain.Role(u.Role),
		Points:         u.Points,
		Verified:       u.Verified,
		Suspicious:     u.Suspicious,
		Activated:      u.Activated,
		AvatarURL:      u.AvatarURL,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
		ResetExpiresAt: u.ResetExpiresAt,
		Promotions:     []domain.Promotion{},
	}
	if u.Birthday != nil {
		b := time.Time(*u.Birthday).Format(birthdayLayout)
		user.Birthday = &b
	}
	if u.ResetToken != nil {
		user.ResetToken = *u.ResetToken
	}

	return user
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
