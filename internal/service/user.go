package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrUserExists         = repository.ErrUserExists
	ErrUserNotFound       = repository.ErrUserNotFound
	ErrReceiverNotFound   = errors.New("Receiver not found")
	ErrWrongPassword      = errors.New("old password is incorrect")
	ErrRoleNotAllowed     = errors.New("you may not assign this role")
	ErrVerifiedOnlyTrue   = errors.New("verified can only be set to true")
	ErrSuspiciousCashier  = errors.New("a suspicious user cannot be made a cashier")
	ErrInvalidBirthday    = errors.New("birthday must be a valid date in YYYY-MM-DD format")
	ErrEmptyUpdate        = errors.New("no fields to update")
	ErrInsufficientPoints = repository.ErrInsufficientPoints
)

const birthdayLayout = "2006-01-02"

type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, id uint) (domain.User, error)
	FindFreshByID(ctx context.Context, id uint) (domain.User, error)
	FindByUTORid(ctx context.Context, utorid string) (domain.User, error)
	List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error)
	Update(ctx context.Context, id uint, upd repository.UserUpdate) (domain.User, error)
}

type PromotionLister interface {
	List(ctx context.Context, filter domain.PromotionFilter, vis repository.PromotionVisibility) ([]domain.Promotion, int64, error)
}

// UserPatch is what a manager may change on another account.
type UserPatch struct {
	Email      *string
	Verified   *bool
	Suspicious *bool
	Role       *domain.Role
}

// ProfilePatch is what a user may change on their own account.
type ProfilePatch struct {
	Name      *string
	Email     *string
	Birthday  *string
	AvatarURL *string
}

type UserService struct {
	repo     UserRepository
	promos   PromotionLister
	resetTTL time.Duration
	now      clock
}

func NewUserService(repo UserRepository, promos PromotionLister, resetTTL time.Duration) *UserService {
	return &UserService{
		repo:     repo,
		promos:   promos,
		resetTTL: resetTTL,
		now:      time.Now,
	}
}

// Create registers a regular user without a password. The returned user
// carries the reset token used to set one.
func (s *UserService) Create(ctx context.Context, utorid, name, email string) (domain.User, error) {
	expiresAt := s.now().Add(s.resetTTL)
	created, err := s.repo.Create(ctx, domain.User{
		UTORid:         utorid,
		Name:           name,
		Email:          email,
		Role:           domain.RoleRegular,
		ResetToken:     uuid.NewString(),
		ResetExpiresAt: &expiresAt,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("s.repo.Create -> %w", err)
	}

	zap.L().Info("user created", zap.String("utorid", created.UTORid))

	return created, nil
}

// Get returns the user with the one-time promotions they can still use.
func (s *UserService) Get(ctx context.Context, id uint) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	promos, _, err := s.promos.List(ctx, domain.PromotionFilter{Type: domain.PromotionOneTime}, repository.PromotionVisibility{
		ActiveOnly: true,
		UnusedBy:   user.ID,
		Now:        s.now(),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("s.promos.List -> %w", err)
	}
	user.Promotions = promos

	return user, nil
}

func (s *UserService) List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error) {
	users, count, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("s.repo.List -> %w", err)
	}

	return users, count, nil
}

// Resolve maps a utorid to the public summary used before a transfer.
func (s *UserService) Resolve(ctx context.Context, utorid string) (domain.UserSummary, error) {
	user, err := s.repo.FindByUTORid(ctx, utorid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.UserSummary{}, ErrReceiverNotFound
		}

		return domain.UserSummary{}, fmt.Errorf("s.repo.FindByUTORid -> %w", err)
	}

	return user.Summary(), nil
}

func (s *UserService) Update(ctx context.Context, actor domain.User, id uint, patch UserPatch) (domain.User, error) {
	if patch.Email == nil && patch.Verified == nil && patch.Suspicious == nil && patch.Role == nil {
		return domain.User{}, ErrEmptyUpdate
	}
	if patch.Verified != nil && !*patch.Verified {
		return domain.User{}, ErrVerifiedOnlyTrue
	}

	target, err := s.repo.FindFreshByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("s.repo.FindFreshByID -> %w", err)
	}

	if patch.Role != nil {
		role := *patch.Role
		if !role.Valid() {
			return domain.User{}, ErrRoleNotAllowed
		}
		if actor.Role == domain.RoleManager && role != domain.RoleRegular && role != domain.RoleCashier {
			return domain.User{}, ErrRoleNotAllowed
		}

		suspicious := target.Suspicious
		if patch.Suspicious != nil {
			suspicious = *patch.Suspicious
		}
		if role == domain.RoleCashier && suspicious {
			return domain.User{}, ErrSuspiciousCashier
		}
	}

	updated, err := s.repo.Update(ctx, id, repository.UserUpdate{
		Email:      patch.Email,
		Verified:   patch.Verified,
		Suspicious: patch.Suspicious,
		Role:       patch.Role,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	zap.L().Info("user updated", zap.String("utorid", updated.UTORid), zap.String("by", actor.UTORid))

	return updated, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id uint, patch ProfilePatch) (domain.User, error) {
	if patch.Birthday != nil {
		if _, err := time.Parse(birthdayLayout, *patch.Birthday); err != nil {
			return domain.User{}, ErrInvalidBirthday
		}
	}

	updated, err := s.repo.Update(ctx, id, repository.UserUpdate{
		Name:      patch.Name,
		Email:     patch.Email,
		Birthday:  patch.Birthday,
		AvatarURL: patch.AvatarURL,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	return updated, nil
}

func (s *UserService) ChangePassword(ctx context.Context, id uint, oldPassword, newPassword string) error {
	user, err := s.repo.FindFreshByID(ctx, id)
	if err != nil {
		return fmt.Errorf("s.repo.FindFreshByID -> %w", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if _, err = s.repo.Update(ctx, id, repository.UserUpdate{Password: &hash}); err != nil {
		return fmt.Errorf("s.repo.Update -> %w", err)
	}

	return nil
}
