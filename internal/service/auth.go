package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/pkg/jwthelper"
	"github.com/campus-loyalty/points-api/internal/repository"
)

var (
	ErrWrongCredentials    = errors.New("invalid utorid or password")
	ErrTooManyResets       = errors.New("too many reset requests, try again later")
	ErrResetTokenNotFound  = errors.New("reset token not found")
	ErrResetTokenExpired   = errors.New("reset token has expired")
	ErrResetUTORidMismatch = errors.New("reset token does not belong to this utorid")
)

type AuthUserRepository interface {
	FindByUTORid(ctx context.Context, utorid string) (domain.User, error)
	FindByResetToken(ctx context.Context, token string) (domain.User, error)
	Update(ctx context.Context, id uint, upd repository.UserUpdate) (domain.User, error)
}

type TokenDenylist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
}

type ResetLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type AuthService struct {
	conf     *config.APIConfig
	repo     AuthUserRepository
	denylist TokenDenylist
	limiter  ResetLimiter
	now      clock
}

func NewAuthService(conf *config.APIConfig, repo AuthUserRepository, denylist TokenDenylist, limiter ResetLimiter) *AuthService {
	return &AuthService{
		conf:     conf,
		repo:     repo,
		denylist: denylist,
		limiter:  limiter,
		now:      time.Now,
	}
}

// Login checks the credentials and issues a bearer token. The first
// successful login activates the account.
func (s *AuthService) Login(ctx context.Context, utorid, password string) (string, time.Time, error) {
	user, err := s.repo.FindByUTORid(ctx, utorid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", time.Time{}, ErrWrongCredentials
		}

		return "", time.Time{}, fmt.Errorf("s.repo.FindByUTORid -> %w", err)
	}

	if user.Password == "" {
		return "", time.Time{}, ErrWrongCredentials
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", time.Time{}, ErrWrongCredentials
	}

	now := s.now()
	activated := true
	if _, err = s.repo.Update(ctx, user.ID, repository.UserUpdate{LastLogin: &now, Activated: &activated}); err != nil {
		return "", time.Time{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	token, expiresAt, err := jwthelper.GenerateToken([]byte(s.conf.JWTSigningKey), user.ID, string(user.Role), s.conf.TokenTTL, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwthelper.GenerateToken -> %w", err)
	}

	return token, expiresAt, nil
}

// Logout revokes token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	if err := s.denylist.Add(ctx, token, ttl); err != nil {
		return fmt.Errorf("s.denylist.Add -> %w", err)
	}

	return nil
}

// RequestReset issues a fresh reset token for utorid. clientKey identifies
// the caller for rate limiting, usually the remote address.
func (s *AuthService) RequestReset(ctx context.Context, utorid, clientKey string) (string, time.Time, error) {
	allowed, err := s.limiter.Allow(ctx, clientKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("s.limiter.Allow -> %w", err)
	}
	if !allowed {
		zap.L().Warn("reset rate limited", zap.String("client", clientKey))
		return "", time.Time{}, ErrTooManyResets
	}

	user, err := s.repo.FindByUTORid(ctx, utorid)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("s.repo.FindByUTORid -> %w", err)
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(s.conf.ResetTokenTTL)
	_, err = s.repo.Update(ctx, user.ID, repository.UserUpdate{ResetToken: &token, ResetExpiresAt: &expiresAt})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	return token, expiresAt, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, utorid, password string) error {
	user, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrResetTokenNotFound
		}

		return fmt.Errorf("s.repo.FindByResetToken -> %w", err)
	}

	if user.ResetExpiresAt == nil || !s.now().Before(*user.ResetExpiresAt) {
		return ErrResetTokenExpired
	}
	if user.UTORid != utorid {
		return ErrResetUTORidMismatch
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	_, err = s.repo.Update(ctx, user.ID, repository.UserUpdate{Password: &hash, ClearReset: true})
	if err != nil {
		return fmt.Errorf("s.repo.Update -> %w", err)
	}

	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword -> %w", err)
	}

	return string(hash), nil
}
