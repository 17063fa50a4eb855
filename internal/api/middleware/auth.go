package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/pkg/jwthelper"
)

const (
	ContextKeyUser      = "user"
	ContextKeyToken     = "token"
	ContextKeyExpiresAt = "tokenExpiresAt"
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errRevokedToken  = errors.New("token has been revoked")
	errInvalidToken  = errors.New("invalid or expired token")
	errUnknownUser   = errors.New("user no longer exists")
	errRoleForbidden = errors.New("you do not have permission to do this")
)

type TokenChecker interface {
	Contains(ctx context.Context, token string) (bool, error)
}

type UserLoader interface {
	FindByID(ctx context.Context, id uint) (domain.User, error)
}

type Authenticator struct {
	signingKey []byte
	denylist   TokenChecker
	users      UserLoader
}

func NewAuthenticator(signingKey string, denylist TokenChecker, users UserLoader) *Authenticator {
	return &Authenticator{
		signingKey: []byte(signingKey),
		denylist:   denylist,
		users:      users,
	}
}

// VerifyJWT accepts the token from the Authorization header, or from the
// token query parameter for websocket upgrades. The loaded user is stored
// under ContextKeyUser.
func (a *Authenticator) VerifyJWT() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			response.RenderErr(ctx, response.ErrUnauthorized(errMissingToken))
			return
		}

		claims, err := jwthelper.ParseToken(a.signingKey, token)
		if err != nil {
			response.RenderErr(ctx, response.ErrUnauthorized(errInvalidToken))
			return
		}

		if a.denylist != nil {
			revoked, err := a.denylist.Contains(ctx.Request.Context(), token)
			if err != nil {
				response.RenderErr(ctx, response.ErrInternalServerError(fmt.Errorf("VerifyJWT -> a.denylist.Contains -> %w", err)))
				return
			}
			if revoked {
				response.RenderErr(ctx, response.ErrUnauthorized(errRevokedToken))
				return
			}
		}

		user, err := a.users.FindByID(ctx.Request.Context(), claims.UserID)
		if err != nil {
			response.RenderErr(ctx, response.ErrUnauthorized(errUnknownUser))
			return
		}

		ctx.Set(ContextKeyUser, user)
		ctx.Set(ContextKeyToken, token)
		if claims.ExpiresAt != nil {
			ctx.Set(ContextKeyExpiresAt, claims.ExpiresAt.Time)
		}

		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ctx.Query("token")
}

// RequireRole aborts with 403 unless the current user holds min or higher.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, ok := CurrentUser(ctx)
		if !ok {
			response.RenderErr(ctx, response.ErrUnauthorized(errMissingToken))
			return
		}
		if !user.Role.AtLeast(min) {
			response.RenderErr(ctx, response.ErrPermissionDenied(errRoleForbidden))
			return
		}

		ctx.Next()
	}
}

func CurrentUser(ctx *gin.Context) (domain.User, bool) {
	v, ok := ctx.Get(ContextKeyUser)
	if !ok {
		return domain.User{}, false
	}
	user, ok := v.(domain.User)

	return user, ok
}

// CurrentToken returns the raw bearer token and its expiry.
func CurrentToken(ctx *gin.Context) (string, time.Time) {
	return ctx.GetString(ContextKeyToken), ctx.GetTime(ContextKeyExpiresAt)
}
