package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/request"
	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/api/middleware"
	"github.com/campus-loyalty/points-api/internal/service"
)

type AuthService interface {
	Login(ctx context.Context, utorid, password string) (string, time.Time, error)
	Logout(ctx context.Context, token string, expiresAt time.Time) error
	RequestReset(ctx context.Context, utorid, clientKey string) (string, time.Time, error)
	ResetPassword(ctx context.Context, token, utorid, password string) error
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{
		svc: svc,
	}
}

// HandleLogin godoc
// @Summary      Exchange utorid and password for a bearer token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      request.LoginRequest  true  "credentials"
// @Success      200      {object}  response.LoginResponse
// @Failure      400      {object}  response.Err
// @Failure      401      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /auth/tokens [post]
func (h *AuthHandler) HandleLogin(ctx *gin.Context) {
	req := request.LoginRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	token, expiresAt, err := h.svc.Login(ctx.Request.Context(), req.UTORid, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrWrongCredentials) || errors.Is(err, service.ErrUserNotFound) {
			response.RenderErr(ctx, response.ErrWrongCredentials(service.ErrWrongCredentials))
			return
		}

		err = fmt.Errorf("HandleLogin -> h.svc.Login -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleLogout godoc
// @Summary      Revoke the current bearer token
// @Tags         auth
// @Success      204
// @Failure      401  {object}  response.Err
// @Failure      500  {object}  response.Err
// @Router       /auth/tokens [delete]
// @Security BearerAuth
func (h *AuthHandler) HandleLogout(ctx *gin.Context) {
	token, expiresAt := middleware.CurrentToken(ctx)

	if err := h.svc.Logout(ctx.Request.Context(), token, expiresAt); err != nil {
		err = fmt.Errorf("HandleLogout -> h.svc.Logout -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleRequestReset godoc
// @Summary      Request a password reset token
// @Description  The token is returned in the body since no mail is sent.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      request.ResetRequest  true  "utorid"
// @Success      202      {object}  response.ResetResponse
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      429      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /auth/resets [post]
func (h *AuthHandler) HandleRequestReset(ctx *gin.Context) {
	req := request.ResetRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	token, expiresAt, err := h.svc.RequestReset(ctx.Request.Context(), req.UTORid, ctx.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTooManyResets):
			response.RenderErr(ctx, response.ErrTooManyRequests(service.ErrTooManyResets))
		case errors.Is(err, service.ErrUserNotFound):
			response.RenderErr(ctx, response.ErrNotFound("user", "utorid", req.UTORid))
		default:
			err = fmt.Errorf("HandleRequestReset -> h.svc.RequestReset -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	ctx.JSON(http.StatusAccepted, response.ResetResponse{
		ExpiresAt:  expiresAt,
		ResetToken: token,
	})
}

// HandleResetPassword godoc
// @Summary      Set a new password with a reset token
// @Tags         auth
// @Accept       json
// @Param        resetToken  path      string                        true  "reset token"
// @Param        request     body      request.ResetPasswordRequest  true  "utorid and new password"
// @Success      200
// @Failure      400         {object}  response.Err
// @Failure      401         {object}  response.Err
// @Failure      404         {object}  response.Err
// @Failure      410         {object}  response.Err
// @Failure      500         {object}  response.Err
// @Router       /auth/resets/{resetToken} [post]
func (h *AuthHandler) HandleResetPassword(ctx *gin.Context) {
	req := request.ResetPasswordRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	err := h.svc.ResetPassword(ctx.Request.Context(), ctx.Param("resetToken"), req.UTORid, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResetTokenNotFound):
			response.RenderErr(ctx, response.ErrMissing(service.ErrResetTokenNotFound))
		case errors.Is(err, service.ErrResetTokenExpired):
			response.RenderErr(ctx, response.ErrGone(service.ErrResetTokenExpired))
		case errors.Is(err, service.ErrResetUTORidMismatch):
			response.RenderErr(ctx, response.ErrUnauthorized(service.ErrResetUTORidMismatch))
		default:
			err = fmt.Errorf("HandleResetPassword -> h.svc.ResetPassword -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	ctx.Status(http.StatusOK)
}
