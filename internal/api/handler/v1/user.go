package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/request"
	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/service"
)

type UserService interface {
	Create(ctx context.Context, utorid, name, email string) (domain.User, error)
	Get(ctx context.Context, id uint) (domain.User, error)
	List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error)
	Resolve(ctx context.Context, utorid string) (domain.UserSummary, error)
	Update(ctx context.Context, actor domain.User, id uint, patch service.UserPatch) (domain.User, error)
	UpdateProfile(ctx context.Context, id uint, patch service.ProfilePatch) (domain.User, error)
	ChangePassword(ctx context.Context, id uint, oldPassword, newPassword string) error
}

type UserHandler struct {
	svc UserService
}

func NewUserHandler(svc UserService) *UserHandler {
	return &UserHandler{
		svc: svc,
	}
}

// HandleCreateUser godoc
// @Summary      Register a new user
// @Description  The user sets a password with the returned reset token.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request  body      request.CreateUserRequest  true  "new user"
// @Success      201      {object}  response.CreatedUserResponse
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      409      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /users [post]
// @Security BearerAuth
func (h *UserHandler) HandleCreateUser(ctx *gin.Context) {
	req := request.CreateUserRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	user, err := h.svc.Create(ctx.Request.Context(), req.UTORid, req.Name, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.RenderErr(ctx, response.ErrConflict(service.ErrUserExists))
			return
		}

		err = fmt.Errorf("HandleCreateUser -> h.svc.Create -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusCreated, response.NewCreatedUser(user))
}

// HandleListUsers godoc
// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        name       query     string  false  "utorid or name contains"
// @Param        role       query     string  false  "role"
// @Param        verified   query     bool    false  "verified"
// @Param        activated  query     bool    false  "has logged in"
// @Param        page       query     int     false  "page"
// @Param        limit      query     int     false  "page size"
// @Success      200        {object}  response.ListResponse
// @Failure      400        {object}  response.Err
// @Failure      403        {object}  response.Err
// @Failure      500        {object}  response.Err
// @Router       /users [get]
// @Security BearerAuth
func (h *UserHandler) HandleListUsers(ctx *gin.Context) {
	q := request.UserQuery{}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(request.BindError(err)))
		return
	}

	users, count, err := h.svc.List(ctx.Request.Context(), q.Filter())
	if err != nil {
		err = fmt.Errorf("HandleListUsers -> h.svc.List -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: users})
}

// HandleGetUser godoc
// @Summary      Get a user
// @Description  Cashiers get a reduced view, managers the full record.
// @Tags         users
// @Produce      json
// @Param        userId  path      int  true  "user id"
// @Success      200     {object}  domain.User
// @Failure      400     {object}  response.Err
// @Failure      404     {object}  response.Err
// @Failure      500     {object}  response.Err
// @Router       /users/{userId} [get]
// @Security BearerAuth
func (h *UserHandler) HandleGetUser(ctx *gin.Context) {
	viewer, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "userId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	user, err := h.svc.Get(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.RenderErr(ctx, response.ErrNotFound("user", "id", id))
			return
		}

		err = fmt.Errorf("HandleGetUser -> h.svc.Get -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	if !viewer.Role.AtLeast(domain.RoleManager) {
		ctx.JSON(http.StatusOK, response.NewCashierUserView(user))
		return
	}

	ctx.JSON(http.StatusOK, user)
}

// HandleResolveUser godoc
// @Summary      Resolve a utorid
// @Tags         users
// @Produce      json
// @Param        utorid  path      string  true  "utorid"
// @Success      200     {object}  domain.UserSummary
// @Failure      404     {object}  response.Err
// @Failure      500     {object}  response.Err
// @Router       /users/resolve/{utorid} [get]
// @Security BearerAuth
func (h *UserHandler) HandleResolveUser(ctx *gin.Context) {
	summary, err := h.svc.Resolve(ctx.Request.Context(), ctx.Param("utorid"))
	if err != nil {
		if errors.Is(err, service.ErrReceiverNotFound) {
			response.RenderErr(ctx, response.ErrMissing(service.ErrReceiverNotFound))
			return
		}

		err = fmt.Errorf("HandleResolveUser -> h.svc.Resolve -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, summary)
}

// HandleUpdateUser godoc
// @Summary      Update another user's status
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        userId   path      int                        true  "user id"
// @Param        request  body      request.UpdateUserRequest  true  "fields to change"
// @Success      200      {object}  domain.User
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      409      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /users/{userId} [patch]
// @Security BearerAuth
func (h *UserHandler) HandleUpdateUser(ctx *gin.Context) {
	actor, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "userId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UpdateUserRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	patch := service.UserPatch{
		Email:      req.Email,
		Verified:   req.Verified,
		Suspicious: req.Suspicious,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}

	user, err := h.svc.Update(ctx.Request.Context(), actor, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.RenderErr(ctx, response.ErrNotFound("user", "id", id))
		case errors.Is(err, service.ErrRoleNotAllowed):
			response.RenderErr(ctx, response.ErrPermissionDenied(service.ErrRoleNotAllowed))
		case errors.Is(err, service.ErrUserExists):
			response.RenderErr(ctx, response.ErrConflict(service.ErrUserExists))
		case errors.Is(err, service.ErrEmptyUpdate),
			errors.Is(err, service.ErrVerifiedOnlyTrue),
			errors.Is(err, service.ErrSuspiciousCashier):
			response.RenderErr(ctx, response.ErrBadRequest(err))
		default:
			err = fmt.Errorf("HandleUpdateUser -> h.svc.Update -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	ctx.JSON(http.StatusOK, user)
}

// HandleGetMe godoc
// @Summary      Get the current user
// @Tags         users
// @Produce      json
// @Success      200  {object}  domain.User
// @Failure      401  {object}  response.Err
// @Failure      500  {object}  response.Err
// @Router       /users/me [get]
// @Security BearerAuth
func (h *UserHandler) HandleGetMe(ctx *gin.Context) {
	me, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	user, err := h.svc.Get(ctx.Request.Context(), me.ID)
	if err != nil {
		err = fmt.Errorf("HandleGetMe -> h.svc.Get -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, user)
}

// HandleUpdateMe godoc
// @Summary      Update the current user's profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request  body      request.UpdateMeRequest  true  "fields to change"
// @Success      200      {object}  domain.User
// @Failure      400      {object}  response.Err
// @Failure      409      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /users/me [patch]
// @Security BearerAuth
func (h *UserHandler) HandleUpdateMe(ctx *gin.Context) {
	me, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UpdateMeRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	user, err := h.svc.UpdateProfile(ctx.Request.Context(), me.ID, service.ProfilePatch{
		Name:      req.Name,
		Email:     req.Email,
		Birthday:  req.Birthday,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBirthday), errors.Is(err, service.ErrEmptyUpdate):
			response.RenderErr(ctx, response.ErrBadRequest(err))
		case errors.Is(err, service.ErrUserExists):
			response.RenderErr(ctx, response.ErrConflict(service.ErrUserExists))
		default:
			err = fmt.Errorf("HandleUpdateMe -> h.svc.UpdateProfile -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	ctx.JSON(http.StatusOK, user)
}

// HandleChangePassword godoc
// @Summary      Change the current user's password
// @Tags         users
// @Accept       json
// @Param        request  body  request.ChangePasswordRequest  true  "old and new password"
// @Success      200
// @Failure      400  {object}  response.Err
// @Failure      403  {object}  response.Err
// @Failure      500  {object}  response.Err
// @Router       /users/me/password [patch]
// @Security BearerAuth
func (h *UserHandler) HandleChangePassword(ctx *gin.Context) {
	me, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.ChangePasswordRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := h.svc.ChangePassword(ctx.Request.Context(), me.ID, req.Old, req.New); err != nil {
		if errors.Is(err, service.ErrWrongPassword) {
			response.RenderErr(ctx, response.ErrPermissionDenied(service.ErrWrongPassword))
			return
		}

		err = fmt.Errorf("HandleChangePassword -> h.svc.ChangePassword -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.Status(http.StatusOK)
}
