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

type PromotionService interface {
	Create(ctx context.Context, p domain.Promotion) (domain.Promotion, error)
	List(ctx context.Context, viewer domain.User, filter domain.PromotionFilter) ([]domain.Promotion, int64, error)
	Get(ctx context.Context, viewer domain.User, id uint) (domain.Promotion, error)
	Update(ctx context.Context, id uint, patch service.PromotionPatch) (domain.Promotion, error)
	Delete(ctx context.Context, id uint) error
}

type PromotionHandler struct {
	svc PromotionService
}

func NewPromotionHandler(svc PromotionService) *PromotionHandler {
	return &PromotionHandler{
		svc: svc,
	}
}

func promotionErr(err error) *response.Err {
	switch {
	case errors.Is(err, service.ErrPromotionNotFound):
		return response.ErrMissing(service.ErrPromotionNotFound)
	case errors.Is(err, service.ErrInvalidPromotionType),
		errors.Is(err, service.ErrNegativePromoValue),
		errors.Is(err, service.ErrPromotionStarted),
		errors.Is(err, service.ErrPromotionEnded),
		errors.Is(err, service.ErrTimeInPast),
		errors.Is(err, service.ErrInvalidTimeRange):
		return response.ErrBadRequest(unwrapAll(err))
	}

	return nil
}

// HandleCreatePromotion godoc
// @Summary      Create a promotion
// @Tags         promotions
// @Accept       json
// @Produce      json
// @Param        request  body      request.CreatePromotionRequest  true  "promotion"
// @Success      201      {object}  domain.Promotion
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /promotions [post]
// @Security BearerAuth
func (h *PromotionHandler) HandleCreatePromotion(ctx *gin.Context) {
	req := request.CreatePromotionRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	promo, err := h.svc.Create(ctx.Request.Context(), domain.Promotion{
		Name:        req.Name,
		Description: req.Description,
		Type:        domain.PromotionType(request.NormalizePromotionType(req.Type)),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	})
	if err != nil {
		if e := promotionErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleCreatePromotion -> h.svc.Create -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusCreated, promo)
}

// HandleListPromotions godoc
// @Summary      List promotions visible to the caller
// @Tags         promotions
// @Produce      json
// @Param        name     query     string  false  "name contains"
// @Param        type     query     string  false  "automatic or one-time"
// @Param        started  query     bool    false  "has started, managers only"
// @Param        ended    query     bool    false  "has ended, managers only"
// @Param        page     query     int     false  "page"
// @Param        limit    query     int     false  "page size"
// @Success      200      {object}  response.ListResponse
// @Failure      400      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /promotions [get]
// @Security BearerAuth
func (h *PromotionHandler) HandleListPromotions(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	q := request.PromotionQuery{}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(request.BindError(err)))
		return
	}

	filter, err := q.Filter()
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	promos, count, err := h.svc.List(ctx.Request.Context(), user, filter)
	if err != nil {
		err = fmt.Errorf("HandleListPromotions -> h.svc.List -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: promos})
}

// HandleGetPromotion godoc
// @Summary      Get a promotion
// @Tags         promotions
// @Produce      json
// @Param        promotionId  path      int  true  "promotion id"
// @Success      200          {object}  domain.Promotion
// @Failure      400          {object}  response.Err
// @Failure      404          {object}  response.Err
// @Failure      500          {object}  response.Err
// @Router       /promotions/{promotionId} [get]
// @Security BearerAuth
func (h *PromotionHandler) HandleGetPromotion(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "promotionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	promo, err := h.svc.Get(ctx.Request.Context(), user, id)
	if err != nil {
		if errors.Is(err, service.ErrPromotionNotFound) {
			response.RenderErr(ctx, response.ErrNotFound("promotion", "id", id))
			return
		}

		err = fmt.Errorf("HandleGetPromotion -> h.svc.Get -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, promo)
}

// HandleUpdatePromotion godoc
// @Summary      Update a promotion
// @Tags         promotions
// @Accept       json
// @Produce      json
// @Param        promotionId  path      int                             true  "promotion id"
// @Param        request      body      request.UpdatePromotionRequest  true  "fields to change"
// @Success      200          {object}  domain.Promotion
// @Failure      400          {object}  response.Err
// @Failure      404          {object}  response.Err
// @Failure      500          {object}  response.Err
// @Router       /promotions/{promotionId} [patch]
// @Security BearerAuth
func (h *PromotionHandler) HandleUpdatePromotion(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "promotionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UpdatePromotionRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	patch := service.PromotionPatch{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MinSpending: req.MinSpending,
		Rate:        req.Rate,
		Points:      req.Points,
	}
	if req.Type != nil {
		t := domain.PromotionType(request.NormalizePromotionType(*req.Type))
		patch.Type = &t
	}

	promo, err := h.svc.Update(ctx.Request.Context(), id, patch)
	if err != nil {
		if e := promotionErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleUpdatePromotion -> h.svc.Update -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, promo)
}

// HandleDeletePromotion godoc
// @Summary      Delete a promotion that has not started
// @Tags         promotions
// @Param        promotionId  path      int  true  "promotion id"
// @Success      204
// @Failure      403          {object}  response.Err
// @Failure      404          {object}  response.Err
// @Failure      500          {object}  response.Err
// @Router       /promotions/{promotionId} [delete]
// @Security BearerAuth
func (h *PromotionHandler) HandleDeletePromotion(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "promotionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if err := h.svc.Delete(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrPromotionStarted):
			response.RenderErr(ctx, response.ErrPermissionDenied(service.ErrPromotionStarted))
		case errors.Is(err, service.ErrPromotionNotFound):
			response.RenderErr(ctx, response.ErrNotFound("promotion", "id", id))
		default:
			err = fmt.Errorf("HandleDeletePromotion -> h.svc.Delete -> %w", err)
			response.RenderErr(ctx, response.ErrInternalServerError(err))
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}
