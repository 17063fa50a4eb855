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

type RaffleService interface {
	Create(ctx context.Context, raffle domain.Raffle) (domain.Raffle, error)
	List(ctx context.Context, viewer domain.User, page, limit int) ([]domain.Raffle, int64, error)
	Get(ctx context.Context, viewer domain.User, id uint) (domain.Raffle, error)
	Enter(ctx context.Context, user domain.User, id uint) (domain.Raffle, error)
	Draw(ctx context.Context, manager domain.User, id uint) (domain.Raffle, domain.Transaction, error)
}

type RaffleHandler struct {
	svc RaffleService
}

func NewRaffleHandler(svc RaffleService) *RaffleHandler {
	return &RaffleHandler{
		svc: svc,
	}
}

func raffleErr(err error) *response.Err {
	switch {
	case errors.Is(err, service.ErrRaffleNotFound):
		return response.ErrMissing(service.ErrRaffleNotFound)
	case errors.Is(err, service.ErrRaffleNotStarted),
		errors.Is(err, service.ErrRaffleEnded),
		errors.Is(err, service.ErrRaffleAlreadyDrawn),
		errors.Is(err, service.ErrRaffleDrawTimeNotYet),
		errors.Is(err, service.ErrRaffleNoEntries),
		errors.Is(err, service.ErrAlreadyEntered),
		errors.Is(err, service.ErrInsufficientPoints),
		errors.Is(err, service.ErrInvalidRaffleWindow),
		errors.Is(err, service.ErrInvalidPrize),
		errors.Is(err, service.ErrNegativeCost),
		errors.Is(err, service.ErrPointsOutOfRange):
		return response.ErrBadRequest(unwrapAll(err))
	}

	return nil
}

func renderRaffleErr(ctx *gin.Context, op string, err error) {
	if e := raffleErr(err); e != nil {
		response.RenderErr(ctx, e)
		return
	}

	response.RenderErr(ctx, response.ErrInternalServerError(fmt.Errorf("%s -> %w", op, err)))
}

// HandleCreateRaffle godoc
// @Summary      Create a raffle
// @Tags         raffles
// @Accept       json
// @Produce      json
// @Param        request  body      request.CreateRaffleRequest  true  "raffle"
// @Success      201      {object}  domain.Raffle
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /raffles [post]
// @Security BearerAuth
func (h *RaffleHandler) HandleCreateRaffle(ctx *gin.Context) {
	req := request.CreateRaffleRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	cost := 0
	if req.PointCost != nil {
		cost = *req.PointCost
	}

	raffle, err := h.svc.Create(ctx.Request.Context(), domain.Raffle{
		Name:        req.Name,
		Description: req.Description,
		PointCost:   cost,
		PrizePoints: req.PrizePoints,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		DrawTime:    req.DrawTime,
	})
	if err != nil {
		renderRaffleErr(ctx, "HandleCreateRaffle -> h.svc.Create", err)
		return
	}

	ctx.JSON(http.StatusCreated, raffle)
}

// HandleListRaffles godoc
// @Summary      List raffles
// @Tags         raffles
// @Produce      json
// @Param        page   query     int  false  "page"
// @Param        limit  query     int  false  "page size"
// @Success      200    {object}  response.ListResponse
// @Failure      400    {object}  response.Err
// @Failure      500    {object}  response.Err
// @Router       /raffles [get]
// @Security BearerAuth
func (h *RaffleHandler) HandleListRaffles(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	q := request.PageQuery{}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(request.BindError(err)))
		return
	}
	page, limit := q.Values()

	raffles, count, err := h.svc.List(ctx.Request.Context(), user, page, limit)
	if err != nil {
		renderRaffleErr(ctx, "HandleListRaffles -> h.svc.List", err)
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: raffles})
}

// HandleGetRaffle godoc
// @Summary      Get a raffle
// @Tags         raffles
// @Produce      json
// @Param        raffleId  path      int  true  "raffle id"
// @Success      200       {object}  domain.Raffle
// @Failure      400       {object}  response.Err
// @Failure      404       {object}  response.Err
// @Failure      500       {object}  response.Err
// @Router       /raffles/{raffleId} [get]
// @Security BearerAuth
func (h *RaffleHandler) HandleGetRaffle(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "raffleId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	raffle, err := h.svc.Get(ctx.Request.Context(), user, id)
	if err != nil {
		renderRaffleErr(ctx, "HandleGetRaffle -> h.svc.Get", err)
		return
	}

	ctx.JSON(http.StatusOK, raffle)
}

// HandleEnterRaffle godoc
// @Summary      Enter a raffle
// @Description  Debits the raffle's point cost.
// @Tags         raffles
// @Produce      json
// @Param        raffleId  path      int  true  "raffle id"
// @Success      200       {object}  domain.Raffle
// @Failure      400       {object}  response.Err
// @Failure      404       {object}  response.Err
// @Failure      500       {object}  response.Err
// @Router       /raffles/{raffleId}/enter [post]
// @Security BearerAuth
func (h *RaffleHandler) HandleEnterRaffle(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "raffleId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	raffle, err := h.svc.Enter(ctx.Request.Context(), user, id)
	if err != nil {
		renderRaffleErr(ctx, "HandleEnterRaffle -> h.svc.Enter", err)
		return
	}

	ctx.JSON(http.StatusOK, raffle)
}

// HandleDrawRaffle godoc
// @Summary      Draw a raffle winner
// @Tags         raffles
// @Produce      json
// @Param        raffleId  path      int  true  "raffle id"
// @Success      200       {object}  response.RaffleDrawResponse
// @Failure      400       {object}  response.Err
// @Failure      403       {object}  response.Err
// @Failure      404       {object}  response.Err
// @Failure      500       {object}  response.Err
// @Router       /raffles/{raffleId}/draw [post]
// @Security BearerAuth
func (h *RaffleHandler) HandleDrawRaffle(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "raffleId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	raffle, tx, err := h.svc.Draw(ctx.Request.Context(), user, id)
	if err != nil {
		renderRaffleErr(ctx, "HandleDrawRaffle -> h.svc.Draw", err)
		return
	}

	ctx.JSON(http.StatusOK, response.RaffleDrawResponse{Raffle: raffle, Transaction: tx})
}
