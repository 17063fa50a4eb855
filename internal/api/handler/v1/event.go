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

var errEventFullOrEnded = errors.New("Event is full or has ended")

type EventService interface {
	Create(ctx context.Context, in service.EventInput) (domain.Event, error)
	Get(ctx context.Context, viewer domain.User, id uint) (domain.Event, error)
	List(ctx context.Context, viewer domain.User, filter domain.EventFilter) ([]domain.Event, int64, error)
	Update(ctx context.Context, actor domain.User, id uint, patch service.EventPatch) (domain.Event, error)
	Delete(ctx context.Context, id uint) error
	AddOrganizer(ctx context.Context, id uint, utorid string) (domain.Event, error)
	RemoveOrganizer(ctx context.Context, id, userID uint) error
	AddGuest(ctx context.Context, actor domain.User, id uint, utorid string) (domain.Event, domain.UserSummary, error)
	RemoveGuest(ctx context.Context, id, userID uint) error
	RSVP(ctx context.Context, user domain.User, id uint) (domain.Event, error)
	CancelRSVP(ctx context.Context, user domain.User, id uint) (domain.Event, error)
	Award(ctx context.Context, actor domain.User, id uint, utorid string, amount int, remark string) ([]domain.Transaction, error)
}

type EventHandler struct {
	svc EventService
}

func NewEventHandler(svc EventService) *EventHandler {
	return &EventHandler{
		svc: svc,
	}
}

func eventErr(err error) *response.Err {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		return response.ErrMissing(service.ErrEventNotFound)
	case errors.Is(err, service.ErrUserNotFound):
		return response.ErrMissing(service.ErrUserNotFound)
	case errors.Is(err, service.ErrNotGuest):
		return response.ErrMissing(service.ErrNotGuest)
	case errors.Is(err, service.ErrNotOrganizer):
		return response.ErrMissing(service.ErrNotOrganizer)
	case errors.Is(err, service.ErrNotEventManager):
		return response.ErrPermissionDenied(service.ErrNotEventManager)
	case errors.Is(err, service.ErrManagerOnlyField):
		return response.ErrPermissionDenied(service.ErrManagerOnlyField)
	case errors.Is(err, service.ErrEventFull), errors.Is(err, service.ErrEventEnded):
		return response.ErrGone(errEventFullOrEnded)
	case errors.Is(err, service.ErrAlreadyGuest),
		errors.Is(err, service.ErrAlreadyOrganizer),
		errors.Is(err, service.ErrUserIsGuest),
		errors.Is(err, service.ErrUserIsOrganizer),
		errors.Is(err, service.ErrInsufficientEventPoints),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrTimeInPast),
		errors.Is(err, service.ErrInvalidCapacity),
		errors.Is(err, service.ErrCapacityBelowGuests),
		errors.Is(err, service.ErrNegativePoints),
		errors.Is(err, service.ErrPointsOutOfRange),
		errors.Is(err, service.ErrPointsBelowAwarded),
		errors.Is(err, service.ErrEventStarted),
		errors.Is(err, service.ErrEventAlreadyEnded),
		errors.Is(err, service.ErrPublishOnlyTrue),
		errors.Is(err, service.ErrEventPublished),
		errors.Is(err, service.ErrRecipientNotGuest),
		errors.Is(err, service.ErrNoGuests),
		errors.Is(err, service.ErrAmountNotPositive):
		return response.ErrBadRequest(unwrapAll(err))
	}

	return nil
}

func renderEventErr(ctx *gin.Context, op string, err error) {
	if e := eventErr(err); e != nil {
		response.RenderErr(ctx, e)
		return
	}

	response.RenderErr(ctx, response.ErrInternalServerError(fmt.Errorf("%s -> %w", op, err)))
}

// HandleCreateEvent godoc
// @Summary      Create an event
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        request  body      request.CreateEventRequest  true  "event"
// @Success      201      {object}  domain.Event
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events [post]
// @Security BearerAuth
func (h *EventHandler) HandleCreateEvent(ctx *gin.Context) {
	req := request.CreateEventRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	event, err := h.svc.Create(ctx.Request.Context(), service.EventInput{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		Points:      *req.Points,
	})
	if err != nil {
		renderEventErr(ctx, "HandleCreateEvent -> h.svc.Create", err)
		return
	}

	ctx.JSON(http.StatusCreated, event)
}

// HandleListEvents godoc
// @Summary      List events
// @Description  Regular users only see published events.
// @Tags         events
// @Produce      json
// @Param        name       query     string  false  "name contains"
// @Param        location   query     string  false  "location contains"
// @Param        started    query     bool    false  "has started"
// @Param        ended      query     bool    false  "has ended"
// @Param        showFull   query     bool    false  "include full events"
// @Param        published  query     bool    false  "published, managers only"
// @Param        page       query     int     false  "page"
// @Param        limit      query     int     false  "page size"
// @Success      200        {object}  response.ListResponse
// @Failure      400        {object}  response.Err
// @Failure      500        {object}  response.Err
// @Router       /events [get]
// @Security BearerAuth
func (h *EventHandler) HandleListEvents(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	q := request.EventQuery{}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(request.BindError(err)))
		return
	}

	filter, err := q.Filter()
	if err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	events, count, err := h.svc.List(ctx.Request.Context(), user, filter)
	if err != nil {
		renderEventErr(ctx, "HandleListEvents -> h.svc.List", err)
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: events})
}

// HandleGetEvent godoc
// @Summary      Get an event
// @Tags         events
// @Produce      json
// @Param        eventId  path      int  true  "event id"
// @Success      200      {object}  domain.Event
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId} [get]
// @Security BearerAuth
func (h *EventHandler) HandleGetEvent(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	event, err := h.svc.Get(ctx.Request.Context(), user, id)
	if err != nil {
		renderEventErr(ctx, "HandleGetEvent -> h.svc.Get", err)
		return
	}

	ctx.JSON(http.StatusOK, event)
}

// HandleUpdateEvent godoc
// @Summary      Update an event
// @Description  published and points are manager only.
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        eventId  path      int                         true  "event id"
// @Param        request  body      request.UpdateEventRequest  true  "fields to change"
// @Success      200      {object}  domain.Event
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId} [patch]
// @Security BearerAuth
func (h *EventHandler) HandleUpdateEvent(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UpdateEventRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	event, err := h.svc.Update(ctx.Request.Context(), user, id, service.EventPatch{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Capacity:    req.Capacity,
		Points:      req.Points,
		Published:   req.Published,
	})
	if err != nil {
		renderEventErr(ctx, "HandleUpdateEvent -> h.svc.Update", err)
		return
	}

	ctx.JSON(http.StatusOK, event)
}

// HandleDeleteEvent godoc
// @Summary      Delete an unpublished event
// @Tags         events
// @Param        eventId  path      int  true  "event id"
// @Success      204
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId} [delete]
// @Security BearerAuth
func (h *EventHandler) HandleDeleteEvent(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if err := h.svc.Delete(ctx.Request.Context(), id); err != nil {
		renderEventErr(ctx, "HandleDeleteEvent -> h.svc.Delete", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleAddOrganizer godoc
// @Summary      Add an organizer
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        eventId  path      int                    true  "event id"
// @Param        request  body      request.UTORidRequest  true  "organizer"
// @Success      201      {object}  domain.Event
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      410      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/organizers [post]
// @Security BearerAuth
func (h *EventHandler) HandleAddOrganizer(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UTORidRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	event, err := h.svc.AddOrganizer(ctx.Request.Context(), id, req.UTORid)
	if err != nil {
		renderEventErr(ctx, "HandleAddOrganizer -> h.svc.AddOrganizer", err)
		return
	}

	ctx.JSON(http.StatusCreated, event)
}

// HandleRemoveOrganizer godoc
// @Summary      Remove an organizer
// @Tags         events
// @Param        eventId  path      int  true  "event id"
// @Param        userId   path      int  true  "organizer user id"
// @Success      204
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/organizers/{userId} [delete]
// @Security BearerAuth
func (h *EventHandler) HandleRemoveOrganizer(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	userID, respErr := parseIDParam(ctx, "userId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if err := h.svc.RemoveOrganizer(ctx.Request.Context(), id, userID); err != nil {
		renderEventErr(ctx, "HandleRemoveOrganizer -> h.svc.RemoveOrganizer", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleAddGuest godoc
// @Summary      Add a guest
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        eventId  path      int                    true  "event id"
// @Param        request  body      request.UTORidRequest  true  "guest"
// @Success      201      {object}  response.GuestAddedResponse
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      410      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/guests [post]
// @Security BearerAuth
func (h *EventHandler) HandleAddGuest(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UTORidRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	event, guest, err := h.svc.AddGuest(ctx.Request.Context(), user, id, req.UTORid)
	if err != nil {
		renderEventErr(ctx, "HandleAddGuest -> h.svc.AddGuest", err)
		return
	}

	ctx.JSON(http.StatusCreated, response.NewGuestAdded(event, guest))
}

// HandleRemoveGuest godoc
// @Summary      Remove a guest
// @Tags         events
// @Param        eventId  path      int  true  "event id"
// @Param        userId   path      int  true  "guest user id"
// @Success      204
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/guests/{userId} [delete]
// @Security BearerAuth
func (h *EventHandler) HandleRemoveGuest(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	userID, respErr := parseIDParam(ctx, "userId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if err := h.svc.RemoveGuest(ctx.Request.Context(), id, userID); err != nil {
		renderEventErr(ctx, "HandleRemoveGuest -> h.svc.RemoveGuest", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// HandleRSVP godoc
// @Summary      RSVP to an event
// @Tags         events
// @Produce      json
// @Param        eventId  path      int  true  "event id"
// @Success      201      {object}  response.GuestAddedResponse
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      410      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/guests/me [post]
// @Security BearerAuth
func (h *EventHandler) HandleRSVP(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	event, err := h.svc.RSVP(ctx.Request.Context(), user, id)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyGuest) {
			response.RenderErr(ctx, response.ErrBadRequest(errors.New("You have already RSVPed")))
			return
		}
		renderEventErr(ctx, "HandleRSVP -> h.svc.RSVP", err)
		return
	}

	ctx.JSON(http.StatusCreated, response.NewGuestAdded(event, user.Summary()))
}

// HandleCancelRSVP godoc
// @Summary      Cancel an RSVP
// @Tags         events
// @Produce      json
// @Param        eventId  path      int  true  "event id"
// @Success      200      {object}  response.RSVPRemovedResponse
// @Failure      400      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      410      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/guests/me [delete]
// @Security BearerAuth
func (h *EventHandler) HandleCancelRSVP(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	event, err := h.svc.CancelRSVP(ctx.Request.Context(), user, id)
	if err != nil {
		renderEventErr(ctx, "HandleCancelRSVP -> h.svc.CancelRSVP", err)
		return
	}

	ctx.JSON(http.StatusOK, response.RSVPRemovedResponse{ID: event.ID, NumGuests: event.NumGuests})
}

// HandleAwardPoints godoc
// @Summary      Award event points
// @Description  Awards one guest when utorid is set, otherwise every guest.
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        eventId  path      int                   true  "event id"
// @Param        request  body      request.AwardRequest  true  "award"
// @Success      201      {object}  domain.Transaction
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /events/{eventId}/transactions [post]
// @Security BearerAuth
func (h *EventHandler) HandleAwardPoints(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "eventId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.AwardRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	txs, err := h.svc.Award(ctx.Request.Context(), user, id, req.UTORid, *req.Amount, req.Remark)
	if err != nil {
		renderEventErr(ctx, "HandleAwardPoints -> h.svc.Award", err)
		return
	}

	if req.UTORid != "" && len(txs) == 1 {
		ctx.JSON(http.StatusCreated, txs[0])
		return
	}

	ctx.JSON(http.StatusCreated, txs)
}
