package v1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/request"
	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/service"
)

var (
	errAdjustmentManagerOnly = errors.New("only managers may create adjustments")
	errListManagerOnly       = errors.New("cashiers may only list unprocessed redemptions")
)

type TransactionService interface {
	CreatePurchase(ctx context.Context, cashier domain.User, in service.PurchaseInput) (domain.Transaction, error)
	CreateRedemption(ctx context.Context, userID uint, amount int, remark string) (domain.Transaction, error)
	ProcessRedemption(ctx context.Context, cashier domain.User, id uint) (domain.Transaction, error)
	CreateTransfer(ctx context.Context, senderID, recipientID uint, amount int, remark string) (domain.Transaction, domain.Transaction, error)
	CreateAdjustment(ctx context.Context, manager domain.User, in service.AdjustmentInput) (domain.Transaction, error)
	SetSuspicious(ctx context.Context, id uint, suspicious bool) (domain.Transaction, error)
	Get(ctx context.Context, id uint) (domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	Export(ctx context.Context, w io.Writer, filter domain.TransactionFilter) error
}

type TransactionHandler struct {
	svc TransactionService
}

func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{
		svc: svc,
	}
}

// ledgerErr maps the business rule failures shared by every ledger
// operation. It returns nil for unexpected errors.
func ledgerErr(err error) *response.Err {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return response.ErrMissing(service.ErrUserNotFound)
	case errors.Is(err, service.ErrTransactionNotFound):
		return response.ErrMissing(service.ErrTransactionNotFound)
	case errors.Is(err, service.ErrNotVerified):
		return response.ErrPermissionDenied(service.ErrNotVerified)
	case errors.Is(err, service.ErrInsufficientPoints),
		errors.Is(err, service.ErrInvalidSpent),
		errors.Is(err, service.ErrSpentTooLarge),
		errors.Is(err, service.ErrPointsOutOfRange),
		errors.Is(err, service.ErrAmountNotPositive),
		errors.Is(err, service.ErrAmountZero),
		errors.Is(err, service.ErrInvalidRelatedID),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrNotRedemption),
		errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, service.ErrRelatedTransactionNotFound),
		errors.Is(err, service.ErrRelatedTransactionMismatch),
		errors.Is(err, service.ErrPromotionAlreadyUsed),
		errors.Is(err, service.ErrPromotionInactive),
		errors.Is(err, service.ErrPromotionMinSpend),
		errors.Is(err, service.ErrPromotionNotOneUse),
		errors.Is(err, service.ErrPromotionNotFound):
		return response.ErrBadRequest(unwrapAll(err))
	}

	return nil
}

// unwrapAll strips the call chain so only the sentinel message reaches the client.
func unwrapAll(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// HandleCreateTransaction godoc
// @Summary      Create a purchase or an adjustment
// @Description  Purchases need a cashier, adjustments a manager.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        request  body      request.CreateTransactionRequest  true  "transaction"
// @Success      201      {object}  domain.Transaction
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /transactions [post]
// @Security BearerAuth
func (h *TransactionHandler) HandleCreateTransaction(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.CreateTransactionRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	var (
		tx  domain.Transaction
		err error
	)
	switch req.TxType() {
	case domain.TxPurchase:
		tx, err = h.svc.CreatePurchase(ctx.Request.Context(), user, service.PurchaseInput{
			UTORid:       req.UTORid,
			Spent:        *req.Spent,
			PromotionIDs: req.PromotionIDs,
			Remark:       req.Remark,
		})
	case domain.TxAdjustment:
		if !user.Role.AtLeast(domain.RoleManager) {
			response.RenderErr(ctx, response.ErrPermissionDenied(errAdjustmentManagerOnly))
			return
		}
		tx, err = h.svc.CreateAdjustment(ctx.Request.Context(), user, service.AdjustmentInput{
			UTORid:       req.UTORid,
			Amount:       *req.Amount,
			RelatedID:    uint(*req.RelatedID),
			PromotionIDs: req.PromotionIDs,
			Remark:       req.Remark,
		})
	}
	if err != nil {
		if e := ledgerErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleCreateTransaction -> h.svc.Create -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusCreated, tx)
}

// HandleListTransactions godoc
// @Summary      List transactions
// @Description  Cashiers may only list unprocessed redemptions.
// @Tags         transactions
// @Produce      json
// @Param        name         query     string  false  "utorid or name contains"
// @Param        createdBy    query     string  false  "creator utorid"
// @Param        suspicious   query     bool    false  "suspicious"
// @Param        processed    query     bool    false  "processed"
// @Param        promotionId  query     int     false  "promotion id"
// @Param        type         query     string  false  "transaction type"
// @Param        relatedId    query     int     false  "related id"
// @Param        amount       query     int     false  "amount bound"
// @Param        operator     query     string  false  "gte or lte"
// @Param        page         query     int     false  "page"
// @Param        limit        query     int     false  "page size"
// @Success      200          {object}  response.ListResponse
// @Failure      400          {object}  response.Err
// @Failure      403          {object}  response.Err
// @Failure      500          {object}  response.Err
// @Router       /transactions [get]
// @Security BearerAuth
func (h *TransactionHandler) HandleListTransactions(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	filter, respErr := bindTransactionQuery(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	if !user.Role.AtLeast(domain.RoleManager) {
		if filter.Type != domain.TxRedemption || filter.Processed == nil || *filter.Processed {
			response.RenderErr(ctx, response.ErrPermissionDenied(errListManagerOnly))
			return
		}
	}

	txs, count, err := h.svc.List(ctx.Request.Context(), filter)
	if err != nil {
		err = fmt.Errorf("HandleListTransactions -> h.svc.List -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: txs})
}

func bindTransactionQuery(ctx *gin.Context) (domain.TransactionFilter, *response.Err) {
	q := request.TransactionQuery{}
	if err := ctx.ShouldBindQuery(&q); err != nil {
		return domain.TransactionFilter{}, response.ErrBadRequest(request.BindError(err))
	}

	filter, err := q.Filter()
	if err != nil {
		return domain.TransactionFilter{}, response.ErrBadRequest(err)
	}

	return filter, nil
}

// HandleExportTransactions godoc
// @Summary      Export transactions as CSV
// @Tags         transactions
// @Produce      text/csv
// @Param        type  query     string  false  "transaction type"
// @Success      200   {string}  string  "csv"
// @Failure      400   {object}  response.Err
// @Failure      403   {object}  response.Err
// @Router       /transactions/export [get]
// @Security BearerAuth
func (h *TransactionHandler) HandleExportTransactions(ctx *gin.Context) {
	filter, respErr := bindTransactionQuery(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	ctx.Header("Content-Type", "text/csv")
	ctx.Header("Content-Disposition", `attachment; filename="transactions.csv"`)
	ctx.Status(http.StatusOK)

	if err := h.svc.Export(ctx.Request.Context(), ctx.Writer, filter); err != nil {
		// Headers are already sent.
		_ = ctx.Error(fmt.Errorf("HandleExportTransactions -> h.svc.Export -> %w", err))
	}
}

// HandleGetTransaction godoc
// @Summary      Get a transaction
// @Tags         transactions
// @Produce      json
// @Param        transactionId  path      int  true  "transaction id"
// @Success      200            {object}  domain.Transaction
// @Failure      400            {object}  response.Err
// @Failure      404            {object}  response.Err
// @Failure      500            {object}  response.Err
// @Router       /transactions/{transactionId} [get]
// @Security BearerAuth
func (h *TransactionHandler) HandleGetTransaction(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "transactionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	tx, err := h.svc.Get(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			response.RenderErr(ctx, response.ErrNotFound("transaction", "id", id))
			return
		}

		err = fmt.Errorf("HandleGetTransaction -> h.svc.Get -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, tx)
}

// HandleProcessRedemption godoc
// @Summary      Process a redemption
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        transactionId  path      int                       true  "transaction id"
// @Param        request        body      request.ProcessedRequest  true  "processed must be true"
// @Success      200            {object}  domain.Transaction
// @Failure      400            {object}  response.Err
// @Failure      404            {object}  response.Err
// @Failure      500            {object}  response.Err
// @Router       /transactions/{transactionId}/processed [patch]
// @Security BearerAuth
func (h *TransactionHandler) HandleProcessRedemption(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	id, respErr := parseIDParam(ctx, "transactionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.ProcessedRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	tx, err := h.svc.ProcessRedemption(ctx.Request.Context(), user, id)
	if err != nil {
		if e := ledgerErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleProcessRedemption -> h.svc.ProcessRedemption -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, tx)
}

// HandleSetSuspicious godoc
// @Summary      Flag or clear a suspicious transaction
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        transactionId  path      int                        true  "transaction id"
// @Param        request        body      request.SuspiciousRequest  true  "flag"
// @Success      200            {object}  domain.Transaction
// @Failure      400            {object}  response.Err
// @Failure      404            {object}  response.Err
// @Failure      500            {object}  response.Err
// @Router       /transactions/{transactionId}/suspicious [patch]
// @Security BearerAuth
func (h *TransactionHandler) HandleSetSuspicious(ctx *gin.Context) {
	id, respErr := parseIDParam(ctx, "transactionId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.SuspiciousRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	tx, err := h.svc.SetSuspicious(ctx.Request.Context(), id, *req.Suspicious)
	if err != nil {
		if e := ledgerErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleSetSuspicious -> h.svc.SetSuspicious -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, tx)
}

// HandleCreateRedemption godoc
// @Summary      Request a redemption
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        request  body      request.UserTransactionRequest  true  "type redemption"
// @Success      201      {object}  domain.Transaction
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /users/me/transactions [post]
// @Security BearerAuth
func (h *TransactionHandler) HandleCreateRedemption(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UserTransactionRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(domain.TxRedemption); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	tx, err := h.svc.CreateRedemption(ctx.Request.Context(), user.ID, *req.Amount, req.Remark)
	if err != nil {
		if e := ledgerErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleCreateRedemption -> h.svc.CreateRedemption -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusCreated, tx)
}

// HandleListMyTransactions godoc
// @Summary      List the current user's transactions
// @Tags         transactions
// @Produce      json
// @Param        type         query     string  false  "transaction type"
// @Param        promotionId  query     int     false  "promotion id"
// @Param        relatedId    query     int     false  "related id"
// @Param        amount       query     int     false  "amount bound"
// @Param        operator     query     string  false  "gte or lte"
// @Param        page         query     int     false  "page"
// @Param        limit        query     int     false  "page size"
// @Success      200          {object}  response.ListResponse
// @Failure      400          {object}  response.Err
// @Failure      500          {object}  response.Err
// @Router       /users/me/transactions [get]
// @Security BearerAuth
func (h *TransactionHandler) HandleListMyTransactions(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	filter, respErr := bindTransactionQuery(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}
	filter.UserID = user.ID
	filter.Name = ""
	filter.CreatedBy = ""

	txs, count, err := h.svc.List(ctx.Request.Context(), filter)
	if err != nil {
		err = fmt.Errorf("HandleListMyTransactions -> h.svc.List -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.ListResponse{Count: count, Results: txs})
}

// HandleCreateTransfer godoc
// @Summary      Transfer points to another user
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        userId   path      int                             true  "recipient id"
// @Param        request  body      request.UserTransactionRequest  true  "type transfer"
// @Success      201      {object}  response.TransferResponse
// @Failure      400      {object}  response.Err
// @Failure      403      {object}  response.Err
// @Failure      404      {object}  response.Err
// @Failure      500      {object}  response.Err
// @Router       /users/{userId}/transactions [post]
// @Security BearerAuth
func (h *TransactionHandler) HandleCreateTransfer(ctx *gin.Context) {
	user, respErr := getUserFromContext(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	recipientID, respErr := parseIDParam(ctx, "userId")
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	req := request.UserTransactionRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(domain.TxTransfer); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	sent, received, err := h.svc.CreateTransfer(ctx.Request.Context(), user.ID, recipientID, *req.Amount, req.Remark)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.RenderErr(ctx, response.ErrMissing(service.ErrReceiverNotFound))
			return
		}
		if e := ledgerErr(err); e != nil {
			response.RenderErr(ctx, e)
			return
		}

		err = fmt.Errorf("HandleCreateTransfer -> h.svc.CreateTransfer -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusCreated, response.NewTransfer(sent, received))
}
