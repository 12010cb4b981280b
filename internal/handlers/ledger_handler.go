package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/middleware"
	"commission_backend/internal/models"
	"commission_backend/internal/services"
	"commission_backend/pkg/apperrors"
)

const idempotencyKeyHeader = "Idempotency-Key"

// LedgerHandler exposes the money and revision operations. Every route runs
// through the rate limiter.
type LedgerHandler struct {
	*BaseHandler
	ledgerService services.LedgerService
	limiter       gin.HandlerFunc
}

func NewLedgerHandler(base *BaseHandler, ledgerService services.LedgerService, limiter gin.HandlerFunc) *LedgerHandler {
	if limiter == nil {
		limiter = func(c *gin.Context) { c.Next() }
	}
	return &LedgerHandler{
		BaseHandler:   base,
		ledgerService: ledgerService,
		limiter:       limiter,
	}
}

type BuyRevisionsRequest struct {
	Count int `json:"count"`
}

func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders/:orderId", h.limiter)
	clientOnly := middleware.RequireRoles(models.UserRoleClient)
	{
		orders.POST("/payments/initial", clientOnly, h.PayInitial)
		orders.POST("/revisions/purchase", clientOnly, h.BuyRevisions)
		orders.POST("/extensions", clientOnly, h.BuyExtension)
		orders.POST("/pin-packs", clientOnly, h.BuyPinPack)
		orders.POST("/revision-requests", clientOnly, h.RequestRevision)
	}
}

func (h *LedgerHandler) PayInitial(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var input services.PayInitialInput
	if !h.BindAndValidate_JSON(c, &input) {
		return
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader)); key != "" {
		if input.IdempotencyKey != "" && input.IdempotencyKey != key {
			apperrors.HandleError(c, apperrors.NewBadRequestError("Idempotency-Key header and body disagree"))
			return
		}
		input.IdempotencyKey = key
	}

	result, err := h.ledgerService.PayInitial(c.Request.Context(), h.GetDB(c), caller, orderID, input)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *LedgerHandler) BuyRevisions(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var req BuyRevisionsRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	result, err := h.ledgerService.BuyRevisions(c.Request.Context(), h.GetDB(c), caller, orderID, req.Count)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) BuyExtension(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	result, err := h.ledgerService.BuyExtension(c.Request.Context(), h.GetDB(c), caller, orderID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) BuyPinPack(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	result, err := h.ledgerService.BuyPinPack(c.Request.Context(), h.GetDB(c), caller, orderID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) RequestRevision(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var input services.RevisionRequestInput
	if !h.BindAndValidate_JSON(c, &input) {
		return
	}

	result, err := h.ledgerService.RequestRevision(c.Request.Context(), h.GetDB(c), caller, orderID, input)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
