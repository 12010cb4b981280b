package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/middleware"
	"commission_backend/internal/models"
	"commission_backend/internal/services"
)

type OrderHandler struct {
	*BaseHandler
	orderService services.OrderService
}

func NewOrderHandler(base *BaseHandler, orderService services.OrderService) *OrderHandler {
	return &OrderHandler{
		BaseHandler:  base,
		orderService: orderService,
	}
}

type CreateOrderRequest struct {
	PackageID string `json:"packageId" validate:"required,uuid"`
}

type SetStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,is-order-status"`
}

type ChangePackageRequest struct {
	PackageID string `json:"packageId" validate:"required,uuid"`
}

type AssignEngineerRequest struct {
	EngineerID string `json:"engineerId" validate:"required,uuid"`
}

// RegisterRoutes expects r to be behind AuthMiddleware.
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/packages", h.ListPackages)

	orders := r.Group("/orders")
	{
		orders.POST("", middleware.RequireRoles(models.UserRoleClient), h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:orderId", h.GetOrder)
		orders.PUT("/:orderId/status", h.SetStatus)
		orders.POST("/:orderId/close", h.CloseOrder)
		orders.PUT("/:orderId/package", h.ChangePackage)
		orders.PUT("/:orderId/engineer", middleware.RequireRoles(models.UserRoleAdmin), h.AssignEngineer)
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), h.GetDB(c), caller, req.PackageID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}

	var criteria services.OrderListCriteria
	if !h.BindAndValidate_Query(c, &criteria) {
		return
	}
	criteria.Page, criteria.PageSize = ParsePagination(c)

	list, err := h.orderService.ListOrders(c.Request.Context(), h.GetDB(c), caller, criteria)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	details, err := h.orderService.GetOrder(c.Request.Context(), h.GetDB(c), caller, orderID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *OrderHandler) ListPackages(c *gin.Context) {
	packages, err := h.orderService.ListPackages(c.Request.Context(), h.GetDB(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

func (h *OrderHandler) SetStatus(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var req SetStatusRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.SetOrderStatus(c.Request.Context(), h.GetDB(c), caller, orderID, req.Status)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CloseOrder(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	order, err := h.orderService.CloseOrder(c.Request.Context(), h.GetDB(c), caller, orderID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ChangePackage(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var req ChangePackageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.ChangePackage(c.Request.Context(), h.GetDB(c), caller, orderID, req.PackageID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) AssignEngineer(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	var req AssignEngineerRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	order, err := h.orderService.AssignEngineer(c.Request.Context(), h.GetDB(c), caller, orderID, req.EngineerID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
