package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/services"
	"commission_backend/internal/storage"
	"commission_backend/pkg/apperrors"
)

type PlanHandler struct {
	*BaseHandler
	planService services.PlanService
}

func NewPlanHandler(base *BaseHandler, planService services.PlanService) *PlanHandler {
	return &PlanHandler{
		BaseHandler: base,
		planService: planService,
	}
}

func (h *PlanHandler) RegisterRoutes(r *gin.RouterGroup) {
	plans := r.Group("/orders/:orderId/plans")
	{
		plans.POST("", h.UploadPlan)
		plans.DELETE("/:planId", h.DeactivatePlan)
	}
}

// UploadPlan accepts a multipart form with a single "file" field.
func (h *PlanHandler) UploadPlan(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("A file is required in the \"file\" form field"))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	defer file.Close()

	plan, err := h.planService.UploadPlan(c.Request.Context(), h.GetDB(c), caller, orderID, storage.FileInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	})
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

func (h *PlanHandler) DeactivatePlan(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}
	orderID, ok := h.ParamUUID(c, "orderId")
	if !ok {
		return
	}
	planID, ok := h.ParamUUID(c, "planId")
	if !ok {
		return
	}

	plan, err := h.planService.DeactivatePlan(c.Request.Context(), h.GetDB(c), caller, orderID, planID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}
