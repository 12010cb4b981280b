package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/logger"
	"commission_backend/internal/middleware"
	"commission_backend/internal/models"
	"commission_backend/internal/services"
	"commission_backend/internal/workers"
)

// ArchiveRunner triggers one scheduler run.
type ArchiveRunner interface {
	RunOnce(ctx context.Context) (*workers.RunReport, error)
}

type AdminHandler struct {
	*BaseHandler
	settingsService services.SettingsService
	archive         ArchiveRunner
}

func NewAdminHandler(base *BaseHandler, settingsService services.SettingsService, archive ArchiveRunner) *AdminHandler {
	return &AdminHandler{
		BaseHandler:     base,
		settingsService: settingsService,
		archive:         archive,
	}
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin", middleware.RequireRoles(models.UserRoleAdmin))
	{
		admin.GET("/commerce-settings", h.GetSettings)
		admin.PUT("/commerce-settings", h.UpdateSettings)
		admin.POST("/archive/run", h.RunArchive)
	}
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.GetSettings(c.Request.Context(), h.GetDB(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	caller, ok := h.GetCaller(c)
	if !ok {
		return
	}

	var input services.UpdateSettingsInput
	if !h.BindAndValidate_JSON(c, &input) {
		return
	}

	settings, err := h.settingsService.UpdateSettings(c.Request.Context(), h.GetDB(c), caller, input)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// RunArchive runs the scheduler synchronously and returns what it changed.
func (h *AdminHandler) RunArchive(c *gin.Context) {
	report, err := h.archive.RunOnce(c.Request.Context())
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	logger.CtxInfo(c.Request.Context(), "archive run triggered manually", "purged", report.Purged, "skipped", report.Skipped)
	c.JSON(http.StatusOK, report)
}
