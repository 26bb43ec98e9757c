package errorlog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fieldbook/internal/pkg/response"
)

// Handler backs the unresolved-error dashboard. Routes are mounted behind
// the internal token middleware.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/errors", h.ListErrors)
	rg.POST("/errors/:id/resolve", h.ResolveError)
}

func (h *Handler) ListErrors(c *gin.Context) {
	var resolved *bool
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "resolved must be true or false")
			return
		}
		resolved = &b
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.service.List(c.Request.Context(), resolved, c.Query("operation"), c.Query("service_name"), limit, offset)
	if err != nil {
		c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list error entries")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"errors": entries})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *Handler) ResolveError(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid entry id")
		return
	}

	var req resolveRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.service.MarkResolved(c.Request.Context(), id, req.ResolvedBy); err != nil {
		c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve entry")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id, "resolved": true})
}
