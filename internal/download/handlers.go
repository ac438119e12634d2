package download

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for download operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new download handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the download routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
}

// Start creates a new download item.
// POST /api/v1/downloads
func (h *Handlers) Start(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid download request")
	}

	item, err := h.service.Start(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, item)
}

// List returns all download items in creation order.
// GET /api/v1/downloads
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.List())
}

// Get returns a single download item.
// GET /api/v1/downloads/:id
func (h *Handlers) Get(c echo.Context) error {
	item, err := h.service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "download not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

// Cancel requests cooperative cancellation of an active download.
// POST /api/v1/downloads/:id/cancel
func (h *Handlers) Cancel(c echo.Context) error {
	if err := h.service.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "download not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
