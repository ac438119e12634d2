package mirror

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Broadcaster pushes mirror events to connected clients as they occur.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Handlers provides HTTP handlers for the mirror management surface.
type Handlers struct {
	manager     *Manager
	broadcaster Broadcaster
}

// NewHandlers creates new mirror handlers. broadcaster may be nil.
func NewHandlers(manager *Manager, broadcaster Broadcaster) *Handlers {
	return &Handlers{manager: manager, broadcaster: broadcaster}
}

// RegisterRoutes registers the mirror routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetStatus)
	g.POST("", h.AddMirror)
	g.DELETE("", h.RemoveMirror)
	g.POST("/reset", h.Reset)
	g.POST("/test", h.Test)
}

type mirrorRequest struct {
	URL string `json:"url"`
}

// GetStatus returns the mirror list, the current mirror, and the last error.
// GET /api/v1/mirrors
func (h *Handlers) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.GetStatus())
}

// AddMirror appends a mirror to the priority list.
// POST /api/v1/mirrors
func (h *Handlers) AddMirror(c echo.Context) error {
	var req mirrorRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	h.manager.AddMirror(req.URL)
	return c.JSON(http.StatusOK, h.manager.GetStatus())
}

// RemoveMirror deletes a mirror from the list.
// DELETE /api/v1/mirrors?url=...
func (h *Handlers) RemoveMirror(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	h.manager.RemoveMirror(url)
	return c.JSON(http.StatusOK, h.manager.GetStatus())
}

// Reset clears the memoized mirror.
// POST /api/v1/mirrors/reset
func (h *Handlers) Reset(c echo.Context) error {
	h.manager.Reset()
	return c.JSON(http.StatusOK, h.manager.GetStatus())
}

// Test runs a connectivity probe across the full list and reports each
// mirror's result; the first working mirror becomes current. Probe narration
// streams to connected clients for live display.
// POST /api/v1/mirrors/test
func (h *Handlers) Test(c echo.Context) error {
	results := h.manager.Probe(c.Request().Context(), func(status string) {
		if h.broadcaster != nil {
			h.broadcaster.Broadcast("mirror:status", map[string]string{"message": status})
		}
	})

	if h.broadcaster != nil {
		h.broadcaster.Broadcast("mirror:result", map[string]interface{}{
			"results": results,
			"current": h.manager.Current(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
		"current": h.manager.Current(),
	})
}
