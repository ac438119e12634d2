package history

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for the download history.
type Handlers struct {
	store *Store
}

// NewHandlers creates new history handlers.
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the history routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
}

// List returns recorded downloads, newest first.
// GET /api/v1/history?limit=50
func (h *Handlers) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := h.store.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
