package search

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openshelf/openshelf/internal/catalog"
)

// Broadcaster pushes search events to connected clients as they occur.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Handlers provides HTTP handlers for search.
type Handlers struct {
	service     *Service
	broadcaster Broadcaster
}

// NewHandlers creates new search handlers. broadcaster may be nil.
func NewHandlers(service *Service, broadcaster Broadcaster) *Handlers {
	return &Handlers{service: service, broadcaster: broadcaster}
}

// RegisterRoutes registers the search routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Search)
}

type searchResponse struct {
	Query   string           `json:"query"`
	Results []catalog.Record `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// Search runs a query, relaying each event to the websocket hub as it
// arrives and returning the collected results once the stream is done.
// GET /api/v1/search?q=...
func (h *Handlers) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	resp := searchResponse{Query: query, Results: []catalog.Record{}}

	for event := range h.service.Search(c.Request().Context(), query) {
		if h.broadcaster != nil {
			h.broadcaster.Broadcast("search:"+string(event.Type), event)
		}

		switch event.Type {
		case EventResult:
			if event.Record != nil {
				resp.Results = append(resp.Results, *event.Record)
			}
		case EventError:
			resp.Error = event.Message
		}
	}

	return c.JSON(http.StatusOK, resp)
}
