package matching

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/casecoord/casecoord/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("coordinator", "scheduler"))
	g.GET("/matching/proposals", h.Proposals)
}

func (h *Handler) Proposals(c echo.Context) error {
	groupings, err := h.svc.Propose(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if groupings == nil {
		groupings = []Grouping{}
	}
	return c.JSON(http.StatusOK, groupings)
}
