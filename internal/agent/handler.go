package agent

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("coordinator"))
	g.POST("/agent/analyze", h.Analyze)
	g.POST("/agent/accept", h.Accept)
	g.POST("/agent/draft-email", h.DraftEmail)
}

type analyzeBody struct {
	Query string `json:"query"`
}

func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Analyze(c.Request().Context(), req.Query)
	if err != nil {
		if errors.Is(err, ErrWhitelistViolation) {
			return echo.NewHTTPError(http.StatusInternalServerError, "agent payload blocked by whitelist")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

type acceptBody struct {
	Cases []string    `json:"cases"`
	Event cases.Event `json:"event"`
}

func (h *Handler) Accept(c echo.Context) error {
	var req acceptBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Cases) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "cases is required")
	}
	results, err := h.svc.Accept(c.Request().Context(), req.Cases, req.Event)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

type draftEmailBody struct {
	Purpose string   `json:"purpose"`
	Cases   []string `json:"cases"`
}

var validPurposes = map[string]bool{
	"chase_patients": true, "book_theatre": true, "equipment_request": true,
}

func (h *Handler) DraftEmail(c echo.Context) error {
	var req draftEmailBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !validPurposes[req.Purpose] {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid purpose")
	}
	draft, err := h.svc.DraftEmail(c.Request().Context(), req.Purpose, req.Cases)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, draft)
}
