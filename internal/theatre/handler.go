package theatre

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/platform/auth"
	"github.com/casecoord/casecoord/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("coordinator", "scheduler", "viewer"))
	readGroup.GET("/slots", h.List)
	readGroup.GET("/slots/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole("coordinator", "scheduler"))
	writeGroup.POST("/slots", h.Create)
	writeGroup.DELETE("/slots/:id", h.Delete)
	writeGroup.POST("/slots/:id/assign", h.Assign)
	writeGroup.POST("/slots/release", h.Release)
}

func (h *Handler) Create(c echo.Context) error {
	var s TheatreSlot
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSlot(c.Request().Context(), &s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "slot not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	if from := c.QueryParam("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		filter.From = t
	}
	if to := c.QueryParam("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		filter.To = t
	}
	items, total, err := h.svc.ListSlots(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "slot not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type assignRequest struct {
	CaseID uuid.UUID `json:"case_id"`
}

func (h *Handler) Assign(c echo.Context) error {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slot, err := h.svc.AssignCase(c.Request().Context(), slotID, req.CaseID)
	if err != nil {
		var capacity *CapacityExceededError
		var invalid *cases.InvalidTransitionError
		switch {
		case errors.Is(err, ErrSlotNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "slot not found")
		case errors.Is(err, cases.ErrCaseNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		case errors.As(err, &capacity):
			return echo.NewHTTPError(http.StatusConflict, capacity.Error())
		case errors.As(err, &invalid):
			return echo.NewHTTPError(http.StatusConflict, invalid.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, slot)
}

type releaseRequest struct {
	CaseID uuid.UUID `json:"case_id"`
}

func (h *Handler) Release(c echo.Context) error {
	var req releaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ReleaseCase(c.Request().Context(), req.CaseID); err != nil {
		var invalid *cases.InvalidTransitionError
		switch {
		case errors.Is(err, cases.ErrCaseNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		case errors.As(err, &invalid):
			return echo.NewHTTPError(http.StatusConflict, invalid.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}
