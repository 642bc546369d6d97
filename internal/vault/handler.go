package vault

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/casecoord/casecoord/internal/platform/auth"
)

type Handler struct {
	vault *Vault
}

func NewHandler(v *Vault) *Handler {
	return &Handler{vault: v}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("coordinator"))
	g.POST("/vault/unlock", h.Unlock)
	g.POST("/vault/lock", h.Lock)
	g.POST("/vault/touch", h.Touch)
	g.GET("/vault/status", h.Status)
	g.POST("/identifiers", h.AddIdentifier)
	g.POST("/identifiers/:handle/reveal", h.RevealIdentifier)
}

type unlockRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Unlock(c echo.Context) error {
	var req unlockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ok, err := h.vault.Unlock(c.Request().Context(), req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "incorrect password")
	}
	return c.JSON(http.StatusOK, map[string]bool{"unlocked": true})
}

func (h *Handler) Lock(c echo.Context) error {
	h.vault.Lock()
	return c.JSON(http.StatusOK, map[string]bool{"unlocked": false})
}

// Touch reports user activity so the inactivity timer starts over.
func (h *Handler) Touch(c echo.Context) error {
	h.vault.Touch()
	return c.JSON(http.StatusOK, map[string]bool{"unlocked": h.vault.IsUnlocked()})
}

func (h *Handler) Status(c echo.Context) error {
	count, err := h.vault.Count(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"unlocked": h.vault.IsUnlocked(),
		"count":    count,
	})
}

type addIdentifierRequest struct {
	Value string `json:"value"`
}

func (h *Handler) AddIdentifier(c echo.Context) error {
	var req addIdentifierRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	handle, err := h.vault.AddIdentifier(c.Request().Context(), req.Value)
	if err != nil {
		if errors.Is(err, ErrVaultLocked) {
			return echo.NewHTTPError(http.StatusConflict, "vault is locked")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"handle": handle})
}

func (h *Handler) RevealIdentifier(c echo.Context) error {
	handle := c.Param("handle")
	value, err := h.vault.RevealIdentifier(c.Request().Context(), handle)
	if err != nil {
		switch {
		case errors.Is(err, ErrVaultLocked):
			return echo.NewHTTPError(http.StatusConflict, "vault is locked")
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "unknown handle")
		case errors.Is(err, ErrDecryption):
			return echo.NewHTTPError(http.StatusInternalServerError, "decryption failed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"value": value})
}
