package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/identities", h.Register)
	api.GET("/identities/me", h.Me)
	api.PATCH("/identities/me", h.UpdateProfile)
	api.GET("/identities/:id", h.Get)
}

func identityError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "identity not found")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func callerID(c echo.Context) (uuid.UUID, error) {
	raw := auth.IdentityIDFromContext(c.Request().Context())
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid identity")
	}
	return id, nil
}

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident, err := h.svc.Register(c.Request().Context(), req.Email, req.Name, req.Role)
	if err != nil {
		return identityError(err)
	}
	return c.JSON(http.StatusCreated, ident)
}

func (h *Handler) Me(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	ident, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return identityError(err)
	}
	return c.JSON(http.StatusOK, ident)
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := callerID(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ident, err := h.svc.UpdateProfile(c.Request().Context(), id, req.Name)
	if err != nil {
		return identityError(err)
	}
	return c.JSON(http.StatusOK, ident)
}

// Get returns another identity's public profile: name and role only. Email
// and membership fields stay private to the owner.
func (h *Handler) Get(c echo.Context) error {
	if _, err := callerID(c); err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ident, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return identityError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":   ident.ID,
		"name": ident.Name,
		"role": ident.Role,
	})
}
