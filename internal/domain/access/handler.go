package access

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/carecircle/carecircle/pkg/pagination"
)

// Handler exposes the family-access HTTP surface.
type Handler struct {
	svc      *Service
	resolver *Resolver
	sync     *Synchronizer
}

func NewHandler(svc *Service, resolver *Resolver, sync *Synchronizer) *Handler {
	return &Handler{svc: svc, resolver: resolver, sync: sync}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:patientID/family-access", h.Invite)
	api.POST("/family-access/accept", h.Accept)
	api.GET("/patients/:patientID/family-access", h.ListForPatient)
	api.GET("/family-access/mine", h.ListMine)
	api.GET("/family-access/:id", h.Get)
	api.PATCH("/family-access/:id", h.UpdatePermissions)
	api.DELETE("/family-access/:id", h.Revoke)
	api.POST("/family-access/:id/suspend", h.Suspend)
	api.POST("/family-access/:id/reactivate", h.Reactivate)
	api.POST("/patients/:patientID/family-access/emergency", h.GrantEmergency)
	api.GET("/patients/:patientID/family-access/check", h.Check)

	admin := api.Group("/admin", auth.RequireRole("admin"))
	admin.POST("/family-access/sweep", h.Sweep)
	admin.POST("/identities/:id/membership/rebuild", h.RebuildIndex)
	admin.GET("/identities/:id/membership/consistency", h.CheckConsistency)
}

// httpError maps domain sentinels to stable HTTP statuses and reason codes.
// Unrecognized errors become opaque 500s; internals never leak to clients.
func httpError(err error) error {
	var status int
	switch {
	case errors.Is(err, ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, ErrDuplicateRelationship), errors.Is(err, ErrAlreadyAccepted), errors.Is(err, ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, ErrSelfInvitation), errors.Is(err, ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrTokenExpired):
		status = http.StatusGone
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return echo.NewHTTPError(status, map[string]string{
		"error":  err.Error(),
		"reason": ReasonCode(err),
	})
}

func actorID(c echo.Context) (uuid.UUID, error) {
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

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

type inviteRequest struct {
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	AccessLevel AccessLevel  `json:"access_level"`
	Permissions *Permissions `json:"permissions,omitempty"`
	EventTypes  []string     `json:"event_types_allowed,omitempty"`
}

func (h *Handler) Invite(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	patientID, err := pathUUID(c, "patientID")
	if err != nil {
		return err
	}
	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Invite(c.Request().Context(), actor, patientID, InviteInput{
		Email:       req.Email,
		Name:        req.Name,
		AccessLevel: req.AccessLevel,
		Permissions: req.Permissions,
		EventTypes:  req.EventTypes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type acceptRequest struct {
	Token string `json:"token"`
}

func (h *Handler) Accept(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req acceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	rec, err := h.svc.Accept(c.Request().Context(), actor, req.Token)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	patientID, err := pathUUID(c, "patientID")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), actor, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListMine(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListForMember(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type updateRequest struct {
	AccessLevel *AccessLevel `json:"access_level,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
	EventTypes  *[]string    `json:"event_types_allowed,omitempty"`
	MemberName  *string      `json:"member_name,omitempty"`
}

func (h *Handler) UpdatePermissions(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.UpdatePermissions(c.Request().Context(), actor, id, UpdateInput{
		AccessLevel: req.AccessLevel,
		Permissions: req.Permissions,
		EventTypes:  req.EventTypes,
		MemberName:  req.MemberName,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Revoke(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	var req revokeRequest
	// Body is optional on DELETE.
	_ = c.Bind(&req)
	if err := h.svc.Revoke(c.Request().Context(), actor, id, req.Reason); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Suspend(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.Suspend(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Reactivate(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.Reactivate(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type emergencyRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	Hours    int       `json:"hours"`
}

func (h *Handler) GrantEmergency(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	patientID, err := pathUUID(c, "patientID")
	if err != nil {
		return err
	}
	var req emergencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MemberID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "member_id is required")
	}
	rec, err := h.svc.GrantEmergencyAccess(c.Request().Context(), actor, patientID, req.MemberID,
		time.Duration(req.Hours)*time.Hour)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Check is a read-only capability probe: it runs the resolver and reports
// the decision without touching last-access.
func (h *Handler) Check(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	patientID, err := pathUUID(c, "patientID")
	if err != nil {
		return err
	}
	capName := c.QueryParam("capability")
	cap, ok := ParseCapability(capName)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown capability")
	}
	var check CategoryCheck
	if category := c.QueryParam("category"); category != "" {
		check = func(rec *AccessRecord) bool { return rec.AllowsCategory(category) }
	}
	d, err := h.resolver.Resolve(c.Request().Context(), actor, patientID, cap, check)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"allow":  d.Allow,
		"reason": d.Reason,
	})
}

func (h *Handler) Sweep(c echo.Context) error {
	res, err := h.svc.ExpireStale(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RebuildIndex(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	idx, err := h.sync.Rebuild(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, idx)
}

func (h *Handler) CheckConsistency(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	report, err := h.sync.AuditConsistency(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
