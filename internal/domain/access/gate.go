package access

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

type gateContextKey string

// gateRecordKey holds the resolved AccessRecord on the echo context after an
// allow decision.
const gateRecordKey gateContextKey = "access_record"

// RecordFromContext returns the access record the gate resolved for this
// request, or nil for self-access or ungated routes.
func RecordFromContext(c echo.Context) *AccessRecord {
	rec, _ := c.Get(string(gateRecordKey)).(*AccessRecord)
	return rec
}

// Gate is the echo middleware that fronts patient-scoped routes with a
// permission resolution. Denials fail closed with a 403 and a reason code
// before any handler logic runs.
type Gate struct {
	resolver *Resolver
	svc      *Service
	index    IndexStore
	log      zerolog.Logger
}

// NewGate creates a Gate. The index store is used only to default the target
// patient for members with exactly one relationship; it plays no part in the
// authorization decision itself.
func NewGate(resolver *Resolver, svc *Service, index IndexStore, log zerolog.Logger) *Gate {
	return &Gate{resolver: resolver, svc: svc, index: index, log: log}
}

// targetPatient extracts the patient the request is about: the :patientID
// route param, then the patient_id query param, then the requester's primary
// patient when they have exactly one. Anything else is a 400; guessing a
// target is how data leaks across circles.
func (g *Gate) targetPatient(c echo.Context, requesterID uuid.UUID) (uuid.UUID, error) {
	if raw := c.Param("patientID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
		}
		return id, nil
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		return id, nil
	}
	if g.index != nil {
		idx, err := g.index.GetMembership(c.Request().Context(), requesterID)
		if err == nil && idx.PrimaryPatientID != nil {
			return *idx.PrimaryPatientID, nil
		}
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "target patient is ambiguous; pass patient_id")
}

func (g *Gate) requester(c echo.Context) (uuid.UUID, error) {
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

// GateOption customizes a gate check.
type GateOption func(*gateCheck)

type gateCheck struct {
	caps     []Capability
	all      bool
	category func(c echo.Context) string
}

// WithCategory attaches a per-route extractor for the data category being
// read, enforced against limited records' event-type allow-lists.
func WithCategory(extract func(c echo.Context) string) GateOption {
	return func(gc *gateCheck) { gc.category = extract }
}

// Require gates a route on a single capability.
func (g *Gate) Require(cap Capability, opts ...GateOption) echo.MiddlewareFunc {
	return g.middleware(gateCheck{caps: []Capability{cap}, all: true}, opts)
}

// RequireAll gates a route on every listed capability.
func (g *Gate) RequireAll(caps ...Capability) echo.MiddlewareFunc {
	return g.middleware(gateCheck{caps: caps, all: true}, nil)
}

// RequireAny gates a route on at least one of the listed capabilities.
func (g *Gate) RequireAny(caps ...Capability) echo.MiddlewareFunc {
	return g.middleware(gateCheck{caps: caps, all: false}, nil)
}

func (g *Gate) middleware(gc gateCheck, opts []GateOption) echo.MiddlewareFunc {
	for _, opt := range opts {
		opt(&gc)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requesterID, err := g.requester(c)
			if err != nil {
				return err
			}
			patientID, err := g.targetPatient(c, requesterID)
			if err != nil {
				return err
			}

			var check CategoryCheck
			if gc.category != nil {
				if category := gc.category(c); category != "" {
					check = func(rec *AccessRecord) bool { return rec.AllowsCategory(category) }
				}
			}

			ctx := c.Request().Context()
			var last Decision
			allowed := gc.all
			for _, cap := range gc.caps {
				d, err := g.resolver.Resolve(ctx, requesterID, patientID, cap, check)
				if err != nil {
					g.log.Error().Err(err).Str("capability", string(cap)).Msg("permission resolution failed")
					return echo.NewHTTPError(http.StatusInternalServerError, "permission resolution failed")
				}
				last = d
				if gc.all && !d.Allow {
					allowed = false
					break
				}
				if !gc.all && d.Allow {
					allowed = true
					break
				}
				if !gc.all {
					allowed = false
				}
			}

			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, map[string]string{
					"error":  "access denied",
					"reason": last.Reason,
				})
			}

			if last.Record != nil {
				c.Set(string(gateRecordKey), last.Record)
				g.svc.RecordAccess(ctx, last.Record.ID)
			}
			return next(c)
		}
	}
}
