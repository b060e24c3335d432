package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecircle/carecircle/internal/platform/auth"
)

type gateFixture struct {
	*fixture
	gate *Gate
	e    *echo.Echo
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := newFixture(t)
	resolver := NewResolver(f.repo, f.audit, zerolog.Nop()).
		WithClock(func() time.Time { return f.now })
	gate := NewGate(resolver, f.svc, f.index, zerolog.Nop())
	return &gateFixture{fixture: f, gate: gate, e: echo.New()}
}

// request builds an authenticated echo context for the given identity.
func (g *gateFixture) request(identity uuid.UUID, path string, paramNames, paramValues []string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := context.WithValue(req.Context(), auth.IdentityIDKey, identity.String())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := g.e.NewContext(req, rec)
	c.SetParamNames(paramNames...)
	c.SetParamValues(paramValues...)
	return c, rec
}

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return http.StatusOK
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestGateAllowsGrantedCapability(t *testing.T) {
	g := newGateFixture(t)
	rec := g.invite(t)
	g.accept(t, rec)

	c, _ := g.request(g.member, "/patients/"+g.patient.String()+"/records",
		[]string{"patientID"}, []string{g.patient.String()})

	var seen *AccessRecord
	handler := g.gate.Require(CapView)(func(c echo.Context) error {
		seen = RecordFromContext(c)
		return okHandler(c)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if seen == nil || seen.ID != rec.ID {
		t.Error("resolved record not attached to context")
	}

	// Allow touches last-access.
	cur, _ := g.repo.GetByID(context.Background(), rec.ID)
	if cur.LastAccessAt == nil {
		t.Error("last access not touched on allow")
	}
}

func TestGateDeniesBeforeHandler(t *testing.T) {
	g := newGateFixture(t)
	rec := g.invite(t)
	g.accept(t, rec)

	c, _ := g.request(g.member, "/patients/"+g.patient.String()+"/records",
		[]string{"patientID"}, []string{g.patient.String()})

	ran := false
	handler := g.gate.Require(CapDelete)(func(c echo.Context) error {
		ran = true
		return okHandler(c)
	})
	err := handler(c)
	if got := httpStatus(t, err); got != http.StatusForbidden {
		t.Errorf("status = %d, want 403", got)
	}
	if ran {
		t.Error("handler ran despite denial")
	}
}

func TestGateSelfAccess(t *testing.T) {
	g := newGateFixture(t)
	c, _ := g.request(g.patient, "/patients/"+g.patient.String()+"/records",
		[]string{"patientID"}, []string{g.patient.String()})

	handler := g.gate.Require(CapManageFamily)(okHandler)
	if err := handler(c); err != nil {
		t.Fatalf("self access denied: %v", err)
	}
}

func TestGateUnauthenticated(t *testing.T) {
	g := newGateFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/patients/x/records", nil)
	c := g.e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("patientID")
	c.SetParamValues(g.patient.String())

	err := g.gate.Require(CapView)(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", got)
	}
}

func TestGatePrimaryPatientFallback(t *testing.T) {
	g := newGateFixture(t)
	rec := g.invite(t)
	g.accept(t, rec)

	// No patientID anywhere in the request: the member's sole relationship
	// supplies the target.
	c, _ := g.request(g.member, "/records", nil, nil)
	if err := g.gate.Require(CapView)(okHandler)(c); err != nil {
		t.Fatalf("primary-patient fallback failed: %v", err)
	}

	// With no relationships at all the target is ambiguous.
	stranger := uuid.New()
	c, _ = g.request(stranger, "/records", nil, nil)
	err := g.gate.Require(CapView)(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestGateQueryParamTarget(t *testing.T) {
	g := newGateFixture(t)
	rec := g.invite(t)
	g.accept(t, rec)

	c, _ := g.request(g.member, "/records?patient_id="+g.patient.String(), nil, nil)
	if err := g.gate.Require(CapView)(okHandler)(c); err != nil {
		t.Fatalf("query param target failed: %v", err)
	}

	c, _ = g.request(g.member, "/records?patient_id=garbage", nil, nil)
	err := g.gate.Require(CapView)(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestGateRequireAnyAll(t *testing.T) {
	g := newGateFixture(t)
	rec := g.invite(t) // limited: view + notifications
	g.accept(t, rec)

	params := []string{"patientID"}
	values := []string{g.patient.String()}

	c, _ := g.request(g.member, "/x", params, values)
	if err := g.gate.RequireAny(CapDelete, CapView)(okHandler)(c); err != nil {
		t.Errorf("RequireAny with one granted capability should allow: %v", err)
	}

	c, _ = g.request(g.member, "/x", params, values)
	err := g.gate.RequireAny(CapDelete, CapEdit)(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusForbidden {
		t.Errorf("RequireAny all-denied: status = %d, want 403", got)
	}

	c, _ = g.request(g.member, "/x", params, values)
	if err := g.gate.RequireAll(CapView, CapReceiveNotifications)(okHandler)(c); err != nil {
		t.Errorf("RequireAll with all granted should allow: %v", err)
	}

	c, _ = g.request(g.member, "/x", params, values)
	err = g.gate.RequireAll(CapView, CapEdit)(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusForbidden {
		t.Errorf("RequireAll with one denied: status = %d, want 403", got)
	}
}

func TestGateCategoryOption(t *testing.T) {
	g := newGateFixture(t)
	rec, err := g.svc.Invite(context.Background(), g.patient, g.patient, InviteInput{
		Email:       "mel@example.com",
		AccessLevel: LevelLimited,
		EventTypes:  []string{"appointment"},
	})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	g.accept(t, rec)

	withCategory := g.gate.Require(CapView, WithCategory(func(c echo.Context) string {
		return c.QueryParam("category")
	}))

	c, _ := g.request(g.member, "/records?category=appointment",
		[]string{"patientID"}, []string{g.patient.String()})
	if err := withCategory(okHandler)(c); err != nil {
		t.Errorf("allowed category denied: %v", err)
	}

	c, _ = g.request(g.member, "/records?category=lab_result",
		[]string{"patientID"}, []string{g.patient.String()})
	err = withCategory(okHandler)(c)
	if got := httpStatus(t, err); got != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for unlisted category", got)
	}
}
