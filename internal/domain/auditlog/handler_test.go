package auditlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestPatientRouteGoesThroughGuard(t *testing.T) {
	svc := NewService(&mockRepo{})
	patient := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := svc.Record(context.Background(), "check_denied", patient, uuid.New(), uuid.Nil, "no_relationship", nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	var guarded int
	allow := true
	guard := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			guarded++
			if !allow {
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return next(c)
		}
	}

	e := echo.New()
	NewHandler(svc).RegisterPatientRoutes(e.Group("/api/v1"), guard)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	res := get("/api/v1/patients/" + patient.String() + "/audit")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}

	// A denying guard stops the request before the handler runs.
	allow = false
	res = get("/api/v1/patients/" + patient.String() + "/audit")
	if res.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", res.Code)
	}
	if guarded != 2 {
		t.Errorf("guard invocations = %d, want 2", guarded)
	}

	allow = true
	if res := get("/api/v1/patients/not-a-uuid/audit"); res.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed patient id", res.Code)
	}
}
