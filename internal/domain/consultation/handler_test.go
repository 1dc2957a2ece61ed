package consultation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medivault/medivault/internal/platform/auth"
)

func asDoctor(doctorID uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, auth.RoleKey, "doctor")
			ctx = context.WithValue(ctx, auth.RoleIDKey, doctorID.String())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func TestPatientHistoryEndpoint(t *testing.T) {
	svc, _, guard, doctorID, patientID := newConsultFixture()

	svc.Create(context.Background(), &Consultation{
		PatientID: patientID, DoctorID: doctorID, Diagnosis: "hypertension",
	})

	e := echo.New()
	api := e.Group("/api/v1", asDoctor(doctorID))
	NewHandler(svc).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/doctor/patient-history/"+patientID.String()+"?access_request_id="+guard.grantID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var h History
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Total != 1 {
		t.Errorf("expected 1 consultation, got %d", h.Total)
	}
}

func TestPatientHistoryEndpoint_UnverifiedGrantIs401(t *testing.T) {
	svc, _, guard, doctorID, patientID := newConsultFixture()
	guard.allow = false

	e := echo.New()
	api := e.Group("/api/v1", asDoctor(doctorID))
	NewHandler(svc).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/doctor/patient-history/"+patientID.String()+"?access_request_id="+guard.grantID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPatientHistoryEndpoint_MissingGrantParam(t *testing.T) {
	svc, _, _, doctorID, patientID := newConsultFixture()

	e := echo.New()
	api := e.Group("/api/v1", asDoctor(doctorID))
	NewHandler(svc).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/doctor/patient-history/"+patientID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateConsultationEndpoint(t *testing.T) {
	svc, repo, _, doctorID, patientID := newConsultFixture()

	e := echo.New()
	api := e.Group("/api/v1", asDoctor(doctorID))
	NewHandler(svc).RegisterRoutes(api)

	body := `{"patient_id":"` + patientID.String() + `","diagnosis":"hypertension","medicines":"amlodipine 5mg"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/doctor/consultations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.consults) != 1 {
		t.Errorf("expected 1 stored consultation, got %d", len(repo.consults))
	}
	if repo.consults[0].DoctorID != doctorID {
		t.Error("doctor id must come from the authenticated caller")
	}
}
