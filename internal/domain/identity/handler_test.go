package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func doGet(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetHospital(t *testing.T) {
	svc, hr, _, _ := newTestService()
	h := NewHandler(svc)

	hosp := &Hospital{Name: "City General", Location: "Pune"}
	hr.Create(context.Background(), hosp)

	rec := doGet(t, h, "/api/v1/hospitals/"+hosp.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got Hospital
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "City General" {
		t.Errorf("unexpected name %q", got.Name)
	}
}

func TestGetHospital_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	rec := doGet(t, NewHandler(svc), "/api/v1/hospitals/"+uuid.New().String())
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetHospital_InvalidID(t *testing.T) {
	svc, _, _, _ := newTestService()
	rec := doGet(t, NewHandler(svc), "/api/v1/hospitals/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListHospitalDoctors(t *testing.T) {
	svc, hr, dr, _ := newTestService()
	ctx := context.Background()

	hosp := &Hospital{Name: "City General"}
	hr.Create(ctx, hosp)
	dr.Create(ctx, &Doctor{Name: "Dr. Rao", HospitalID: hosp.ID, Active: true})

	rec := doGet(t, NewHandler(svc), "/api/v1/hospitals/"+hosp.ID.String()+"/doctors")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 doctor, got %d", resp.Total)
	}
}

func TestListDoctors_RequiresSpecialization(t *testing.T) {
	svc, _, _, _ := newTestService()
	rec := doGet(t, NewHandler(svc), "/api/v1/doctors")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetPatient(t *testing.T) {
	svc, _, _, pr := newTestService()
	p := &Patient{Name: "Asha", Email: "asha@example.com"}
	pr.Create(context.Background(), p)

	rec := doGet(t, NewHandler(svc), "/api/v1/patients/"+p.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
