package consultation

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/platform/auth"
	"github.com/medivault/medivault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctor", auth.RequireRole("doctor"))
	g.POST("/consultations", h.Create)
	g.GET("/patient-history/:patientId", h.PatientHistory)
}

type createRequest struct {
	PatientID     string `json:"patient_id"`
	HospitalID    string `json:"hospital_id,omitempty"`
	Date          string `json:"date,omitempty"`
	Diagnosis     string `json:"diagnosis"`
	BloodPressure string `json:"blood_pressure,omitempty"`
	SugarLevel    string `json:"sugar_level,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	Medicines     string `json:"medicines,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.RoleIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "doctor identity missing")
	}

	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	cons := &Consultation{
		PatientID:     patientID,
		DoctorID:      doctorID,
		Diagnosis:     req.Diagnosis,
		BloodPressure: req.BloodPressure,
		SugarLevel:    req.SugarLevel,
		Temperature:   req.Temperature,
		Medicines:     req.Medicines,
		Notes:         req.Notes,
	}
	if req.HospitalID != "" {
		id, err := uuid.Parse(req.HospitalID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		cons.HospitalID = &id
	}
	if req.Date != "" {
		d, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be RFC 3339")
		}
		cons.Date = d
	}

	if err := h.svc.Create(c.Request().Context(), cons); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

// PatientHistory requires a verified, unexpired access grant. An unverified
// or expired grant is a 401, not a 403: the caller's role is fine, the
// verification factor is not.
func (h *Handler) PatientHistory(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.RoleIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "doctor identity missing")
	}
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	grantID, err := uuid.Parse(c.QueryParam("access_request_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "access_request_id query parameter is required")
	}

	pg := pagination.FromContext(c)
	history, err := h.svc.PatientHistory(c.Request().Context(), grantID, doctorID, patientID, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			return echo.NewHTTPError(http.StatusUnauthorized, "access not verified or expired")
		}
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, history)
}
