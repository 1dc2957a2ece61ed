package access

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctor", auth.RequireRole("doctor"))
	g.POST("/request-access", h.RequestAccess)
	g.POST("/verify-otp", h.VerifyOTP)
}

type requestAccessRequest struct {
	PatientID     string `json:"patient_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

func (h *Handler) RequestAccess(c echo.Context) error {
	doctorID, err := uuid.Parse(auth.RoleIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "doctor identity missing")
	}

	var req requestAccessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	var appointmentID *uuid.UUID
	if req.AppointmentID != "" {
		id, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		appointmentID = &id
	}

	g, err := h.svc.RequestAccess(c.Request().Context(), doctorID, patientID, appointmentID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"access_request_id": g.ID,
		"status":            g.Status,
	})
}

type verifyOTPRequest struct {
	AccessRequestID string `json:"access_request_id"`
	OTP             string `json:"otp"`
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	grantID, err := uuid.Parse(req.AccessRequestID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid access_request_id")
	}
	if req.OTP == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "otp is required")
	}

	g, err := h.svc.VerifyAccess(c.Request().Context(), grantID, req.OTP)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"access_request_id": g.ID,
		"status":            g.Status,
		"verified_at":       g.VerifiedAt,
		"expires_at":        g.ExpiresAt,
	})
}
