package appointment

import (
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
	doctor := api.Group("/doctor", auth.RequireRole("doctor"))
	doctor.GET("/appointments", h.ListForDoctor)
	doctor.POST("/appointments/:id/status", h.SetStatus)
	doctor.POST("/appointments/:id/request-payment", h.RequestPayment)
	doctor.GET("/appointments/:id/payment-status", h.PaymentStatusDoctor)

	patient := api.Group("/patient", auth.RequireRole("patient"))
	patient.POST("/appointments", h.Create)
	patient.GET("/appointments", h.ListForPatient)
	patient.POST("/appointments/:id/initiate-payment", h.InitiatePayment)
	patient.POST("/appointments/:id/verify-payment", h.VerifyPayment)
	patient.GET("/appointments/:id/payment-status", h.PaymentStatusPatient)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.RoleIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "caller identity missing")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

type createRequest struct {
	DoctorID        string `json:"doctor_id"`
	HospitalID      string `json:"hospital_id,omitempty"`
	AppointmentDate string `json:"appointment_date"`
	Notes           string `json:"notes,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.AppointmentDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_date must be RFC 3339")
	}

	var hospitalID *uuid.UUID
	if req.HospitalID != "" {
		id, err := uuid.Parse(req.HospitalID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		hospitalID = &id
	}

	a, err := h.svc.Create(c.Request().Context(), patientID, doctorID, hospitalID, scheduledAt, req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type setStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.SetStatus(c.Request().Context(), id, doctorID, Status(req.Status), req.Notes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":     a.ID,
		"status": a.Status,
	})
}

type requestPaymentRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) RequestPayment(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req requestPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.RequestPayment(c.Request().Context(), id, doctorID, req.Amount)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":               a.ID,
		"status":           a.Status,
		"payment_required": a.PaymentRequired,
		"payment_amount":   a.PaymentAmount,
		"payment_status":   a.PaymentStatus,
	})
}

func (h *Handler) InitiatePayment(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	order, err := h.svc.InitiatePayment(c.Request().Context(), id, patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, order)
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PaymentID == "" || req.Signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_id and signature are required")
	}

	sn, err := h.svc.VerifyPayment(c.Request().Context(), id, patientID, req.PaymentID, req.Signature)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sn)
}

func (h *Handler) PaymentStatusDoctor(c echo.Context) error {
	doctorID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	sn, err := h.svc.PaymentStatusForDoctor(c.Request().Context(), id, doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sn)
}

func (h *Handler) PaymentStatusPatient(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	sn, err := h.svc.PaymentStatusForPatient(c.Request().Context(), id, patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sn)
}
