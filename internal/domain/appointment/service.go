package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/domain/identity"
	"github.com/medivault/medivault/internal/platform/gateway"
)

// gatewayTimeout bounds the outbound order-creation call.
const gatewayTimeout = 30 * time.Second

// DoctorDirectory resolves doctors for booking preconditions.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// TxRunner runs fn so that every repository write inside it commits or rolls
// back as one unit. Production wiring uses db.WithTx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Config struct {
	Currency string
	// StrictTransitions turns on adjacency checking for doctor-driven status
	// changes. Off by default: the portal historically lets a doctor move an
	// appointment between any states as a manual override.
	StrictTransitions bool
}

type Service struct {
	appts    Repository
	payments PaymentRepository
	doctors  DoctorDirectory
	gateway  gateway.PaymentGateway
	runTx    TxRunner
	cfg      Config
	logger   zerolog.Logger

	now func() time.Time
}

func NewService(appts Repository, payments PaymentRepository, doctors DoctorDirectory, gw gateway.PaymentGateway, runTx TxRunner, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		appts:    appts,
		payments: payments,
		doctors:  doctors,
		gateway:  gw,
		runTx:    runTx,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create books a pending appointment. The scheduled time is checked against
// the server clock, never the client's.
func (s *Service) Create(ctx context.Context, patientID, doctorID uuid.UUID, hospitalID *uuid.UUID, scheduledAt time.Time, notes string) (*Appointment, error) {
	if !scheduledAt.After(s.now()) {
		return nil, apperr.InvalidState("appointment time is in the past")
	}

	doctor, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, apperr.NotFound("doctor not found")
	}
	if hospitalID != nil && doctor.HospitalID != *hospitalID {
		return nil, apperr.InvalidState("doctor does not belong to the selected hospital")
	}

	a := &Appointment{
		PatientID:     patientID,
		DoctorID:      doctorID,
		HospitalID:    hospitalID,
		ScheduledAt:   scheduledAt.UTC(),
		Status:        StatusPending,
		Notes:         notes,
		PaymentStatus: PaymentNotRequested,
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetStatus is the doctor-driven transition. Approval of a payment-required
// appointment is reserved for VerifyPayment; everything else follows the
// configured strictness.
func (s *Service) SetStatus(ctx context.Context, appointmentID, doctorID uuid.UUID, newStatus Status, notes string) (*Appointment, error) {
	if !newStatus.Valid() {
		return nil, apperr.InvalidState("unknown status %q", newStatus)
	}

	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Unauthorized("appointment belongs to another doctor")
	}
	if newStatus == StatusApproved && a.PaymentRequired && a.PaymentStatus != PaymentCompleted {
		return nil, apperr.InvalidState("payment pending, approval happens on payment verification")
	}
	if s.cfg.StrictTransitions && !a.Status.CanTransition(newStatus) {
		return nil, apperr.InvalidState("cannot move appointment from %s to %s", a.Status, newStatus)
	}

	a.Status = newStatus
	if notes != "" {
		a.Notes = notes
	}
	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RequestPayment attaches a fee. The appointment status is untouched: a fee
// request is not an approval. PaymentRequired stays true for the cycle even
// if the doctor re-quotes.
func (s *Service) RequestPayment(ctx context.Context, appointmentID, doctorID uuid.UUID, amount int64) (*Appointment, error) {
	if amount <= 0 {
		return nil, apperr.InvalidState("amount must be positive")
	}

	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Unauthorized("appointment belongs to another doctor")
	}
	if a.Status.Terminal() {
		return nil, apperr.InvalidState("appointment is %s", a.Status)
	}
	if a.PaymentStatus == PaymentCompleted {
		return nil, apperr.InvalidState("payment already completed")
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		a.PaymentRequired = true
		a.PaymentAmount = amount
		a.PaymentStatus = PaymentPending
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		return s.payments.Upsert(ctx, &Payment{
			AppointmentID: a.ID,
			Amount:        amount,
			Status:        PaymentPending,
			RequestedAt:   s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// OrderDetails is what the client needs to open the gateway checkout.
type OrderDetails struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// InitiatePayment creates the gateway order. The gateway call is bounded by
// its own 30s deadline; on failure nothing local moves towards completed.
func (s *Service) InitiatePayment(ctx context.Context, appointmentID, patientID uuid.UUID) (*OrderDetails, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != patientID {
		return nil, apperr.Unauthorized("appointment belongs to another patient")
	}
	if !a.PaymentRequired || a.PaymentAmount <= 0 {
		return nil, apperr.InvalidState("no payment requested for this appointment")
	}
	if a.PaymentStatus == PaymentCompleted {
		return nil, apperr.InvalidState("payment already completed")
	}

	p, err := s.payments.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	// Gateway minor units: rupees to paise.
	orderID, err := s.gateway.CreateOrder(gwCtx, a.PaymentAmount*100, s.cfg.Currency, "appt_"+a.ID.String())
	if err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("gateway order creation failed")
		return nil, apperr.External("payment gateway unavailable")
	}

	p.OrderID = orderID
	p.Status = PaymentPending
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}

	return &OrderDetails{
		OrderID:  orderID,
		Amount:   a.PaymentAmount,
		Currency: s.cfg.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// VerifyPayment checks the gateway signature and, on a match, completes the
// payment and approves the appointment in one transaction. A forged
// signature mutates nothing. A repeat of an already-verified confirmation is
// a no-op returning the terminal snapshot.
func (s *Service) VerifyPayment(ctx context.Context, appointmentID, patientID uuid.UUID, gatewayPaymentID, signature string) (*Snapshot, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != patientID {
		return nil, apperr.Unauthorized("appointment belongs to another patient")
	}

	p, err := s.payments.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if p.OrderID == "" {
		return nil, apperr.InvalidState("payment not initiated")
	}

	// Signature first: the rejection for a forged signature must be
	// indistinguishable from any other verification failure, and nothing is
	// written before this check passes.
	if !s.gateway.VerifySignature(p.OrderID, gatewayPaymentID, signature) {
		return nil, apperr.InvalidState("payment verification failed")
	}

	if p.Status == PaymentCompleted {
		if p.GatewayPaymentID != gatewayPaymentID {
			return nil, apperr.InvalidState("payment verification failed")
		}
		return snapshot(a, p), nil
	}

	// The completion itself is a conditional UPDATE on the payment status, so
	// of two concurrent verifications that both saw pending above, exactly
	// one claims the transition; the appointment only advances for that one.
	now := s.now().UTC()
	var claimed bool
	err = s.runTx(ctx, func(ctx context.Context) error {
		ok, err := s.payments.Complete(ctx, p.ID, gatewayPaymentID, signature, now)
		if err != nil {
			return err
		}
		claimed = ok
		if !ok {
			return nil
		}

		a.PaymentStatus = PaymentCompleted
		a.Status = StatusApproved
		return s.appts.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	if !claimed {
		// Lost the race. Re-read and treat the call like a repeat of an
		// already-verified confirmation.
		p, err = s.payments.GetByAppointment(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		if p.GatewayPaymentID != gatewayPaymentID {
			return nil, apperr.InvalidState("payment verification failed")
		}
		a, err = s.appts.GetByID(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		return snapshot(a, p), nil
	}

	p.Status = PaymentCompleted
	p.GatewayPaymentID = gatewayPaymentID
	p.Signature = signature
	p.CompletedAt = &now
	return snapshot(a, p), nil
}

// PaymentStatusForDoctor returns the payment snapshot for the owning doctor.
func (s *Service) PaymentStatusForDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Snapshot, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Unauthorized("appointment belongs to another doctor")
	}
	return s.snapshotFor(ctx, a)
}

// PaymentStatusForPatient returns the payment snapshot for the owning patient.
func (s *Service) PaymentStatusForPatient(ctx context.Context, appointmentID, patientID uuid.UUID) (*Snapshot, error) {
	a, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != patientID {
		return nil, apperr.Unauthorized("appointment belongs to another patient")
	}
	return s.snapshotFor(ctx, a)
}

func (s *Service) snapshotFor(ctx context.Context, a *Appointment) (*Snapshot, error) {
	if !a.PaymentRequired {
		return snapshot(a, nil), nil
	}
	p, err := s.payments.GetByAppointment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return snapshot(a, p), nil
}

func snapshot(a *Appointment, p *Payment) *Snapshot {
	sn := &Snapshot{
		AppointmentID:     a.ID,
		AppointmentStatus: a.Status,
		PaymentRequired:   a.PaymentRequired,
		PaymentAmount:     a.PaymentAmount,
		PaymentStatus:     a.PaymentStatus,
	}
	if p != nil {
		sn.OrderID = p.OrderID
		sn.GatewayPaymentID = p.GatewayPaymentID
		sn.CompletedAt = p.CompletedAt
	}
	return sn
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.InvalidState("unknown status %q", status)
	}
	return s.appts.ListByPatient(ctx, patientID, status, limit, offset)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.InvalidState("unknown status %q", status)
	}
	return s.appts.ListByDoctor(ctx, doctorID, status, limit, offset)
}
