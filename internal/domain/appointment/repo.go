package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error)
}

// PaymentRepository persists the 1:1 payment rows. Upsert keys on the unique
// appointment id so a re-quote reuses the existing row.
type PaymentRepository interface {
	Upsert(ctx context.Context, p *Payment) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error

	// Complete atomically moves the payment to completed, recording the
	// gateway payment id, signature and completion time. It reports false
	// without touching the row when the payment is already completed, so of
	// two concurrent verifications exactly one claims the transition.
	Complete(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID, signature string, completedAt time.Time) (bool, error)
}
