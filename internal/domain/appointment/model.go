package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusApproved: true, StatusDenied: true,
	StatusCancelled: true, StatusCompleted: true,
}

// statusTransitions is the strict adjacency used when STRICT_TRANSITIONS is
// on. Denied, cancelled and completed are terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusDenied, StatusCancelled, StatusCompleted},
	StatusApproved: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool { return len(statusTransitions[s]) == 0 && s.Valid() }

// CanTransition reports whether the strict state machine permits s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the fee collection state. The appointment carries the
// subset {not_requested, pending, completed, failed}; the payment row also
// uses cancelled.
type PaymentStatus string

const (
	PaymentNotRequested PaymentStatus = "not_requested"
	PaymentPending      PaymentStatus = "pending"
	PaymentCompleted    PaymentStatus = "completed"
	PaymentFailed       PaymentStatus = "failed"
	PaymentCancelled    PaymentStatus = "cancelled"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentNotRequested: {PaymentPending},
	PaymentPending:      {PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentFailed:       {PaymentPending},
}

// CanTransition reports whether the payment state machine permits s -> to.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment is a consultation request. PaymentRequired is monotonic for a
// request cycle: a doctor can re-quote the amount but not silently unrequire
// payment through this flow.
type Appointment struct {
	ID              uuid.UUID     `json:"id"`
	PatientID       uuid.UUID     `json:"patient_id"`
	DoctorID        uuid.UUID     `json:"doctor_id"`
	HospitalID      *uuid.UUID    `json:"hospital_id,omitempty"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	Status          Status        `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	PaymentRequired bool          `json:"payment_required"`
	PaymentAmount   int64         `json:"payment_amount,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Payment is the 1:1 gateway-facing record for a priced appointment.
// CompletedAt is written exactly once, in the same transaction that sets
// Status to completed.
type Payment struct {
	ID               uuid.UUID     `json:"id"`
	AppointmentID    uuid.UUID     `json:"appointment_id"`
	Amount           int64         `json:"amount"`
	Status           PaymentStatus `json:"status"`
	OrderID          string        `json:"order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	Signature        string        `json:"-"`
	RequestedAt      time.Time     `json:"requested_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
}

// Snapshot is the read model returned by the payment-status endpoints and by
// VerifyPayment.
type Snapshot struct {
	AppointmentID     uuid.UUID     `json:"appointment_id"`
	AppointmentStatus Status        `json:"appointment_status"`
	PaymentRequired   bool          `json:"payment_required"`
	PaymentAmount     int64         `json:"payment_amount,omitempty"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	OrderID           string        `json:"order_id,omitempty"`
	GatewayPaymentID  string        `json:"gateway_payment_id,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}
