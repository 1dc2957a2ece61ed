package access

import (
	"time"

	"github.com/google/uuid"
)

// GrantStatus is the lifecycle state of an access grant.
type GrantStatus string

const (
	StatusPending   GrantStatus = "pending"
	StatusVerified  GrantStatus = "verified"
	StatusExpired   GrantStatus = "expired"
	StatusCancelled GrantStatus = "cancelled"
)

// OTPValidity is how long a pending grant accepts its code.
const OTPValidity = 15 * time.Minute

// ReadWindow is how long a verified grant authorizes reads, counted from the
// moment of verification, not issuance.
const ReadWindow = 10 * time.Minute

var validGrantStatuses = map[GrantStatus]bool{
	StatusPending: true, StatusVerified: true,
	StatusExpired: true, StatusCancelled: true,
}

// grantTransitions lists the permitted moves. Verified, expired and
// cancelled are terminal; a consumed code is never re-checked.
var grantTransitions = map[GrantStatus][]GrantStatus{
	StatusPending: {StatusVerified, StatusExpired, StatusCancelled},
}

// CanTransition reports whether a grant may move from one status to another.
func (s GrantStatus) CanTransition(to GrantStatus) bool {
	for _, next := range grantTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s GrantStatus) Valid() bool {
	return validGrantStatuses[s]
}

// Grant is a time-boxed authorization for a doctor to read one patient's
// history. It is retained after expiry as an audit trail, never deleted here.
type Grant struct {
	ID            uuid.UUID   `json:"id"`
	DoctorID      uuid.UUID   `json:"doctor_id"`
	PatientID     uuid.UUID   `json:"patient_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
	Code          string      `json:"-"`
	Status        GrantStatus `json:"status"`
	IssuedAt      time.Time   `json:"issued_at"`
	VerifiedAt    *time.Time  `json:"verified_at,omitempty"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
}
