package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/domain/identity"
)

// AccessGuard decides whether a doctor may read a patient's history right
// now. Backed by the access-grant verification flow.
type AccessGuard interface {
	AuthorizeRead(ctx context.Context, grantID, doctorID, patientID uuid.UUID) (bool, error)
}

// PatientDirectory resolves patients for history responses.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

type Service struct {
	consults Repository
	patients PatientDirectory
	guard    AccessGuard
}

func NewService(consults Repository, patients PatientDirectory, guard AccessGuard) *Service {
	return &Service{consults: consults, patients: patients, guard: guard}
}

// Create records a consultation entry for a visit the doctor conducted.
func (s *Service) Create(ctx context.Context, c *Consultation) error {
	if c.PatientID == uuid.Nil {
		return apperr.InvalidState("patient_id is required")
	}
	if c.Diagnosis == "" {
		return apperr.InvalidState("diagnosis is required")
	}
	if _, err := s.patients.GetPatient(ctx, c.PatientID); err != nil {
		return err
	}
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}
	return s.consults.Create(ctx, c)
}

// History is the patient-history read model.
type History struct {
	Patient       *identity.Patient `json:"patient"`
	Consultations []*Consultation   `json:"consultations"`
	Total         int               `json:"total"`
}

// PatientHistory returns the patient's record set, gated by a verified
// access grant. A deny, whatever its cause, comes back as one generic
// unauthorized error.
func (s *Service) PatientHistory(ctx context.Context, grantID, doctorID, patientID uuid.UUID, limit, offset int) (*History, error) {
	allow, err := s.guard.AuthorizeRead(ctx, grantID, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if !allow {
		return nil, apperr.Unauthorized("access not verified or expired")
	}

	patient, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	items, total, err := s.consults.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &History{Patient: patient, Consultations: items, Total: total}, nil
}
