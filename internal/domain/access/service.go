package access

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/domain/identity"
	"github.com/medivault/medivault/internal/platform/mail"
)

// DoctorDirectory resolves doctors for grant preconditions.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// PatientDirectory resolves patients for grant preconditions.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// Mailer queues mail for background delivery.
type Mailer interface {
	Enqueue(msg mail.Message) error
}

type Service struct {
	grants   Repository
	doctors  DoctorDirectory
	patients PatientDirectory
	mailer   Mailer
	logger   zerolog.Logger

	now func() time.Time
}

func NewService(grants Repository, doctors DoctorDirectory, patients PatientDirectory, mailer Mailer, logger zerolog.Logger) *Service {
	return &Service{
		grants:   grants,
		doctors:  doctors,
		patients: patients,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// generateOTP draws a fresh 6-digit code from crypto/rand on every call.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RequestAccess creates a pending grant and mails the code to the patient.
// The mail leg is fire-and-forget: the grant stands even if delivery fails,
// since the code can still reach the patient out of band.
func (s *Service) RequestAccess(ctx context.Context, doctorID, patientID uuid.UUID, appointmentID *uuid.UUID) (*Grant, error) {
	doctor, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, apperr.NotFound("doctor not found")
	}

	patient, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, apperr.NotFound("patient not found")
	}
	if patient.Email == "" {
		return nil, apperr.InvalidState("patient has no notification address")
	}

	code, err := generateOTP()
	if err != nil {
		return nil, err
	}

	g := &Grant{
		DoctorID:      doctorID,
		PatientID:     patientID,
		AppointmentID: appointmentID,
		Code:          code,
		Status:        StatusPending,
		IssuedAt:      s.now().UTC(),
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return nil, err
	}

	subject := "Record access verification code"
	body := fmt.Sprintf(
		"Dr. %s (%s) has requested access to your medical records.\n\n"+
			"Your verification code is: %s\n\n"+
			"The code expires in %d minutes. Once verified, access is granted for %d minutes only.",
		doctor.Name, doctor.Specialization, code,
		int(OTPValidity.Minutes()), int(ReadWindow.Minutes()))

	if err := s.mailer.Enqueue(mail.Message{To: patient.Email, Subject: subject, Body: body}); err != nil {
		s.logger.Error().Err(err).
			Str("grant_id", g.ID.String()).
			Msg("otp mail not queued")
	}
	return g, nil
}

// VerifyAccess consumes the code. The repository performs the atomic
// check-and-set, so of two concurrent calls exactly one succeeds. The read
// window opens at verification: ExpiresAt = now + 10 minutes.
func (s *Service) VerifyAccess(ctx context.Context, grantID uuid.UUID, code string) (*Grant, error) {
	now := s.now().UTC()
	return s.grants.VerifyPending(ctx, grantID, code, now.Add(-OTPValidity), now, now.Add(ReadWindow))
}

// AuthorizeRead reports whether the grant currently authorizes the given
// doctor to read the given patient's history. Reading does not extend the
// window.
func (s *Service) AuthorizeRead(ctx context.Context, grantID, doctorID, patientID uuid.UUID) (bool, error) {
	g, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return false, err
	}
	if g.DoctorID != doctorID || g.PatientID != patientID {
		return false, nil
	}
	if g.Status != StatusVerified || g.ExpiresAt == nil {
		return false, nil
	}
	return !s.now().UTC().After(*g.ExpiresAt), nil
}
