package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Consultation is one visit record written by a doctor.
type Consultation struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	HospitalID    *uuid.UUID `json:"hospital_id,omitempty"`
	Date          time.Time  `json:"date"`
	Diagnosis     string     `json:"diagnosis"`
	BloodPressure string     `json:"blood_pressure,omitempty"`
	SugarLevel    string     `json:"sugar_level,omitempty"`
	Temperature   string     `json:"temperature,omitempty"`
	Medicines     string     `json:"medicines,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
