package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/medivault/medivault/internal/domain/apperr"
)

// -- Mock repositories --

type mockHospitalRepo struct {
	hospitals map[uuid.UUID]*Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{hospitals: make(map[uuid.UUID]*Hospital)}
}

func (m *mockHospitalRepo) Create(_ context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	m.hospitals[h.ID] = h
	return nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, apperr.NotFound("hospital not found")
	}
	return h, nil
}

func (m *mockHospitalRepo) List(_ context.Context, limit, offset int) ([]*Hospital, int, error) {
	var items []*Hospital
	for _, h := range m.hospitals {
		items = append(items, h)
	}
	return items, len(m.hospitals), nil
}

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDoctorRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	var items []*Doctor
	for _, d := range m.doctors {
		if d.HospitalID == hospitalID && d.Active {
			items = append(items, d)
		}
	}
	return items, len(items), nil
}

func (m *mockDoctorRepo) ListBySpecialization(_ context.Context, spec string, limit, offset int) ([]*Doctor, int, error) {
	var items []*Doctor
	for _, d := range m.doctors {
		if d.Specialization == spec && d.Active {
			items = append(items, d)
		}
	}
	return items, len(items), nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return apperr.NotFound("doctor not found")
	}
	m.doctors[d.ID] = d
	return nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

func (m *mockPatientRepo) GetByEmail(_ context.Context, email string) (*Patient, error) {
	for _, p := range m.patients {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient not found")
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("patient not found")
	}
	m.patients[p.ID] = p
	return nil
}

func newTestService() (*Service, *mockHospitalRepo, *mockDoctorRepo, *mockPatientRepo) {
	hr := newMockHospitalRepo()
	dr := newMockDoctorRepo()
	pr := newMockPatientRepo()
	return NewService(hr, dr, pr), hr, dr, pr
}

// -- Tests --

func TestCreateDoctor_RequiresExistingHospital(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	err := svc.CreateDoctor(ctx, &Doctor{Name: "Dr. Rao", HospitalID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for unknown hospital")
	}
}

func TestCreateDoctor_ActiveByDefault(t *testing.T) {
	svc, hr, _, _ := newTestService()
	ctx := context.Background()

	h := &Hospital{Name: "City General"}
	hr.Create(ctx, h)

	d := &Doctor{Name: "Dr. Rao", HospitalID: h.ID, Specialization: "cardiology"}
	if err := svc.CreateDoctor(ctx, d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	if !d.Active {
		t.Error("expected new doctor to be active")
	}
}

func TestCreateDoctor_RequiresName(t *testing.T) {
	svc, _, _, _ := newTestService()
	if err := svc.CreateDoctor(context.Background(), &Doctor{HospitalID: uuid.New()}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestCreatePatient_RequiresEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	if err := svc.CreatePatient(context.Background(), &Patient{Name: "Asha"}); err == nil {
		t.Error("expected error for missing email")
	}
}

func TestListDoctorsByHospital_ExcludesInactive(t *testing.T) {
	svc, hr, dr, _ := newTestService()
	ctx := context.Background()

	h := &Hospital{Name: "City General"}
	hr.Create(ctx, h)
	dr.Create(ctx, &Doctor{Name: "Active", HospitalID: h.ID, Active: true})
	dr.Create(ctx, &Doctor{Name: "Retired", HospitalID: h.ID, Active: false})

	items, total, err := svc.ListDoctorsByHospital(ctx, h.ID, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected 1 active doctor, got %d", total)
	}
}
