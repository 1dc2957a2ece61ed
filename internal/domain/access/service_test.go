package access

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/domain/identity"
	"github.com/medivault/medivault/internal/platform/mail"
)

// mockGrantRepo reproduces the conditional-update semantics of the pg repo:
// verification succeeds at most once, under a single lock.
type mockGrantRepo struct {
	mu     sync.Mutex
	grants map[uuid.UUID]*Grant
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{grants: make(map[uuid.UUID]*Grant)}
}

func (m *mockGrantRepo) Create(_ context.Context, g *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	cp := *g
	m.grants[g.ID] = &cp
	return nil
}

func (m *mockGrantRepo) GetByID(_ context.Context, id uuid.UUID) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, apperr.NotFound("access grant not found")
	}
	cp := *g
	return &cp, nil
}

func (m *mockGrantRepo) VerifyPending(_ context.Context, id uuid.UUID, code string, issuedAfter, verifiedAt, expiresAt time.Time) (*Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok || g.Status != StatusPending || g.Code != code || !g.IssuedAt.After(issuedAfter) {
		return nil, apperr.InvalidState("otp invalid or already used")
	}
	g.Status = StatusVerified
	g.VerifiedAt = &verifiedAt
	g.ExpiresAt = &expiresAt
	cp := *g
	return &cp, nil
}

type mockDirectory struct {
	doctors  map[uuid.UUID]*identity.Doctor
	patients map[uuid.UUID]*identity.Patient
}

func (m *mockDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

type mockMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	fail     bool
}

func (m *mockMailer) Enqueue(msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("queue full")
	}
	m.messages = append(m.messages, msg)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *mockGrantRepo
	mailer    *mockMailer
	doctorID  uuid.UUID
	patientID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doctorID := uuid.New()
	patientID := uuid.New()
	dir := &mockDirectory{
		doctors: map[uuid.UUID]*identity.Doctor{
			doctorID: {ID: doctorID, Name: "Meera Rao", Specialization: "cardiology", Active: true},
		},
		patients: map[uuid.UUID]*identity.Patient{
			patientID: {ID: patientID, Name: "Asha", Email: "asha@example.com", Active: true},
		},
	}
	repo := newMockGrantRepo()
	mailer := &mockMailer{}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &fixture{
		svc:       NewService(repo, dir, dir, mailer, logger),
		repo:      repo,
		mailer:    mailer,
		doctorID:  doctorID,
		patientID: patientID,
	}
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func TestRequestAccess_CreatesPendingGrantAndMailsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)
	if err != nil {
		t.Fatalf("request access: %v", err)
	}
	if g.Status != StatusPending {
		t.Errorf("expected pending, got %s", g.Status)
	}
	if len(g.Code) != 6 {
		t.Errorf("expected 6-digit code, got %q", g.Code)
	}
	if g.ExpiresAt != nil {
		t.Error("pending grant must have no expiry")
	}

	if len(f.mailer.messages) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(f.mailer.messages))
	}
	msg := f.mailer.messages[0]
	if msg.To != "asha@example.com" {
		t.Errorf("mail sent to %q", msg.To)
	}
	if !otpPattern.MatchString(msg.Body) {
		t.Error("mail body missing 6-digit code")
	}
	if code := otpPattern.FindString(msg.Body); code != g.Code {
		t.Errorf("mailed code %q differs from stored code %q", code, g.Code)
	}
}

func TestRequestAccess_UnknownDoctor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestAccess(context.Background(), uuid.New(), f.patientID, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestRequestAccess_InactiveDoctor(t *testing.T) {
	f := newFixture(t)
	dir := f.svc.doctors.(*mockDirectory)
	dir.doctors[f.doctorID].Active = false

	_, err := f.svc.RequestAccess(context.Background(), f.doctorID, f.patientID, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound for inactive doctor, got %v", err)
	}
}

func TestRequestAccess_PatientWithoutEmail(t *testing.T) {
	f := newFixture(t)
	dir := f.svc.patients.(*mockDirectory)
	dir.patients[f.patientID].Email = ""

	_, err := f.svc.RequestAccess(context.Background(), f.doctorID, f.patientID, nil)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected InvalidState, got %v", err)
	}
}

func TestRequestAccess_MailFailureDoesNotFailGrant(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail = true

	g, err := f.svc.RequestAccess(context.Background(), f.doctorID, f.patientID, nil)
	if err != nil {
		t.Fatalf("grant creation must survive mail failure: %v", err)
	}
	if _, err := f.repo.GetByID(context.Background(), g.ID); err != nil {
		t.Errorf("grant not persisted: %v", err)
	}
}

func TestVerifyAccess_OpensTenMinuteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)

	verified, err := f.svc.VerifyAccess(ctx, g.ID, g.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != StatusVerified {
		t.Errorf("expected verified, got %s", verified.Status)
	}
	if verified.VerifiedAt == nil || verified.ExpiresAt == nil {
		t.Fatal("verified grant must carry both timestamps")
	}
	if got := verified.ExpiresAt.Sub(*verified.VerifiedAt); got != ReadWindow {
		t.Errorf("window is %v, want %v", got, ReadWindow)
	}
}

func TestVerifyAccess_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)

	wrong := "000000"
	if wrong == g.Code {
		wrong = "000001"
	}
	_, err := f.svc.VerifyAccess(ctx, g.ID, wrong)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected generic InvalidState, got %v", err)
	}

	stored, _ := f.repo.GetByID(ctx, g.ID)
	if stored.Status != StatusPending {
		t.Error("failed verify must not mutate the grant")
	}
}

func TestVerifyAccess_SecondCallRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)
	if _, err := f.svc.VerifyAccess(ctx, g.ID, g.Code); err != nil {
		t.Fatalf("first verify: %v", err)
	}

	// Same code, and a different code: both get the same generic rejection.
	_, err1 := f.svc.VerifyAccess(ctx, g.ID, g.Code)
	_, err2 := f.svc.VerifyAccess(ctx, g.ID, "999999")
	if !errors.Is(err1, apperr.ErrInvalidState) || !errors.Is(err2, apperr.ErrInvalidState) {
		t.Errorf("second verify must be InvalidState, got %v / %v", err1, err2)
	}
	if err1.Error() != err2.Error() {
		t.Error("rejection must not reveal which check failed")
	}
}

func TestVerifyAccess_StaleCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)

	// Move the clock past the OTP validity.
	f.svc.now = func() time.Time { return time.Now().Add(OTPValidity + time.Minute) }

	_, err := f.svc.VerifyAccess(ctx, g.ID, g.Code)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected InvalidState for stale code, got %v", err)
	}
}

func TestVerifyAccess_ConcurrentCallsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)

	const workers = 16
	var wg sync.WaitGroup
	var successes int
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyAccess(ctx, g.ID, g.Code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful verification, got %d", successes)
	}
}

func TestAuthorizeRead_WindowSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)
	if _, err := f.svc.VerifyAccess(ctx, g.ID, g.Code); err != nil {
		t.Fatal(err)
	}

	allow, err := f.svc.AuthorizeRead(ctx, g.ID, f.doctorID, f.patientID)
	if err != nil || !allow {
		t.Errorf("expected allow inside window, got allow=%v err=%v", allow, err)
	}

	// Strictly after expiry the same call denies.
	f.svc.now = func() time.Time { return time.Now().Add(ReadWindow + time.Second) }
	allow, err = f.svc.AuthorizeRead(ctx, g.ID, f.doctorID, f.patientID)
	if err != nil || allow {
		t.Errorf("expected deny after expiry, got allow=%v err=%v", allow, err)
	}
}

func TestAuthorizeRead_DeniesMismatchedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)
	f.svc.VerifyAccess(ctx, g.ID, g.Code)

	if allow, _ := f.svc.AuthorizeRead(ctx, g.ID, uuid.New(), f.patientID); allow {
		t.Error("expected deny for foreign doctor")
	}
	if allow, _ := f.svc.AuthorizeRead(ctx, g.ID, f.doctorID, uuid.New()); allow {
		t.Error("expected deny for foreign patient")
	}
}

func TestAuthorizeRead_DeniesPendingGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, _ := f.svc.RequestAccess(ctx, f.doctorID, f.patientID, nil)

	if allow, _ := f.svc.AuthorizeRead(ctx, g.ID, f.doctorID, f.patientID); allow {
		t.Error("pending grant must not authorize reads")
	}
}

func TestGrantStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to GrantStatus
		want     bool
	}{
		{StatusPending, StatusVerified, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusCancelled, true},
		{StatusVerified, StatusPending, false},
		{StatusVerified, StatusVerified, false},
		{StatusExpired, StatusVerified, false},
		{StatusCancelled, StatusVerified, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
