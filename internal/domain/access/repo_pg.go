package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medivault/medivault/internal/domain/apperr"
	"github.com/medivault/medivault/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const grantCols = `id, doctor_id, patient_id, appointment_id, code, status, issued_at, verified_at, expires_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.DoctorID, &g.PatientID, &g.AppointmentID, &g.Code,
		&g.Status, &g.IssuedAt, &g.VerifiedAt, &g.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("access grant not found")
	}
	return &g, err
}

func (r *repoPG) Create(ctx context.Context, g *Grant) error {
	g.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_grants (id, doctor_id, patient_id, appointment_id, code, status, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		g.ID, g.DoctorID, g.PatientID, g.AppointmentID, g.Code, g.Status, g.IssuedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return scanGrant(r.conn(ctx).QueryRow(ctx, `SELECT `+grantCols+` FROM access_grants WHERE id = $1`, id))
}

// VerifyPending relies on the conditional UPDATE hitting zero rows for any
// losing caller: wrong code, already verified, cancelled, or stale. All of
// those collapse into one generic rejection.
func (r *repoPG) VerifyPending(ctx context.Context, id uuid.UUID, code string, issuedAfter, verifiedAt, expiresAt time.Time) (*Grant, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE access_grants
		SET status = $4, verified_at = $5, expires_at = $6
		WHERE id = $1 AND status = $2 AND code = $3 AND issued_at > $7
		RETURNING `+grantCols,
		id, StatusPending, code, StatusVerified, verifiedAt, expiresAt, issuedAfter)

	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.InvalidState("otp invalid or already used")
		}
		return nil, err
	}
	return g, nil
}
