package appointment

import (
	"context"
	"errors"
	"fmt"
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

// =========== Appointment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, hospital_id, scheduled_at, status, notes,
	payment_required, payment_amount, payment_status, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.HospitalID, &a.ScheduledAt,
		&a.Status, &a.Notes, &a.PaymentRequired, &a.PaymentAmount, &a.PaymentStatus,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, hospital_id, scheduled_at, status, notes,
			payment_required, payment_amount, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.PatientID, a.DoctorID, a.HospitalID, a.ScheduledAt, a.Status, a.Notes,
		a.PaymentRequired, a.PaymentAmount, a.PaymentStatus)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status=$2, notes=$3, payment_required=$4, payment_amount=$5,
			payment_status=$6, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.Notes, a.PaymentRequired, a.PaymentAmount, a.PaymentStatus)
	return err
}

func (r *repoPG) list(ctx context.Context, column string, ownerID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error) {
	where := fmt.Sprintf(`WHERE %s = $1`, column)
	args := []interface{}{ownerID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments %s ORDER BY scheduled_at DESC LIMIT $%d OFFSET $%d`,
		apptCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "patient_id", patientID, status, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "doctor_id", doctorID, status, limit, offset)
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const paymentCols = `id, appointment_id, amount, status, order_id, gateway_payment_id, signature,
	requested_at, completed_at, failure_reason`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AppointmentID, &p.Amount, &p.Status, &p.OrderID,
		&p.GatewayPaymentID, &p.Signature, &p.RequestedAt, &p.CompletedAt, &p.FailureReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment not found")
	}
	return &p, err
}

// Upsert keys on the unique appointment_id. A conflict resets the row for
// the new quote but never touches completed_at.
func (r *paymentRepoPG) Upsert(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, appointment_id, amount, status, order_id, gateway_payment_id, signature, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (appointment_id) DO UPDATE
		SET amount = EXCLUDED.amount, status = EXCLUDED.status, requested_at = EXCLUDED.requested_at`,
		p.ID, p.AppointmentID, p.Amount, p.Status, p.OrderID, p.GatewayPaymentID, p.Signature, p.RequestedAt)
	return err
}

func (r *paymentRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE appointment_id = $1`, appointmentID))
}

// Complete races on the status column the way the grant verification races
// on its conditional UPDATE: zero rows affected means another verification
// already completed the payment.
func (r *paymentRepoPG) Complete(ctx context.Context, paymentID uuid.UUID, gatewayPaymentID, signature string, completedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payments SET status=$2, gateway_payment_id=$3, signature=$4, completed_at=$5
		WHERE id = $1 AND status <> $2`,
		paymentID, PaymentCompleted, gatewayPaymentID, signature, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payments SET amount=$2, status=$3, order_id=$4, gateway_payment_id=$5,
			signature=$6, completed_at=$7, failure_reason=$8
		WHERE id = $1`,
		p.ID, p.Amount, p.Status, p.OrderID, p.GatewayPaymentID,
		p.Signature, p.CompletedAt, p.FailureReason)
	return err
}
