package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

const appointmentColumns = "id, organization_id, patient_id, provider_id, title, description, scheduled_at, duration, status, type, location, is_virtual, created_at, updated_at"

// guardRetries bounds how often a serialization failure is retried before the
// caller gets ErrRetryTimeout.
const guardRetries = 3

// AppointmentRepository manages persistence for appointments, including the
// conflict-guarded write path. All conflicting writes for the same provider
// and day serialize on a transaction-scoped advisory lock, bounded by
// lockTimeout so a contended lock surfaces as a retryable failure instead of
// blocking forever.
type AppointmentRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewAppointmentRepository constructs an AppointmentRepository. A
// non-positive lockTimeout falls back to 5s.
func NewAppointmentRepository(db *sqlx.DB, lockTimeout time.Duration, logger *zap.Logger) *AppointmentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &AppointmentRepository{db: db, lockTimeout: lockTimeout, logger: logger}
}

// List returns appointments matching the filter along with total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments WHERE organization_id = $1"
	args := []interface{}{filter.OrganizationID}

	if filter.ProviderID != 0 {
		args = append(args, filter.ProviderID)
		base += fmt.Sprintf(" AND provider_id = $%d", len(args))
	}
	if filter.PatientID != 0 {
		args = append(args, filter.PatientID)
		base += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		base += fmt.Sprintf(" AND scheduled_at::date = $%d", len(args))
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"scheduled_at": "scheduled_at",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
		"status":       "status",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "scheduled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", appointmentColumns, base, column, order, size, offset)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// FindByID fetches an appointment scoped to an organization.
func (r *AppointmentRepository) FindByID(ctx context.Context, id, organizationID int64) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1 AND organization_id = $2", appointmentColumns)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id, organizationID); err != nil {
		return nil, err
	}
	return &appt, nil
}

// ListByProviderAndDate returns a provider's appointments on a wall-clock
// date. The date comparison uses the stored timestamp as-is.
func (r *AppointmentRepository) ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE provider_id = $1 AND scheduled_at::date = $2", appointmentColumns)
	if excludeCancelled {
		query += " AND status <> 'cancelled'"
	}
	query += " ORDER BY scheduled_at ASC"

	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, providerID, date); err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	return appointments, nil
}

// ListByLocationAndDate returns non-cancelled appointments in a room on a date.
func (r *AppointmentRepository) ListByLocationAndDate(ctx context.Context, organizationID int64, location, date string) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE organization_id = $1 AND location = $2 AND scheduled_at::date = $3 AND is_virtual = FALSE AND status <> 'cancelled' ORDER BY scheduled_at ASC", appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, organizationID, location, date); err != nil {
		return nil, fmt.Errorf("list location appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus changes an appointment's status.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id, organizationID int64, status models.AppointmentStatus) error {
	const query = `UPDATE appointments SET status = $3, updated_at = $4 WHERE id = $1 AND organization_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, organizationID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateGuarded inserts the appointment inside the conflict guard: a
// serializable transaction holding an advisory lock for the provider's day,
// with the overlap check re-run under the lock. Serialization failures are
// retried a bounded number of times.
func (r *AppointmentRepository) CreateGuarded(ctx context.Context, appt *models.Appointment) error {
	return r.withGuardRetry(ctx, appt.ProviderID, appt.ScheduledAt, func(tx *sqlx.Tx) error {
		if err := r.checkOverlap(ctx, tx, appt, 0); err != nil {
			return err
		}

		var nextID int64
		if err := tx.GetContext(ctx, &nextID, "SELECT COALESCE(MAX(id), 0) + 1 FROM appointments"); err != nil {
			return fmt.Errorf("next appointment id: %w", err)
		}
		if appt.ID != 0 && appt.ID != nextID {
			r.logger.Warn("appointment id would break sequence, reassigning",
				zap.Int64("requested_id", appt.ID),
				zap.Int64("next_id", nextID))
		}
		appt.ID = nextID

		now := time.Now().UTC()
		appt.CreatedAt = now
		appt.UpdatedAt = now

		const query = `INSERT INTO appointments (id, organization_id, patient_id, provider_id, title, description, scheduled_at, duration, status, type, location, is_virtual, created_at, updated_at)
			VALUES (:id, :organization_id, :patient_id, :provider_id, :title, :description, :scheduled_at, :duration, :status, :type, :location, :is_virtual, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
}

// RescheduleGuarded moves an appointment to a new time under the same guard,
// locking the target day and excluding the appointment itself from the
// overlap check.
func (r *AppointmentRepository) RescheduleGuarded(ctx context.Context, appt *models.Appointment, newAt time.Time) error {
	return r.withGuardRetry(ctx, appt.ProviderID, newAt, func(tx *sqlx.Tx) error {
		moved := *appt
		moved.ScheduledAt = newAt
		if err := r.checkOverlap(ctx, tx, &moved, appt.ID); err != nil {
			return err
		}

		const query = `UPDATE appointments SET scheduled_at = $3, status = $4, updated_at = $5 WHERE id = $1 AND organization_id = $2`
		result, err := tx.ExecContext(ctx, query, appt.ID, appt.OrganizationID, newAt, models.AppointmentRescheduled, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// withGuardRetry runs fn inside a serializable transaction that holds the
// advisory lock for (provider, day), retrying serialization failures.
func (r *AppointmentRepository) withGuardRetry(ctx context.Context, providerID int64, at time.Time, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < guardRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrRetryTimeout.Code, appErrors.ErrRetryTimeout.Status, appErrors.ErrRetryTimeout.Message)
		}

		err := r.runGuarded(ctx, providerID, at, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}

		lastErr = err
		r.logger.Warn("booking transaction retry",
			zap.Int64("provider_id", providerID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return appErrors.Wrap(lastErr, appErrors.ErrRetryTimeout.Code, appErrors.ErrRetryTimeout.Status, appErrors.ErrRetryTimeout.Message)
}

func (r *AppointmentRepository) runGuarded(ctx context.Context, providerID int64, at time.Time, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Bounds the advisory lock wait: past the timeout Postgres raises 55P03,
	// which the retry loop treats as transient.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", int32(providerID), dayLockKey(at)); err != nil {
		return fmt.Errorf("acquire day lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

// checkOverlap re-runs the slot conflict test under the lock. excludeID skips
// the appointment being moved.
func (r *AppointmentRepository) checkOverlap(ctx context.Context, tx *sqlx.Tx, appt *models.Appointment, excludeID int64) error {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE provider_id = $1 AND scheduled_at::date = $2 AND status <> 'cancelled'", appointmentColumns)
	args := []interface{}{appt.ProviderID, appt.ScheduledAt.Format("2006-01-02")}
	if excludeID != 0 {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}

	var existing []models.Appointment
	if err := tx.SelectContext(ctx, &existing, query, args...); err != nil {
		return fmt.Errorf("load day appointments: %w", err)
	}

	newStart := appt.ScheduledAt
	newEnd := appt.EndsAt()
	for _, other := range existing {
		if newStart.Before(other.EndsAt()) && newEnd.After(other.ScheduledAt) {
			return appErrors.Clone(appErrors.ErrSlotConflict,
				fmt.Sprintf("time slot overlaps appointment %d (%s)", other.ID, other.ScheduledAt.Format("15:04")))
		}
	}
	return nil
}

// dayLockKey collapses a wall-clock timestamp onto its day for the advisory
// lock's second key.
func dayLockKey(at time.Time) int32 {
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / 86400)
}

func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure, deadlock_detected, lock_not_available, plus
	// unique_violation: the max+1 id can collide across providers whose
	// advisory locks do not overlap, and a retry recomputes it under a fresh
	// transaction.
	switch pqErr.Code {
	case "40001", "40P01", "55P03", "23505":
		return true
	}
	return false
}
