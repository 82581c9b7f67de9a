package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cura-emr/scheduling-api/internal/models"
)

const customShiftColumns = "id, provider_id, shift_date, start_time, end_time, created_at, updated_at"

// ShiftRepository manages custom and default shift persistence.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs a ShiftRepository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// GetCustomShift fetches the date-specific override for a provider. Returns
// sql.ErrNoRows when no override exists for the date.
func (r *ShiftRepository) GetCustomShift(ctx context.Context, providerID int64, date string) (*models.CustomShift, error) {
	query := fmt.Sprintf("SELECT %s FROM custom_shifts WHERE provider_id = $1 AND shift_date = $2", customShiftColumns)
	var shift models.CustomShift
	if err := r.db.GetContext(ctx, &shift, query, providerID, date); err != nil {
		return nil, err
	}
	return &shift, nil
}

// ListCustomShifts returns a provider's overrides inside a date range.
func (r *ShiftRepository) ListCustomShifts(ctx context.Context, providerID int64, from, to string) ([]models.CustomShift, error) {
	query := fmt.Sprintf("SELECT %s FROM custom_shifts WHERE provider_id = $1 AND shift_date >= $2 AND shift_date <= $3 ORDER BY shift_date ASC", customShiftColumns)
	var shifts []models.CustomShift
	if err := r.db.SelectContext(ctx, &shifts, query, providerID, from, to); err != nil {
		return nil, fmt.Errorf("list custom shifts: %w", err)
	}
	return shifts, nil
}

// UpsertCustomShift creates or replaces the override for the shift's date.
func (r *ShiftRepository) UpsertCustomShift(ctx context.Context, shift *models.CustomShift) error {
	now := time.Now().UTC()
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = now
	}
	shift.UpdatedAt = now

	const query = `INSERT INTO custom_shifts (provider_id, shift_date, start_time, end_time, created_at, updated_at)
		VALUES (:provider_id, :shift_date, :start_time, :end_time, :created_at, :updated_at)
		ON CONFLICT (provider_id, shift_date)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, shift); err != nil {
		return fmt.Errorf("upsert custom shift: %w", err)
	}
	return nil
}

// DeleteCustomShift removes the override, restoring the default shift for the date.
func (r *ShiftRepository) DeleteCustomShift(ctx context.Context, providerID int64, date string) error {
	const query = `DELETE FROM custom_shifts WHERE provider_id = $1 AND shift_date = $2`
	if _, err := r.db.ExecContext(ctx, query, providerID, date); err != nil {
		return fmt.Errorf("delete custom shift: %w", err)
	}
	return nil
}

// ListProviderIDs returns every provider known to the shift tables, custom
// or default. This is the roster the availability listing iterates over.
func (r *ShiftRepository) ListProviderIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT provider_id FROM default_shifts
		UNION
		SELECT provider_id FROM custom_shifts
		ORDER BY provider_id ASC`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list provider ids: %w", err)
	}
	return ids, nil
}

// GetDefaultShift fetches the provider's recurring weekly shift. Returns
// sql.ErrNoRows when the provider has none configured.
func (r *ShiftRepository) GetDefaultShift(ctx context.Context, providerID int64) (*models.DefaultShift, error) {
	const query = `SELECT provider_id, start_time, end_time, working_days, updated_at FROM default_shifts WHERE provider_id = $1`
	var shift models.DefaultShift
	if err := r.db.GetContext(ctx, &shift, query, providerID); err != nil {
		return nil, err
	}
	return &shift, nil
}

// UpsertDefaultShift creates or replaces the provider's recurring shift.
func (r *ShiftRepository) UpsertDefaultShift(ctx context.Context, shift *models.DefaultShift) error {
	shift.UpdatedAt = time.Now().UTC()

	const query = `INSERT INTO default_shifts (provider_id, start_time, end_time, working_days, updated_at)
		VALUES (:provider_id, :start_time, :end_time, :working_days, :updated_at)
		ON CONFLICT (provider_id)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, working_days = EXCLUDED.working_days, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, shift); err != nil {
		return fmt.Errorf("upsert default shift: %w", err)
	}
	return nil
}
