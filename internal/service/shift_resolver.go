package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type customShiftReader interface {
	GetCustomShift(ctx context.Context, providerID int64, date string) (*models.CustomShift, error)
}

type defaultShiftReader interface {
	GetDefaultShift(ctx context.Context, providerID int64) (*models.DefaultShift, error)
}

// ShiftResolver computes the effective working interval for a provider on a
// date. Custom shifts override the recurring default; an explicit custom shift
// with no hours marks the provider off duty for that exact date.
type ShiftResolver struct {
	custom   customShiftReader
	defaults defaultShiftReader
}

// NewShiftResolver wires the two read-only shift sources.
func NewShiftResolver(custom customShiftReader, defaults defaultShiftReader) *ShiftResolver {
	return &ShiftResolver{custom: custom, defaults: defaults}
}

// ResolveEffectiveShift returns the working interval that applies to the
// provider on the given date, or ErrProviderUnavailable describing why none
// does. Pure over its two data sources; no side effects.
func (r *ShiftResolver) ResolveEffectiveShift(ctx context.Context, providerID int64, date string) (*models.EffectiveShift, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}

	custom, err := r.custom.GetCustomShift(ctx, providerID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load custom shift")
	}
	if custom != nil {
		if custom.Closed() {
			return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "provider is marked unavailable on this date")
		}
		return &models.EffectiveShift{
			ProviderID: providerID,
			Date:       date,
			StartTime:  custom.StartTime,
			EndTime:    custom.EndTime,
			IsDefault:  false,
		}, nil
	}

	def, err := r.defaults.GetDefaultShift(ctx, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "provider has no default shift configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default shift")
	}

	weekday := weekdayName(date)
	if !def.WorksOn(weekday) {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, fmt.Sprintf("provider does not work on %s", weekday))
	}

	return &models.EffectiveShift{
		ProviderID: providerID,
		Date:       date,
		StartTime:  def.StartTime,
		EndTime:    def.EndTime,
		IsDefault:  true,
	}, nil
}

// weekdayName returns the full weekday name for a YYYY-MM-DD date.
func weekdayName(date string) string {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return ""
	}
	return day.Weekday().String()
}
