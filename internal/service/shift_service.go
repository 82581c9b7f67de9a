package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type shiftRepository interface {
	GetCustomShift(ctx context.Context, providerID int64, date string) (*models.CustomShift, error)
	ListCustomShifts(ctx context.Context, providerID int64, from, to string) ([]models.CustomShift, error)
	UpsertCustomShift(ctx context.Context, shift *models.CustomShift) error
	DeleteCustomShift(ctx context.Context, providerID int64, date string) error
	GetDefaultShift(ctx context.Context, providerID int64) (*models.DefaultShift, error)
	UpsertDefaultShift(ctx context.Context, shift *models.DefaultShift) error
}

// UpsertCustomShiftRequest creates or replaces a date-specific override.
// Leaving both times empty marks the provider off duty for that date.
type UpsertCustomShiftRequest struct {
	ProviderID int64  `json:"provider_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime    string `json:"end_time" validate:"omitempty,datetime=15:04"`
}

// UpsertDefaultShiftRequest replaces a provider's recurring weekly pattern.
type UpsertDefaultShiftRequest struct {
	ProviderID  int64    `json:"provider_id" validate:"required,gt=0"`
	StartTime   string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime     string   `json:"end_time" validate:"required,datetime=15:04"`
	WorkingDays []string `json:"working_days" validate:"required,min=1,dive,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
}

// ShiftService manages shift records. The scheduling core itself only ever
// reads shifts; writes come from staff through this service.
type ShiftService struct {
	repo         shiftRepository
	availability availabilityInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewShiftService constructs a ShiftService.
func NewShiftService(repo shiftRepository, availability availabilityInvalidator, validate *validator.Validate, logger *zap.Logger) *ShiftService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShiftService{repo: repo, availability: availability, validator: validate, logger: logger}
}

// ListCustomShifts returns overrides for a provider in an inclusive date range.
func (s *ShiftService) ListCustomShifts(ctx context.Context, providerID int64, from, to string) ([]models.CustomShift, error) {
	shifts, err := s.repo.ListCustomShifts(ctx, providerID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list custom shifts")
	}
	return shifts, nil
}

// UpsertCustomShift creates or replaces the override for a provider and date.
func (s *ShiftService) UpsertCustomShift(ctx context.Context, req UpsertCustomShiftRequest) (*models.CustomShift, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid custom shift payload")
	}
	if (req.StartTime == "") != (req.EndTime == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must both be set or both be empty")
	}
	if req.StartTime != "" {
		startMin, _ := parseClock(req.StartTime)
		endMin, _ := parseClock(req.EndTime)
		if startMin >= endMin {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
		}
	}

	shift := &models.CustomShift{
		ProviderID: req.ProviderID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if err := s.repo.UpsertCustomShift(ctx, shift); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save custom shift")
	}
	s.availability.Invalidate(ctx, req.ProviderID, req.Date)

	s.logger.Info("custom shift saved",
		zap.Int64("provider_id", req.ProviderID),
		zap.String("date", req.Date),
		zap.Bool("closed", shift.Closed()))
	return shift, nil
}

// DeleteCustomShift removes an override, letting the default pattern apply.
func (s *ShiftService) DeleteCustomShift(ctx context.Context, providerID int64, date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	if _, err := s.repo.GetCustomShift(ctx, providerID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "custom shift not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load custom shift")
	}
	if err := s.repo.DeleteCustomShift(ctx, providerID, date); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete custom shift")
	}
	s.availability.Invalidate(ctx, providerID, date)
	return nil
}

// GetDefaultShift returns a provider's recurring pattern.
func (s *ShiftService) GetDefaultShift(ctx context.Context, providerID int64) (*models.DefaultShift, error) {
	shift, err := s.repo.GetDefaultShift(ctx, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "default shift not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default shift")
	}
	return shift, nil
}

// UpsertDefaultShift replaces a provider's recurring weekly pattern.
func (s *ShiftService) UpsertDefaultShift(ctx context.Context, req UpsertDefaultShiftRequest) (*models.DefaultShift, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid default shift payload")
	}
	startMin, _ := parseClock(req.StartTime)
	endMin, _ := parseClock(req.EndTime)
	if startMin >= endMin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	shift := &models.DefaultShift{
		ProviderID:  req.ProviderID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		WorkingDays: req.WorkingDays,
	}
	if err := s.repo.UpsertDefaultShift(ctx, shift); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save default shift")
	}

	s.logger.Info("default shift saved",
		zap.Int64("provider_id", req.ProviderID),
		zap.Strings("working_days", req.WorkingDays))
	return shift, nil
}
