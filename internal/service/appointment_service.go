package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type appointmentStore interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	FindByID(ctx context.Context, id, organizationID int64) (*models.Appointment, error)
	RescheduleGuarded(ctx context.Context, appt *models.Appointment, newAt time.Time) error
	UpdateStatus(ctx context.Context, id, organizationID int64, status models.AppointmentStatus) error
}

type rescheduleNotifier interface {
	AppointmentRescheduled(ctx context.Context, appt *models.Appointment, previous time.Time, reason string)
	AppointmentCancelled(ctx context.Context, appt *models.Appointment)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, providerID int64, date string)
}

// AppointmentService covers the appointment lifecycle outside the initial
// booking: listing, lookup, cancellation and rescheduling. Reschedules go
// through the same availability check and guarded transaction as bookings.
type AppointmentService struct {
	store        appointmentStore
	availability sufficientTimeChecker
	notifier     rescheduleNotifier
	logger       *zap.Logger
}

// NewAppointmentService wires appointment lifecycle dependencies.
func NewAppointmentService(store appointmentStore, availability sufficientTimeChecker, notifier rescheduleNotifier, logger *zap.Logger) *AppointmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{store: store, availability: availability, notifier: notifier, logger: logger}
}

// List returns appointments with pagination metadata.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	appointments, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return appointments, pagination, nil
}

// Get returns an appointment by id scoped to the organization.
func (s *AppointmentService) Get(ctx context.Context, id, organizationID int64) (*models.Appointment, error) {
	appt, err := s.store.FindByID(ctx, id, organizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// Cancel marks the appointment cancelled, releasing its slots. The record is
// kept; the lifecycle is soft.
func (s *AppointmentService) Cancel(ctx context.Context, id, organizationID int64) (*models.Appointment, error) {
	appt, err := s.Get(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.AppointmentCancelled {
		return appt, nil
	}
	if err := s.store.UpdateStatus(ctx, id, organizationID, models.AppointmentCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	appt.Status = models.AppointmentCancelled
	s.availability.Invalidate(ctx, appt.ProviderID, appointmentDate(appt.ScheduledAt))
	if s.notifier != nil {
		s.notifier.AppointmentCancelled(ctx, appt)
	}

	s.logger.Info("appointment cancelled",
		zap.Int64("appointment_id", id),
		zap.Int64("provider_id", appt.ProviderID))
	return appt, nil
}

// Reschedule moves an appointment to a new wall-clock time after the guarded
// conflict check. Both the old and the new day lose their cached grids.
func (s *AppointmentService) Reschedule(ctx context.Context, id, organizationID int64, newTime string, reason string) (*models.Appointment, error) {
	newAt, err := parseWallClock(newTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be a wall-clock timestamp like 2025-03-10T14:00:00")
	}
	if newAt.Minute()%slotInterval != 0 || newAt.Second() != 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must align to a 15-minute slot boundary")
	}

	appt, err := s.Get(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.AppointmentCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot reschedule a cancelled appointment")
	}

	// Same availability definition as booking: the target must sit inside the
	// provider's effective shift with a contiguous free block. Skipped when the
	// new block intersects the appointment's own current slots, which the
	// pre-check would count as occupied; the guarded transaction excludes the
	// appointment itself and remains authoritative there.
	newEnd := newAt.Add(time.Duration(appt.Duration) * time.Minute)
	overlapsSelf := newAt.Before(appt.EndsAt()) && newEnd.After(appt.ScheduledAt)
	if !overlapsSelf {
		startSlot := appointmentClock(newAt)
		sufficient, err := s.availability.CheckSufficientTime(ctx, appt.ProviderID, appointmentDate(newAt), startSlot, appt.Duration)
		if err != nil {
			return nil, err
		}
		if !sufficient.Available {
			conflict := appErrors.Clone(appErrors.ErrSlotConflict,
				fmt.Sprintf("insufficient contiguous free time: %d of %d minutes available from %s", sufficient.AvailableMinutes, appt.Duration, startSlot))
			conflict.Details = []string{fmt.Sprintf("available_minutes=%d", sufficient.AvailableMinutes)}
			return nil, conflict
		}
	}

	previous := appt.ScheduledAt
	if err := s.store.RescheduleGuarded(ctx, appt, newAt); err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrSlotConflict.Code || appErr.Code == appErrors.ErrRetryTimeout.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule appointment")
	}

	appt.ScheduledAt = newAt
	appt.Status = models.AppointmentRescheduled
	s.availability.Invalidate(ctx, appt.ProviderID, appointmentDate(previous))
	s.availability.Invalidate(ctx, appt.ProviderID, appointmentDate(newAt))
	if s.notifier != nil {
		s.notifier.AppointmentRescheduled(ctx, appt, previous, reason)
	}

	s.logger.Info("appointment rescheduled",
		zap.Int64("appointment_id", id),
		zap.Time("from", previous),
		zap.Time("to", newAt),
		zap.String("reason", reason))
	return appt, nil
}

// DaySheet returns the provider's non-cancelled appointments for a date
// within the organization, ordered by start time. Used by the export service.
func (s *AppointmentService) DaySheet(ctx context.Context, organizationID, providerID int64, date string) ([]models.Appointment, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}
	appointments, _, err := s.store.List(ctx, models.AppointmentFilter{
		OrganizationID: organizationID,
		ProviderID:     providerID,
		Date:           date,
		SortBy:         "scheduled_at",
		SortOrder:      "ASC",
		PageSize:       100,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day sheet")
	}
	sheet := make([]models.Appointment, 0, len(appointments))
	for _, appt := range appointments {
		if appt.Blocks() {
			sheet = append(sheet, appt)
		}
	}
	return sheet, nil
}
