package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type bookingStore interface {
	ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error)
	CreateGuarded(ctx context.Context, appt *models.Appointment) error
}

type bookingNotifier interface {
	AppointmentBooked(ctx context.Context, appt *models.Appointment)
	BookingConflict(ctx context.Context, providerID, organizationID int64, scheduledAt time.Time)
}

type sufficientTimeChecker interface {
	CheckSufficientTime(ctx context.Context, providerID int64, date, startSlot string, durationMinutes int) (*models.SufficientTime, error)
	Invalidate(ctx context.Context, providerID int64, date string)
}

// BookingRequest is the draft a client submits to book an appointment.
type BookingRequest struct {
	OrganizationID int64  `json:"organization_id"`
	PatientID      int64  `json:"patient_id"`
	ProviderID     int64  `json:"provider_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ScheduledAt    string `json:"scheduled_at"`
	Duration       int    `json:"duration"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Location       string `json:"location"`
	IsVirtual      bool   `json:"is_virtual"`
}

// BookingConfig carries booking policy knobs.
type BookingConfig struct {
	RejectPastBookings bool
}

// BookingService validates and commits appointment bookings. The authoritative
// conflict check runs inside the store's guarded transaction; the availability
// pre-check exists so callers get a precise reason (including how many minutes
// were actually free) before the transaction is even attempted.
type BookingService struct {
	store        bookingStore
	availability sufficientTimeChecker
	notifier     bookingNotifier
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          BookingConfig
	now          func() time.Time
}

// NewBookingService wires the conflict-guarded booking pipeline.
func NewBookingService(store bookingStore, availability sufficientTimeChecker, notifier bookingNotifier, metrics *MetricsService, logger *zap.Logger, cfg BookingConfig) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		store:        store,
		availability: availability,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Book validates the draft, verifies availability and commits the appointment.
// All structural violations are collected and reported together; conflicts and
// transient lock failures surface as distinct error codes so callers know
// which are safe to retry blindly.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*models.Appointment, error) {
	details, scheduledAt := s.validateDraft(req)
	if len(details) > 0 {
		return nil, appErrors.Validation(details)
	}

	date := appointmentDate(scheduledAt)
	startSlot := appointmentClock(scheduledAt)

	sufficient, err := s.availability.CheckSufficientTime(ctx, req.ProviderID, date, startSlot, req.Duration)
	if err != nil {
		return nil, err
	}
	if !sufficient.Available {
		s.recordConflict(ctx, req, scheduledAt)
		conflict := appErrors.Clone(appErrors.ErrSlotConflict,
			fmt.Sprintf("insufficient contiguous free time: %d of %d minutes available from %s", sufficient.AvailableMinutes, req.Duration, startSlot))
		conflict.Details = []string{fmt.Sprintf("available_minutes=%d", sufficient.AvailableMinutes)}
		return nil, conflict
	}

	status := models.AppointmentStatus(req.Status)
	if req.Status == "" {
		status = models.AppointmentScheduled
	}
	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s appointment", req.Type)
	}

	appt := &models.Appointment{
		OrganizationID: req.OrganizationID,
		PatientID:      req.PatientID,
		ProviderID:     req.ProviderID,
		Title:          title,
		Description:    req.Description,
		ScheduledAt:    scheduledAt,
		Duration:       req.Duration,
		Status:         status,
		Type:           models.AppointmentType(req.Type),
		Location:       req.Location,
		IsVirtual:      req.IsVirtual,
	}

	if err := s.store.CreateGuarded(ctx, appt); err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrSlotConflict.Code {
			s.recordConflict(ctx, req, scheduledAt)
			return nil, err
		}
		if appErr.Code == appErrors.ErrRetryTimeout.Code {
			s.logger.Warn("booking transaction timed out",
				zap.Int64("provider_id", req.ProviderID),
				zap.String("date", date))
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.metrics.RecordBooking()
	s.availability.Invalidate(ctx, appt.ProviderID, date)
	if s.notifier != nil {
		s.notifier.AppointmentBooked(ctx, appt)
	}

	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("provider_id", appt.ProviderID),
		zap.Int64("patient_id", appt.PatientID),
		zap.Time("scheduled_at", appt.ScheduledAt),
		zap.Int("duration", appt.Duration))

	return appt, nil
}

func (s *BookingService) recordConflict(ctx context.Context, req BookingRequest, at time.Time) {
	s.metrics.RecordBookingConflict()
	if s.notifier != nil {
		s.notifier.BookingConflict(ctx, req.ProviderID, req.OrganizationID, at)
	}
}

// validateDraft collects every structural violation so the caller sees all
// problems at once instead of fixing them one round-trip at a time.
func (s *BookingService) validateDraft(req BookingRequest) ([]string, time.Time) {
	var details []string

	if req.PatientID <= 0 {
		details = append(details, "patient_id must be a positive identifier")
	}
	if req.ProviderID <= 0 {
		details = append(details, "provider_id must be a positive identifier")
	}
	if req.Title == "" && req.Type == "" {
		details = append(details, "title is required")
	}
	if len(req.Title) > 200 {
		details = append(details, "title must be at most 200 characters")
	}
	if len(req.Description) > 1000 {
		details = append(details, "description must be at most 1000 characters")
	}
	if !models.ValidDuration(req.Duration) {
		details = append(details, fmt.Sprintf("duration must be one of %v minutes", models.AllowedDurations))
	}
	if req.Type == "" || !models.ValidAppointmentType(models.AppointmentType(req.Type)) {
		details = append(details, fmt.Sprintf("type must be one of %v", models.AppointmentTypes))
	}
	if req.Status != "" && !models.ValidAppointmentStatus(models.AppointmentStatus(req.Status)) {
		details = append(details, fmt.Sprintf("status must be one of %v", models.AppointmentStatuses))
	}

	scheduledAt, err := parseWallClock(req.ScheduledAt)
	if err != nil {
		details = append(details, "scheduled_at must be a wall-clock timestamp like 2025-03-10T14:00:00")
		return details, time.Time{}
	}
	if scheduledAt.Minute()%slotInterval != 0 || scheduledAt.Second() != 0 {
		details = append(details, "scheduled_at must align to a 15-minute slot boundary")
	}
	if s.cfg.RejectPastBookings && scheduledAt.Before(s.now()) {
		details = append(details, "scheduled_at must not be in the past")
	}

	return details, scheduledAt
}

// parseWallClock parses a local wall-clock timestamp verbatim. No timezone
// conversion is applied anywhere in the scheduling core; values are stored and
// compared exactly as submitted.
func parseWallClock(value string) (time.Time, error) {
	if at, err := time.Parse(dateTimeLayout, value); err == nil {
		return at, nil
	}
	at, err := time.Parse("2006-01-02T15:04", value)
	if err != nil {
		return time.Time{}, errors.New("unparseable timestamp")
	}
	return at, nil
}
