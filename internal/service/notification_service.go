package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	"github.com/cura-emr/scheduling-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.Notification, error)
	ListByUser(ctx context.Context, organizationID, userID int64, limit int) ([]models.Notification, error)
	CancelPendingByEntity(ctx context.Context, entityType string, entityID int64) error
	MarkSent(ctx context.Context, id string) error
}

// reminderOffsets are how far ahead of the appointment each reminder fires.
var reminderOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour}

// NotificationService persists scheduling events as notifications and hands
// them to a background queue for delivery. Everything here is best-effort:
// failures are logged and never propagated back to the scheduling path.
type NotificationService struct {
	repo   notificationRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service. The queue may be nil, in
// which case notifications are persisted but not dispatched.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// AttachQueue wires the dispatch queue after construction. The queue handler
// delivers notifications created by this service.
func (s *NotificationService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// HandleJob is the queue handler: it marks the notification delivered. A real
// deployment would fan out to email or push providers here.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("notification job %s has payload type %T", job.ID, job.Payload)
	}
	if err := s.repo.MarkSent(ctx, id); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	s.logger.Debug("notification delivered", zap.String("notification_id", id))
	return nil
}

// AppointmentBooked records a confirmation for the patient plus reminder rows
// ahead of the appointment time.
func (s *NotificationService) AppointmentBooked(ctx context.Context, appt *models.Appointment) {
	title := "Appointment Confirmed"
	message := fmt.Sprintf("Your %s is confirmed for %s at %s.",
		appt.Type, appointmentDate(appt.ScheduledAt), appointmentClock(appt.ScheduledAt))

	s.create(ctx, &models.Notification{
		OrganizationID:    appt.OrganizationID,
		UserID:            appt.PatientID,
		Title:             title,
		Message:           message,
		Type:              models.NotificationBookingConfirmed,
		Priority:          models.PriorityNormal,
		RelatedEntityType: "appointment",
		RelatedEntityID:   appt.ID,
	}, true)

	s.scheduleReminders(ctx, appt)
}

// BookingConflict records a high-priority alert for clinic staff when a
// booking attempt loses the conflict race.
func (s *NotificationService) BookingConflict(ctx context.Context, providerID, organizationID int64, scheduledAt time.Time) {
	s.create(ctx, &models.Notification{
		OrganizationID: organizationID,
		UserID:         providerID,
		Title:          "Booking Conflict",
		Message: fmt.Sprintf("A booking attempt for %s at %s collided with an existing appointment.",
			appointmentDate(scheduledAt), appointmentClock(scheduledAt)),
		Type:              models.NotificationAppointmentUpdate,
		Priority:          models.PriorityHigh,
		RelatedEntityType: "provider",
		RelatedEntityID:   providerID,
	}, true)
}

// AppointmentRescheduled notifies the patient of the move and refreshes the
// reminder schedule for the new time.
func (s *NotificationService) AppointmentRescheduled(ctx context.Context, appt *models.Appointment, previous time.Time, reason string) {
	message := fmt.Sprintf("Your appointment has moved from %s %s to %s %s.",
		appointmentDate(previous), appointmentClock(previous),
		appointmentDate(appt.ScheduledAt), appointmentClock(appt.ScheduledAt))
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}

	s.create(ctx, &models.Notification{
		OrganizationID:    appt.OrganizationID,
		UserID:            appt.PatientID,
		Title:             "Appointment Rescheduled",
		Message:           message,
		Type:              models.NotificationAppointmentUpdate,
		Priority:          models.PriorityNormal,
		RelatedEntityType: "appointment",
		RelatedEntityID:   appt.ID,
	}, true)

	s.scheduleReminders(ctx, appt)
}

// AppointmentCancelled retires the appointment's pending reminders and tells
// the patient.
func (s *NotificationService) AppointmentCancelled(ctx context.Context, appt *models.Appointment) {
	s.cancelReminders(ctx, appt.ID)

	s.create(ctx, &models.Notification{
		OrganizationID: appt.OrganizationID,
		UserID:         appt.PatientID,
		Title:          "Appointment Cancelled",
		Message: fmt.Sprintf("Your %s on %s at %s has been cancelled.",
			appt.Type, appointmentDate(appt.ScheduledAt), appointmentClock(appt.ScheduledAt)),
		Type:              models.NotificationAppointmentUpdate,
		Priority:          models.PriorityNormal,
		RelatedEntityType: "appointment",
		RelatedEntityID:   appt.ID,
	}, true)
}

// ListForUser returns a user's notifications within the organization, newest
// first.
func (s *NotificationService) ListForUser(ctx context.Context, organizationID, userID int64, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, organizationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}
	return notifications, nil
}

// DispatchDue enqueues reminders whose scheduled time has arrived. Intended to
// run on a ticker from main.
func (s *NotificationService) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("list due notifications: %w", err)
	}
	dispatched := 0
	for i := range due {
		if s.enqueue(due[i].ID) {
			dispatched++
		}
	}
	return dispatched, nil
}

// scheduleReminders replaces the appointment's reminder schedule: whatever is
// still pending for it gets cancelled before the rows for the current time are
// written, so a reschedule never leaves reminders pointing at the old slot.
func (s *NotificationService) scheduleReminders(ctx context.Context, appt *models.Appointment) {
	s.cancelReminders(ctx, appt.ID)
	for _, offset := range reminderOffsets {
		fireAt := appt.ScheduledAt.Add(-offset)
		if !fireAt.After(time.Now()) {
			continue
		}
		at := fireAt
		s.create(ctx, &models.Notification{
			OrganizationID: appt.OrganizationID,
			UserID:         appt.PatientID,
			Title:          "Appointment Reminder",
			Message: fmt.Sprintf("Reminder: your %s is on %s at %s.",
				appt.Type, appointmentDate(appt.ScheduledAt), appointmentClock(appt.ScheduledAt)),
			Type:              models.NotificationAppointmentReminder,
			Priority:          models.PriorityNormal,
			RelatedEntityType: "appointment",
			RelatedEntityID:   appt.ID,
			ScheduledFor:      &at,
		}, false)
	}
}

func (s *NotificationService) cancelReminders(ctx context.Context, appointmentID int64) {
	if err := s.repo.CancelPendingByEntity(ctx, "appointment", appointmentID); err != nil {
		s.logger.Warn("failed to cancel stale reminders",
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err))
	}
}

func (s *NotificationService) create(ctx context.Context, notification *models.Notification, dispatchNow bool) {
	notification.ID = uuid.NewString()
	notification.Status = "pending"
	notification.CreatedAt = time.Now().UTC()

	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("failed to persist notification",
			zap.String("type", notification.Type),
			zap.Int64("user_id", notification.UserID),
			zap.Error(err))
		return
	}
	if dispatchNow {
		s.enqueue(notification.ID)
	}
}

func (s *NotificationService) enqueue(id string) bool {
	if s.queue == nil {
		return false
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      id,
		Type:    "notification.deliver",
		Payload: id,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("notification_id", id), zap.Error(err))
		return false
	}
	return true
}
