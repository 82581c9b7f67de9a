package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cura-emr/scheduling-api/internal/models"
	"github.com/cura-emr/scheduling-api/pkg/jobs"
)

type memoryNotificationRepo struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (m *memoryNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *notification)
	return nil
}

func (m *memoryNotificationRepo) ListDue(ctx context.Context, before time.Time, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Notification
	for _, n := range m.notifications {
		if n.Status != "pending" || n.ScheduledFor == nil || n.ScheduledFor.After(before) {
			continue
		}
		due = append(due, n)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (m *memoryNotificationRepo) ListByUser(ctx context.Context, organizationID, userID int64, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if n.OrganizationID != organizationID || n.UserID != userID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryNotificationRepo) CancelPendingByEntity(ctx context.Context, entityType string, entityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.RelatedEntityType == entityType && n.RelatedEntityID == entityID && n.Status == "pending" && n.ScheduledFor != nil {
			n.Status = "cancelled"
		}
	}
	return nil
}

func (m *memoryNotificationRepo) MarkSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Status = "sent"
			return nil
		}
	}
	return nil
}

func (m *memoryNotificationRepo) byType(notificationType string) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.Type == notificationType {
			out = append(out, n)
		}
	}
	return out
}

func futureAppointment(hoursAhead int) *models.Appointment {
	return &models.Appointment{
		ID:             12,
		OrganizationID: 7,
		PatientID:      42,
		ProviderID:     3,
		ScheduledAt:    time.Now().Add(time.Duration(hoursAhead) * time.Hour).Truncate(time.Hour),
		Duration:       30,
		Status:         models.AppointmentScheduled,
		Type:           models.TypeConsultation,
	}
}

func TestAppointmentBookedCreatesConfirmationAndReminders(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	svc.AppointmentBooked(context.Background(), futureAppointment(72))

	confirmations := repo.byType(models.NotificationBookingConfirmed)
	require.Len(t, confirmations, 1)
	assert.Equal(t, int64(42), confirmations[0].UserID)
	assert.Equal(t, "pending", confirmations[0].Status)
	assert.NotEmpty(t, confirmations[0].ID)
	assert.Contains(t, confirmations[0].Message, "consultation")

	reminders := repo.byType(models.NotificationAppointmentReminder)
	require.Len(t, reminders, 2)
	for _, reminder := range reminders {
		require.NotNil(t, reminder.ScheduledFor)
		assert.True(t, reminder.ScheduledFor.After(time.Now()))
	}
}

func TestRemindersSkipOffsetsAlreadyPassed(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	// 3 hours out: the 24h reminder would fire in the past, only the 2h one fits.
	svc.AppointmentBooked(context.Background(), futureAppointment(3))

	assert.Len(t, repo.byType(models.NotificationAppointmentReminder), 1)
}

func TestBookingConflictAlertsProviderWithHighPriority(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	svc.BookingConflict(context.Background(), 3, 7, time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC))

	alerts := repo.byType(models.NotificationAppointmentUpdate)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.PriorityHigh, alerts[0].Priority)
	assert.Equal(t, int64(3), alerts[0].UserID)
	assert.Contains(t, alerts[0].Message, "2025-03-11 at 14:00")
}

func TestAppointmentRescheduledIncludesReason(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	appt := futureAppointment(72)
	previous := appt.ScheduledAt.Add(-48 * time.Hour)
	svc.AppointmentRescheduled(context.Background(), appt, previous, "provider emergency")

	updates := repo.byType(models.NotificationAppointmentUpdate)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Message, "Reason: provider emergency")
	assert.Len(t, repo.byType(models.NotificationAppointmentReminder), 2)
}

func TestRescheduleRetiresStaleReminders(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	appt := futureAppointment(72)
	svc.AppointmentBooked(context.Background(), appt)
	require.Len(t, repo.byType(models.NotificationAppointmentReminder), 2)

	previous := appt.ScheduledAt
	appt.ScheduledAt = previous.Add(24 * time.Hour)
	svc.AppointmentRescheduled(context.Background(), appt, previous, "")

	var pending, cancelled int
	for _, reminder := range repo.byType(models.NotificationAppointmentReminder) {
		switch reminder.Status {
		case "pending":
			pending++
			assert.True(t, reminder.ScheduledFor.After(previous), "pending reminders must target the new time")
		case "cancelled":
			cancelled++
		}
	}
	assert.Equal(t, 2, pending)
	assert.Equal(t, 2, cancelled)
}

func TestCancelledAppointmentRetiresReminders(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	appt := futureAppointment(72)
	svc.AppointmentBooked(context.Background(), appt)
	svc.AppointmentCancelled(context.Background(), appt)

	for _, reminder := range repo.byType(models.NotificationAppointmentReminder) {
		assert.Equal(t, "cancelled", reminder.Status)
	}
	updates := repo.byType(models.NotificationAppointmentUpdate)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Message, "has been cancelled")
}

func TestListForUserScopedToOrganization(t *testing.T) {
	repo := &memoryNotificationRepo{}
	svc := NewNotificationService(repo, nil)

	svc.AppointmentBooked(context.Background(), futureAppointment(72))
	svc.BookingConflict(context.Background(), 3, 7, time.Now().Add(48*time.Hour))

	mine, err := svc.ListForUser(context.Background(), 7, 42, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 3, "confirmation plus two reminders")
	for _, n := range mine {
		assert.Equal(t, int64(42), n.UserID)
	}

	foreign, err := svc.ListForUser(context.Background(), 999, 42, 10)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestHandleJobMarksNotificationSent(t *testing.T) {
	repo := &memoryNotificationRepo{notifications: []models.Notification{
		{ID: "n-1", Status: "pending"},
	}}
	svc := NewNotificationService(repo, nil)

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "n-1", Type: "notification.deliver", Payload: "n-1"})
	require.NoError(t, err)
	assert.Equal(t, "sent", repo.notifications[0].Status)
}

func TestHandleJobRejectsForeignPayload(t *testing.T) {
	svc := NewNotificationService(&memoryNotificationRepo{}, nil)

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "n-2", Payload: 42})
	assert.Error(t, err)
}

func TestDispatchDueDeliversThroughQueue(t *testing.T) {
	fireAt := time.Now().Add(-time.Minute)
	repo := &memoryNotificationRepo{notifications: []models.Notification{
		{ID: "due-1", Status: "pending", Type: models.NotificationAppointmentReminder, ScheduledFor: &fireAt},
		{ID: "due-2", Status: "pending", Type: models.NotificationAppointmentReminder, ScheduledFor: &fireAt},
	}}
	svc := NewNotificationService(repo, nil)

	queue := jobs.NewQueue("notifications-test", svc.HandleJob, jobs.QueueConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.AttachQueue(queue)

	dispatched, err := svc.DispatchDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.notifications[0].Status == "sent" && repo.notifications[1].Status == "sent"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatchDueWithoutQueuePersistsOnly(t *testing.T) {
	fireAt := time.Now().Add(-time.Minute)
	repo := &memoryNotificationRepo{notifications: []models.Notification{
		{ID: "due-1", Status: "pending", ScheduledFor: &fireAt},
	}}
	svc := NewNotificationService(repo, nil)

	dispatched, err := svc.DispatchDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}
