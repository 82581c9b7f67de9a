package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cura-emr/scheduling-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreateAndMarkSent(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Notification{
		ID:             "n-1",
		OrganizationID: 7,
		UserID:         42,
		Title:          "Appointment Confirmed",
		Type:           models.NotificationBookingConfirmed,
		Priority:       models.PriorityNormal,
		Status:         "pending",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE notifications SET status = 'sent'").
		WithArgs("n-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "n-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListByUser(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "organization_id", "user_id", "title", "message", "type", "priority", "status", "related_entity_type", "related_entity_id", "scheduled_for", "created_at"}).
		AddRow("n-3", int64(7), int64(42), "Appointment Confirmed", "Confirmed", "booking_confirmed", "normal", "sent", "appointment", int64(5), nil, time.Now())

	mock.ExpectQuery("SELECT id, organization_id, .+ FROM notifications WHERE organization_id = \\$1 AND user_id = \\$2 ORDER BY created_at DESC LIMIT 10").
		WithArgs(int64(7), int64(42)).
		WillReturnRows(rows)

	notifications, err := repo.ListByUser(context.Background(), 7, 42, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "n-3", notifications[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCancelPendingByEntity(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET status = 'cancelled'").
		WithArgs("appointment", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CancelPendingByEntity(context.Background(), "appointment", 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListDue(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	fireAt := time.Now().Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "user_id", "title", "message", "type", "priority", "status", "related_entity_type", "related_entity_id", "scheduled_for", "created_at"}).
		AddRow("n-2", int64(7), int64(42), "Appointment Reminder", "Reminder", "appointment_reminder", "normal", "pending", "appointment", int64(5), fireAt, time.Now())

	mock.ExpectQuery("SELECT id, organization_id, .+ FROM notifications WHERE status = 'pending' AND scheduled_for IS NOT NULL").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	due, err := repo.ListDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.NotificationAppointmentReminder, due[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}
