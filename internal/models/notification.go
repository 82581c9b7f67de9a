package models

import "time"

// NotificationPriority grades how urgently a notification should surface.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is a persisted domain event emitted by the scheduling core:
// booking confirmations, conflicts, reschedules and reminders. Delivery is
// fire-and-forget; a failed notification never affects a booking outcome.
type Notification struct {
	ID                string               `db:"id" json:"id"`
	OrganizationID    int64                `db:"organization_id" json:"organization_id"`
	UserID            int64                `db:"user_id" json:"user_id"`
	Title             string               `db:"title" json:"title"`
	Message           string               `db:"message" json:"message"`
	Type              string               `db:"type" json:"type"`
	Priority          NotificationPriority `db:"priority" json:"priority"`
	Status            string               `db:"status" json:"status"`
	RelatedEntityType string               `db:"related_entity_type" json:"related_entity_type"`
	RelatedEntityID   int64                `db:"related_entity_id" json:"related_entity_id"`
	ScheduledFor      *time.Time           `db:"scheduled_for" json:"scheduled_for,omitempty"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
}

// Notification type constants used by the scheduling services.
const (
	NotificationBookingConfirmed    = "appointment_booked"
	NotificationAppointmentUpdate   = "appointment_update"
	NotificationAppointmentReminder = "appointment_reminder"
)
