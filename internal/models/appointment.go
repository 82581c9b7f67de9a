package models

import "time"

// AppointmentStatus enumerates the appointment lifecycle states.
type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "scheduled"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCancelled   AppointmentStatus = "cancelled"
	AppointmentNoShow      AppointmentStatus = "no_show"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
)

// AppointmentType enumerates the supported visit types.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow_up"
	TypeProcedure    AppointmentType = "procedure"
	TypeRoutine      AppointmentType = "routine"
	TypeUrgent       AppointmentType = "urgent"
	TypeEmergency    AppointmentType = "emergency"
)

// AllowedDurations lists the accepted appointment lengths in minutes.
var AllowedDurations = []int{15, 30, 45, 60, 90, 120}

// AppointmentStatuses lists every valid lifecycle state.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentScheduled,
	AppointmentCompleted,
	AppointmentCancelled,
	AppointmentNoShow,
	AppointmentRescheduled,
}

// AppointmentTypes lists every valid visit type.
var AppointmentTypes = []AppointmentType{
	TypeConsultation,
	TypeFollowUp,
	TypeProcedure,
	TypeRoutine,
	TypeUrgent,
	TypeEmergency,
}

// Appointment represents a booked patient visit. ScheduledAt is a wall-clock
// local timestamp stored and compared verbatim; the scheduling core never
// applies timezone conversion to it.
type Appointment struct {
	ID             int64             `db:"id" json:"id"`
	OrganizationID int64             `db:"organization_id" json:"organization_id"`
	PatientID      int64             `db:"patient_id" json:"patient_id"`
	ProviderID     int64             `db:"provider_id" json:"provider_id"`
	Title          string            `db:"title" json:"title"`
	Description    string            `db:"description" json:"description"`
	ScheduledAt    time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Duration       int               `db:"duration" json:"duration"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Type           AppointmentType   `db:"type" json:"type"`
	Location       string            `db:"location" json:"location"`
	IsVirtual      bool              `db:"is_virtual" json:"is_virtual"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// EndsAt returns the exclusive end of the appointment's occupancy interval.
func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
}

// Blocks reports whether the appointment occupies its time span. Cancelled
// appointments release their slots.
func (a Appointment) Blocks() bool {
	return a.Status != AppointmentCancelled
}

// AppointmentFilter describes query params for listing appointments.
type AppointmentFilter struct {
	OrganizationID int64
	ProviderID     int64
	PatientID      int64
	Date           string
	Status         AppointmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// ValidDuration reports whether the requested length is on the whitelist.
func ValidDuration(minutes int) bool {
	for _, d := range AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// ValidAppointmentStatus reports whether the status is a known lifecycle state.
func ValidAppointmentStatus(status AppointmentStatus) bool {
	for _, s := range AppointmentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ValidAppointmentType reports whether the type is a known visit type.
func ValidAppointmentType(t AppointmentType) bool {
	for _, known := range AppointmentTypes {
		if known == t {
			return true
		}
	}
	return false
}
