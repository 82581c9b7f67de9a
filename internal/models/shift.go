package models

import (
	"time"

	"github.com/lib/pq"
)

// CustomShift is a date-specific working-hours override entered by staff.
// Empty StartTime/EndTime means the provider was explicitly marked off that
// day, which is different from no custom shift existing at all.
type CustomShift struct {
	ID         int64     `db:"id" json:"id"`
	ProviderID int64     `db:"provider_id" json:"provider_id"`
	Date       string    `db:"shift_date" json:"date"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Closed reports whether the custom shift marks the provider off duty.
func (s CustomShift) Closed() bool {
	return s.StartTime == "" || s.EndTime == ""
}

// DefaultShift is a provider's recurring weekly working pattern. One row per
// provider; WorkingDays holds full weekday names ("Monday", ...).
type DefaultShift struct {
	ProviderID  int64          `db:"provider_id" json:"provider_id"`
	StartTime   string         `db:"start_time" json:"start_time"`
	EndTime     string         `db:"end_time" json:"end_time"`
	WorkingDays pq.StringArray `db:"working_days" json:"working_days"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// WorksOn reports whether the weekday name is part of the recurring pattern.
func (s DefaultShift) WorksOn(weekday string) bool {
	for _, day := range s.WorkingDays {
		if day == weekday {
			return true
		}
	}
	return false
}

// EffectiveShift is the single working interval that applies to a provider on
// a given date after custom-over-default precedence.
type EffectiveShift struct {
	ProviderID int64  `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	IsDefault  bool   `json:"is_default"`
}
