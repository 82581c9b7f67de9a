package models

// SlotStatus describes one candidate slot in a provider's day grid.
type SlotStatus struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Occupied  bool   `json:"occupied"`
}

// DayAvailability is the full availability grid for a provider and date.
type DayAvailability struct {
	ProviderID int64        `json:"provider_id"`
	Date       string       `json:"date"`
	ShiftStart string       `json:"shift_start"`
	ShiftEnd   string       `json:"shift_end"`
	IsDefault  bool         `json:"is_default_shift"`
	Slots      []SlotStatus `json:"slots"`
}

// AvailableProvider summarizes one provider able to take a booking on a date.
type AvailableProvider struct {
	ProviderID int64  `json:"provider_id"`
	ShiftStart string `json:"shift_start"`
	ShiftEnd   string `json:"shift_end"`
	FreeSlots  int    `json:"free_slots"`
}

// SufficientTime is the result of the contiguous free-time check performed
// before booking a duration at a start slot.
type SufficientTime struct {
	Available        bool `json:"available"`
	AvailableMinutes int  `json:"available_minutes"`
}

// ConflictSeverity grades advisory scheduling conflicts.
type ConflictSeverity string

const (
	SeverityLow    ConflictSeverity = "low"
	SeverityMedium ConflictSeverity = "medium"
	SeverityHigh   ConflictSeverity = "high"
)

// SchedulingConflict is an advisory conflict finding. Unlike the booking
// guard, detection returns these rather than failing the request.
type SchedulingConflict struct {
	Type                   string           `json:"type"`
	Description            string           `json:"description"`
	Severity               ConflictSeverity `json:"severity"`
	ConflictingAppointment *Appointment     `json:"conflicting_appointment,omitempty"`
}
