package dto

// SlotRecommendation is a scored candidate start slot for a booking.
type SlotRecommendation struct {
	Date    string   `json:"date"`
	Time    string   `json:"time"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// RescheduleRequest moves an existing appointment to a new wall-clock time.
type RescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at" validate:"required"`
	Reason      string `json:"reason" validate:"omitempty,max=500"`
}

// AutoRescheduleResponse reports where an appointment was moved, if anywhere.
type AutoRescheduleResponse struct {
	Rescheduled bool                `json:"rescheduled"`
	Slot        *SlotRecommendation `json:"slot,omitempty"`
}

// ExportResponse points at a rendered day-sheet artifact.
type ExportResponse struct {
	FileName  string `json:"file_name"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
