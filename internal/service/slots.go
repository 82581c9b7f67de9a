package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cura-emr/scheduling-api/internal/models"
)

// slotInterval is the fixed candidate-slot granularity in minutes.
const slotInterval = 15

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// parseClock converts "HH:mm" into minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hours*60 + minutes, nil
}

// formatClock renders minutes since midnight as "HH:mm".
func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GenerateSlots expands a working interval into ordered 15-minute candidate
// slots over the half-open range [start, end). Output is sorted and
// de-duplicated; start >= end yields an empty sequence.
func GenerateSlots(start, end string) []string {
	startMin, err := parseClock(start)
	if err != nil {
		return nil
	}
	endMin, err := parseClock(end)
	if err != nil {
		return nil
	}
	if startMin >= endMin {
		return []string{}
	}

	seen := make(map[int]struct{})
	slots := make([]string, 0, (endMin-startMin)/slotInterval+1)
	for tick := startMin; tick < endMin; tick += slotInterval {
		if _, ok := seen[tick]; ok {
			continue
		}
		seen[tick] = struct{}{}
		slots = append(slots, formatClock(tick))
	}
	sort.Strings(slots)
	return slots
}

// slotsNeeded returns how many consecutive candidate slots a duration spans.
func slotsNeeded(durationMinutes int) int {
	return (durationMinutes + slotInterval - 1) / slotInterval
}

// appointmentDate extracts the calendar-day portion of a wall-clock timestamp
// verbatim, with no timezone conversion.
func appointmentDate(at time.Time) string {
	return at.Format(dateLayout)
}

// appointmentClock extracts the HH:mm portion of a wall-clock timestamp.
func appointmentClock(at time.Time) string {
	return at.Format(clockLayout)
}

// isOccupied reports whether a candidate slot falls inside any blocking
// appointment's [start, start+duration) interval on the given date. Only the
// slots an appointment actually covers count as occupied; whether a duration
// starting at an earlier slot would fit is the sufficient-time check's job.
func isOccupied(slot string, appointments []models.Appointment, providerID int64, date string) bool {
	slotMin, err := parseClock(slot)
	if err != nil {
		return false
	}
	for _, apt := range appointments {
		if apt.ProviderID != providerID || !apt.Blocks() {
			continue
		}
		if appointmentDate(apt.ScheduledAt) != date {
			continue
		}
		startMin, err := parseClock(appointmentClock(apt.ScheduledAt))
		if err != nil {
			continue
		}
		endMin := startMin + apt.Duration
		if startMin <= slotMin && slotMin < endMin {
			return true
		}
	}
	return false
}

// rangesOverlap tests half-open interval overlap.
func rangesOverlap(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}
