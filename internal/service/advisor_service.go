package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/dto"
	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type advisorAppointmentStore interface {
	FindByID(ctx context.Context, id, organizationID int64) (*models.Appointment, error)
	ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error)
	ListByLocationAndDate(ctx context.Context, organizationID int64, location, date string) ([]models.Appointment, error)
}

type advisorRescheduler interface {
	Reschedule(ctx context.Context, id, organizationID int64, newTime string, reason string) (*models.Appointment, error)
}

type dayAvailabilityProvider interface {
	DayAvailability(ctx context.Context, providerID int64, date string) (*models.DayAvailability, error)
	CheckSufficientTime(ctx context.Context, providerID int64, date, startSlot string, durationMinutes int) (*models.SufficientTime, error)
}

// TimePreference captures a patient's preferred part of the day.
type TimePreference string

const (
	PreferenceMorning   TimePreference = "morning"
	PreferenceAfternoon TimePreference = "afternoon"
	PreferenceFlexible  TimePreference = "flexible"
)

type patientPreferenceSource interface {
	TimePreference(ctx context.Context, patientID int64) TimePreference
}

// flexiblePreferences is the fallback when no preference data exists.
type flexiblePreferences struct{}

func (flexiblePreferences) TimePreference(ctx context.Context, patientID int64) TimePreference {
	return PreferenceFlexible
}

// AdvisorServiceConfig tunes the recommendation layer.
type AdvisorServiceConfig struct {
	RescheduleWindowDays int
}

// AdvisorService is the optional recommendation layer above the scheduling
// core: it scores free slots, flags multi-resource conflicts ahead of the
// authoritative guard, and proposes reschedules. Its conflict detection is
// advisory; the booking transaction remains the source of truth.
type AdvisorService struct {
	availability dayAvailabilityProvider
	store        advisorAppointmentStore
	appointments advisorRescheduler
	prefs        patientPreferenceSource
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          AdvisorServiceConfig
	now          func() time.Time
}

// NewAdvisorService wires the advisor dependencies.
func NewAdvisorService(availability dayAvailabilityProvider, store advisorAppointmentStore, appointments advisorRescheduler, prefs patientPreferenceSource, metrics *MetricsService, logger *zap.Logger, cfg AdvisorServiceConfig) *AdvisorService {
	if prefs == nil {
		prefs = flexiblePreferences{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RescheduleWindowDays <= 0 {
		cfg.RescheduleWindowDays = 7
	}
	return &AdvisorService{
		availability: availability,
		store:        store,
		appointments: appointments,
		prefs:        prefs,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// FindOptimalTimeSlots returns every start slot on the preferred date that can
// host the full duration, scored and sorted best first.
func (s *AdvisorService) FindOptimalTimeSlots(ctx context.Context, providerID int64, durationMinutes int, preferredDate string, patientID int64) ([]dto.SlotRecommendation, error) {
	if !models.ValidDuration(durationMinutes) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must be one of %v minutes", models.AllowedDurations))
	}

	grid, err := s.availability.DayAvailability(ctx, providerID, preferredDate)
	if err != nil {
		return nil, err
	}

	preference := s.prefs.TimePreference(ctx, patientID)
	recommendations := make([]dto.SlotRecommendation, 0, len(grid.Slots))
	for _, slot := range grid.Slots {
		if !slot.Available {
			continue
		}
		sufficient, err := s.availability.CheckSufficientTime(ctx, providerID, preferredDate, slot.Time, durationMinutes)
		if err != nil {
			return nil, err
		}
		if !sufficient.Available {
			continue
		}
		score, reasons := scoreSlot(slot.Time, preference)
		recommendations = append(recommendations, dto.SlotRecommendation{
			Date:    preferredDate,
			Time:    slot.Time,
			Score:   score,
			Reasons: reasons,
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})
	return recommendations, nil
}

// DetectSchedulingConflicts runs an advisory pre-check over a draft: provider
// double-booking plus room/location collisions. Findings are returned, never
// thrown; the guarded booking transaction stays authoritative.
func (s *AdvisorService) DetectSchedulingConflicts(ctx context.Context, draft BookingRequest) ([]models.SchedulingConflict, error) {
	scheduledAt, err := parseWallClock(draft.ScheduledAt)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be a wall-clock timestamp like 2025-03-10T14:00:00")
	}
	draftEnd := scheduledAt.Add(time.Duration(draft.Duration) * time.Minute)
	date := appointmentDate(scheduledAt)

	var conflicts []models.SchedulingConflict

	providerAppointments, err := s.store.ListByProviderAndDate(ctx, draft.ProviderID, date, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider appointments")
	}
	for i := range providerAppointments {
		existing := providerAppointments[i]
		if rangesOverlap(scheduledAt, draftEnd, existing.ScheduledAt, existing.EndsAt()) {
			conflicts = append(conflicts, models.SchedulingConflict{
				Type:                   "double_booking",
				Description:            "provider is already scheduled with another patient at this time",
				Severity:               models.SeverityHigh,
				ConflictingAppointment: &providerAppointments[i],
			})
		}
	}

	if draft.Location != "" {
		locationAppointments, err := s.store.ListByLocationAndDate(ctx, draft.OrganizationID, draft.Location, date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location appointments")
		}
		for i := range locationAppointments {
			existing := locationAppointments[i]
			if existing.ProviderID == draft.ProviderID {
				continue
			}
			if rangesOverlap(scheduledAt, draftEnd, existing.ScheduledAt, existing.EndsAt()) {
				conflicts = append(conflicts, models.SchedulingConflict{
					Type:                   "room_conflict",
					Description:            fmt.Sprintf("room %s is already booked at this time", draft.Location),
					Severity:               models.SeverityMedium,
					ConflictingAppointment: &locationAppointments[i],
				})
			}
		}
	}

	return conflicts, nil
}

// AutoReschedule searches forward from tomorrow for the first day with a
// recommendable slot and moves the appointment there. Returns a nil slot when
// the window is exhausted; the caller must surface that as a failure.
func (s *AdvisorService) AutoReschedule(ctx context.Context, appointmentID, organizationID int64, reason string) (*dto.SlotRecommendation, error) {
	appt, err := s.store.FindByID(ctx, appointmentID, organizationID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
	}

	searchStart := s.now().AddDate(0, 0, 1)
	for day := 0; day < s.cfg.RescheduleWindowDays; day++ {
		date := searchStart.AddDate(0, 0, day).Format(dateLayout)
		recommendations, err := s.FindOptimalTimeSlots(ctx, appt.ProviderID, appt.Duration, date, appt.PatientID)
		if err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrProviderUnavailable.Code {
				continue
			}
			return nil, err
		}
		if len(recommendations) == 0 {
			continue
		}

		best := recommendations[0]
		newTime := fmt.Sprintf("%sT%s:00", best.Date, best.Time)
		if _, err := s.appointments.Reschedule(ctx, appointmentID, organizationID, newTime, reason); err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrSlotConflict.Code {
				continue
			}
			return nil, err
		}

		s.metrics.RecordAutoReschedule()
		s.logger.Info("appointment auto-rescheduled",
			zap.Int64("appointment_id", appointmentID),
			zap.String("date", best.Date),
			zap.String("time", best.Time),
			zap.String("reason", reason))
		return &best, nil
	}

	return nil, nil
}

// scoreSlot applies the time-of-day heuristic: mornings score best, the lunch
// hour is penalised, and a matching patient preference earns a bonus.
func scoreSlot(slot string, preference TimePreference) (int, []string) {
	minutes, err := parseClock(slot)
	if err != nil {
		return 0, nil
	}
	hour := minutes / 60

	score := 50
	var reasons []string

	switch {
	case hour >= 9 && hour < 11:
		score += 20
		reasons = append(reasons, "optimal morning time slot")
	case hour >= 13 && hour < 15:
		score += 15
	case hour >= 11 && hour < 13:
		score += 10
	default:
		score += 5
	}

	if hour == 12 {
		score -= 15
		reasons = append(reasons, "lunch time - may cause delays")
	}

	switch {
	case preference == PreferenceMorning && hour < 12:
		score += 10
		reasons = append(reasons, "matches patient morning preference")
	case preference == PreferenceAfternoon && hour >= 12 && hour < 17:
		score += 10
		reasons = append(reasons, "matches patient afternoon preference")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	if score > 70 {
		reasons = append(reasons, "high efficiency time slot")
	}
	return score, reasons
}
