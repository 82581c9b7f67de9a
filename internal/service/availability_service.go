package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type dayAppointmentReader interface {
	ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error)
}

type effectiveShiftResolver interface {
	ResolveEffectiveShift(ctx context.Context, providerID int64, date string) (*models.EffectiveShift, error)
}

type providerDirectory interface {
	ListProviderIDs(ctx context.Context) ([]int64, error)
}

// AvailabilityService is the single place slot availability is derived.
// UI, API and batch callers all go through it instead of re-implementing
// slot math.
type AvailabilityService struct {
	resolver     effectiveShiftResolver
	appointments dayAppointmentReader
	providers    providerDirectory
	cache        *CacheService
	logger       *zap.Logger
}

// NewAvailabilityService wires availability dependencies.
func NewAvailabilityService(resolver effectiveShiftResolver, appointments dayAppointmentReader, cache *CacheService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{resolver: resolver, appointments: appointments, cache: cache, logger: logger}
}

// AttachProviderDirectory enables the cross-provider listing endpoint.
func (s *AvailabilityService) AttachProviderDirectory(providers providerDirectory) {
	s.providers = providers
}

func availabilityCacheKey(providerID int64, date string) string {
	return fmt.Sprintf("availability:%d:%s", providerID, date)
}

// DayAvailability returns the provider's full slot grid for a date. Cached
// per provider and date; invalidated whenever a booking mutates the day.
func (s *AvailabilityService) DayAvailability(ctx context.Context, providerID int64, date string) (*models.DayAvailability, error) {
	key := availabilityCacheKey(providerID, date)
	if s.cache.Enabled() {
		var cached models.DayAvailability
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	shift, err := s.resolver.ResolveEffectiveShift(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	appointments, err := s.appointments.ListByProviderAndDate(ctx, providerID, date, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	grid := &models.DayAvailability{
		ProviderID: providerID,
		Date:       date,
		ShiftStart: shift.StartTime,
		ShiftEnd:   shift.EndTime,
		IsDefault:  shift.IsDefault,
	}
	for _, slot := range GenerateSlots(shift.StartTime, shift.EndTime) {
		occupied := isOccupied(slot, appointments, providerID, date)
		grid.Slots = append(grid.Slots, models.SlotStatus{
			Time:      slot,
			Available: !occupied,
			Occupied:  occupied,
		})
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, grid, 0); err != nil {
			s.logger.Warn("availability cache write failed", zap.Error(err))
		}
	}
	return grid, nil
}

// CheckSufficientTime verifies a contiguous free block of the requested
// duration starting at startSlot. Every needed 15-minute slot must lie inside
// the effective shift window and be unoccupied; the walk stops at the first
// failing slot and reports how many minutes were actually free. This is what
// keeps a booking from running past shift end or into a later appointment
// even when the start slot itself looks open.
func (s *AvailabilityService) CheckSufficientTime(ctx context.Context, providerID int64, date, startSlot string, durationMinutes int) (*models.SufficientTime, error) {
	if _, err := parseClock(startSlot); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start slot %q", startSlot))
	}

	shift, err := s.resolver.ResolveEffectiveShift(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	appointments, err := s.appointments.ListByProviderAndDate(ctx, providerID, date, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	window := make(map[string]struct{})
	for _, slot := range GenerateSlots(shift.StartTime, shift.EndTime) {
		window[slot] = struct{}{}
	}

	start, _ := parseClock(startSlot)
	needed := slotsNeeded(durationMinutes)
	confirmed := 0
	for i := 0; i < needed; i++ {
		slot := formatClock(start + i*slotInterval)
		if _, inside := window[slot]; !inside {
			break
		}
		if isOccupied(slot, appointments, providerID, date) {
			break
		}
		confirmed++
	}

	if confirmed < needed {
		return &models.SufficientTime{Available: false, AvailableMinutes: confirmed * slotInterval}, nil
	}
	return &models.SufficientTime{Available: true, AvailableMinutes: durationMinutes}, nil
}

// AvailableProviders lists every provider on the roster who can take a
// booking on the date. With a start slot and duration, only providers with a
// sufficient contiguous block from that slot qualify; without one, any
// provider with at least one free slot does. Providers with no effective
// shift on the date are skipped rather than treated as errors.
func (s *AvailabilityService) AvailableProviders(ctx context.Context, date, startSlot string, durationMinutes int) ([]models.AvailableProvider, error) {
	if s.providers == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "provider directory is not configured")
	}
	if startSlot != "" {
		if _, err := parseClock(startSlot); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start slot %q", startSlot))
		}
		if !models.ValidDuration(durationMinutes) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must be one of %v minutes", models.AllowedDurations))
		}
	}

	ids, err := s.providers.ListProviderIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list providers")
	}

	out := make([]models.AvailableProvider, 0, len(ids))
	for _, id := range ids {
		day, err := s.DayAvailability(ctx, id, date)
		if err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrProviderUnavailable.Code {
				continue
			}
			return nil, err
		}

		free := 0
		for _, slot := range day.Slots {
			if slot.Available {
				free++
			}
		}
		if free == 0 {
			continue
		}

		if startSlot != "" {
			block, err := s.CheckSufficientTime(ctx, id, date, startSlot, durationMinutes)
			if err != nil {
				return nil, err
			}
			if !block.Available {
				continue
			}
		}

		out = append(out, models.AvailableProvider{
			ProviderID: id,
			ShiftStart: day.ShiftStart,
			ShiftEnd:   day.ShiftEnd,
			FreeSlots:  free,
		})
	}
	return out, nil
}

// Invalidate drops the cached grid for a provider's day after a mutation.
func (s *AvailabilityService) Invalidate(ctx context.Context, providerID int64, date string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, availabilityCacheKey(providerID, date)); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			zap.Int64("provider_id", providerID),
			zap.String("date", date),
			zap.Error(err))
	}
}
