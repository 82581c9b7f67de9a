package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type mockDayReader struct {
	appointments []models.Appointment
}

func (m *mockDayReader) ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, appt := range m.appointments {
		if appt.ProviderID != providerID || appointmentDate(appt.ScheduledAt) != date {
			continue
		}
		if excludeCancelled && appt.Status == models.AppointmentCancelled {
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

type fixedResolver struct {
	shift *models.EffectiveShift
	err   error
}

func (f *fixedResolver) ResolveEffectiveShift(ctx context.Context, providerID int64, date string) (*models.EffectiveShift, error) {
	if f.err != nil {
		return nil, f.err
	}
	shift := *f.shift
	shift.ProviderID = providerID
	shift.Date = date
	return &shift, nil
}

func nineToFive() *fixedResolver {
	return &fixedResolver{shift: &models.EffectiveShift{StartTime: "09:00", EndTime: "17:00", IsDefault: true}}
}

func TestDayAvailabilityMarksOccupiedSlots(t *testing.T) {
	reader := &mockDayReader{appointments: []models.Appointment{
		{
			ProviderID:  3,
			ScheduledAt: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC),
			Duration:    30,
			Status:      models.AppointmentScheduled,
		},
	}}
	svc := NewAvailabilityService(nineToFive(), reader, nil, nil)

	day, err := svc.DayAvailability(context.Background(), 3, "2025-03-11")
	require.NoError(t, err)
	assert.Len(t, day.Slots, 32)

	byTime := make(map[string]models.SlotStatus)
	for _, slot := range day.Slots {
		byTime[slot.Time] = slot
	}
	assert.True(t, byTime["09:45"].Available)
	assert.False(t, byTime["10:00"].Available)
	assert.False(t, byTime["10:15"].Available)
	assert.True(t, byTime["10:30"].Available)
}

func TestDayAvailabilityPropagatesUnavailability(t *testing.T) {
	resolver := &fixedResolver{err: appErrors.Clone(appErrors.ErrProviderUnavailable, "provider is marked unavailable on this date")}
	svc := NewAvailabilityService(resolver, &mockDayReader{}, nil, nil)

	_, err := svc.DayAvailability(context.Background(), 3, "2025-03-11")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderUnavailable.Code, appErrors.FromError(err).Code)
}

func TestCheckSufficientTimeBlockedByLaterAppointment(t *testing.T) {
	// Tuesday 14:00, 60 minutes requested, but 14:30 is taken: only the
	// first two slots confirm before the walk hits the occupied one.
	reader := &mockDayReader{appointments: []models.Appointment{
		{
			ProviderID:  3,
			ScheduledAt: time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC),
			Duration:    30,
			Status:      models.AppointmentScheduled,
		},
	}}
	svc := NewAvailabilityService(nineToFive(), reader, nil, nil)

	result, err := svc.CheckSufficientTime(context.Background(), 3, "2025-03-11", "14:00", 60)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, 30, result.AvailableMinutes)
}

func TestCheckSufficientTimeStopsAtShiftEnd(t *testing.T) {
	svc := NewAvailabilityService(nineToFive(), &mockDayReader{}, nil, nil)

	result, err := svc.CheckSufficientTime(context.Background(), 3, "2025-03-11", "16:30", 60)
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, 30, result.AvailableMinutes)
}

func TestCheckSufficientTimeFullBlockFree(t *testing.T) {
	svc := NewAvailabilityService(nineToFive(), &mockDayReader{}, nil, nil)

	result, err := svc.CheckSufficientTime(context.Background(), 3, "2025-03-11", "14:00", 60)
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, 60, result.AvailableMinutes)
}

func TestCheckSufficientTimeCancelledDoesNotBlock(t *testing.T) {
	reader := &mockDayReader{appointments: []models.Appointment{
		{
			ProviderID:  3,
			ScheduledAt: time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC),
			Duration:    30,
			Status:      models.AppointmentCancelled,
		},
	}}
	svc := NewAvailabilityService(nineToFive(), reader, nil, nil)

	result, err := svc.CheckSufficientTime(context.Background(), 3, "2025-03-11", "14:00", 60)
	require.NoError(t, err)
	assert.True(t, result.Available)
}

type staticDirectory struct {
	ids []int64
	err error
}

func (d *staticDirectory) ListProviderIDs(ctx context.Context) ([]int64, error) {
	return d.ids, d.err
}

// perProviderResolver gives each provider its own shift outcome so roster
// filtering can be exercised.
type perProviderResolver struct {
	shifts map[int64]*models.EffectiveShift
}

func (r *perProviderResolver) ResolveEffectiveShift(ctx context.Context, providerID int64, date string) (*models.EffectiveShift, error) {
	shift, ok := r.shifts[providerID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "provider is marked unavailable on this date")
	}
	out := *shift
	out.ProviderID = providerID
	out.Date = date
	return &out, nil
}

func TestAvailableProvidersSkipsUnavailableAndBooked(t *testing.T) {
	// Provider 1 works and is free, provider 2 has no shift, provider 3
	// works a single hour that is fully booked out.
	resolver := &perProviderResolver{shifts: map[int64]*models.EffectiveShift{
		1: {StartTime: "09:00", EndTime: "17:00", IsDefault: true},
		3: {StartTime: "09:00", EndTime: "10:00", IsDefault: true},
	}}
	reader := &mockDayReader{appointments: []models.Appointment{
		{
			ProviderID:  3,
			ScheduledAt: time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
			Duration:    60,
			Status:      models.AppointmentScheduled,
		},
	}}
	svc := NewAvailabilityService(resolver, reader, nil, nil)
	svc.AttachProviderDirectory(&staticDirectory{ids: []int64{1, 2, 3}})

	providers, err := svc.AvailableProviders(context.Background(), "2025-03-11", "", 0)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, int64(1), providers[0].ProviderID)
	assert.Equal(t, "09:00", providers[0].ShiftStart)
	assert.Equal(t, "17:00", providers[0].ShiftEnd)
	assert.Equal(t, 32, providers[0].FreeSlots)
}

func TestAvailableProvidersFiltersByStartSlot(t *testing.T) {
	// Both providers work 09:00-17:00 but provider 1 has 14:30 taken, so
	// only provider 2 can fit a full hour starting at 14:00.
	resolver := &perProviderResolver{shifts: map[int64]*models.EffectiveShift{
		1: {StartTime: "09:00", EndTime: "17:00", IsDefault: true},
		2: {StartTime: "09:00", EndTime: "17:00", IsDefault: true},
	}}
	reader := &mockDayReader{appointments: []models.Appointment{
		{
			ProviderID:  1,
			ScheduledAt: time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC),
			Duration:    30,
			Status:      models.AppointmentScheduled,
		},
	}}
	svc := NewAvailabilityService(resolver, reader, nil, nil)
	svc.AttachProviderDirectory(&staticDirectory{ids: []int64{1, 2}})

	providers, err := svc.AvailableProviders(context.Background(), "2025-03-11", "14:00", 60)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, int64(2), providers[0].ProviderID)
}

func TestAvailableProvidersValidatesStartAndDuration(t *testing.T) {
	svc := NewAvailabilityService(nineToFive(), &mockDayReader{}, nil, nil)
	svc.AttachProviderDirectory(&staticDirectory{ids: []int64{1}})

	_, err := svc.AvailableProviders(context.Background(), "2025-03-11", "2pm", 30)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.AvailableProviders(context.Background(), "2025-03-11", "14:00", 25)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailableProvidersWithoutDirectory(t *testing.T) {
	svc := NewAvailabilityService(nineToFive(), &mockDayReader{}, nil, nil)

	_, err := svc.AvailableProviders(context.Background(), "2025-03-11", "", 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCheckSufficientTimeRejectsBadSlot(t *testing.T) {
	svc := NewAvailabilityService(nineToFive(), &mockDayReader{}, nil, nil)

	_, err := svc.CheckSufficientTime(context.Background(), 3, "2025-03-11", "2pm", 30)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
