package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

type fakeAdvisorAvailability struct {
	grids        map[string]*models.DayAvailability
	insufficient map[string]int
}

func (f *fakeAdvisorAvailability) DayAvailability(ctx context.Context, providerID int64, date string) (*models.DayAvailability, error) {
	grid, ok := f.grids[date]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrProviderUnavailable, "provider is not available on this day")
	}
	return grid, nil
}

func (f *fakeAdvisorAvailability) CheckSufficientTime(ctx context.Context, providerID int64, date, startSlot string, durationMinutes int) (*models.SufficientTime, error) {
	if minutes, blocked := f.insufficient[date+" "+startSlot]; blocked {
		return &models.SufficientTime{Available: false, AvailableMinutes: minutes}, nil
	}
	return &models.SufficientTime{Available: true, AvailableMinutes: durationMinutes}, nil
}

type fakeAdvisorStore struct {
	appointments []models.Appointment
}

func (f *fakeAdvisorStore) FindByID(ctx context.Context, id, organizationID int64) (*models.Appointment, error) {
	for i := range f.appointments {
		if f.appointments[i].ID == id && f.appointments[i].OrganizationID == organizationID {
			return &f.appointments[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAdvisorStore) ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, appt := range f.appointments {
		if appt.ProviderID == providerID && appointmentDate(appt.ScheduledAt) == date && appt.Blocks() {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (f *fakeAdvisorStore) ListByLocationAndDate(ctx context.Context, organizationID int64, location, date string) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, appt := range f.appointments {
		if appt.OrganizationID == organizationID && appt.Location == location &&
			appointmentDate(appt.ScheduledAt) == date && appt.Blocks() && !appt.IsVirtual {
			out = append(out, appt)
		}
	}
	return out, nil
}

type fakeRescheduler struct {
	failures map[string]error
	calls    []string
}

func (f *fakeRescheduler) Reschedule(ctx context.Context, id, organizationID int64, newTime string, reason string) (*models.Appointment, error) {
	f.calls = append(f.calls, newTime)
	if err, ok := f.failures[newTime]; ok {
		return nil, err
	}
	return &models.Appointment{ID: id, OrganizationID: organizationID}, nil
}

type fixedPreference TimePreference

func (p fixedPreference) TimePreference(ctx context.Context, patientID int64) TimePreference {
	return TimePreference(p)
}

func advisorGrid(date string, times ...string) *models.DayAvailability {
	grid := &models.DayAvailability{ProviderID: 3, Date: date, ShiftStart: "09:00", ShiftEnd: "17:00"}
	for _, slot := range times {
		grid.Slots = append(grid.Slots, models.SlotStatus{Time: slot, Available: true})
	}
	return grid
}

func TestScoreSlotBuckets(t *testing.T) {
	tests := []struct {
		slot       string
		preference TimePreference
		score      int
		reason     string
	}{
		{"09:00", PreferenceFlexible, 70, "optimal morning time slot"},
		{"09:30", PreferenceMorning, 80, "matches patient morning preference"},
		{"11:00", PreferenceFlexible, 60, ""},
		{"12:00", PreferenceFlexible, 45, "lunch time - may cause delays"},
		{"13:00", PreferenceFlexible, 65, ""},
		{"14:00", PreferenceAfternoon, 75, "high efficiency time slot"},
		{"08:00", PreferenceFlexible, 55, ""},
		{"16:00", PreferenceAfternoon, 65, "matches patient afternoon preference"},
	}
	for _, tc := range tests {
		t.Run(tc.slot+"_"+string(tc.preference), func(t *testing.T) {
			score, reasons := scoreSlot(tc.slot, tc.preference)
			assert.Equal(t, tc.score, score)
			if tc.reason != "" {
				assert.Contains(t, reasons, tc.reason)
			}
		})
	}
}

func TestFindOptimalTimeSlotsOrdersBestFirst(t *testing.T) {
	availability := &fakeAdvisorAvailability{
		grids: map[string]*models.DayAvailability{
			"2025-03-11": advisorGrid("2025-03-11", "08:00", "09:00", "12:00", "13:00"),
		},
	}
	svc := NewAdvisorService(availability, &fakeAdvisorStore{}, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	recs, err := svc.FindOptimalTimeSlots(context.Background(), 3, 30, "2025-03-11", 42)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "09:00", recs[0].Time)
	assert.Equal(t, 70, recs[0].Score)
	assert.Equal(t, "12:00", recs[3].Time, "lunch slot ranks last")
}

func TestFindOptimalTimeSlotsSkipsInsufficientRunways(t *testing.T) {
	availability := &fakeAdvisorAvailability{
		grids: map[string]*models.DayAvailability{
			"2025-03-11": advisorGrid("2025-03-11", "09:00", "10:00"),
		},
		insufficient: map[string]int{"2025-03-11 10:00": 15},
	}
	svc := NewAdvisorService(availability, &fakeAdvisorStore{}, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	recs, err := svc.FindOptimalTimeSlots(context.Background(), 3, 60, "2025-03-11", 42)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "09:00", recs[0].Time)
}

func TestFindOptimalTimeSlotsRejectsBadDuration(t *testing.T) {
	svc := NewAdvisorService(&fakeAdvisorAvailability{}, &fakeAdvisorStore{}, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	_, err := svc.FindOptimalTimeSlots(context.Background(), 3, 25, "2025-03-11", 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDetectSchedulingConflicts(t *testing.T) {
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	store := &fakeAdvisorStore{appointments: []models.Appointment{
		{ID: 1, OrganizationID: 7, ProviderID: 3, ScheduledAt: at, Duration: 30, Status: models.AppointmentScheduled},
		{ID: 2, OrganizationID: 7, ProviderID: 9, ScheduledAt: at, Duration: 60, Status: models.AppointmentScheduled, Location: "room-2"},
	}}
	svc := NewAdvisorService(&fakeAdvisorAvailability{}, store, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	draft := validBooking()
	draft.Location = "room-2"
	conflicts, err := svc.DetectSchedulingConflicts(context.Background(), draft)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	assert.Equal(t, "double_booking", conflicts[0].Type)
	assert.Equal(t, models.SeverityHigh, conflicts[0].Severity)
	assert.Equal(t, int64(1), conflicts[0].ConflictingAppointment.ID)

	assert.Equal(t, "room_conflict", conflicts[1].Type)
	assert.Equal(t, models.SeverityMedium, conflicts[1].Severity)
	assert.Equal(t, int64(2), conflicts[1].ConflictingAppointment.ID)
}

func TestDetectSchedulingConflictsIgnoresOwnProviderRoom(t *testing.T) {
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	store := &fakeAdvisorStore{appointments: []models.Appointment{
		{ID: 1, OrganizationID: 7, ProviderID: 3, ScheduledAt: at.Add(2 * time.Hour), Duration: 30, Status: models.AppointmentScheduled, Location: "room-2"},
	}}
	svc := NewAdvisorService(&fakeAdvisorAvailability{}, store, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	draft := validBooking()
	draft.Location = "room-2"
	conflicts, err := svc.DetectSchedulingConflicts(context.Background(), draft)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestAutoRescheduleSkipsUnavailableDays(t *testing.T) {
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	store := &fakeAdvisorStore{appointments: []models.Appointment{
		{ID: 5, OrganizationID: 7, PatientID: 42, ProviderID: 3, ScheduledAt: at, Duration: 30, Status: models.AppointmentScheduled},
	}}
	availability := &fakeAdvisorAvailability{
		grids: map[string]*models.DayAvailability{
			"2025-03-12": advisorGrid("2025-03-12", "09:00", "10:00"),
		},
	}
	rescheduler := &fakeRescheduler{}
	svc := NewAdvisorService(availability, store, rescheduler, nil, nil, nil, AdvisorServiceConfig{RescheduleWindowDays: 3})
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }

	slot, err := svc.AutoReschedule(context.Background(), 5, 7, "provider emergency")
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "2025-03-12", slot.Date)
	assert.Equal(t, "09:00", slot.Time)
	assert.Equal(t, []string{"2025-03-12T09:00:00"}, rescheduler.calls)
}

func TestAutoRescheduleMovesPastConflictedDay(t *testing.T) {
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	store := &fakeAdvisorStore{appointments: []models.Appointment{
		{ID: 5, OrganizationID: 7, PatientID: 42, ProviderID: 3, ScheduledAt: at, Duration: 30, Status: models.AppointmentScheduled},
	}}
	availability := &fakeAdvisorAvailability{
		grids: map[string]*models.DayAvailability{
			"2025-03-11": advisorGrid("2025-03-11", "09:00"),
			"2025-03-12": advisorGrid("2025-03-12", "10:00"),
		},
	}
	rescheduler := &fakeRescheduler{failures: map[string]error{
		"2025-03-11T09:00:00": appErrors.Clone(appErrors.ErrSlotConflict, "time slot overlaps appointment 8"),
	}}
	svc := NewAdvisorService(availability, store, rescheduler, nil, nil, nil, AdvisorServiceConfig{RescheduleWindowDays: 3})
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }

	slot, err := svc.AutoReschedule(context.Background(), 5, 7, "")
	require.NoError(t, err)
	require.NotNil(t, slot)
	assert.Equal(t, "2025-03-12", slot.Date)
	assert.Len(t, rescheduler.calls, 2)
}

func TestAutoRescheduleExhaustedWindowReturnsNil(t *testing.T) {
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	store := &fakeAdvisorStore{appointments: []models.Appointment{
		{ID: 5, OrganizationID: 7, PatientID: 42, ProviderID: 3, ScheduledAt: at, Duration: 30, Status: models.AppointmentScheduled},
	}}
	svc := NewAdvisorService(&fakeAdvisorAvailability{}, store, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{RescheduleWindowDays: 2})
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }

	slot, err := svc.AutoReschedule(context.Background(), 5, 7, "")
	require.NoError(t, err)
	assert.Nil(t, slot)
}

func TestAutoRescheduleUnknownAppointment(t *testing.T) {
	svc := NewAdvisorService(&fakeAdvisorAvailability{}, &fakeAdvisorStore{}, &fakeRescheduler{}, nil, nil, nil, AdvisorServiceConfig{})

	_, err := svc.AutoReschedule(context.Background(), 99, 7, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFindOptimalTimeSlotsUsesPatientPreference(t *testing.T) {
	availability := &fakeAdvisorAvailability{
		grids: map[string]*models.DayAvailability{
			"2025-03-11": advisorGrid("2025-03-11", "09:00", "14:00"),
		},
	}
	svc := NewAdvisorService(availability, &fakeAdvisorStore{}, &fakeRescheduler{}, fixedPreference(PreferenceAfternoon), nil, nil, AdvisorServiceConfig{})

	recs, err := svc.FindOptimalTimeSlots(context.Background(), 3, 30, "2025-03-11", 42)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "14:00", recs[0].Time, "afternoon preference outranks the morning bucket")
	assert.Equal(t, 75, recs[0].Score)
	assert.Equal(t, 70, recs[1].Score)
}
