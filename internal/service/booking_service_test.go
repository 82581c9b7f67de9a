package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cura-emr/scheduling-api/internal/models"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
)

// fakeBookingStore mimics the guarded write path: overlap check and insert
// happen atomically under a lock, like the advisory-locked transaction does.
type fakeBookingStore struct {
	mu           sync.Mutex
	appointments []models.Appointment
	nextID       int64
}

func (f *fakeBookingStore) ListByProviderAndDate(ctx context.Context, providerID int64, date string, excludeCancelled bool) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Appointment
	for _, appt := range f.appointments {
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

func (f *fakeBookingStore) CreateGuarded(ctx context.Context, appt *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	newEnd := appt.ScheduledAt.Add(time.Duration(appt.Duration) * time.Minute)
	for _, other := range f.appointments {
		if other.ProviderID != appt.ProviderID || !other.Blocks() {
			continue
		}
		if rangesOverlap(appt.ScheduledAt, newEnd, other.ScheduledAt, other.EndsAt()) {
			return appErrors.Clone(appErrors.ErrSlotConflict, fmt.Sprintf("time slot overlaps appointment %d", other.ID))
		}
	}
	f.nextID++
	appt.ID = f.nextID
	f.appointments = append(f.appointments, *appt)
	return nil
}

type fakeChecker struct {
	result  *models.SufficientTime
	err     error
	invalid []string
}

func (f *fakeChecker) CheckSufficientTime(ctx context.Context, providerID int64, date, startSlot string, durationMinutes int) (*models.SufficientTime, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.SufficientTime{Available: true, AvailableMinutes: durationMinutes}, nil
}

func (f *fakeChecker) Invalidate(ctx context.Context, providerID int64, date string) {
	f.invalid = append(f.invalid, fmt.Sprintf("%d:%s", providerID, date))
}

type recordingNotifier struct {
	mu        sync.Mutex
	booked    []int64
	conflicts int
	moved     []int64
	cancelled []int64
}

func (r *recordingNotifier) AppointmentBooked(ctx context.Context, appt *models.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booked = append(r.booked, appt.ID)
}

func (r *recordingNotifier) BookingConflict(ctx context.Context, providerID, organizationID int64, scheduledAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func (r *recordingNotifier) AppointmentRescheduled(ctx context.Context, appt *models.Appointment, previous time.Time, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moved = append(r.moved, appt.ID)
}

func (r *recordingNotifier) AppointmentCancelled(ctx context.Context, appt *models.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, appt.ID)
}

func validBooking() BookingRequest {
	return BookingRequest{
		OrganizationID: 7,
		PatientID:      42,
		ProviderID:     3,
		ScheduledAt:    "2025-03-11T14:00:00",
		Duration:       30,
		Type:           "consultation",
	}
}

func TestBookDefaultsTitleAndStatus(t *testing.T) {
	store := &fakeBookingStore{}
	notifier := &recordingNotifier{}
	checker := &fakeChecker{}
	svc := NewBookingService(store, checker, notifier, nil, nil, BookingConfig{})

	appt, err := svc.Book(context.Background(), validBooking())
	require.NoError(t, err)
	assert.Equal(t, "consultation appointment", appt.Title)
	assert.Equal(t, models.AppointmentScheduled, appt.Status)
	assert.Equal(t, int64(1), appt.ID)
	assert.Equal(t, []int64{1}, notifier.booked)
	assert.Equal(t, []string{"3:2025-03-11"}, checker.invalid)
}

func TestBookCollectsAllValidationErrors(t *testing.T) {
	svc := NewBookingService(&fakeBookingStore{}, &fakeChecker{}, nil, nil, nil, BookingConfig{})

	_, err := svc.Book(context.Background(), BookingRequest{
		ScheduledAt: "not-a-time",
		Duration:    17,
		Type:        "seance",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.GreaterOrEqual(t, len(appErr.Details), 5)
}

func TestBookRejectsUnalignedStart(t *testing.T) {
	svc := NewBookingService(&fakeBookingStore{}, &fakeChecker{}, nil, nil, nil, BookingConfig{})

	req := validBooking()
	req.ScheduledAt = "2025-03-11T14:10:00"
	_, err := svc.Book(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details[0], "15-minute slot boundary")
}

func TestBookPastRejectionIsOptIn(t *testing.T) {
	past := validBooking()
	past.ScheduledAt = "2020-01-06T10:00:00"

	permissive := NewBookingService(&fakeBookingStore{}, &fakeChecker{}, nil, nil, nil, BookingConfig{})
	_, err := permissive.Book(context.Background(), past)
	assert.NoError(t, err)

	strict := NewBookingService(&fakeBookingStore{}, &fakeChecker{}, nil, nil, nil, BookingConfig{RejectPastBookings: true})
	strict.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	_, err = strict.Book(context.Background(), past)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details[0], "past")
}

func TestBookInsufficientTimeReportsAvailableMinutes(t *testing.T) {
	notifier := &recordingNotifier{}
	checker := &fakeChecker{result: &models.SufficientTime{Available: false, AvailableMinutes: 30}}
	svc := NewBookingService(&fakeBookingStore{}, checker, notifier, nil, nil, BookingConfig{})

	req := validBooking()
	req.Duration = 60
	_, err := svc.Book(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "30 of 60 minutes")
	assert.Contains(t, appErr.Details, "available_minutes=30")
	assert.Equal(t, 1, notifier.conflicts)
}

func TestBookGuardRejectsOverlap(t *testing.T) {
	store := &fakeBookingStore{}
	notifier := &recordingNotifier{}
	svc := NewBookingService(store, &fakeChecker{}, notifier, nil, nil, BookingConfig{})

	_, err := svc.Book(context.Background(), validBooking())
	require.NoError(t, err)

	second := validBooking()
	second.PatientID = 43
	second.ScheduledAt = "2025-03-11T14:15:00"
	_, err = svc.Book(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, notifier.conflicts)
}

func TestBookConcurrentSameSlotExactlyOneWins(t *testing.T) {
	store := &fakeBookingStore{}
	svc := NewBookingService(store, &fakeChecker{}, nil, nil, nil, BookingConfig{})

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			req := validBooking()
			req.PatientID = patient
			_, err := svc.Book(context.Background(), req)
			errs <- err
		}(int64(100 + i))
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		require.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, lost)
	assert.Len(t, store.appointments, 1)
}

func TestBookRandomizedSequenceNeverStoresOverlap(t *testing.T) {
	store := &fakeBookingStore{}
	svc := NewBookingService(store, &fakeChecker{}, nil, nil, nil, BookingConfig{})
	rng := rand.New(rand.NewSource(1))

	const attempts = 200
	accepted, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		req := validBooking()
		req.PatientID = int64(100 + i)
		hour := 8 + rng.Intn(9)
		minute := 15 * rng.Intn(4)
		req.ScheduledAt = fmt.Sprintf("2025-03-11T%02d:%02d:00", hour, minute)
		req.Duration = models.AllowedDurations[rng.Intn(len(models.AllowedDurations))]

		_, err := svc.Book(context.Background(), req)
		if err == nil {
			accepted++
			continue
		}
		require.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
		rejected++
	}
	assert.Equal(t, attempts, accepted+rejected)
	assert.Greater(t, accepted, 0)
	assert.Len(t, store.appointments, accepted)

	for i, a := range store.appointments {
		for _, b := range store.appointments[i+1:] {
			assert.False(t, rangesOverlap(a.ScheduledAt, a.EndsAt(), b.ScheduledAt, b.EndsAt()),
				"appointments %d and %d overlap", a.ID, b.ID)
		}
	}
}

func TestBookSequentialIDs(t *testing.T) {
	store := &fakeBookingStore{}
	svc := NewBookingService(store, &fakeChecker{}, nil, nil, nil, BookingConfig{})

	first, err := svc.Book(context.Background(), validBooking())
	require.NoError(t, err)

	second := validBooking()
	second.ScheduledAt = "2025-03-11T15:00:00"
	appt, err := svc.Book(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, appt.ID)
}
