package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

func booking(id, vehicle string, startH, endH int, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:        id,
		UserID:    "u1",
		VehicleID: vehicle,
		StartDate: base.Add(time.Duration(startH) * time.Hour),
		EndDate:   base.Add(time.Duration(endH) * time.Hour),
		Status:    status,
		Version:   1,
	}
}

func TestMemoryInsertRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()

	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusConfirmed)))

	err := s.InsertBooking(ctx, booking("b", "v1", 1, 3, models.BookingStatusPending))
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, "a", overlap.Existing.ID)

	// Touching windows and other vehicles never conflict.
	assert.NoError(t, s.InsertBooking(ctx, booking("c", "v1", 2, 4, models.BookingStatusPending)))
	assert.NoError(t, s.InsertBooking(ctx, booking("d", "v2", 1, 3, models.BookingStatusPending)))
}

func TestMemoryTerminalBookingsFreeTheWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()

	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusCancelled)))
	assert.NoError(t, s.InsertBooking(ctx, booking("b", "v1", 0, 2, models.BookingStatusPending)))
}

func TestMemoryUpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()
	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusPending)))

	first, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	stale := *first

	first.Status = models.BookingStatusConfirmed
	require.NoError(t, s.UpdateBooking(ctx, first, 1))
	assert.Equal(t, int64(2), first.Version)

	stale.Status = models.BookingStatusCancelled
	err = s.UpdateBooking(ctx, &stale, 1)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	stored, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
}

func TestMemoryUpdateExcludesItselfFromOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()
	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusPending)))
	require.NoError(t, s.InsertBooking(ctx, booking("b", "v1", 4, 6, models.BookingStatusPending)))

	a, _ := s.FindByID(ctx, "a")
	a.EndDate = base.Add(3 * time.Hour)
	require.NoError(t, s.UpdateBooking(ctx, a, a.Version))

	a, _ = s.FindByID(ctx, "a")
	a.EndDate = base.Add(5 * time.Hour)
	var overlap *OverlapError
	assert.ErrorAs(t, s.UpdateBooking(ctx, a, a.Version), &overlap)
}

func TestMemoryFindFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()
	driver := "d1"
	b := booking("b", "v1", 4, 6, models.BookingStatusConfirmed)
	b.AssignedDriverID = &driver
	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusPending)))
	require.NoError(t, s.InsertBooking(ctx, b))
	require.NoError(t, s.InsertBooking(ctx, booking("c", "v2", 0, 2, models.BookingStatusCompleted)))

	got, err := s.Find(ctx, models.BookingFilter{DriverID: "d1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, err = s.FindLiveBookingsByVehicle(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)

	after := base.Add(3 * time.Hour)
	got, _ = s.Find(ctx, models.BookingFilter{StartingAfter: &after})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()
	require.NoError(t, s.InsertBooking(ctx, booking("a", "v1", 0, 2, models.BookingStatusPending)))

	require.NoError(t, s.DeleteBooking(ctx, "a"))
	assert.ErrorIs(t, s.DeleteBooking(ctx, "a"), ErrNotFound)
	_, err := s.FindByID(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryConcurrentInsertsAdmitOne(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.InsertBooking(ctx, booking(fmt.Sprintf("b%d", i), "v1", 0, 2, models.BookingStatusPending)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()
	d.Seed([]string{"v1:Van", "v2"}, []string{"d1:Dana"})
	d.AddVehicle(models.Vehicle{ID: "v3", Status: models.VehicleStatusMaintenance})
	d.AddRoute(models.Route{ID: "r1"})

	ok, _ := d.VehicleExists(ctx, "v2")
	assert.True(t, ok)
	status, err := d.VehicleStatus(ctx, "v3")
	require.NoError(t, err)
	assert.Equal(t, models.VehicleStatusMaintenance, status)
	_, err = d.VehicleStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	dr, err := d.FindDriver(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", dr.Name)

	require.NoError(t, d.AssignRoute(ctx, "r1", "d1"))
	r, _ := d.Route("r1")
	assert.Equal(t, models.BookingStatusConfirmed, r.Status)
	assert.Equal(t, "d1", *r.DriverID)
	assert.ErrorIs(t, d.AssignRoute(ctx, "r9", "d1"), ErrNotFound)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	for _, code := range []string{"23P01", "40001", "40P01"} {
		err := classify(fmt.Errorf("insert: %w", &pgconn.PgError{Code: code, Message: "boom"}))
		assert.ErrorIs(t, err, ErrConcurrencyConflict, code)
	}

	other := &pgconn.PgError{Code: "23505"}
	assert.Equal(t, error(other), classify(other))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, classify(plain))
}
