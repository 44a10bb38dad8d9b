package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
)

// MemoryBookingStore keeps bookings in process. A single mutex makes every
// check-and-write atomic, which gives the same guarantees as the Postgres store
// for a single instance.
type MemoryBookingStore struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{bookings: make(map[string]models.Booking)}
}

func (s *MemoryBookingStore) FindByID(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryBookingStore) FindLiveBookingsByVehicle(ctx context.Context, vehicleID string) ([]models.Booking, error) {
	return s.Find(ctx, models.BookingFilter{VehicleID: vehicleID, Statuses: models.LiveStatuses})
}

func (s *MemoryBookingStore) Find(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findLocked(filter), nil
}

func (s *MemoryBookingStore) InsertBooking(_ context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return ErrConcurrencyConflict
	}
	if err := s.overlapLocked(booking); err != nil {
		return err
	}
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *MemoryBookingStore) UpdateBooking(_ context.Context, booking *models.Booking, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[booking.ID]
	if !ok || current.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	if booking.Status.IsLive() {
		if err := s.overlapLocked(booking); err != nil {
			return err
		}
	}
	booking.Version = expectedVersion + 1
	booking.CreatedAt = current.CreatedAt
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *MemoryBookingStore) DeleteBooking(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *MemoryBookingStore) overlapLocked(booking *models.Booking) error {
	conflicts := s.findLocked(models.BookingFilter{
		VehicleID:      booking.VehicleID,
		Statuses:       models.LiveStatuses,
		ExcludeBooking: booking.ID,
	})
	for _, existing := range conflicts {
		if existing.Overlaps(booking.StartDate, booking.EndDate) {
			return &OverlapError{Existing: existing}
		}
	}
	return nil
}

func (s *MemoryBookingStore) findLocked(filter models.BookingFilter) []models.Booking {
	out := []models.Booking{}
	for _, b := range s.bookings {
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

// MemoryDirectory serves vehicles, drivers and routes from process memory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
	drivers  map[string]models.Driver
	routes   map[string]models.Route
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		vehicles: make(map[string]models.Vehicle),
		drivers:  make(map[string]models.Driver),
		routes:   make(map[string]models.Route),
	}
}

func (d *MemoryDirectory) AddVehicle(v models.Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v.Status == "" {
		v.Status = models.VehicleStatusAvailable
	}
	d.vehicles[v.ID] = v
}

func (d *MemoryDirectory) AddDriver(dr models.Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers[dr.ID] = dr
}

func (d *MemoryDirectory) AddRoute(r models.Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.Status == "" {
		r.Status = models.BookingStatusPending
	}
	d.routes[r.ID] = r
}

// Seed parses "id:name" entries, as found in SEED_VEHICLES and SEED_DRIVERS.
func (d *MemoryDirectory) Seed(vehicles, drivers []string) {
	for _, entry := range vehicles {
		id, name := splitSeed(entry)
		d.AddVehicle(models.Vehicle{ID: id, Name: name})
	}
	for _, entry := range drivers {
		id, name := splitSeed(entry)
		d.AddDriver(models.Driver{ID: id, Name: name, Username: id})
	}
}

func splitSeed(entry string) (string, string) {
	id, name, found := strings.Cut(entry, ":")
	if !found {
		return entry, entry
	}
	return id, name
}

func (d *MemoryDirectory) VehicleExists(_ context.Context, vehicleID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.vehicles[vehicleID]
	return ok, nil
}

func (d *MemoryDirectory) VehicleStatus(_ context.Context, vehicleID string) (models.VehicleStatus, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vehicles[vehicleID]
	if !ok {
		return "", ErrNotFound
	}
	return v.Status, nil
}

func (d *MemoryDirectory) FindDriver(_ context.Context, driverID string) (*models.Driver, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dr, ok := d.drivers[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return &dr, nil
}

func (d *MemoryDirectory) SetFCMToken(_ context.Context, driverID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, ok := d.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	dr.FCMToken = token
	d.drivers[driverID] = dr
	return nil
}

func (d *MemoryDirectory) RouteExists(_ context.Context, routeID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[routeID]
	return ok, nil
}

func (d *MemoryDirectory) AssignRoute(_ context.Context, routeID, driverID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.routes[routeID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	r.DriverID = &driverID
	r.Status = models.BookingStatusConfirmed
	r.AssignedAt = &now
	d.routes[routeID] = r
	return nil
}

// Route returns a copy of the stored route.
func (d *MemoryDirectory) Route(routeID string) (models.Route, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.routes[routeID]
	return r, ok
}
