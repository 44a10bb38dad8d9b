package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/chachabrian/fleet-booking/internal/models"
	"gorm.io/gorm"
)

// BookingStore persists bookings in Postgres. Writes that hold a vehicle window
// serialise per vehicle on a transaction-scoped advisory lock, and the
// bookings_no_live_overlap exclusion constraint backs the check up.
type BookingStore struct {
	db *gorm.DB
}

func NewBookingStore(db *gorm.DB) *BookingStore {
	return &BookingStore{db: db}
}

func (s *BookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return &booking, nil
}

func (s *BookingStore) FindLiveBookingsByVehicle(ctx context.Context, vehicleID string) ([]models.Booking, error) {
	return s.Find(ctx, models.BookingFilter{VehicleID: vehicleID, Statuses: models.LiveStatuses})
}

func (s *BookingStore) Find(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	err := applyFilter(s.db.WithContext(ctx), filter).
		Order("start_date ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	return bookings, nil
}

// InsertBooking checks the window against live bookings and inserts in one transaction.
func (s *BookingStore) InsertBooking(ctx context.Context, booking *models.Booking) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockVehicle(tx, booking.VehicleID); err != nil {
			return err
		}
		if err := checkOverlap(tx, booking); err != nil {
			return err
		}
		return tx.Create(booking).Error
	})
	return classify(err)
}

// UpdateBooking writes the booking if its stored version still equals expectedVersion.
func (s *BookingStore) UpdateBooking(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	booking.Version = expectedVersion + 1
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if booking.Status.IsLive() {
			if err := lockVehicle(tx, booking.VehicleID); err != nil {
				return err
			}
			if err := checkOverlap(tx, booking); err != nil {
				return err
			}
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND version = ?", booking.ID, expectedVersion).
			Select("*").
			Omit("id", "created_at").
			Updates(booking)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrencyConflict
		}
		return nil
	})
	if err != nil {
		booking.Version = expectedVersion
	}
	return classify(err)
}

func (s *BookingStore) DeleteBooking(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Booking{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete booking %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func lockVehicle(tx *gorm.DB, vehicleID string) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", vehicleID).Error
}

func checkOverlap(tx *gorm.DB, booking *models.Booking) error {
	var existing models.Booking
	err := tx.Where("vehicle_id = ? AND status IN ? AND start_date < ? AND end_date > ? AND id <> ?",
		booking.VehicleID, models.LiveStatuses, booking.EndDate, booking.StartDate, booking.ID).
		Order("start_date ASC").
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &OverlapError{Existing: existing}
}

func applyFilter(q *gorm.DB, f models.BookingFilter) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.DriverID != "" {
		q = q.Where("assigned_driver_id = ?", f.DriverID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.StartingAfter != nil {
		q = q.Where("start_date >= ?", *f.StartingAfter)
	}
	if f.EndingAfter != nil {
		q = q.Where("end_date > ?", *f.EndingAfter)
	}
	if f.ExcludeBooking != "" {
		q = q.Where("id <> ?", f.ExcludeBooking)
	}
	return q
}
