package database

import (
	"fmt"

	"github.com/chachabrian/fleet-booking/internal/models"
	"gorm.io/gorm"
)

const (
	liveOverlapConstraint = "bookings_no_live_overlap"
	windowCheckConstraint = "bookings_window_check"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Vehicle{},
		&models.Driver{},
		&models.Route{},
		&models.Booking{},
	)
	if err != nil {
		return err
	}

	// Intervals are half-open, matching the overlap query in the store.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`).Error; err != nil {
		return err
	}

	err = ensureConstraint(db, liveOverlapConstraint, `
		EXCLUDE USING gist (
			vehicle_id WITH =,
			tstzrange(start_date, end_date, '[)') WITH &&
		) WHERE (status IN ('pending', 'confirmed', 'active'))`)
	if err != nil {
		return err
	}
	return ensureConstraint(db, windowCheckConstraint, `CHECK (start_date < end_date)`)
}

// ensureConstraint adds a bookings constraint unless one with that name already exists.
func ensureConstraint(db *gorm.DB, name, definition string) error {
	var exists bool
	err := db.Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM pg_constraint
			WHERE conname = ?
		)`, name).Scan(&exists).Error
	if err != nil {
		return fmt.Errorf("failed to look up constraint %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := db.Exec(`ALTER TABLE bookings ADD CONSTRAINT ` + name + ` ` + definition).Error; err != nil {
		return fmt.Errorf("failed to add constraint %s: %w", name, err)
	}
	return nil
}
