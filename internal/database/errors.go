package database

import (
	"errors"
	"fmt"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrConcurrencyConflict means a write lost a race: the row changed since it
	// was read, or a concurrent writer claimed an overlapping window first.
	ErrConcurrencyConflict = errors.New("concurrent modification")
)

// OverlapError reports a live booking that already holds part of the window.
type OverlapError struct {
	Existing models.Booking
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("vehicle %s is already booked for %s (booking %s)",
		e.Existing.VehicleID, e.Existing.Window(), e.Existing.ID)
}

// Postgres error codes that mean the transaction raced another writer.
const (
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classify turns driver errors that indicate a lost race into ErrConcurrencyConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}
