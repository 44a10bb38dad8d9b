package models

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// LiveStatuses are the statuses that hold a vehicle's time window.
var LiveStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusActive,
}

// statusAliases maps labels used by the route pages onto the booking vocabulary.
var statusAliases = map[string]BookingStatus{
	"assigned":    BookingStatusConfirmed,
	"in_progress": BookingStatusActive,
	"in-progress": BookingStatusActive,
	"started":     BookingStatusActive,
	"canceled":    BookingStatusCancelled,
	"done":        BookingStatusCompleted,
	"finished":    BookingStatusCompleted,
}

// ParseStatus normalises a status label, accepting the legacy route labels.
func ParseStatus(label string) (BookingStatus, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	switch BookingStatus(s) {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusActive,
		BookingStatusCompleted, BookingStatusCancelled:
		return BookingStatus(s), nil
	}
	if canonical, ok := statusAliases[s]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unknown status %q", label)
}

func (s BookingStatus) IsLive() bool {
	for _, live := range LiveStatuses {
		if s == live {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusActive, BookingStatusCancelled},
	BookingStatusActive:    {BookingStatusCompleted},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is a reservation of one vehicle for one customer over [StartDate, EndDate).
type Booking struct {
	ID                  string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID              string        `json:"userId" gorm:"not null;index"`
	UserName            string        `json:"userName,omitempty"`
	VehicleID           string        `json:"vehicleId" gorm:"not null;index:idx_bookings_vehicle_window,priority:1"`
	VehicleName         string        `json:"vehicleName,omitempty"`
	VehicleRegistration string        `json:"vehicleRegistration,omitempty"`
	StartDate           time.Time     `json:"startDate" gorm:"type:timestamptz;not null;index:idx_bookings_vehicle_window,priority:2"`
	EndDate             time.Time     `json:"endDate" gorm:"type:timestamptz;not null"`
	Status              BookingStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Purpose             string        `json:"purpose"`
	PickupLocation      string        `json:"pickupLocation"`
	DropoffLocation     string        `json:"dropoffLocation"`
	ContactNumber       string        `json:"contactNumber"`
	Notes               string        `json:"notes"`
	AssignedDriverID    *string       `json:"assignedDriverId,omitempty" gorm:"index"`
	AssignedDriverName  string        `json:"assignedDriverName,omitempty"`
	AssignedRouteID     *string       `json:"assignedRouteId,omitempty"`
	Version             int64         `json:"-" gorm:"not null;default:1"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

func (Booking) TableName() string {
	return "bookings"
}

// Overlaps reports whether the booking's window intersects [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.StartDate, b.EndDate, start, end)
}

// Window renders the booking interval for user-facing messages.
func (b Booking) Window() string {
	return fmt.Sprintf("[%s, %s)", b.StartDate.UTC().Format(time.RFC3339), b.EndDate.UTC().Format(time.RFC3339))
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Redacted keeps only what is needed to show that the vehicle is taken.
func (b Booking) Redacted() Booking {
	return Booking{
		ID:        b.ID,
		VehicleID: b.VehicleID,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Status:    b.Status,
	}
}

// BookingRequest is the client payload for a new booking.
type BookingRequest struct {
	UserID              string
	UserName            string
	VehicleID           string
	VehicleName         string
	VehicleRegistration string
	StartDate           time.Time
	EndDate             time.Time
	Purpose             string
	PickupLocation      string
	DropoffLocation     string
	ContactNumber       string
	Notes               string
}

// BookingChanges holds the editable fields of a booking; nil means unchanged.
type BookingChanges struct {
	StartDate       *time.Time
	EndDate         *time.Time
	Purpose         *string
	PickupLocation  *string
	DropoffLocation *string
	ContactNumber   *string
	Notes           *string
}

// BookingFilter narrows booking queries. Zero values are ignored.
type BookingFilter struct {
	UserID         string
	VehicleID      string
	DriverID       string
	Statuses       []BookingStatus
	StartingAfter  *time.Time // StartDate >= value
	EndingAfter    *time.Time // EndDate > value
	ExcludeBooking string
}

// Matches applies the filter in memory.
func (f BookingFilter) Matches(b Booking) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.VehicleID != "" && b.VehicleID != f.VehicleID {
		return false
	}
	if f.DriverID != "" && (b.AssignedDriverID == nil || *b.AssignedDriverID != f.DriverID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartingAfter != nil && b.StartDate.Before(*f.StartingAfter) {
		return false
	}
	if f.EndingAfter != nil && !b.EndDate.After(*f.EndingAfter) {
		return false
	}
	if f.ExcludeBooking != "" && b.ID == f.ExcludeBooking {
		return false
	}
	return true
}

// Availability is the result of an availability check.
type Availability struct {
	Available     bool      `json:"available"`
	Reason        string    `json:"reason"`
	ConflictCount int       `json:"conflictCount"`
	Conflicts     []Booking `json:"conflicts,omitempty"`
}
