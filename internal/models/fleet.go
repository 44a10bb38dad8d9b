package models

import "time"

type VehicleStatus string

const (
	VehicleStatusAvailable    VehicleStatus = "available"
	VehicleStatusInUse        VehicleStatus = "in_use"
	VehicleStatusMaintenance  VehicleStatus = "maintenance"
	VehicleStatusOutOfService VehicleStatus = "out_of_service"
)

// Bookable reports whether a vehicle in this status can take reservations.
func (s VehicleStatus) Bookable() bool {
	return s != VehicleStatusMaintenance && s != VehicleStatusOutOfService
}

// Vehicle is a record of the vehicle directory.
type Vehicle struct {
	ID                 string        `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name               string        `json:"name"`
	RegistrationNumber string        `json:"registrationNumber" gorm:"index"`
	Status             VehicleStatus `json:"status" gorm:"type:varchar(20);not null;default:'available'"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

// Driver is a record of the driver directory.
type Driver struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name          string    `json:"name"`
	Username      string    `json:"username" gorm:"uniqueIndex"`
	LicenseNumber string    `json:"licenseNumber"`
	FCMToken      string    `json:"-" gorm:"column:fcm_token"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Driver) TableName() string {
	return "drivers"
}

// Route uses the booking status vocabulary: confirmed means assigned to a driver,
// active means in progress.
type Route struct {
	ID         string        `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name       string        `json:"name"`
	DriverID   *string       `json:"driverId,omitempty" gorm:"index"`
	Status     BookingStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	AssignedAt *time.Time    `json:"assignedAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

func (Route) TableName() string {
	return "routes"
}
