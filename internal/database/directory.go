package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
	"gorm.io/gorm"
)

// VehicleDirectory answers vehicle existence and status from the vehicles table.
type VehicleDirectory struct {
	db *gorm.DB
}

func NewVehicleDirectory(db *gorm.DB) *VehicleDirectory {
	return &VehicleDirectory{db: db}
}

func (d *VehicleDirectory) VehicleExists(ctx context.Context, vehicleID string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Vehicle{}).Where("id = ?", vehicleID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up vehicle %s: %w", vehicleID, err)
	}
	return count > 0, nil
}

func (d *VehicleDirectory) VehicleStatus(ctx context.Context, vehicleID string) (models.VehicleStatus, error) {
	var vehicle models.Vehicle
	err := d.db.WithContext(ctx).Select("id", "status").Where("id = ?", vehicleID).First(&vehicle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up vehicle %s: %w", vehicleID, err)
	}
	return vehicle.Status, nil
}

type DriverDirectory struct {
	db *gorm.DB
}

func NewDriverDirectory(db *gorm.DB) *DriverDirectory {
	return &DriverDirectory{db: db}
}

func (d *DriverDirectory) FindDriver(ctx context.Context, driverID string) (*models.Driver, error) {
	var driver models.Driver
	err := d.db.WithContext(ctx).Where("id = ?", driverID).First(&driver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up driver %s: %w", driverID, err)
	}
	return &driver, nil
}

// SetFCMToken stores the push token of a driver. An empty token removes it.
func (d *DriverDirectory) SetFCMToken(ctx context.Context, driverID, token string) error {
	res := d.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", driverID).Update("fcm_token", token)
	if res.Error != nil {
		return fmt.Errorf("failed to update push token of driver %s: %w", driverID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RouteDirectory is the route assignment collaborator.
type RouteDirectory struct {
	db *gorm.DB
}

func NewRouteDirectory(db *gorm.DB) *RouteDirectory {
	return &RouteDirectory{db: db}
}

func (d *RouteDirectory) RouteExists(ctx context.Context, routeID string) (bool, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Route{}).Where("id = ?", routeID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up route %s: %w", routeID, err)
	}
	return count > 0, nil
}

// AssignRoute links the route to the driver and marks it assigned.
func (d *RouteDirectory) AssignRoute(ctx context.Context, routeID, driverID string) error {
	now := time.Now()
	res := d.db.WithContext(ctx).Model(&models.Route{}).
		Where("id = ?", routeID).
		Updates(map[string]interface{}{
			"driver_id":   driverID,
			"status":      models.BookingStatusConfirmed,
			"assigned_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to assign route %s: %w", routeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
