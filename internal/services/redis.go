package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chachabrian/fleet-booking/internal/database"
	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// BookingUpdatesChannel carries BookingEvent JSON between instances.
const BookingUpdatesChannel = "booking:updates"

// VehicleUpdatesChannel carries {"vehicleId": ...} whenever the fleet directory
// changes a vehicle record.
const VehicleUpdatesChannel = "vehicle:updates"

// InitRedis connects to redisURL and verifies the connection.
func InitRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisPublisher publishes booking events on the shared updates channel,
// stamped with the origin of the local hub.
type RedisPublisher struct {
	client *redis.Client
	origin string
}

func NewRedisPublisher(client *redis.Client, origin string) *RedisPublisher {
	return &RedisPublisher{client: client, origin: origin}
}

func (p *RedisPublisher) Publish(ctx context.Context, event BookingEvent) error {
	event.Origin = p.origin
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, BookingUpdatesChannel, data).Err()
}

// CachedVehicleDirectory is a read-through Redis cache in front of the vehicle
// directory. Cache failures fall back to the directory.
type CachedVehicleDirectory struct {
	next   VehicleDirectory
	client *redis.Client
	ttl    time.Duration
}

// NewCachedVehicleDirectory returns a cache over next. A nil client disables caching.
func NewCachedVehicleDirectory(next VehicleDirectory, client *redis.Client, ttl time.Duration) *CachedVehicleDirectory {
	return &CachedVehicleDirectory{next: next, client: client, ttl: ttl}
}

type cachedVehicle struct {
	Status   models.VehicleStatus `json:"status"`
	CachedAt int64                `json:"cachedAt"`
}

func vehicleCacheKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:status:%s", vehicleID)
}

func (c *CachedVehicleDirectory) VehicleExists(ctx context.Context, vehicleID string) (bool, error) {
	if _, ok := c.get(ctx, vehicleID); ok {
		return true, nil
	}
	_, err := c.VehicleStatus(ctx, vehicleID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *CachedVehicleDirectory) VehicleStatus(ctx context.Context, vehicleID string) (models.VehicleStatus, error) {
	if status, ok := c.get(ctx, vehicleID); ok {
		return status, nil
	}
	status, err := c.next.VehicleStatus(ctx, vehicleID)
	if err != nil {
		return "", err
	}
	c.set(ctx, vehicleID, status)
	return status, nil
}

// Invalidate drops the cached status so the next lookup reads the directory.
func (c *CachedVehicleDirectory) Invalidate(ctx context.Context, vehicleID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, vehicleCacheKey(vehicleID)).Err()
}

type vehicleUpdate struct {
	VehicleID string `json:"vehicleId"`
}

// ListenVehicleUpdates invalidates cached statuses announced on
// VehicleUpdatesChannel until ctx is done.
func (c *CachedVehicleDirectory) ListenVehicleUpdates(ctx context.Context) {
	if c.client == nil {
		return
	}
	sub := c.client.Subscribe(ctx, VehicleUpdatesChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handleVehicleUpdate(ctx, msg.Payload)
		}
	}
}

func (c *CachedVehicleDirectory) handleVehicleUpdate(ctx context.Context, payload string) {
	var update vehicleUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil || update.VehicleID == "" {
		log.Warnf("Discarding malformed vehicle update: %q", payload)
		return
	}
	if err := c.Invalidate(ctx, update.VehicleID); err != nil {
		log.WithField("vehicleId", update.VehicleID).Warnf("Vehicle cache invalidation failed: %v", err)
		return
	}
	log.WithField("vehicleId", update.VehicleID).Debug("Vehicle cache entry invalidated")
}

func (c *CachedVehicleDirectory) get(ctx context.Context, vehicleID string) (models.VehicleStatus, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, vehicleCacheKey(vehicleID)).Result()
	if err == redis.Nil {
		return "", false
	} else if err != nil {
		log.WithField("vehicleId", vehicleID).Warnf("Vehicle cache read failed: %v", err)
		return "", false
	}

	var entry cachedVehicle
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		log.WithField("vehicleId", vehicleID).Warnf("Discarding unreadable vehicle cache entry: %v", err)
		return "", false
	}
	return entry.Status, true
}

func (c *CachedVehicleDirectory) set(ctx context.Context, vehicleID string, status models.VehicleStatus) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(cachedVehicle{Status: status, CachedAt: time.Now().Unix()})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, vehicleCacheKey(vehicleID), data, c.ttl).Err(); err != nil {
		log.WithField("vehicleId", vehicleID).Warnf("Vehicle cache write failed: %v", err)
	}
}
