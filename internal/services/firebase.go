package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/chachabrian/fleet-booking/internal/database"
	"github.com/chachabrian/fleet-booking/internal/models"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// FleetManagersTopic is the FCM topic fleet manager devices subscribe to.
const FleetManagersTopic = "fleet-managers"

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// DriverTokens stores the push tokens of drivers.
type DriverTokens interface {
	DriverDirectory
	SetFCMToken(ctx context.Context, driverID, token string) error
}

// PushNotifier sends booking events to mobile devices through Firebase Cloud
// Messaging. A notifier without a client sends nothing but still records
// driver tokens.
type PushNotifier struct {
	client  messageSender
	drivers DriverTokens
}

// InitFirebase initializes the Firebase Admin SDK. An empty path disables push
// notifications.
func InitFirebase(ctx context.Context, serviceAccountPath string, drivers DriverTokens) (*PushNotifier, error) {
	if serviceAccountPath == "" {
		log.Warn("FIREBASE_SERVICE_ACCOUNT_PATH not set. Push notifications will be disabled.")
		return NewDisabledPushNotifier(drivers), nil
	}

	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	log.Info("Firebase Cloud Messaging initialized successfully")
	return &PushNotifier{client: client, drivers: drivers}, nil
}

// NewDisabledPushNotifier returns a notifier that sends nothing but still
// records driver tokens.
func NewDisabledPushNotifier(drivers DriverTokens) *PushNotifier {
	return &PushNotifier{drivers: drivers}
}

// NotificationPayload represents the notification data
type NotificationPayload struct {
	Title string
	Body  string
	Data  map[string]interface{}
}

func (p *PushNotifier) Enabled() bool {
	return p.client != nil
}

func (p *PushNotifier) Publish(ctx context.Context, event BookingEvent) error {
	if !p.Enabled() {
		return nil
	}

	b := event.Booking
	switch event.Type {
	case EventBookingCreated:
		return p.sendToTopic(ctx, FleetManagersTopic, NotificationPayload{
			Title: "New Booking Request",
			Body:  fmt.Sprintf("%s requested %s for %s", displayName(b.UserName, b.UserID), displayName(b.VehicleName, b.VehicleID), b.Window()),
			Data:  bookingData("booking_created", b),
		})

	case EventBookingDriverAssigned:
		if b.AssignedDriverID == nil {
			return nil
		}
		driver, err := p.drivers.FindDriver(ctx, *b.AssignedDriverID)
		if err != nil {
			return fmt.Errorf("failed to look up driver %s for push: %w", *b.AssignedDriverID, err)
		}
		if driver.FCMToken == "" {
			return nil
		}
		return p.sendToToken(ctx, driver.FCMToken, NotificationPayload{
			Title: "New Trip Assigned",
			Body:  fmt.Sprintf("You have been assigned %s for %s", displayName(b.VehicleName, b.VehicleID), b.Window()),
			Data:  bookingData("booking_driver_assigned", b),
		})
	}
	return nil
}

// RegisterDevice records a device for push. Drivers' tokens are stored for
// direct messages; fleet managers' devices join the managers topic.
func (p *PushNotifier) RegisterDevice(ctx context.Context, actor models.Actor, token string) error {
	switch {
	case actor.Role == models.RoleDriver:
		return p.setDriverToken(ctx, actor.ID, token)
	case actor.IsManager():
		return p.manageTopic(ctx, token, true)
	}
	return newError(KindForbidden, "push notifications are available to drivers and fleet managers")
}

// UnregisterDevice reverses RegisterDevice.
func (p *PushNotifier) UnregisterDevice(ctx context.Context, actor models.Actor, token string) error {
	switch {
	case actor.Role == models.RoleDriver:
		return p.setDriverToken(ctx, actor.ID, "")
	case actor.IsManager():
		return p.manageTopic(ctx, token, false)
	}
	return newError(KindForbidden, "push notifications are available to drivers and fleet managers")
}

func (p *PushNotifier) setDriverToken(ctx context.Context, driverID, token string) error {
	err := p.drivers.SetFCMToken(ctx, driverID, token)
	if errors.Is(err, database.ErrNotFound) {
		return newError(KindDriverNotFound, "driver %s does not exist", driverID)
	}
	return err
}

func (p *PushNotifier) manageTopic(ctx context.Context, token string, subscribe bool) error {
	if strings.TrimSpace(token) == "" {
		return newError(KindInvalidRequest, "fcmToken is required")
	}
	if !p.Enabled() {
		return nil
	}

	var (
		response *messaging.TopicManagementResponse
		err      error
	)
	if subscribe {
		response, err = p.client.SubscribeToTopic(ctx, []string{token}, FleetManagersTopic)
	} else {
		response, err = p.client.UnsubscribeFromTopic(ctx, []string{token}, FleetManagersTopic)
	}
	if err != nil {
		return fmt.Errorf("error updating topic %s: %w", FleetManagersTopic, err)
	}
	if response.FailureCount > 0 {
		return fmt.Errorf("error updating topic %s: %d of 1 tokens rejected", FleetManagersTopic, response.FailureCount)
	}
	return nil
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func bookingData(kind string, b models.Booking) map[string]interface{} {
	return map[string]interface{}{
		"type":           kind,
		"bookingId":      b.ID,
		"vehicleId":      b.VehicleID,
		"status":         string(b.Status),
		"startDate":      b.StartDate.Format(time.RFC3339),
		"endDate":        b.EndDate.Format(time.RFC3339),
		"notificationId": fmt.Sprintf("%s_%s", kind, b.ID),
	}
}

func (p *PushNotifier) sendToToken(ctx context.Context, token string, payload NotificationPayload) error {
	message := buildMessage(payload)
	message.Token = token

	response, err := p.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	log.WithField("response", response).Debug("Sent push notification to device")
	return nil
}

func (p *PushNotifier) sendToTopic(ctx context.Context, topic string, payload NotificationPayload) error {
	message := buildMessage(payload)
	message.Topic = topic

	response, err := p.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending topic message: %w", err)
	}
	log.WithFields(log.Fields{"topic": topic, "response": response}).Debug("Sent push notification to topic")
	return nil
}

func buildMessage(payload NotificationPayload) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: stringifyData(payload.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    "fleet_bookings",
				Sound:        "default",
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:            "default",
					ContentAvailable: true,
				},
			},
		},
	}
}

// stringifyData converts the data map to the string map FCM requires.
func stringifyData(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			out[key] = v
		case int, int64, float64, bool:
			out[key] = fmt.Sprintf("%v", v)
		default:
			jsonData, err := json.Marshal(v)
			if err != nil {
				log.Warnf("Error marshaling data for key %s: %v", key, err)
				continue
			}
			out[key] = string(jsonData)
		}
	}
	return out
}
