package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chachabrian/fleet-booking/internal/database"
	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/chachabrian/fleet-booking/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

var (
	now      = time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	customer = models.Actor{ID: "u1", Name: "Alice", Role: models.RoleCustomer}
	other    = models.Actor{ID: "u2", Name: "Bob", Role: models.RoleCustomer}
	manager  = models.Actor{ID: "m1", Name: "Mona", Role: models.RoleFleetManager}
	admin    = models.Actor{ID: "a1", Name: "Root", Role: models.RoleAdmin}
	driver   = models.Actor{ID: "d1", Name: "Dan", Role: models.RoleDriver}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *ErrorBody      `json:"error"`
}

type testAPI struct {
	t         *testing.T
	router    *gin.Engine
	directory *database.MemoryDirectory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryBookingStore()
	dir := database.NewMemoryDirectory()
	dir.AddVehicle(models.Vehicle{ID: "v1", Name: "Van 1"})
	dir.AddVehicle(models.Vehicle{ID: "v2", Name: "Van 2", Status: models.VehicleStatusMaintenance})
	dir.AddDriver(models.Driver{ID: "d1", Name: "Dan"})
	dir.AddRoute(models.Route{ID: "r1", Name: "Airport"})

	hub := services.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	push, err := services.InitFirebase(ctx, "", dir)
	require.NoError(t, err)

	manager := services.NewBookingManager(store, dir, dir, dir,
		services.WithClock(func() time.Time { return now }),
		services.WithPublisher(hub),
	)

	r := gin.New()
	RegisterRoutes(r, Dependencies{Manager: manager, Hub: hub, Push: push, JWTSecret: testSecret})
	return &testAPI{t: t, router: r, directory: dir}
}

func (a *testAPI) do(actor *models.Actor, method, path string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := utils.GenerateToken(*actor, testSecret, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *testAPI) createBooking(actor models.Actor, vehicle, start, end string) models.Booking {
	a.t.Helper()
	code, env := a.do(&actor, http.MethodPost, "/api/bookings", gin.H{
		"vehicleId": vehicle, "startDate": start, "endDate": end, "purpose": "site visit",
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
	var b models.Booking
	require.NoError(a.t, json.Unmarshal(env.Data, &b))
	return b
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestCreateBookingEndpoint(t *testing.T) {
	api := newTestAPI(t)

	b := api.createBooking(customer, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")
	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, "u1", b.UserID)

	// Dates without a zone are UTC, so this overlaps the first booking.
	code, env := api.do(&other, http.MethodPost, "/api/bookings", gin.H{
		"vehicleId": "v1", "startDate": "2030-03-10T16:00:00", "endDate": "2030-03-10T18:00:00",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VehicleUnavailable", env.Error.Kind)
	assert.Contains(t, env.Message, "2030-03-10T09:00:00Z")

	// Back to back is fine.
	api.createBooking(other, "v1", "2030-03-10T17:00:00Z", "2030-03-10T19:00:00Z")
}

func TestCreateBookingErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body gin.H
		code int
		kind string
	}{
		{"end before start", gin.H{"vehicleId": "v1", "startDate": "2030-03-10T17:00:00Z", "endDate": "2030-03-10T09:00:00Z"}, 400, "InvalidInterval"},
		{"in the past", gin.H{"vehicleId": "v1", "startDate": "2030-02-01T09:00:00Z", "endDate": "2030-03-10T09:00:00Z"}, 400, "PastStartDate"},
		{"unknown vehicle", gin.H{"vehicleId": "v9", "startDate": "2030-03-10T09:00:00Z", "endDate": "2030-03-10T17:00:00Z"}, 404, "VehicleNotFound"},
		{"vehicle in maintenance", gin.H{"vehicleId": "v2", "startDate": "2030-03-10T09:00:00Z", "endDate": "2030-03-10T17:00:00Z"}, 409, "VehicleUnavailable"},
		{"bad date", gin.H{"vehicleId": "v1", "startDate": "tomorrow", "endDate": "2030-03-10T17:00:00Z"}, 400, "InvalidRequest"},
		{"missing vehicle", gin.H{"startDate": "2030-03-10T09:00:00Z", "endDate": "2030-03-10T17:00:00Z"}, 400, "InvalidRequest"},
	}
	for _, tt := range tests {
		code, env := api.do(&customer, http.MethodPost, "/api/bookings", tt.body)
		assert.Equal(t, tt.code, code, tt.name)
		require.NotNil(t, env.Error, tt.name)
		assert.Equal(t, tt.kind, env.Error.Kind, tt.name)
	}
}

func TestRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	code, env := api.do(nil, http.MethodGet, "/api/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
}

func TestCheckAvailabilityEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.createBooking(other, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")

	code, env := api.do(&customer, http.MethodPost, "/api/bookings/check-availability", gin.H{
		"vehicleId": "v1", "startDate": "2030-03-10T12:00:00Z", "endDate": "2030-03-10T20:00:00Z",
	})
	require.Equal(t, http.StatusOK, code)
	res := decode[models.Availability](t, env)
	assert.False(t, res.Available)
	assert.Equal(t, 1, res.ConflictCount)
	require.Len(t, res.Conflicts, 1)
	assert.Empty(t, res.Conflicts[0].UserID, "customers only see the reserved window")

	code, env = api.do(&customer, http.MethodPost, "/api/bookings/check-availability", gin.H{
		"vehicleId": "v1", "startDate": "2030-03-10T17:00:00Z", "endDate": "2030-03-10T20:00:00Z",
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[models.Availability](t, env).Available)

	code, env = api.do(&customer, http.MethodPost, "/api/bookings/check-availability", gin.H{
		"vehicleId": "v9", "startDate": "2030-03-10T17:00:00Z", "endDate": "2030-03-10T20:00:00Z",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "VehicleNotFound", env.Error.Kind)
}

func TestLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(t)
	b := api.createBooking(customer, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")
	base := "/api/bookings/" + b.ID

	code, env := api.do(&customer, http.MethodPut, base+"/confirm", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", env.Error.Kind)

	code, env = api.do(&manager, http.MethodPut, base+"/start", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidTransition", env.Error.Kind)

	code, env = api.do(&manager, http.MethodPut, base+"/assign-driver", gin.H{"driverId": "d1", "routeId": "r1"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assigned := decode[models.Booking](t, env)
	assert.Equal(t, models.BookingStatusConfirmed, assigned.Status)
	assert.Equal(t, "Dan", assigned.AssignedDriverName)

	// Legacy label for active.
	code, env = api.do(&driver, http.MethodPatch, base+"/status", gin.H{"status": "in_progress"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, models.BookingStatusActive, decode[models.Booking](t, env).Status)

	code, env = api.do(&customer, http.MethodPut, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidTransition", env.Error.Kind)

	code, env = api.do(&driver, http.MethodPut, base+"/complete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.BookingStatusCompleted, decode[models.Booking](t, env).Status)

	code, env = api.do(&manager, http.MethodPatch, base+"/status", gin.H{"status": "rejected"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", env.Error.Kind)

	code, env = api.do(&manager, http.MethodPut, "/api/bookings/missing/confirm", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "BookingNotFound", env.Error.Kind)
}

func TestAssignDriverEndpointErrors(t *testing.T) {
	api := newTestAPI(t)
	b := api.createBooking(customer, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")
	path := "/api/bookings/" + b.ID + "/assign-driver"

	code, env := api.do(&manager, http.MethodPut, path, gin.H{"driverId": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "DriverNotFound", env.Error.Kind)

	code, env = api.do(&manager, http.MethodPut, path, gin.H{"driverId": "d1", "routeId": "nowhere"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RouteNotFound", env.Error.Kind)

	code, _ = api.do(&manager, http.MethodPut, path, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(&manager, http.MethodPut, "/api/bookings/"+b.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	code, env = api.do(&manager, http.MethodPut, path, gin.H{"driverId": "d1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidBookingState", env.Error.Kind)
}

func TestReadEndpoints(t *testing.T) {
	api := newTestAPI(t)
	mine := api.createBooking(customer, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")
	theirs := api.createBooking(other, "v1", "2030-03-11T09:00:00Z", "2030-03-11T17:00:00Z")

	code, env := api.do(&customer, http.MethodGet, "/api/bookings/"+theirs.ID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(&customer, http.MethodGet, "/api/bookings", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]models.Booking](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	code, env = api.do(&manager, http.MethodGet, "/api/bookings?status=pending,confirmed&vehicleId=v1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Booking](t, env), 2)

	code, env = api.do(&manager, http.MethodGet, "/api/bookings/status/canceled", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.Booking](t, env))

	code, env = api.do(&customer, http.MethodGet, "/api/bookings/user/u2", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(&customer, http.MethodGet, "/api/bookings/user/u1/upcoming", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Booking](t, env), 1)

	code, env = api.do(&customer, http.MethodGet, "/api/bookings/vehicle/v1/active", nil)
	require.Equal(t, http.StatusOK, code)
	active := decode[[]models.Booking](t, env)
	require.Len(t, active, 2)
	assert.Equal(t, "u1", active[0].UserID)
	assert.Empty(t, active[1].UserID)

	code, env = api.do(&driver, http.MethodGet, "/api/bookings/driver/d1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.Booking](t, env))
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	api := newTestAPI(t)
	b := api.createBooking(customer, "v1", "2030-03-10T09:00:00Z", "2030-03-10T17:00:00Z")
	api.createBooking(other, "v1", "2030-03-11T09:00:00Z", "2030-03-11T17:00:00Z")
	path := "/api/bookings/" + b.ID

	code, env := api.do(&customer, http.MethodPut, path, gin.H{"endDate": "2030-03-10T19:00:00Z", "notes": "two pallets"})
	require.Equal(t, http.StatusOK, code, env.Message)
	updated := decode[models.Booking](t, env)
	assert.Equal(t, "two pallets", updated.Notes)
	assert.Equal(t, "site visit", updated.Purpose)

	code, env = api.do(&customer, http.MethodPut, path, gin.H{"endDate": "2030-03-11T10:00:00Z"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "VehicleUnavailable", env.Error.Kind)

	code, _ = api.do(&manager, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(&admin, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = api.do(&admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "BookingNotFound", env.Error.Kind)
}

func TestRegisterTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(&driver, http.MethodPost, "/api/notifications/register-token", gin.H{"fcmToken": "tok-d1"})
	require.Equal(t, http.StatusOK, code)
	d, err := api.directory.FindDriver(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "tok-d1", d.FCMToken)

	code, env := api.do(&customer, http.MethodPost, "/api/notifications/register-token", gin.H{"fcmToken": "tok-u1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", env.Error.Kind)

	code, _ = api.do(&driver, http.MethodPost, "/api/notifications/register-token", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(&driver, http.MethodDelete, "/api/notifications/remove-token", nil)
	require.Equal(t, http.StatusOK, code)
	d, err = api.directory.FindDriver(context.Background(), "d1")
	require.NoError(t, err)
	assert.Empty(t, d.FCMToken)
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	code, env := api.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForKind(services.KindInvalidInterval))
	assert.Equal(t, http.StatusBadRequest, statusForKind(services.KindPastStartDate))
	assert.Equal(t, http.StatusNotFound, statusForKind(services.KindVehicleNotFound))
	assert.Equal(t, http.StatusConflict, statusForKind(services.KindConcurrencyConflict))
	assert.Equal(t, http.StatusConflict, statusForKind(services.KindInvalidBookingState))
	assert.Equal(t, http.StatusForbidden, statusForKind(services.KindForbidden))
}
