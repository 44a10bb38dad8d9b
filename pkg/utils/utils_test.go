package utils

import (
	"testing"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	actor := models.Actor{ID: "m1", Name: "Mona", Role: models.RoleFleetManager}
	token, err := GenerateToken(actor, "secret", time.Hour)
	require.NoError(t, err)

	parsed, err := ValidateToken(token, "secret")
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	got, err := ActorFromClaims(parsed.Claims.(jwt.MapClaims))
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestValidateTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken(models.Actor{ID: "u1", Role: models.RoleCustomer}, "secret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(token, "other")
	assert.Error(t, err)

	expired, err := GenerateToken(models.Actor{ID: "u1", Role: models.RoleCustomer}, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestActorFromClaims(t *testing.T) {
	actor, err := ActorFromClaims(jwt.MapClaims{"id": float64(42), "userType": "client"})
	require.NoError(t, err)
	assert.Equal(t, "42", actor.ID)
	assert.Equal(t, models.RoleCustomer, actor.Role)

	_, err = ActorFromClaims(jwt.MapClaims{"userType": "driver"})
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = ActorFromClaims(jwt.MapClaims{"id": "u1", "userType": "superuser"})
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestParseDateTime(t *testing.T) {
	want := time.Date(2030, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2030-03-10T09:00:00Z",
		"2030-03-10T12:00:00+03:00",
		"2030-03-10T09:00:00.000Z",
		"2030-03-10T09:00:00",
		"2030-03-10T09:00",
		" 2030-03-10 09:00:00 ",
	} {
		got, err := ParseDateTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}

	day, err := ParseDateTime("2030-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 3, 10, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDateTime("10/03/2030")
	assert.Error(t, err)
}
