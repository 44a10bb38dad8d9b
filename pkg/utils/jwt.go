package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// GenerateToken signs an HS256 token for actor. Tokens are normally issued by
// the identity service; this is used by tooling and tests.
func GenerateToken(actor models.Actor, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":       actor.ID,
		"name":     actor.Name,
		"userType": string(actor.Role),
		"exp":      time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenString, secret string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
}

// ActorFromClaims reads the caller out of validated claims. Numeric ids are
// accepted for tokens minted by the older user service.
func ActorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	var id string
	switch v := claims["id"].(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatInt(int64(v), 10)
	}
	if id == "" {
		return models.Actor{}, fmt.Errorf("%w: missing id", ErrInvalidClaims)
	}

	userType, _ := claims["userType"].(string)
	role, ok := models.ParseRole(userType)
	if !ok {
		return models.Actor{}, fmt.Errorf("%w: unknown userType %q", ErrInvalidClaims, userType)
	}

	name, _ := claims["name"].(string)
	return models.Actor{ID: id, Name: name, Role: role}, nil
}
