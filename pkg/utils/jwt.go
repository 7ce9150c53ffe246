package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
)

// Bearer tokens exist for non-browser API clients; browsers carry the session
// cookie. The token holds nothing but the user id: role and email are read
// fresh from the database on every request, so an admin demotion or email
// change takes effect immediately instead of at token expiry.

var bearerSigner = struct {
	secret []byte
	ttl    time.Duration
}{
	secret: []byte("change-me-in-production"),
	ttl:    24 * time.Hour,
}

var ErrBearerInvalid = errors.New("bearer token invalid")

func ConfigureJWT(secret string, expirationHours int) {
	if secret != "" {
		bearerSigner.secret = []byte(secret)
	}
	if expirationHours > 0 {
		bearerSigner.ttl = time.Duration(expirationHours) * time.Hour
	}
}

func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(bearerSigner.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(bearerSigner.secret)
}

// ValidateToken checks signature and expiry and returns the user id from the
// subject claim.
func ValidateToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return bearerSigner.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, ErrBearerInvalid
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrBearerInvalid
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrBearerInvalid
	}

	return userID, nil
}
