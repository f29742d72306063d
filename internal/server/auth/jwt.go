// Package auth issues and verifies short-lived session tokens for
// logged-in control-plane users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pgElephant/ramd/internal/common"
)

// Claims carries the standard claims; Subject is the username.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 session token for username that expires
// validity after now.
func GenerateToken(username string, secretKey []byte, validity time.Duration, now time.Time) (string, error) {
	if len(secretKey) == 0 {
		return "", fmt.Errorf("%w: empty signing key", common.ErrInvalidToken)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUsernameFromToken verifies tokenString against secretKey using now as
// the reference time. Expired tokens yield common.ErrTokenExpired, every
// other failure common.ErrInvalidToken.
func GetUsernameFromToken(tokenString string, secretKey []byte, now func() time.Time) (string, error) {
	if len(secretKey) == 0 {
		return "", common.ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
