package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
)

// IssueToken creates an HS256 token naming userID, valid for ttl.
func IssueToken(secret string, userID uuid.UUID, role models.SystemRole, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret not provided")
	}

	now := time.Now()
	claims := &Claims{
		SystemRole: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
