package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by every bearer token. Tokens are issued by the platform's
// permission service; this service only validates them and reads the
// capability list.
type Claims struct {
	UserID       uuid.UUID `json:"user_id"`
	CompanyID    uuid.UUID `json:"company_id"`
	Capabilities []string  `json:"capabilities"`
	jwt.RegisteredClaims
}

// HasCapability reports whether the token grants the given capability string.
func (c *Claims) HasCapability(cap string) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// GenerateToken signs a capability token. Used by tests and the seed tool;
// production tokens come from the permission service with the same shape.
func GenerateToken(secret string, userID, companyID uuid.UUID, capabilities []string) (string, error) {
	claims := Claims{
		UserID:       userID,
		CompanyID:    companyID,
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
