package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT payload issued by the campus auth service.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Parse validates a token and returns the authenticated user context.
func Parse(tokenStr, key, issuer string) (User, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return User{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return User{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return User{}, errors.New("issuer mismatch")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return User{}, err
	}
	return User{ID: claims.Subject, Role: role}, nil
}
