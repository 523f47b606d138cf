package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "mdedup"

type Claims struct {
	UserID string `json:"user_id"`
	// Scope limits what the token may do: "user" for API access, "operator" for runs across users.
	Scope string `json:"scope,omitempty"`
	jwtlib.RegisteredClaims
}

const (
	ScopeUser     = "user"
	ScopeOperator = "operator"
)

func GenerateToken(userID, scope string, secret []byte, ttl time.Duration) (string, error) {
	if scope == "" {
		scope = ScopeUser
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
