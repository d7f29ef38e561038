package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidNonce is returned for a nonce that is malformed, expired, badly signed or bound to another order
var ErrInvalidNonce = errors.New("invalid poll nonce")

// NonceClaims binds a poll nonce to one order and optionally one customer
type NonceClaims struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// GeneratePollNonce signs a nonce for polling the status of orderID
func GeneratePollNonce(secret, orderID, customerID string, lifespan time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("GeneratePollNonce: empty secret")
	}

	now := time.Now()
	claims := NonceClaims{
		OrderID:    orderID,
		CustomerID: customerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   orderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifespan)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidatePollNonce checks the signature and expiry of a nonce and that it was issued for orderID
func ValidatePollNonce(secret, nonce, orderID string) (*NonceClaims, error) {
	if secret == "" || nonce == "" {
		return nil, ErrInvalidNonce
	}

	claims := &NonceClaims{}
	_, err := jwt.ParseWithClaims(nonce, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no expiry", ErrInvalidNonce)
	}
	if claims.OrderID != orderID {
		return nil, fmt.Errorf("%w: issued for another order", ErrInvalidNonce)
	}
	return claims, nil
}
