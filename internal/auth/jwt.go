// Package auth issues and verifies the server's JWTs.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: two kinds of token, one secret
// ────────────────────────────────────────────────────────────────────
// A user token (Claims) is the bearer a teacher or student sends on every
// request. A QR token (QRClaims) is what the teacher's projector shows: it
// names one class session and expires a few minutes after it is issued.
// Both are HS256 signed with the server secret, so a student cannot forge
// a QR token for a session that never opened attendance.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims embedded in each user token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// tokenDuration is how long a login stays valid.
const tokenDuration = 72 * time.Hour

// DefaultQRTokenTTL is the validity window of a QR token when the server
// is not configured otherwise.
const DefaultQRTokenTTL = 15 * time.Minute

var (
	// ErrQRExpired means the QR token was genuine but scanned too late.
	ErrQRExpired = errors.New("qr token expired")
	// ErrQRInvalid covers every other reason a QR token is refused.
	ErrQRInvalid = errors.New("invalid qr token")
)

// QRClaims are carried by a QR check-in token. Nonce changes every time
// attendance is (re)started, so a QR from an earlier start stops working.
type QRClaims struct {
	SessionID string `json:"session_id"`
	Nonce     string `json:"nonce"`
	jwt.RegisteredClaims
}

// GenerateQRToken signs a QR token for sessionID valid for ttl from now.
func GenerateQRToken(sessionID, nonce, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	signed, err := GenerateQRTokenWithExpiry(sessionID, nonce, secret, now, exp)
	return signed, exp, err
}

// GenerateQRTokenWithExpiry signs a QR token with explicit iat/exp values.
// Tests use it to build tokens that have already expired.
func GenerateQRTokenWithExpiry(sessionID, nonce, secret string, iat, exp time.Time) (string, error) {
	claims := QRClaims{
		SessionID: sessionID,
		Nonce:     nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign qr token: %w", err)
	}
	return signed, nil
}

// ParseQRToken verifies the signature and expiry of a QR token. An expired
// but otherwise valid token returns ErrQRExpired; anything else that fails
// returns ErrQRInvalid.
func ParseQRToken(tokenStr, secret string) (*QRClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &QRClaims{}, hmacKey(secret))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrQRExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrQRInvalid, err)
	}
	claims, ok := token.Claims.(*QRClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrQRInvalid
	}
	return claims, nil
}

// GenerateToken creates a signed JWT for the given user.
func GenerateToken(userID, role, secret string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a user JWT and returns its claims. It rejects a bad
// signature, an expired token, and any algorithm other than HMAC.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, hmacKey(secret))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// hmacKey guards against "alg:none" or RS256 tokens reaching an HS256 check.
func hmacKey(secret string) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}
}
