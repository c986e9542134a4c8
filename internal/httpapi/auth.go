package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/summitlabs/summit-api/internal/checkin"
)

// tokenAudience is the aud claim every summit-api token must carry.
const tokenAudience = "summit"

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

func unauthorized(message string) *authError {
	return &authError{status: 401, code: "unauthorized", message: message}
}

// verifyBearer validates an HS256 bearer token from the Authorization header
// and returns the user identity from its sub claim. Tokens must carry
// aud "summit" and an unexpired exp claim.
func verifyBearer(authHeader, secret string, now time.Time) (checkin.UserID, *authError) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return uuid.Nil, unauthorized("missing or invalid bearer token")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return uuid.Nil, unauthorized("invalid jwt format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return uuid.Nil, unauthorized("invalid jwt header")
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return uuid.Nil, unauthorized("invalid jwt header")
	}

	if header.Alg != "HS256" {
		return uuid.Nil, unauthorized("unsupported jwt algorithm")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return uuid.Nil, unauthorized("invalid jwt payload")
	}

	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return uuid.Nil, unauthorized("invalid jwt signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))

	if !hmac.Equal(sigBytes, mac.Sum(nil)) {
		return uuid.Nil, unauthorized("jwt signature mismatch")
	}

	var payload struct {
		Sub string `json:"sub"`
		Aud string `json:"aud"`
		Exp int64  `json:"exp"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return uuid.Nil, unauthorized("invalid jwt payload")
	}

	if payload.Aud != tokenAudience {
		return uuid.Nil, unauthorized("invalid aud claim")
	}

	if payload.Exp == 0 || now.Unix() >= payload.Exp {
		return uuid.Nil, unauthorized("token expired")
	}

	user, err := uuid.Parse(payload.Sub)
	if err != nil {
		return uuid.Nil, unauthorized("invalid sub claim")
	}

	return user, nil
}

// MintToken signs an HS256 bearer token for user, valid for ttl from now.
// Used by the token subcommand and by tests.
func MintToken(secret string, user checkin.UserID, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("httpapi: token secret is empty")
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	claims, err := json.Marshal(map[string]any{
		"sub": user.String(),
		"aud": tokenAudience,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
		"jti": uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("httpapi: encoding claims: %w", err)
	}

	signingInput := header + "." + base64.RawURLEncoding.EncodeToString(claims)

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signingInput))

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
