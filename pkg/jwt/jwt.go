package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const algorithm = "HS256"

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// StandardClaims carries the registered JWT claims (RFC 7519 §4.1).
// Temporal fields are Unix timestamps; zero values are treated as unset.
type StandardClaims struct {
	ID        string `json:"jti,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Valid checks the temporal claims against the current time.
func (c StandardClaims) Valid() error {
	now := time.Now().Unix()
	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return ErrExpiredToken
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

// Service signs and verifies tokens with a single HMAC-SHA256 key.
type Service struct {
	signingKey []byte
}

// New creates a token service. The key should be at least 32 bytes.
func New(signingKey string) (*Service, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	return &Service{signingKey: []byte(signingKey)}, nil
}

// Generate signs the claims and returns the compact JWT string.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	headerJSON, err := json.Marshal(header{Type: "JWT", Algorithm: algorithm})
	if err != nil {
		return "", fmt.Errorf("jwt: marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("jwt: marshal claims: %w", err)
	}

	payload := encodeSegment(headerJSON) + "." + encodeSegment(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Parse verifies the token signature and unmarshals the claims into dst.
// When dst implements Valid() error, temporal claims are checked too.
func (s *Service) Parse(token string, dst any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	// Constant-time compare blocks signature timing probes.
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.sign(payload))) != 1 {
		return ErrInvalidSignature
	}

	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return fmt.Errorf("jwt: decode header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return fmt.Errorf("jwt: unmarshal header: %w", err)
	}
	// Reject anything but HS256 to prevent algorithm confusion.
	if hdr.Algorithm != algorithm {
		return ErrUnexpectedSigningMethod
	}

	claimsJSON, err := decodeSegment(parts[1])
	if err != nil {
		return fmt.Errorf("jwt: decode claims: %w", err)
	}
	if err := json.Unmarshal(claimsJSON, dst); err != nil {
		return fmt.Errorf("jwt: unmarshal claims: %w", err)
	}

	if v, ok := dst.(interface{ Valid() error }); ok {
		if err := v.Valid(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return encodeSegment(h.Sum(nil))
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
