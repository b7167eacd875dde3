package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingSecret = errors.New("session secret is not configured")

// Signer signs arbitrary JSON-serializable payloads with HS256. The payload
// becomes the token's claim set unchanged, so signing the same value with the
// same secret always yields the same token.
type Signer[T any] struct {
	secret []byte
	parser *jwt.Parser
}

func NewSigner[T any](secret []byte) (*Signer[T], error) {
	if len(bytes.TrimSpace(secret)) == 0 {
		return nil, errMissingSecret
	}
	return &Signer[T]{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithJSONNumber(),
		),
	}, nil
}

// Sign serializes claims and signs them.
func (s *Signer[T]) Sign(claims T) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	mc := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&mc); err != nil {
		return "", errors.New("session claims must serialize to a JSON object")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(s.secret)
}

// Verify returns the payload of a valid token. Any failure, including a
// malformed token or a bad signature, is reported as ok == false.
func (s *Signer[T]) Verify(token string) (claims T, ok bool) {
	var zero T
	token = strings.TrimSpace(token)
	if token == "" {
		return zero, false
	}
	mc := jwt.MapClaims{}
	parsed, err := s.parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return zero, false
	}
	raw, err := json.Marshal(mc)
	if err != nil {
		return zero, false
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return zero, false
	}
	return claims, true
}
