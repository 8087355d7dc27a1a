// Package token decodes authorization header values seen in transit.
// Signatures are never verified: the payload is only read for observation.
package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode is the sentinel wrapped by every DecodeError.
var ErrDecode = errors.New("token decode failed")

// DecodeError reports why a header value could not be decoded.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "token: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

// Schemes are matched case-insensitively, longest first.
var schemes = []string{"bearer ", "bot "}

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims is the decoded payload of a token.
type Claims struct {
	jwt.MapClaims
}

// Subject returns the user identifier claim: user_id, then id, then sub.
func (c Claims) Subject() (string, bool) {
	for _, key := range []string{"user_id", "id", "sub"} {
		if s, ok := claimString(c.MapClaims[key]); ok {
			return s, true
		}
	}
	return "", false
}

// Expiry returns the raw exp claim rendered as text.
func (c Claims) Expiry() (string, bool) {
	return claimString(c.MapClaims["exp"])
}

// Decode strips the auth scheme from raw and decodes the payload segment
// of the remaining three-part token. It never panics.
func Decode(raw string) (claims Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = Claims{}
			err = &DecodeError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	rest, ok := stripScheme(raw)
	if !ok {
		return Claims{}, &DecodeError{Reason: "missing or unrecognized auth scheme"}
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return Claims{}, &DecodeError{Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}

	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, &DecodeError{Reason: fmt.Sprintf("payload base64: %v", err)}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var m jwt.MapClaims
	if err := dec.Decode(&m); err != nil {
		return Claims{}, &DecodeError{Reason: fmt.Sprintf("payload json: %v", err)}
	}
	if dec.More() {
		return Claims{}, &DecodeError{Reason: "payload json: trailing data"}
	}
	if m == nil {
		return Claims{}, &DecodeError{Reason: "payload json: not an object"}
	}

	return Claims{MapClaims: m}, nil
}

func stripScheme(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return strings.TrimSpace(v[len(s):]), true
		}
	}
	return "", false
}

func claimString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
