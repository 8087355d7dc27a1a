package intercept

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// BodyKind identifies how an outbound body was interpreted.
type BodyKind int

const (
	BodyNone       BodyKind = 0
	BodyStructured BodyKind = 1
	BodyRaw        BodyKind = 2
	BodyFailure    BodyKind = 3
)

// maxSummary limits how much of a body is copied into a log entry.
const maxSummary = 4 << 10

// Body is the parsed form of an outbound request body.
type Body struct {
	Kind  BodyKind
	Value any    // set for BodyStructured; numbers are json.Number
	Raw   []byte // the body as sent
	Err   string // set for BodyFailure
}

// ParseBody interprets data as JSON. Bodies that look like JSON but do not
// parse become BodyFailure; any other non-JSON content is BodyRaw. The raw
// bytes are copied so the result never aliases the caller's buffer.
func ParseBody(data []byte) Body {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Body{Kind: BodyNone}
	}

	raw := bytes.Clone(data)
	v, err := decodeJSON(trimmed)
	if err != nil {
		if looksStructured(trimmed) {
			return Body{Kind: BodyFailure, Raw: raw, Err: err.Error()}
		}
		return Body{Kind: BodyRaw, Raw: raw}
	}
	return Body{Kind: BodyStructured, Value: v, Raw: raw}
}

// decodeJSON parses exactly one JSON value, keeping numbers as written.
func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// encodeJSON marshals v without HTML escaping.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func looksStructured(b []byte) bool {
	return b[0] == '{' || b[0] == '['
}

// Summary renders the body for a log entry.
func (b Body) Summary() string {
	switch b.Kind {
	case BodyNone:
		return "null"
	case BodyStructured:
		var buf bytes.Buffer
		if err := json.Compact(&buf, bytes.TrimSpace(b.Raw)); err == nil {
			return truncate(buf.String())
		}
		out, err := encodeJSON(b.Value)
		if err != nil {
			return truncate(string(b.Raw))
		}
		return truncate(out)
	case BodyRaw:
		return truncate(string(b.Raw))
	case BodyFailure:
		return truncate(string(b.Raw))
	default:
		return fmt.Sprintf("<unknown body kind %d>", b.Kind)
	}
}

func truncate(s string) string {
	if len(s) <= maxSummary {
		return s
	}
	cut := maxSummary
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s... (%s total)", s[:cut], humanize.Bytes(uint64(len(s))))
}
