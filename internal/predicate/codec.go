// Package predicate converts the opaque filter payload carried in request
// paths into an ordered column/value predicate.
//
// The wire form is standard base64 of a JSON object; padding is optional on
// the way in. Decoding fails soft:
// any malformed payload reads as an absent predicate and the caller decides
// whether that is an error for the operation at hand.
package predicate

import (
	"encoding/base64"
	"strings"

	"github.com/abmgate/abmgate/internal/record"
)

// Decode returns the predicate carried by payload. Characters outside the
// base64 alphabet are dropped first, which absorbs transport damage such as
// stray whitespace. ok is false when payload is empty or does not decode to
// a JSON object.
func Decode(payload string) (record.Fields, bool) {
	clean := strings.TrimRight(strings.Map(keepBase64, payload), "=")
	if clean == "" {
		return nil, false
	}

	raw, err := base64.RawStdEncoding.DecodeString(clean)
	if err != nil {
		return nil, false
	}

	var where record.Fields
	if err := where.UnmarshalJSON(raw); err != nil {
		return nil, false
	}
	return where, true
}

// Encode is the inverse of Decode.
func Encode(where record.Fields) (string, error) {
	raw, err := where.MarshalJSON()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func keepBase64(r rune) rune {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	case r == '+', r == '/', r == '=':
		return r
	}
	return -1
}
