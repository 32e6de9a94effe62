// Package cursor implements the stateless pagination codec (C1): a
// cursor is the base64url of the canonical JSON of {offset, limit,
// filterHash?}, and is opaque to clients.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/loominal/weft/internal/common/errors"
)

const (
	MinLimit = 1
	MaxLimit = 1000
)

// State is the decoded, logical content of a cursor.
type State struct {
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
	FilterHash string `json:"filterHash,omitempty"`
}

// Encode produces the base64url of the canonical (fixed field order,
// compact) JSON encoding of s.
func Encode(s State) string {
	// Go's encoding/json already emits struct fields in declaration
	// order with no extraneous whitespace, which is canonical enough
	// here since the field set and order are fixed by the State type.
	b, _ := json.Marshal(s)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
}

// Decode parses a cursor string, rejecting malformed input or
// out-of-range offset/limit.
func Decode(encoded string) (State, error) {
	var s State
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return s, apperrors.BadRequest("invalid cursor: malformed encoding")
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, apperrors.BadRequest("invalid cursor: malformed payload")
	}
	if s.Offset < 0 {
		return s, apperrors.BadRequest("invalid cursor: negative offset")
	}
	if s.Limit < MinLimit || s.Limit > MaxLimit {
		return s, apperrors.BadRequest(fmt.Sprintf("invalid cursor: limit must be in [%d,%d]", MinLimit, MaxLimit))
	}
	return s, nil
}

// Validate checks a decoded cursor's filter hash against the hash of
// the current request's filter. A cursor that omits filterHash is
// always valid; a present hash must match exactly.
func Validate(s State, currentFilterHash string) error {
	if s.FilterHash == "" {
		return nil
	}
	if s.FilterHash != currentFilterHash {
		return apperrors.BadRequest("invalid cursor: filter mismatch — filters changed between requests")
	}
	return nil
}

// FilterHash returns the first 16 hex characters of the SHA-256 of the
// canonical (lexicographically key-sorted) JSON of filter. The same
// filter in any key order yields the same hash.
func FilterHash(filter map[string]string) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if filter[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := "{"
	for i, k := range keys {
		if i > 0 {
			canonical += ","
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(filter[k])
		canonical += string(kb) + ":" + string(vb)
	}
	canonical += "}"

	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:16]
}
