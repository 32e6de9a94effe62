// Package pagination binds the cursor codec (C1) to the listing
// operations over the Agent Registry, Target Registry, and Work
// Coordinator (C11).
package pagination

import (
	"github.com/loominal/weft/internal/cursor"
)

// PublicMaxLimit is the cap the HTTP adapters enforce on requested
// limits (spec.md §9, open question 3): the codec itself accepts up to
// cursor.MaxLimit for wider internal callers, but public list endpoints
// never mint a cursor requesting more than this.
const PublicMaxLimit = 100

// DefaultLimit is used when a request omits limit.
const DefaultLimit = 50

// Page is a generic paginated result.
type Page[T any] struct {
	Items      []T
	Count      int
	Total      int
	HasMore    bool
	NextCursor *string
	PrevCursor *string
}

// ClampPublicLimit enforces the public cap, defaulting to DefaultLimit
// when limit is zero.
func ClampPublicLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > PublicMaxLimit {
		return PublicMaxLimit
	}
	return limit
}

// Paginate slices a full, already-filtered snapshot according to a
// decoded cursor state, returning the page and the cursors for the
// adjacent pages.
func Paginate[T any](items []T, state cursor.State, filterHash string) Page[T] {
	total := len(items)
	offset := state.Offset
	if offset > total {
		offset = total
	}
	end := offset + state.Limit
	if end > total {
		end = total
	}

	page := items[offset:end]
	hasMore := end < total

	var next, prev *string
	if hasMore {
		enc := cursor.Encode(cursor.State{Offset: end, Limit: state.Limit, FilterHash: filterHash})
		next = &enc
	}
	if offset > 0 {
		prevOffset := offset - state.Limit
		if prevOffset < 0 {
			prevOffset = 0
		}
		enc := cursor.Encode(cursor.State{Offset: prevOffset, Limit: state.Limit, FilterHash: filterHash})
		prev = &enc
	}

	return Page[T]{Items: page, Count: len(page), Total: total, HasMore: hasMore, NextCursor: next, PrevCursor: prev}
}

// DecodeOrFirstPage decodes an optional cursor query parameter,
// defaulting to the first page at the given limit when encoded is
// empty.
func DecodeOrFirstPage(encoded string, limit int) (cursor.State, error) {
	if encoded == "" {
		return cursor.State{Offset: 0, Limit: limit}, nil
	}
	state, err := cursor.Decode(encoded)
	if err != nil {
		return cursor.State{}, err
	}
	return state, nil
}
