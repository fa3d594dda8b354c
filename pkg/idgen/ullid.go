// Package idgen generates identifiers: sortable IDs the in-memory event
// store gives to appended events, and random opaque tokens.
package idgen

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MustGenerateSortableID returns a lexically sortable, time-ordered
// identifier, used by the in-memory event store as the ID of an appended
// event that has none. Merge order there is append order, not this ID.
func MustGenerateSortableID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// MustGenerateToken returns a random opaque token (a UUID string). The lock
// protocol does not use it; leases carry no owner token.
func MustGenerateToken() string {
	return uuid.NewString()
}
