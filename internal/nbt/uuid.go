package nbt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// UUIDFromInts decodes the 4-int array form. Any other length is malformed.
func UUIDFromInts(v []int32) (uuid.UUID, bool) {
	if len(v) != 4 {
		return uuid.Nil, false
	}
	var id uuid.UUID
	for i, n := range v {
		binary.BigEndian.PutUint32(id[i*4:], uint32(n))
	}
	return id, true
}

// UUIDToInts encodes id as the 4-int array form.
func UUIDToInts(id uuid.UUID) []int32 {
	out := make([]int32, 4)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(id[i*4:]))
	}
	return out
}

// UUIDFromHalves joins the most/least significant 64-bit halves.
func UUIDFromHalves(most, least int64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[:8], uint64(most))
	binary.BigEndian.PutUint64(id[8:], uint64(least))
	return id
}

// UUIDHalves splits id into most/least significant halves.
func UUIDHalves(id uuid.UUID) (most, least int64) {
	return int64(binary.BigEndian.Uint64(id[:8])), int64(binary.BigEndian.Uint64(id[8:]))
}
