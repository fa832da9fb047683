package event

import "github.com/google/uuid"

// OwnerJoined fires when a player connects to the host.
type OwnerJoined struct {
	Owner uuid.UUID
	Name  string
}

// OwnerLeft fires when a player disconnects.
type OwnerLeft struct {
	Owner uuid.UUID
	Name  string
}

// PartitionChanged fires when a player moves between dimensions.
type PartitionChanged struct {
	Owner    uuid.UUID
	From, To string
}
