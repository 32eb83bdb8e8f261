package domain

import "github.com/google/uuid"

// ComponentMetadata is the lightweight stand-in for the component-metadata
// database record Worker creation needs. The full metadata database is out
// of scope; only the shape a worker's creation sequence reads is kept.
type ComponentMetadata struct {
	ComponentID        uuid.UUID
	Version            uint64
	SizeBytes          uint64
	MemoryPagesInitial uint32
}
