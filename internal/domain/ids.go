// Package domain defines the core identity and data-model types shared across
// the oplog, worker lifecycle, routing, and durability subsystems.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// WorkerId globally identifies a worker instance. It is the routing key used
// by consistent-hash sharding and the key space for the active-worker cache,
// oplog directory, and invocation-key tables.
type WorkerId struct {
	ComponentID uuid.UUID
	WorkerName  string
}

func (w WorkerId) String() string {
	return fmt.Sprintf("%s/%s", w.ComponentID, w.WorkerName)
}

// IsZero reports whether w is the zero value.
func (w WorkerId) IsZero() bool {
	return w.ComponentID == uuid.Nil && w.WorkerName == ""
}

// VersionedWorkerId pins a WorkerId to the component version the oplog was
// produced against. An oplog belongs to exactly one VersionedWorkerId per
// generation; upgrades are themselves recorded as oplog entries.
type VersionedWorkerId struct {
	WorkerId        WorkerId
	ComponentVersion uint64
}

func (v VersionedWorkerId) String() string {
	return fmt.Sprintf("%s@%d", v.WorkerId, v.ComponentVersion)
}

// ParseComponentID parses a UUID string into a ComponentID-typed value
// (component identity is represented as uuid.UUID; there is no distinct
// ComponentID type since WorkerId embeds it directly).
func ParseComponentID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// AccountId identifies the owning account of a worker, used to namespace
// blob storage and resource-limiter accounting.
type AccountId string

// InvocationKey is an opaque handle bound to a single ExportedFunctionInvoked
// entry, used to await completion of a specific guest call.
type InvocationKey string

// NewInvocationKey mints a fresh random invocation key.
func NewInvocationKey() InvocationKey {
	return InvocationKey(uuid.NewString())
}

// PayloadID identifies an externalized oplog payload within a worker's
// OplogPayload namespace.
type PayloadID uuid.UUID

func NewPayloadID() PayloadID {
	return PayloadID(uuid.New())
}

func (p PayloadID) String() string {
	return uuid.UUID(p).String()
}
