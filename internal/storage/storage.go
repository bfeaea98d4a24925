// Package storage defines the key-value contract shared by every backend
// holding the Engineers, Quotas and Requests collections plus the team
// capacity counter.
//
// Backends give read-your-writes on Scan and optimistic compare-and-swap on
// Update. They do not provide multi-record transactions; callers that need a
// cross-record change sequence it themselves.
package storage

import (
	"context"
	"time"

	"go-leave-ledger/internal/domain"
)

// Collection names. The object-store backend uses them as key prefixes.
const (
	CollectionEngineers = "EngineerAvailability"
	CollectionQuotas    = "LeaveQuota"
	CollectionRequests  = "LeaveRequests"
	CollectionCapacity  = "CapacityCounter"
)

// Entity is satisfied by pointers to the versioned domain records.
type Entity[T any] interface {
	*T
	RecordKey() string
	RecordVersion() int64
	SetRecordVersion(v int64)
	Touch(now time.Time)
}

// Collection is typed access to one logical collection.
type Collection[T any] interface {
	Name() string

	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (T, error)

	// Put is an unconditional upsert by primary key. Use Update to change
	// records other writers may touch.
	Put(ctx context.Context, rec T) error

	// Scan reads the whole collection ordered by key.
	Scan(ctx context.Context) ([]T, error)

	// Update reads the record, applies mutate and writes it back only if the
	// stored version is unchanged, otherwise it returns ErrConflict. An error
	// from mutate aborts the write and is returned unchanged. mutate may run
	// more than once when the call is retried, so it must be idempotent.
	Update(ctx context.Context, key string, mutate func(*T) error) (T, error)
}

// CapacityCounter is the maintained count of engineers on leave.
type CapacityCounter interface {
	Load(ctx context.Context) (domain.CapacityCounter, error)

	// Init creates the counter with the given value if it does not exist yet.
	// It reports whether this call created it.
	Init(ctx context.Context, onLeave int) (bool, error)

	// Acquire increments the counter only if its current value is below
	// limit, as one atomic step. It reports false when no slot is left and
	// ErrNotFound when the counter has not been initialised.
	Acquire(ctx context.Context, limit int) (bool, error)

	// Release decrements the counter, never below zero.
	Release(ctx context.Context) error
}

type Store interface {
	Engineers() Collection[domain.Engineer]
	Quotas() Collection[domain.Quota]
	Requests() Collection[domain.LeaveRequest]
	Capacity() CapacityCounter
	Close() error
}
