// Package store defines the contract both session-store backends (the
// Redis-backed KV store and the raft-replicated in-memory store) implement.
package store

import (
	"context"

	"github.com/distx-io/tc/session"
)

// SessionCondition narrows a readByCondition query. XID takes precedence,
// then TransactionID, then Statuses.
type SessionCondition struct {
	XID           string
	TransactionID int64
	Statuses      []session.GlobalStatus
}

// SessionStore is the contract both backends implement (spec §4.2/§4.3).
type SessionStore interface {
	InsertOrUpdateGlobal(ctx context.Context, g *session.GlobalSession) error
	DeleteGlobal(ctx context.Context, g *session.GlobalSession) error
	InsertOrUpdateBranch(ctx context.Context, b *session.BranchSession) error
	DeleteBranch(ctx context.Context, b *session.BranchSession) error

	// ReadGlobal looks up a single global by xid.
	ReadGlobal(ctx context.Context, xid string, withBranches bool) (*session.GlobalSession, error)

	// ReadByStatuses returns every global whose status is in statuses, with
	// branches attached.
	ReadByStatuses(ctx context.Context, statuses []session.GlobalStatus) ([]*session.GlobalSession, error)

	// ReadByCondition resolves a SessionCondition against the store.
	ReadByCondition(ctx context.Context, cond SessionCondition) ([]*session.GlobalSession, error)

	// AddToManager inserts an existing global into one of the retry/async
	// side maps (no-op on the KV backend, which has no separate maps beyond
	// what a status-based scan already serves; meaningful on the replicated
	// backend). Used by leader handover rehydration.
	AddToManager(ctx context.Context, name session.SessionManagerName, g *session.GlobalSession) error

	// RemoveFromManager evicts a global from a side map.
	RemoveFromManager(ctx context.Context, name session.SessionManagerName, xid string) error

	// RequiresRollbackDoubleRead reports whether doGlobalRollback must
	// re-read the global after driving branches to detect registrations
	// that raced the first read. True only for backends whose reads can be
	// stale relative to a concurrent writer (the KV backend, whose remote
	// service may be fronted by multiple coordinator processes); the
	// replicated backend's reads are already consistent with its own
	// leader state, so it returns false.
	RequiresRollbackDoubleRead() bool
}
