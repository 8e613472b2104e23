// Package collaborator declares the external collaborator contracts the
// coordinator depends on (spec §4.5): locking, branch commit/rollback,
// event publishing, and identity generation. The coordinator only ever
// talks to these interfaces — concrete implementations live in the
// lock/event/idgen subpackages.
package collaborator

import (
	"context"

	"github.com/distx-io/tc/session"
)

// LockManager is the opaque write-set conflict-detection capability.
type LockManager interface {
	Acquire(ctx context.Context, b *session.BranchSession) (bool, error)
	Release(ctx context.Context, b *session.BranchSession) error
	QueryLock(ctx context.Context, branchType session.BranchType, resourceID, xid, lockKey string) (bool, error)
}

// BranchCommitter drives phase-two commit for one branchType.
type BranchCommitter interface {
	BranchCommit(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error)
}

// BranchRollbacker drives phase-two rollback for one branchType.
type BranchRollbacker interface {
	BranchRollback(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error)
}

// Role names the side of a GlobalTransactionEvent.
type Role string

const (
	RoleBegin        Role = "begin"
	RoleCommitStart  Role = "commit-start"
	RoleCommitEnd    Role = "commit-end"
	RoleRollbackStart Role = "rollback-start"
	RoleRollbackEnd  Role = "rollback-end"
)

// GlobalTransactionEvent is the payload handed to an EventSink.
type GlobalTransactionEvent struct {
	XID       string
	Role      Role
	Name      string
	BeginTs   int64
	EndTs     *int64
	Status    session.GlobalStatus
}

// EventSink receives lifecycle events at begin/commit-start/commit-end/
// rollback-start/rollback-end.
type EventSink interface {
	Emit(ctx context.Context, ev GlobalTransactionEvent) error
}

// IDGenerator produces the 64-bit transactionId/branchId identifiers and
// the opaque xid string.
type IDGenerator interface {
	NextXID() string
	NextID() int64
}
