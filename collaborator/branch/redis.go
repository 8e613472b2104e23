// Package branch provides a reference BranchCommitter/BranchRollbacker for
// the TCC branch type, adapted from the teacher's demo MockComponent
// (example/tcccomponent.go): an idempotent, redis-backed phase-two that
// tracks each branch's data status (frozen/successful/canceled) by key.
package branch

import (
	"context"
	"errors"
	"fmt"

	"github.com/demdxx/gocast"
	"github.com/xiaoxuxiansheng/redis_lock"

	"github.com/distx-io/tc/session"
)

type dataStatus string

const (
	dataFrozen     dataStatus = "frozen"
	dataSuccessful dataStatus = "successful"
	dataCanceled   dataStatus = "canceled"
)

// RedisTCCBranch drives phase-two for TCC branches whose phase-one already
// froze a resourceID-scoped record (the branch capability's own concern,
// out of scope here per spec §1); this only transitions frozen → successful
// or frozen → canceled, idempotently.
type RedisTCCBranch struct {
	client *redis_lock.Client
}

func NewRedisTCCBranch(client *redis_lock.Client) *RedisTCCBranch {
	return &RedisTCCBranch{client: client}
}

func dataKey(resourceID string, branchID int64) string {
	return fmt.Sprintf("tc:branchdata:%s:%s", resourceID, gocast.ToString(branchID))
}

// BranchCommit marks the branch's frozen record successful.
func (r *RedisTCCBranch) BranchCommit(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error) {
	key := dataKey(b.ResourceID, b.BranchID)
	status, err := r.client.Get(ctx, key)
	if err != nil && !errors.Is(err, redis_lock.ErrNil) {
		return session.PhaseTwoCommitFailedRetryable, err
	}
	switch dataStatus(status) {
	case dataSuccessful:
		return session.PhaseTwoCommitted, nil
	case dataCanceled:
		return session.PhaseTwoCommitFailedUnretryable, nil
	}
	if _, err := r.client.Set(ctx, key, string(dataSuccessful)); err != nil {
		return session.PhaseTwoCommitFailedRetryable, err
	}
	return session.PhaseTwoCommitted, nil
}

// BranchRollback marks the branch's frozen record canceled. Refuses to
// rollback a record that already committed successfully.
func (r *RedisTCCBranch) BranchRollback(ctx context.Context, g *session.GlobalSession, b *session.BranchSession) (session.BranchStatus, error) {
	key := dataKey(b.ResourceID, b.BranchID)
	status, err := r.client.Get(ctx, key)
	if err != nil && !errors.Is(err, redis_lock.ErrNil) {
		return session.PhaseTwoRollbackFailedRetryable, err
	}
	if dataStatus(status) == dataSuccessful {
		return session.PhaseTwoRollbackFailedUnretryable, nil
	}
	if _, err := r.client.Set(ctx, key, string(dataCanceled)); err != nil {
		return session.PhaseTwoRollbackFailedRetryable, err
	}
	return session.PhaseTwoRollbacked, nil
}
