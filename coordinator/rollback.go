package coordinator

import (
	"context"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/consensus"
	"github.com/distx-io/tc/log"
	"github.com/distx-io/tc/session"
)

// Rollback drives a global transaction to a rolled-back or terminally
// failed state.
func (c *Coordinator) Rollback(ctx context.Context, xid string) (session.GlobalStatus, error) {
	g, err := c.store.ReadGlobal(ctx, xid, true)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	if g == nil {
		return session.Finished, nil
	}

	g.Lock()
	g.Active = false
	if g.Status != session.Begin {
		status := g.Status
		g.Unlock()
		return status, nil
	}
	g.Status = session.Rollbacking
	g.Unlock()
	if err := c.persistGlobalStatus(ctx, g); err != nil {
		return 0, err
	}
	c.emit(ctx, g, collaborator.RoleRollbackStart)

	_, err = c.doGlobalRollback(ctx, g, false)
	g.Lock()
	status := g.Status
	g.Unlock()
	if err != nil && err != session.ErrUnretryableFailure {
		return status, err
	}
	return status, nil
}

// doGlobalRollback walks g's branches in reverse insertion order. Once every
// branch is terminal the store is consulted a second time (KV backend only,
// per store.RequiresRollbackDoubleRead) to detect a branch registered
// between the first read and now; if one raced in, rollback is not yet done
// and must be retried.
func (c *Coordinator) doGlobalRollback(ctx context.Context, g *session.GlobalSession, retrying bool) (bool, error) {
	g.Lock()
	defer g.Unlock()

	branchStatuses := make(map[int64]session.BranchStatus)
	branches := g.Branches()
	for i := len(branches) - 1; i >= 0; i-- {
		b := branches[i]

		if b.Status == session.PhaseOneFailed {
			g.RemoveBranch(b.BranchID)
			if err := c.persistRemoveBranch(ctx, b); err != nil {
				return false, err
			}
			continue
		}

		rollbacker, regErr := c.registry.rollbacker(b.BranchType)
		var result session.BranchStatus
		var callErr error
		if regErr != nil {
			callErr = regErr
		} else {
			result, callErr = rollbacker.BranchRollback(ctx, g, b)
		}

		if callErr != nil {
			if !retrying {
				return c.finishRollback(ctx, g, branchStatuses, session.RollbackRetrying, false)
			}
			log.WarnContextf(ctx, "branch rollback capability error, xid: %s, branchId: %d, err: %v", g.XID, b.BranchID, callErr)
			continue
		}

		b.Status = result
		branchStatuses[b.BranchID] = result
		if err := c.persistBranchStatus(ctx, b); err != nil {
			return false, err
		}

		switch result {
		case session.PhaseTwoRollbacked:
			g.RemoveBranch(b.BranchID)
			if err := c.persistRemoveBranch(ctx, b); err != nil {
				return false, err
			}
		case session.PhaseTwoRollbackFailedUnretryable:
			return c.finishRollback(ctx, g, branchStatuses, session.RollbackFailed, retrying)
		default: // retryable
			if !retrying {
				return c.finishRollback(ctx, g, branchStatuses, session.RollbackRetrying, false)
			}
			return false, nil // stays in the retry queue; sweeper retries later
		}
	}

	if g.BranchCount() > 0 {
		return false, nil
	}

	if c.store.RequiresRollbackDoubleRead() {
		fresh, err := c.store.ReadGlobal(ctx, g.XID, true)
		if err != nil {
			return false, wrapStoreErr(err)
		}
		if fresh != nil && fresh.BranchCount() > 0 {
			return c.finishRollback(ctx, g, branchStatuses, session.RollbackRetrying, retrying)
		}
	}

	return c.finishRollback(ctx, g, branchStatuses, session.Rollbacked, retrying)
}

// finishRollback is the rollback-side counterpart to finishCommit: one
// DO_ROLLBACK entry in replicated mode, direct store writes in KV mode.
func (c *Coordinator) finishRollback(ctx context.Context, g *session.GlobalSession, branchStatuses map[int64]session.BranchStatus, finalStatus session.GlobalStatus, retrying bool) (bool, error) {
	g.Status = finalStatus

	if c.isReplicated() {
		entry := consensus.NewDoRollbackEntry(g.XID, branchStatuses, finalStatus)
		if err := c.bridge.Propose(entry, nil); err != nil {
			return false, wrapConsensusErr(err)
		}
	} else if finalStatus.IsTerminal() {
		if err := c.persistRemoveGlobal(ctx, g); err != nil {
			return false, err
		}
	} else {
		if err := c.persistGlobalStatus(ctx, g); err != nil {
			return false, err
		}
		if err := c.addToManager(ctx, session.RetryRollbackingMgr, g); err != nil {
			return false, err
		}
	}

	if retrying && finalStatus.IsTerminal() {
		_ = c.removeFromManager(ctx, session.RetryRollbackingMgr, g.XID)
	}

	switch finalStatus {
	case session.Rollbacked:
		c.emit(ctx, g, collaborator.RoleRollbackEnd)
		return true, nil
	case session.RollbackFailed:
		c.emit(ctx, g, collaborator.RoleRollbackEnd)
		return false, session.ErrUnretryableFailure
	default:
		return false, nil
	}
}
