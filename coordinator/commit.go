package coordinator

import (
	"context"

	"github.com/distx-io/tc/collaborator"
	"github.com/distx-io/tc/consensus"
	"github.com/distx-io/tc/log"
	"github.com/distx-io/tc/session"
)

// Commit drives a global transaction to completion. A global with no
// branches is committed and removed on this call. If every branch can defer
// its phase-two commit, the global is parked in the async queue and Committed
// is returned at once. Otherwise the other branches are driven synchronously
// on this call, and if deferrable branches are left over, the global is then
// parked in the async queue for the sweeper.
func (c *Coordinator) Commit(ctx context.Context, xid string) (session.GlobalStatus, error) {
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
		if status == session.AsyncCommitting {
			return session.Committed, nil
		}
		return status, nil
	}

	async := g.BranchCount() > 0 && g.CanBeCommittedAsync()
	g.Unlock()

	if async {
		c.emit(ctx, g, collaborator.RoleCommitStart)
		if _, err := c.finishCommit(ctx, g, nil, session.AsyncCommitting, false); err != nil {
			return 0, err
		}
		return session.Committed, nil
	}

	g.Lock()
	g.Status = session.Committing
	g.Unlock()
	if err := c.persistGlobalStatus(ctx, g); err != nil {
		return 0, err
	}
	c.emit(ctx, g, collaborator.RoleCommitStart)

	_, err = c.doGlobalCommit(ctx, g, false)
	g.Lock()
	status := g.Status
	g.Unlock()
	if err != nil && err != session.ErrUnretryableFailure {
		return status, err
	}
	return status, nil
}

// doGlobalCommit walks g's branches in insertion order, invoking the
// registered commit capability for each. retrying distinguishes the
// client-driven first pass (errors/retryable statuses enqueue and return)
// from a sweeper-driven retry pass (errors are logged and skipped over,
// since the branch is already sitting in a retry queue).
func (c *Coordinator) doGlobalCommit(ctx context.Context, g *session.GlobalSession, retrying bool) (bool, error) {
	g.Lock()
	defer g.Unlock()

	branchStatuses := make(map[int64]session.BranchStatus)

	for _, b := range g.Branches() {
		if !retrying && b.CanBeCommittedAsync() {
			continue
		}

		if b.Status == session.PhaseOneFailed {
			g.RemoveBranch(b.BranchID)
			if err := c.persistRemoveBranch(ctx, b); err != nil {
				return false, err
			}
			continue
		}

		committer, regErr := c.registry.committer(b.BranchType)
		var result session.BranchStatus
		var callErr error
		if regErr != nil {
			callErr = regErr
		} else {
			result, callErr = committer.BranchCommit(ctx, g, b)
		}

		if callErr != nil {
			if !retrying {
				return c.finishCommit(ctx, g, branchStatuses, session.CommitRetrying, false)
			}
			log.WarnContextf(ctx, "branch commit capability error, xid: %s, branchId: %d, err: %v", g.XID, b.BranchID, callErr)
			continue
		}

		b.Status = result
		branchStatuses[b.BranchID] = result
		if err := c.persistBranchStatus(ctx, b); err != nil {
			return false, err
		}

		switch result {
		case session.PhaseTwoCommitted:
			g.RemoveBranch(b.BranchID)
			if err := c.persistRemoveBranch(ctx, b); err != nil {
				return false, err
			}
		case session.PhaseTwoCommitFailedUnretryable:
			if b.CanBeCommittedAsync() {
				log.WarnContextf(ctx, "branch commit unretryable but async-capable, orphaned pending operator action, xid: %s, branchId: %d", g.XID, b.BranchID)
				continue
			}
			return c.finishCommit(ctx, g, branchStatuses, session.CommitFailed, retrying)
		default: // retryable
			if !retrying {
				return c.finishCommit(ctx, g, branchStatuses, session.CommitRetrying, false)
			}
			if b.CanBeCommittedAsync() {
				log.WarnContextf(ctx, "branch commit still retryable, async-capable, deferring: xid: %s, branchId: %d", g.XID, b.BranchID)
				continue
			}
			return false, nil // leader stays in the retry queue; sweeper retries later
		}
	}

	if g.BranchCount() > 0 {
		if !retrying {
			// only the skipped async-capable branches remain after a first pass
			return c.finishCommit(ctx, g, branchStatuses, session.AsyncCommitting, false)
		}
		return false, nil
	}
	return c.finishCommit(ctx, g, branchStatuses, session.Committed, retrying)
}

// finishCommit records the outcome of one doGlobalCommit pass: in replicated
// mode a single DO_COMMIT entry carries every branch status observed plus
// the resulting global status, so followers reach the identical terminal or
// in-flight state without redriving any branch capability (spec §4.4); in
// KV mode the equivalent direct store writes are issued.
func (c *Coordinator) finishCommit(ctx context.Context, g *session.GlobalSession, branchStatuses map[int64]session.BranchStatus, finalStatus session.GlobalStatus, retrying bool) (bool, error) {
	g.Status = finalStatus

	if c.isReplicated() {
		entry := consensus.NewDoCommitEntry(g.XID, branchStatuses, finalStatus)
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
		mgr := session.RetryCommittingMgr
		if finalStatus == session.AsyncCommitting {
			mgr = session.AsyncCommittingMgr
		}
		if err := c.addToManager(ctx, mgr, g); err != nil {
			return false, err
		}
	}

	if retrying && finalStatus.IsTerminal() {
		_ = c.removeFromManager(ctx, session.RetryCommittingMgr, g.XID)
		_ = c.removeFromManager(ctx, session.AsyncCommittingMgr, g.XID)
	}

	switch finalStatus {
	case session.Committed:
		c.emit(ctx, g, collaborator.RoleCommitEnd)
		return true, nil
	case session.CommitFailed:
		c.emit(ctx, g, collaborator.RoleCommitEnd)
		return false, session.ErrUnretryableFailure
	default:
		return false, nil
	}
}
