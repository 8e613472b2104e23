package coordinator

import (
	"sync"
	"time"

	"github.com/distx-io/tc/log"
	"github.com/distx-io/tc/session"
)

// run is the background sweeper loop, grounded on the teacher's
// TXManager.run: a ticker with exponential backoff on error, guarded so a
// slow pass never overlaps the next tick.
func (c *Coordinator) run() {
	var tick time.Duration
	var err error
	for {
		if err == nil {
			tick = c.opts.MonitorTick
		} else {
			tick = c.backOffTick(tick)
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(tick):
			err = c.sweep()
		}
	}
}

func (c *Coordinator) backOffTick(tick time.Duration) time.Duration {
	tick <<= 1
	if threshold := c.opts.MonitorTick << 3; tick > threshold {
		return threshold
	}
	if tick <= 0 {
		return c.opts.MonitorTick
	}
	return tick
}

// sweep drives every in-flight retry/async global one step forward,
// concurrently, collecting the first error observed (mirrors
// TXManager.batchAdvanceProgress's goroutine+errCh fan-out).
func (c *Coordinator) sweep() error {
	statuses := []session.GlobalStatus{session.AsyncCommitting, session.CommitRetrying, session.RollbackRetrying}
	if c.isReplicated() {
		// the replicated store answers these from the retryRollbacking side
		// map, where onLeaderStart and snapshot load place them
		statuses = append(statuses, session.Rollbacking, session.TimeoutRollbacking, session.TimeoutRollbackRetrying)
	}
	globals, err := c.store.ReadByStatuses(c.ctx, statuses)
	if err != nil {
		return wrapStoreErr(err)
	}
	if len(globals) == 0 {
		return nil
	}

	errCh := make(chan error, len(globals))
	var wg sync.WaitGroup
	for _, g := range globals {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.advanceOne(g); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Coordinator) advanceOne(g *session.GlobalSession) error {
	g.Lock()
	status := g.Status
	g.Unlock()

	var err error
	switch {
	case status == session.AsyncCommitting, status == session.CommitRetrying:
		_, err = c.doGlobalCommit(c.ctx, g, true)
	case status.ShouldRetryRollback():
		_, err = c.doGlobalRollback(c.ctx, g, true)
	}
	if err != nil && err != session.ErrUnretryableFailure {
		log.WarnContextf(c.ctx, "sweeper advance failed, xid: %s, status: %s, err: %v", g.XID, status, err)
	}
	return err
}

// onLeaderStart rehydrates in-flight rollbacks on handover: every root
// session whose status belongs to the rollback family is re-inserted into
// the retryRollbacking side map so the sweeper resumes it (spec §4.1 "leader
// handover"). Wire this as the onLeaderStart callback passed to
// consensus.Open.
func (c *Coordinator) onLeaderStart(term uint64) {
	log.InfoContextf(c.ctx, "coordinator: acquired leadership at term %d, rehydrating in-flight rollbacks", term)
	globals, err := c.store.ReadByStatuses(c.ctx, []session.GlobalStatus{
		session.RollbackRetrying,
		session.Rollbacking,
		session.TimeoutRollbacking,
		session.TimeoutRollbackRetrying,
	})
	if err != nil {
		log.WarnContextf(c.ctx, "coordinator: leader handover rehydration read failed: %v", wrapStoreErr(err))
		return
	}
	for _, g := range globals {
		if err := c.addToManager(c.ctx, session.RetryRollbackingMgr, g); err != nil {
			log.WarnContextf(c.ctx, "coordinator: leader handover rehydration failed, xid: %s, err: %v", g.XID, err)
		}
	}
}
