package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/distx-io/tc/session"
)

func Test_BackOffTick_DoublesAndCaps(t *testing.T) {
	s := newMockSessionStore()
	c := newTestCoordinator(s, &mockLockManager{}, &mockEventSink{}, &mockIDGen{})
	defer c.Stop()
	c.opts.MonitorTick = 10 * time.Millisecond

	assert.Equal(t, 10*time.Millisecond, c.backOffTick(0), "a non-positive tick resets to the base interval")
	assert.Equal(t, 20*time.Millisecond, c.backOffTick(10*time.Millisecond))
	assert.Equal(t, 80*time.Millisecond, c.backOffTick(40*time.Millisecond), "8x base is the cap (MonitorTick<<3)")
	assert.Equal(t, 80*time.Millisecond, c.backOffTick(80*time.Millisecond), "already at the cap stays capped")
}

func Test_Sweep_AdvancesRetryingGlobal(t *testing.T) {
	s := newMockSessionStore()
	c := newTestCoordinator(s, &mockLockManager{}, &mockEventSink{}, &mockIDGen{})
	defer c.Stop()
	fake := newFakeBranchCapability()
	assert.NoError(t, c.RegisterCommitter(session.TCC, fake))

	xid, _ := c.Begin(context.Background(), "app", "group", "name", 0, "")
	_, _ = c.BranchRegister(context.Background(), xid, session.TCC, "res", "client", nil, "lockKey", 0)

	g, _ := s.ReadGlobal(context.Background(), xid, true)
	g.Status = session.CommitRetrying

	assert.NoError(t, c.sweep())

	got, _ := s.ReadGlobal(context.Background(), xid, false)
	assert.Nil(t, got, "the sweeper drives the retrying global to completion and it is removed once terminal")
}

func Test_Sweep_NoInFlightGlobals_IsNoop(t *testing.T) {
	s := newMockSessionStore()
	c := newTestCoordinator(s, &mockLockManager{}, &mockEventSink{}, &mockIDGen{})
	defer c.Stop()

	assert.NoError(t, c.sweep())
}

func Test_OnLeaderStart_RehydratesRollbackFamily(t *testing.T) {
	s := newMockSessionStore()
	c := newTestCoordinator(s, &mockLockManager{}, &mockEventSink{}, &mockIDGen{})
	defer c.Stop()

	xid, _ := c.Begin(context.Background(), "app", "group", "name", 0, "")
	g, _ := s.ReadGlobal(context.Background(), xid, false)
	g.Status = session.RollbackRetrying

	c.onLeaderStart(1)

	assert.True(t, s.inManager(session.RetryRollbackingMgr, xid))
}
