package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distx-io/tc/session"
)

func Test_EncodeDecodeEntry_RoundTrip(t *testing.T) {
	e := NewUpdateGlobalStatusEntry("xid-1", session.Committing)
	body, err := EncodeEntry(e)
	assert.NoError(t, err)

	got, err := DecodeEntry(body)
	assert.NoError(t, err)
	assert.Equal(t, e.MsgType, got.MsgType)
	assert.Equal(t, e.Payload, got.Payload)
}

func Test_NewAddGlobalEntry(t *testing.T) {
	g := session.New("xid-1", 1, "app", "group", "name", 1000, 0, nil)
	e, err := NewAddGlobalEntry(g)
	assert.NoError(t, err)
	assert.Equal(t, AddGlobalSession, e.MsgType)

	var p globalPayload
	assert.NoError(t, decodePayload(e.Payload, &p))
	decoded, err := session.DecodeGlobal(p.Global)
	assert.NoError(t, err)
	assert.Equal(t, g.XID, decoded.XID)
}

func Test_NewDoCommitEntry(t *testing.T) {
	statuses := map[int64]session.BranchStatus{1: session.PhaseTwoCommitted}
	e := NewDoCommitEntry("xid-1", statuses, session.Committed)
	assert.Equal(t, DoCommit, e.MsgType)

	var p doPayload
	assert.NoError(t, decodePayload(e.Payload, &p))
	assert.Equal(t, "xid-1", p.XID)
	assert.Equal(t, int32(session.PhaseTwoCommitted), p.BranchStatuses[1])
	assert.Equal(t, int32(session.Committed), p.FinalStatus)
}
