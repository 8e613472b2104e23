package consensus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/distx-io/tc/log"
)

const (
	retainSnapshotCount = 2
	applyTimeout        = 10 * time.Second
	transportMaxPool    = 3
	transportTimeout    = 10 * time.Second
)

// Config configures one Bridge. LocalID and BindAddress identify this node
// within the consensus group; DataDir holds the bolt log/stable store and
// file snapshots.
type Config struct {
	LocalID     string
	BindAddress string
	DataDir     string
	Bootstrap   bool // true only for the first node of a brand new group
}

// Bridge wires a raft.Raft instance to an FSM, grounded on the teacher
// pack's Store.Open (SCPD-Project-raft-kv-store/store/store.go): TCP
// transport, file snapshot store, bolt log/stable store.
type Bridge struct {
	raft *raft.Raft
	fsm  *FSM

	onLeaderStart func(term uint64)
	onLeaderStop  func()
}

// Open starts the raft instance. onLeaderStart/onLeaderStop are invoked from
// a background goroutine as this node's leadership status changes, per spec
// §4.4; either may be nil.
func Open(cfg Config, fsm *FSM, onLeaderStart func(term uint64), onLeaderStop func()) (*Bridge, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("consensus: create data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.LocalID)
	notifyCh := make(chan bool, 1)
	raftConfig.NotifyCh = notifyCh

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("consensus: resolve bind address %s: %w", cfg.BindAddress, err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddress, addr, transportMaxPool, transportTimeout, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, retainSnapshotCount, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create snapshot store: %w", err)
	}

	boltDB, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("consensus: create bolt store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, boltDB, boltDB, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("consensus: create raft: %w", err)
	}

	if cfg.Bootstrap {
		r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
		})
	}

	b := &Bridge{raft: r, fsm: fsm, onLeaderStart: onLeaderStart, onLeaderStop: onLeaderStop}
	go b.watchLeadership(notifyCh)
	return b, nil
}

func (b *Bridge) watchLeadership(notifyCh chan bool) {
	for leader := range notifyCh {
		if leader {
			term, _ := strconv.ParseUint(b.raft.Stats()["term"], 10, 64)
			log.Infof("consensus: acquired leadership at term %d", term)
			if b.onLeaderStart != nil {
				b.onLeaderStart(term)
			}
			continue
		}
		log.Infof("consensus: lost leadership")
		if b.onLeaderStop != nil {
			b.onLeaderStop()
		}
	}
}

// IsLeader reports whether this node currently believes itself the leader.
func (b *Bridge) IsLeader() bool {
	return b.raft.State() == raft.Leader
}

// Propose appends entry to the replicated log and, once committed and
// applied (on this node, synchronously, by the time Apply returns), invokes
// onCommitted with the FSM's Apply return value. Non-leader callers get
// raft.ErrNotLeader without proposing anything.
func (b *Bridge) Propose(entry *Entry, onCommitted func(applyResult interface{})) error {
	if !b.IsLeader() {
		return raft.ErrNotLeader
	}
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	future := b.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		return err
	}
	if onCommitted != nil {
		onCommitted(future.Response())
	}
	return nil
}

// Join adds a voting member to the cluster, replacing any stale entry for
// the same id/address first.
func (b *Bridge) Join(nodeID, addr string) error {
	configFuture := b.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return err
	}
	for _, srv := range configFuture.Configuration().Servers {
		if srv.ID == raft.ServerID(nodeID) || srv.Address == raft.ServerAddress(addr) {
			if srv.ID == raft.ServerID(nodeID) && srv.Address == raft.ServerAddress(addr) {
				return nil
			}
			if err := b.raft.RemoveServer(srv.ID, 0, 0).Error(); err != nil {
				return fmt.Errorf("consensus: remove stale member %s: %w", srv.ID, err)
			}
		}
	}
	return b.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 0).Error()
}

// Shutdown stops the raft instance.
func (b *Bridge) Shutdown() error {
	return b.raft.Shutdown().Error()
}
