package redisstore

import (
	"context"
	"encoding/json"

	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store"
)

const defaultQueryLimit = 100

// RedisSessionStore implements store.SessionStore against a shared Redis
// deployment using only get/set/del/lpush/lrange/lrem/scan (spec §4.2).
type RedisSessionStore struct {
	client     *client
	queryLimit int
}

// NewRedisSessionStore dials a Redis connection pool and returns a store
// backed by it. queryLimit is the branch-list page size
// (store.redis.queryLimit); 0 uses the spec default of 100.
func NewRedisSessionStore(network, address, password string, queryLimit int) *RedisSessionStore {
	if queryLimit <= 0 {
		queryLimit = defaultQueryLimit
	}
	return &RedisSessionStore{
		client:     newClient(network, address, password),
		queryLimit: queryLimit,
	}
}

func (s *RedisSessionStore) InsertOrUpdateGlobal(ctx context.Context, g *session.GlobalSession) error {
	body, err := json.Marshal(g.ToDO())
	if err != nil {
		return err
	}
	if err := s.client.set(ctx, globalKey(g.XID), string(body)); err != nil {
		return err
	}
	return s.client.set(ctx, transactionIDKey(g.TransactionID), string(body))
}

func (s *RedisSessionStore) DeleteGlobal(ctx context.Context, g *session.GlobalSession) error {
	keys := []string{globalKey(g.XID), transactionIDKey(g.TransactionID)}

	// Probe: only drop the branch-list key once it is provably empty.
	probe, err := s.client.lrange(ctx, branchListKey(g.XID), 0, 1)
	if err != nil {
		return err
	}
	if len(probe) == 0 {
		keys = append(keys, branchListKey(g.XID))
	}
	return s.client.del(ctx, keys...)
}

func (s *RedisSessionStore) InsertOrUpdateBranch(ctx context.Context, b *session.BranchSession) error {
	bKey := branchKey(b.BranchID)
	_, exists, err := s.client.get(ctx, bKey)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.lpush(ctx, branchListKey(b.XID), bKey); err != nil {
			return err
		}
	}
	body, err := json.Marshal(b.ToDO())
	if err != nil {
		return err
	}
	return s.client.set(ctx, bKey, string(body))
}

func (s *RedisSessionStore) DeleteBranch(ctx context.Context, b *session.BranchSession) error {
	bKey := branchKey(b.BranchID)
	if err := s.client.lrem(ctx, branchListKey(b.XID), bKey); err != nil {
		return err
	}
	return s.client.del(ctx, bKey)
}

func (s *RedisSessionStore) ReadGlobal(ctx context.Context, xid string, withBranches bool) (*session.GlobalSession, error) {
	body, exists, err := s.client.get(ctx, globalKey(xid))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	var do session.GlobalDO
	if err := json.Unmarshal([]byte(body), &do); err != nil {
		return nil, err
	}
	g := session.GlobalFromDO(&do)

	if withBranches {
		branches, err := s.readBranches(ctx, xid)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			g.AddBranch(b)
		}
	}
	return g, nil
}

// readBranches materializes every branch key referenced from the branch
// list, in insertion (registration) order. LPUSH writes most-recent-first,
// so the paginated key list is reversed to recover registration order.
func (s *RedisSessionStore) readBranches(ctx context.Context, xid string) ([]*session.BranchSession, error) {
	keys, err := s.rangeBranchKeys(ctx, xid)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}

	branches := make([]*session.BranchSession, 0, len(keys))
	for _, k := range keys {
		body, exists, err := s.client.get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		var do session.BranchDO
		if err := json.Unmarshal([]byte(body), &do); err != nil {
			return nil, err
		}
		branches = append(branches, session.BranchFromDO(&do))
	}
	return branches, nil
}

func (s *RedisSessionStore) ReadByStatuses(ctx context.Context, statuses []session.GlobalStatus) ([]*session.GlobalSession, error) {
	want := make(map[session.GlobalStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	var out []*session.GlobalSession
	var cursor uint64
	for {
		next, keys, err := s.client.scan(ctx, cursor, globalKeyPrefix+"*", 100)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			body, exists, err := s.client.get(ctx, k)
			if err != nil {
				return nil, err
			}
			if !exists {
				continue
			}
			var do session.GlobalDO
			if err := json.Unmarshal([]byte(body), &do); err != nil {
				return nil, err
			}
			if _, ok := want[session.GlobalStatus(do.Status)]; !ok {
				continue
			}
			g, err := s.ReadGlobal(ctx, do.XID, true)
			if err != nil {
				return nil, err
			}
			if g != nil {
				out = append(out, g)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *RedisSessionStore) ReadByCondition(ctx context.Context, cond store.SessionCondition) ([]*session.GlobalSession, error) {
	switch {
	case cond.XID != "":
		g, err := s.ReadGlobal(ctx, cond.XID, true)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	case cond.TransactionID != 0:
		body, exists, err := s.client.get(ctx, transactionIDKey(cond.TransactionID))
		if err != nil || !exists {
			return nil, err
		}
		var do session.GlobalDO
		if err := json.Unmarshal([]byte(body), &do); err != nil {
			return nil, err
		}
		g, err := s.ReadGlobal(ctx, do.XID, true)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	default:
		return s.ReadByStatuses(ctx, cond.Statuses)
	}
}

// AddToManager is a no-op: the KV backend has no separate side maps, it
// derives retry/async membership from the global's own status via
// ReadByStatuses.
func (s *RedisSessionStore) AddToManager(ctx context.Context, name session.SessionManagerName, g *session.GlobalSession) error {
	return nil
}

func (s *RedisSessionStore) RemoveFromManager(ctx context.Context, name session.SessionManagerName, xid string) error {
	return nil
}

func (s *RedisSessionStore) RequiresRollbackDoubleRead() bool {
	return true
}
