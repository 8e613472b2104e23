package redisstore

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"

	"github.com/distx-io/tc/session"
	"github.com/distx-io/tc/store"
)

// fakeRedis is an in-memory stand-in for the keyspace a real Redis deployment
// would hold, driven entirely through gomonkey patches of *client's
// unexported methods — the same style as pagination_test.go and the
// teacher's own example/tcccomponent_test.go.
type fakeRedis struct {
	kv    map[string]string
	lists map[string][]string // key -> most-recent-first, mirroring LPUSH
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{kv: map[string]string{}, lists: map[string][]string{}}
}

func (f *fakeRedis) patch() *gomonkey.Patches {
	patch := gomonkey.ApplyPrivateMethod(reflect.TypeOf(&client{}), "get", func(_ *client, ctx context.Context, key string) (string, bool, error) {
		v, ok := f.kv[key]
		return v, ok, nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "set", func(_ *client, ctx context.Context, key, value string) error {
		f.kv[key] = value
		return nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "del", func(_ *client, ctx context.Context, keys ...string) error {
		for _, k := range keys {
			delete(f.kv, k)
		}
		return nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "lpush", func(_ *client, ctx context.Context, key, value string) error {
		f.lists[key] = append([]string{value}, f.lists[key]...)
		return nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "lrange", func(_ *client, ctx context.Context, key string, start, stop int) ([]string, error) {
		l := f.lists[key]
		if start >= len(l) {
			return nil, nil
		}
		if stop < 0 || stop >= len(l) {
			stop = len(l) - 1
		}
		return append([]string(nil), l[start:stop+1]...), nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "lrem", func(_ *client, ctx context.Context, key, value string) error {
		l := f.lists[key]
		out := make([]string, 0, len(l))
		for _, v := range l {
			if v != value {
				out = append(out, v)
			}
		}
		f.lists[key] = out
		return nil
	})
	patch = patch.ApplyPrivateMethod(reflect.TypeOf(&client{}), "scan", func(_ *client, ctx context.Context, cursor uint64, match string, count int) (uint64, []string, error) {
		prefix := strings.TrimSuffix(match, "*")
		var keys []string
		for k := range f.kv {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		return 0, keys, nil
	})
	return patch
}

func Test_RedisSessionStore_InsertReadDeleteGlobal_RoundTrip(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}

	g := &session.GlobalSession{XID: "xid-1", TransactionID: 42, Status: session.Begin, ApplicationID: "app"}
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), g))

	got, err := s.ReadGlobal(context.Background(), "xid-1", false)
	assert.NoError(t, err)
	assert.Equal(t, "xid-1", got.XID)
	assert.Equal(t, session.Begin, got.Status)

	assert.NoError(t, s.DeleteGlobal(context.Background(), g))
	got, err = s.ReadGlobal(context.Background(), "xid-1", false)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func Test_RedisSessionStore_ReadGlobal_Missing_ReturnsNilNoError(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}
	got, err := s.ReadGlobal(context.Background(), "does-not-exist", false)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func Test_RedisSessionStore_InsertReadBranches_PreservesRegistrationOrder(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}

	g := &session.GlobalSession{XID: "xid-1", Status: session.Begin}
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), g))

	b1 := &session.BranchSession{XID: "xid-1", BranchID: 1, BranchType: session.TCC, ResourceID: "res-a"}
	b2 := &session.BranchSession{XID: "xid-1", BranchID: 2, BranchType: session.TCC, ResourceID: "res-b"}
	assert.NoError(t, s.InsertOrUpdateBranch(context.Background(), b1))
	assert.NoError(t, s.InsertOrUpdateBranch(context.Background(), b2))

	got, err := s.ReadGlobal(context.Background(), "xid-1", true)
	assert.NoError(t, err)
	assert.Len(t, got.Branches(), 2)
	assert.Equal(t, int64(1), got.Branches()[0].BranchID, "registration order survives the LPUSH reversal")
	assert.Equal(t, int64(2), got.Branches()[1].BranchID)
}

func Test_RedisSessionStore_DeleteBranch_RemovesFromListAndKV(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}

	g := &session.GlobalSession{XID: "xid-1", Status: session.Begin}
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), g))
	b := &session.BranchSession{XID: "xid-1", BranchID: 1, BranchType: session.TCC, ResourceID: "res-a"}
	assert.NoError(t, s.InsertOrUpdateBranch(context.Background(), b))

	assert.NoError(t, s.DeleteBranch(context.Background(), b))

	got, err := s.ReadGlobal(context.Background(), "xid-1", true)
	assert.NoError(t, err)
	assert.Empty(t, got.Branches())
}

func Test_RedisSessionStore_ReadByStatuses_FiltersByStatus(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}

	active := &session.GlobalSession{XID: "xid-active", Status: session.Begin}
	committed := &session.GlobalSession{XID: "xid-committed", Status: session.Committed}
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), active))
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), committed))

	got, err := s.ReadByStatuses(context.Background(), []session.GlobalStatus{session.Begin})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "xid-active", got[0].XID)
}

func Test_RedisSessionStore_ReadByCondition_ByTransactionID(t *testing.T) {
	f := newFakeRedis()
	patch := f.patch()
	defer patch.Reset()

	s := &RedisSessionStore{client: &client{}, queryLimit: 100}

	g := &session.GlobalSession{XID: "xid-1", TransactionID: 7, Status: session.Begin}
	assert.NoError(t, s.InsertOrUpdateGlobal(context.Background(), g))

	got, err := s.ReadByCondition(context.Background(), store.SessionCondition{TransactionID: 7})
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "xid-1", got[0].XID)
}

func Test_RedisSessionStore_AddRemoveFromManager_AreNoops(t *testing.T) {
	s := &RedisSessionStore{client: &client{}, queryLimit: 100}
	assert.NoError(t, s.AddToManager(context.Background(), session.RetryCommittingMgr, &session.GlobalSession{}))
	assert.NoError(t, s.RemoveFromManager(context.Background(), session.RetryCommittingMgr, "xid-1"))
}

func Test_RedisSessionStore_RequiresRollbackDoubleRead_IsTrue(t *testing.T) {
	s := &RedisSessionStore{client: &client{}, queryLimit: 100}
	assert.True(t, s.RequiresRollbackDoubleRead())
}
