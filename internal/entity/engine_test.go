package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivequarters/q5-sub008/internal/sqlite"
	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// fakeClock is a settable clock shared by an engine under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupEngine returns an engine over a fresh SQLite database.
func setupEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	exec, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	require.NoError(t, exec.EnsureSchema(context.Background()))

	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(exec, opts...), clock
}

func storageKey(id string) types.EntityKey {
	return types.EntityKey{AccountID: "acc1", SubscriptionID: "sub1", EntityType: types.EntityStorage, EntityID: id}
}

func newEntity(id, data string, tags types.Tags) *types.Entity {
	return &types.Entity{EntityKey: storageKey(id), Data: json.RawMessage(data), Tags: tags}
}

func TestCreateThenGet(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	created, err := eng.Create(ctx, "", newEntity("cfg/x", `{"v":1}`, types.Tags{"env": "prod"}), types.WithUpsert(false))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	got, err := eng.Get(ctx, "", storageKey("cfg/x"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.JSONEq(t, `{"v":1}`, string(got.Data))
	assert.Equal(t, types.Tags{"env": "prod"}, got.Tags)
	assert.Nil(t, got.Expires)
	assert.Equal(t, storageKey("cfg/x"), got.EntityKey)
}

func TestCreate_WithoutDataOrTags(t *testing.T) {
	eng, _ := setupEngine(t)

	created, err := eng.Create(context.Background(), "", &types.Entity{EntityKey: storageKey("bare")})
	require.NoError(t, err)
	assert.Nil(t, created.Data)
	assert.Equal(t, types.Tags{}, created.Tags)
}

func TestCreate_ExistingKey(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, "", newEntity("a", `{"v":1}`, nil))
	require.NoError(t, err)

	t.Run("insert only is a conflict", func(t *testing.T) {
		_, err := eng.Create(ctx, "", newEntity("a", `{"v":2}`, nil), types.WithUpsert(false))
		require.ErrorIs(t, err, types.ErrConflict)

		var ce *types.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, storageKey("a"), ce.Key)

		got, err := eng.Get(ctx, "", storageKey("a"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(got.Data))
	})

	t.Run("upsert replaces and bumps the version", func(t *testing.T) {
		up, err := eng.Create(ctx, "", newEntity("a", `{"v":3}`, types.Tags{"k": "v"}))
		require.NoError(t, err)
		assert.Equal(t, int64(2), up.Version)
		assert.JSONEq(t, `{"v":3}`, string(up.Data))
		assert.Equal(t, types.Tags{"k": "v"}, up.Tags)
	})

	t.Run("upsert with the stored version", func(t *testing.T) {
		ent := newEntity("a", `{"v":4}`, nil)
		ent.Version = 2
		up, err := eng.Create(ctx, "", ent)
		require.NoError(t, err)
		assert.Equal(t, int64(3), up.Version)
	})

	t.Run("upsert with a stale version is a conflict", func(t *testing.T) {
		ent := newEntity("a", `{"v":5}`, nil)
		ent.Version = 1
		_, err := eng.Create(ctx, "", ent)
		assert.ErrorIs(t, err, types.ErrConflict)
	})
}

func TestUpdate(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, "", newEntity("a", `{"v":1}`, nil))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = eng.Create(ctx, "", newEntity("a", `{"v":1}`, nil))
		require.NoError(t, err)
	}

	t.Run("no version overrides whatever is stored", func(t *testing.T) {
		up, err := eng.Update(ctx, "", newEntity("a", `{"v":2}`, types.Tags{"x": "y"}))
		require.NoError(t, err)
		assert.Equal(t, int64(5), up.Version)
		assert.JSONEq(t, `{"v":2}`, string(up.Data))
		assert.Equal(t, types.Tags{"x": "y"}, up.Tags)
	})

	t.Run("stale version is a conflict and changes nothing", func(t *testing.T) {
		ent := newEntity("a", `{"v":3}`, nil)
		ent.Version = 4
		_, err := eng.Update(ctx, "", ent)
		require.ErrorIs(t, err, types.ErrConflict)
		assert.NotErrorIs(t, err, types.ErrNotFound)

		got, err := eng.Get(ctx, "", storageKey("a"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Version)
		assert.JSONEq(t, `{"v":2}`, string(got.Data))
	})

	t.Run("matching version succeeds", func(t *testing.T) {
		ent := newEntity("a", `{"v":3}`, nil)
		ent.Version = 5
		up, err := eng.Update(ctx, "", ent)
		require.NoError(t, err)
		assert.Equal(t, int64(6), up.Version)
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := eng.Update(ctx, "", newEntity("missing", `{}`, nil))
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestTagMutations(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()
	key := storageKey("a")

	_, err := eng.Create(ctx, "", newEntity("a", `{"keep":true}`, types.Tags{"env": "prod"}))
	require.NoError(t, err)

	res, err := eng.SetTag(ctx, "", key, "owner", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, types.Tags{"env": "prod", "owner": "alice"}, res.Tags)
	assert.Equal(t, int64(2), res.Version)

	res, err = eng.SetTag(ctx, "", key, "owner", "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Tags["owner"])
	assert.Equal(t, int64(3), res.Version)

	_, err = eng.SetTag(ctx, "", key, "owner", "carol", 2)
	assert.ErrorIs(t, err, types.ErrConflict)

	res, err = eng.DeleteTag(ctx, "", key, "env", 0)
	require.NoError(t, err)
	assert.Equal(t, types.Tags{"owner": "bob"}, res.Tags)
	assert.Equal(t, int64(4), res.Version)

	res, err = eng.DeleteTag(ctx, "", key, "owner", 4)
	require.NoError(t, err)
	assert.Equal(t, types.Tags{}, res.Tags)
	assert.Equal(t, int64(5), res.Version)

	res, err = eng.UpdateTags(ctx, "", key, types.Tags{"a": "1", "b": "2"}, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Tags{"a": "1", "b": "2"}, res.Tags)
	assert.Equal(t, int64(6), res.Version)

	_, err = eng.UpdateTags(ctx, "", key, types.Tags{}, 3)
	assert.ErrorIs(t, err, types.ErrConflict)

	got, err := eng.GetTags(ctx, "", key)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Version)
	assert.Equal(t, types.Tags{"a": "1", "b": "2"}, got.Tags)

	ent, err := eng.Get(ctx, "", key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keep":true}`, string(ent.Data), "tag operations must not touch data")

	_, err = eng.SetTag(ctx, "", storageKey("missing"), "k", "v", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = eng.GetTags(ctx, "", storageKey("missing"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestExampleScenario(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()
	key := storageKey("cfg/x")

	created, err := eng.Create(ctx, "", newEntity("cfg/x", `{"v":1}`, types.Tags{"env": "prod"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	tags, err := eng.SetTag(ctx, "", key, "owner", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, types.Tags{"env": "prod", "owner": "alice"}, tags.Tags)
	assert.Equal(t, int64(2), tags.Version)

	stale := newEntity("cfg/x", `{"v":2}`, tags.Tags)
	stale.Version = 1
	_, err = eng.Update(ctx, "", stale)
	assert.ErrorIs(t, err, types.ErrConflict)

	current := newEntity("cfg/x", `{"v":2}`, tags.Tags)
	current.Version = 2
	updated, err := eng.Update(ctx, "", current)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
}

func TestList_Paging(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	ids := []string{"e", "a", "d", "b", "c", "f", "g"}
	for _, id := range ids {
		_, err := eng.Create(ctx, "", newEntity(id, `{}`, nil))
		require.NoError(t, err)
	}

	q := types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1", Limit: 3}
	var seen []string
	pages := 0
	for {
		page, err := eng.List(ctx, "", types.EntityStorage, q)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Items), 3)
		for _, item := range page.Items {
			seen = append(seen, item.EntityID)
		}
		pages++
		if page.Next == "" {
			break
		}
		q.Next = page.Next
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, seen)
	assert.Equal(t, 3, pages)
}

func TestList_NextOnlyWhenMoreRows(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := eng.Create(ctx, "", newEntity(id, `{}`, nil))
		require.NoError(t, err)
	}

	page, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Empty(t, page.Next, "exactly limit rows means no further page")

	page, err = eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "1", page.Next)
}

func TestList_Filters(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	fixtures := []*types.Entity{
		newEntity("a/x", `{}`, types.Tags{"env": "prod", "team": "core"}),
		newEntity("a/y", `{}`, types.Tags{"env": "dev"}),
		newEntity("ab", `{}`, types.Tags{"env": "prod"}),
		newEntity("A/z", `{}`, types.Tags{"env": "prod"}),
	}
	for _, e := range fixtures {
		_, err := eng.Create(ctx, "", e)
		require.NoError(t, err)
	}
	// Other scopes never leak into a listing.
	other := newEntity("a/x", `{}`, nil)
	other.AccountID = "acc2"
	_, err := eng.Create(ctx, "", other)
	require.NoError(t, err)
	conn := &types.Entity{EntityKey: types.EntityKey{AccountID: "acc1", SubscriptionID: "sub1", EntityType: types.EntityConnector, EntityID: "a/c"}}
	_, err = eng.Create(ctx, "", conn)
	require.NoError(t, err)

	list := func(q types.ListQuery) []string {
		q.AccountID, q.SubscriptionID = "acc1", "sub1"
		page, err := eng.List(ctx, "", types.EntityStorage, q)
		require.NoError(t, err)
		var out []string
		for _, item := range page.Items {
			out = append(out, item.EntityID)
		}
		return out
	}

	assert.Equal(t, []string{"A/z", "a/x", "a/y", "ab"}, list(types.ListQuery{}))
	assert.Equal(t, []string{"a/x", "a/y"}, list(types.ListQuery{IDPrefix: "a/"}))
	assert.Equal(t, []string{"A/z", "a/x", "ab"}, list(types.ListQuery{Tags: types.Tags{"env": "prod"}}))
	assert.Equal(t, []string{"a/x"}, list(types.ListQuery{IDPrefix: "a", Tags: types.Tags{"env": "prod", "team": "core"}}))
	assert.Empty(t, list(types.ListQuery{Tags: types.Tags{"env": "staging"}}))
}

func TestList_LimitCeiling(t *testing.T) {
	eng, _ := setupEngine(t, WithDefaults(types.Options{ListLimit: types.Some(2)}))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := eng.Create(ctx, "", newEntity(id, `{}`, nil))
		require.NoError(t, err)
	}

	page, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1", Limit: 50})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2, "requested limit must be clamped to the ceiling")
	assert.NotEmpty(t, page.Next)
}

func TestList_InvalidInput(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	for _, next := range []string{"zz", "-1", "1 OR 1=1", "ffffffffffffffff"} {
		_, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1", Next: next})
		assert.ErrorIs(t, err, types.ErrInvalidCursor, next)
	}

	_, err := eng.List(ctx, "", "bucket", types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1"})
	assert.ErrorIs(t, err, types.ErrInvalidEntityType)

	_, err = eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1"})
	assert.ErrorIs(t, err, types.ErrInvalidKey)
}

func TestExpiry(t *testing.T) {
	eng, clock := setupEngine(t)
	ctx := context.Background()

	soon := clock.Now().Add(time.Minute)
	ent := newEntity("tmp", `{"v":1}`, nil)
	ent.Expires = &soon
	created, err := eng.Create(ctx, "", ent)
	require.NoError(t, err)
	require.NotNil(t, created.Expires)
	assert.True(t, created.Expires.Equal(soon))

	_, err = eng.Create(ctx, "", newEntity("forever", `{}`, nil))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	key := storageKey("tmp")

	_, err = eng.Get(ctx, "", key)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = eng.GetTags(ctx, "", key)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = eng.Update(ctx, "", newEntity("tmp", `{}`, nil))
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = eng.SetTag(ctx, "", key, "k", "v", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)

	page, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "forever", page.Items[0].EntityID)

	got, err := eng.Get(ctx, "", key, types.WithFilterExpired(false))
	require.NoError(t, err)
	assert.True(t, got.Expired(clock.Now()))

	deleted, err := eng.Delete(ctx, "", key)
	require.NoError(t, err)
	assert.False(t, deleted, "filtered delete must skip expired rows")

	deleted, err = eng.Delete(ctx, "", key, types.WithFilterExpired(false))
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestCreate_ReclaimsExpiredRow(t *testing.T) {
	eng, clock := setupEngine(t)
	ctx := context.Background()

	soon := clock.Now().Add(time.Second)
	ent := newEntity("tmp", `{"v":1}`, nil)
	ent.Expires = &soon
	_, err := eng.Create(ctx, "", ent, types.WithUpsert(false))
	require.NoError(t, err)

	clock.Advance(time.Minute)

	again, err := eng.Create(ctx, "", newEntity("tmp", `{"v":2}`, nil), types.WithUpsert(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(again.Data))
	assert.Nil(t, again.Expires)
	assert.Equal(t, int64(2), again.Version)

	_, err = eng.Create(ctx, "", newEntity("tmp", `{"v":3}`, nil), types.WithUpsert(false))
	assert.ErrorIs(t, err, types.ErrConflict, "a live row is not reclaimed")

	_, err = eng.Create(ctx, "", newEntity("tmp", `{"v":3}`, nil), types.WithUpsert(false), types.WithFilterExpired(false))
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestExpiresDurationDefault(t *testing.T) {
	eng, clock := setupEngine(t,
		WithTypeDefaults(types.EntityOperation, types.Options{ExpiresDuration: types.Some(10 * time.Hour)}))
	ctx := context.Background()
	key := types.EntityKey{AccountID: "acc1", SubscriptionID: "sub1", EntityType: types.EntityOperation, EntityID: "op1"}

	created, err := eng.Create(ctx, "", &types.Entity{EntityKey: key})
	require.NoError(t, err)
	require.NotNil(t, created.Expires)
	assert.True(t, created.Expires.Equal(clock.Now().Add(10*time.Hour)))

	explicit := clock.Now().Add(time.Hour)
	updated, err := eng.Update(ctx, "", &types.Entity{EntityKey: key, Expires: &explicit})
	require.NoError(t, err)
	assert.True(t, updated.Expires.Equal(explicit), "an explicit expiry wins over the default")

	other, err := eng.Create(ctx, "", newEntity("s", `{}`, nil))
	require.NoError(t, err)
	assert.Nil(t, other.Expires, "defaults of one type do not leak into another")
}

func TestDelete(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	for _, id := range []string{"a/x", "a/y", "ab", "b"} {
		_, err := eng.Create(ctx, "", newEntity(id, `{}`, nil))
		require.NoError(t, err)
	}

	deleted, err := eng.Delete(ctx, "", storageKey("b"))
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = eng.Delete(ctx, "", storageKey("b"))
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = eng.Delete(ctx, "", storageKey("a/"))
	require.NoError(t, err)
	assert.False(t, deleted, "exact delete does not match by prefix")

	deleted, err = eng.Delete(ctx, "", storageKey("a/"), types.Recursive())
	require.NoError(t, err)
	assert.True(t, deleted)

	page, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ab", page.Items[0].EntityID)
}

func TestPurgeExpired(t *testing.T) {
	eng, clock := setupEngine(t)
	ctx := context.Background()

	for i, ttl := range []time.Duration{time.Second, time.Minute, time.Hour} {
		exp := clock.Now().Add(ttl)
		ent := newEntity(fmt.Sprintf("e%d", i), `{}`, nil)
		ent.Expires = &exp
		_, err := eng.Create(ctx, "", ent)
		require.NoError(t, err)
	}
	_, err := eng.Create(ctx, "", newEntity("forever", `{}`, nil))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	n, err := eng.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page, err := eng.List(ctx, "", types.EntityStorage, types.ListQuery{AccountID: "acc1", SubscriptionID: "sub1"}, types.WithFilterExpired(false))
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestTransactionScope(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()
	exec := eng.Executor()

	boom := errors.New("boom")
	err := statement.RunInTransaction(ctx, exec, func(ctx context.Context, txID string) error {
		if _, err := eng.Create(ctx, txID, newEntity("rolled", `{}`, nil)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = eng.Get(ctx, "", storageKey("rolled"))
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = statement.RunInTransaction(ctx, exec, func(ctx context.Context, txID string) error {
		_, err := eng.Create(ctx, txID, newEntity("kept", `{}`, nil))
		return err
	})
	require.NoError(t, err)
	_, err = eng.Get(ctx, "", storageKey("kept"))
	assert.NoError(t, err)
}

func TestInvalidInput(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	_, err := eng.Create(ctx, "", newEntity("a", `{not json`, nil))
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = eng.Create(ctx, "", newEntity("a", `{}`, types.Tags{"": "v"}))
	assert.ErrorIs(t, err, types.ErrInvalidTag)

	_, err = eng.Create(ctx, "", newEntity("", `{}`, nil))
	assert.ErrorIs(t, err, types.ErrInvalidKey)

	bad := newEntity("a", `{}`, nil)
	bad.Version = -1
	_, err = eng.Update(ctx, "", bad)
	assert.ErrorIs(t, err, types.ErrInvalidVersion)

	_, err = eng.SetTag(ctx, "", storageKey("a"), "", "v", 0)
	assert.ErrorIs(t, err, types.ErrInvalidTag)

	_, err = eng.Get(ctx, "", types.EntityKey{AccountID: "acc1", SubscriptionID: "sub1", EntityType: "bucket", EntityID: "a"})
	assert.ErrorIs(t, err, types.ErrInvalidEntityType)
}
