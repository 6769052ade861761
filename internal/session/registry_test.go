package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/storage"
)

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// tickingClock advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

// failingStore fails every operation after the wrapped store has been populated.
type failingStore struct {
	storage.Store
	err error
}

func (f *failingStore) List(ctx context.Context) ([]string, error) { return nil, f.err }
func (f *failingStore) Write(ctx context.Context, id string, p []byte) error {
	return &storage.Error{Op: "write", Key: id, Err: f.err}
}
func (f *failingStore) Delete(ctx context.Context, id string) error {
	return &storage.Error{Op: "delete", Key: id, Err: f.err}
}

var epoch = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T, ids ...string) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	for _, id := range ids {
		require.NoError(t, s.Write(context.Background(), id, []byte(`[]`)))
	}
	return s
}

func TestBootstrap_EmptyStoreCreatesOneSession(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := NewRegistry(store, WithClock(fixedClock(epoch)))

	require.NoError(t, r.Bootstrap(ctx))
	require.Equal(t, []string{"20240517-093000"}, r.IDs())
	require.Equal(t, "20240517-093000", r.Active())

	payload, found, err := store.Read(ctx, "20240517-093000")
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, history.Decode(payload))
}

func TestBootstrap_ActivatesNewestAndKeepsValidActive(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t, "a", "c", "b"))

	require.NoError(t, r.Bootstrap(ctx))
	require.Equal(t, []string{"c", "b", "a"}, r.IDs())
	require.Equal(t, "c", r.Active())

	require.NoError(t, r.Select("a"))
	require.NoError(t, r.Bootstrap(ctx))
	require.Equal(t, "a", r.Active(), "a still exists so it stays active")
}

func TestBootstrap_ReplacesStaleActive(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "a", "b")
	r := NewRegistry(store)
	require.NoError(t, r.Bootstrap(ctx))
	require.NoError(t, r.Select("a"))

	// removed behind the registry's back
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, r.Bootstrap(ctx))
	require.Equal(t, []string{"b"}, r.IDs())
	require.Equal(t, "b", r.Active())
}

func TestCreate_InsertsAtFrontAndActivates(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t, "20240101-000000"), WithClock(tickingClock(epoch)))
	require.NoError(t, r.Bootstrap(ctx))

	id, err := r.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, "20240517-093000", id)
	require.Equal(t, []string{"20240517-093000", "20240101-000000"}, r.IDs())
	require.Equal(t, id, r.Active())
}

func TestCreate_SameSecondGetsSuffix(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := NewRegistry(store, WithClock(fixedClock(epoch)))
	require.NoError(t, r.Bootstrap(ctx))

	second, err := r.Create(ctx)
	require.NoError(t, err)
	third, err := r.Create(ctx)
	require.NoError(t, err)

	require.Equal(t, "20240517-093000-01", second)
	require.Equal(t, "20240517-093000-02", third)
	require.Equal(t, []string{third, second, "20240517-093000"}, r.IDs())

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3, "no session overwrote another")
}

func TestCreate_SuffixedIDsKeepCreationOrderAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	r := NewRegistry(store, WithClock(fixedClock(epoch)))
	require.NoError(t, r.Bootstrap(ctx))
	for range 3 {
		_, err := r.Create(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, "20240517-093000-03", r.Active())

	// a gap left by a deletion must not be reused
	require.NoError(t, r.Delete(ctx, "20240517-093000-01"))
	id, err := r.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, "20240517-093000-04", id)

	restarted := NewRegistry(store, WithClock(fixedClock(epoch)))
	require.NoError(t, restarted.Bootstrap(ctx))
	require.Equal(t, id, restarted.Active())
	require.Equal(t, []string{
		"20240517-093000-04",
		"20240517-093000-03",
		"20240517-093000-02",
		"20240517-093000",
	}, restarted.IDs())
}

func TestCreate_WriteFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t, "a"))
	require.NoError(t, r.Bootstrap(ctx))
	r.store = &failingStore{Store: r.store, err: errors.New("disk full")}

	_, err := r.Create(ctx)
	var serr *storage.Error
	require.ErrorAs(t, err, &serr)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "create", rerr.Op)
	require.Equal(t, State{ActiveID: "a", KnownIDs: []string{"a"}}, r.State())
}

func TestSelect(t *testing.T) {
	r := NewRegistry(seed(t, "a", "b"))
	require.NoError(t, r.Bootstrap(context.Background()))

	require.NoError(t, r.Select("a"))
	require.Equal(t, "a", r.Active())

	err := r.Select("zzz")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "zzz")
	require.Equal(t, "a", r.Active(), "failed select leaves state unchanged")
}

func TestDelete_ActiveReassignsToNewest(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "a", "b")
	r := NewRegistry(store)
	require.NoError(t, r.Bootstrap(ctx))
	require.Equal(t, "b", r.Active())

	require.NoError(t, r.Delete(ctx, "b"))
	require.Equal(t, []string{"a"}, r.IDs())
	require.Equal(t, "a", r.Active())

	_, found, err := store.Read(ctx, "b")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDelete_InactiveKeepsActive(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t, "a", "b", "c"))
	require.NoError(t, r.Bootstrap(ctx))

	require.NoError(t, r.Delete(ctx, "a"))
	require.Equal(t, []string{"c", "b"}, r.IDs())
	require.Equal(t, "c", r.Active())
}

func TestDelete_LastCreatesFresh(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "a")
	r := NewRegistry(store, WithClock(fixedClock(epoch)))
	require.NoError(t, r.Bootstrap(ctx))

	require.NoError(t, r.Delete(ctx, "a"))
	require.Equal(t, []string{"20240517-093000"}, r.IDs())
	require.Equal(t, "20240517-093000", r.Active())

	payload, found, err := store.Read(ctx, "20240517-093000")
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, history.Decode(payload))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"20240517-093000"}, keys)
}

func TestDelete_StorageFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t, "a", "b"))
	require.NoError(t, r.Bootstrap(ctx))
	r.store = &failingStore{Store: r.store, err: errors.New("read-only fs")}

	err := r.Delete(ctx, "b")
	require.Error(t, err)
	require.Equal(t, State{ActiveID: "b", KnownIDs: []string{"b", "a"}}, r.State())
}

func TestActiveIsAlwaysKnown(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(seed(t), WithClock(tickingClock(epoch)))
	require.NoError(t, r.Bootstrap(ctx))

	check := func() {
		t.Helper()
		require.NotEmpty(t, r.IDs())
		require.Contains(t, r.IDs(), r.Active())
	}
	check()
	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx)
		require.NoError(t, err)
		check()
	}
	for _, id := range r.IDs() {
		require.NoError(t, r.Delete(ctx, id))
		check()
	}
}

func TestBootstrap_ListFailure(t *testing.T) {
	r := NewRegistry(&failingStore{Store: storage.NewMemoryStore(), err: errors.New("io")})
	err := r.Bootstrap(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "bootstrap", rerr.Op)
}
