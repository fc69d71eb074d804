package lists_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinesync/models"
	"cinesync/services/codec"
	"cinesync/services/lists"
	"cinesync/services/pod"
)

// fakeLocal is an in-memory stand-in for the on-device key-value store.
type fakeLocal struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	failSet bool
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{data: make(map[string]string)}
}

func (f *fakeLocal) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeLocal) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errors.New("disk full")
	}
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeLocal) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// fakeRemote is a scriptable stand-in for the pod client.
type fakeRemote struct {
	mu        sync.Mutex
	available bool
	docs      map[string]string
	writeErr  error
	failAt    int // fail the Nth write (1-based); 0 disables
	writes    int
	reads     int
}

func newFakeRemote(available bool) *fakeRemote {
	return &fakeRemote{available: available, docs: make(map[string]string)}
}

func (f *fakeRemote) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeRemote) Read(_ context.Context, rel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	doc, ok := f.docs[rel]
	if !ok {
		return "", pod.ErrNotFound
	}
	return doc, nil
}

func (f *fakeRemote) Write(_ context.Context, rel, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.failAt > 0 && f.writes == f.failAt {
		return errors.New("pod write refused")
	}
	f.docs[rel] = body
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, rel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, rel)
	return nil
}

func (f *fakeRemote) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

func (f *fakeRemote) doc(rel string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[rel]
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

var (
	alpha = models.ListItem{ID: 1, Title: "Alpha"}
	beta  = models.ListItem{ID: 2, Title: "Beta"}
)

func TestStartsLocalOnly(t *testing.T) {
	m := lists.New(context.Background(), newFakeLocal(), newFakeRemote(false))

	assert.Equal(t, lists.StateLocalOnly, m.State())
	assert.Equal(t, models.BackendLocal, m.Backend())
}

func TestAddAndReadBack(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	m := lists.New(ctx, local, newFakeRemote(false))

	require.True(t, m.AddToWatch(ctx, alpha))
	require.True(t, m.AddToWatched(ctx, beta))

	assert.Equal(t, []models.ListItem{alpha}, m.ToWatch(ctx))
	assert.Equal(t, []models.ListItem{beta}, m.Watched(ctx))

	// Persisted, not just cached: a fresh manager sees the same data.
	m2 := lists.New(ctx, local, newFakeRemote(false))
	assert.Equal(t, []models.ListItem{alpha}, m2.ToWatch(ctx))
}

func TestIdempotentAdd(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	require.True(t, m.AddToWatch(ctx, alpha))
	require.True(t, m.AddToWatch(ctx, beta))
	require.True(t, m.AddToWatch(ctx, models.ListItem{ID: 1, Title: "Alpha again"}))

	items := m.ToWatch(ctx)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "Alpha", items[0].Title)
	assert.Equal(t, int64(2), items[1].ID)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	require.True(t, m.AddToWatch(ctx, alpha))
	assert.True(t, m.RemoveFromToWatch(ctx, 99))
	assert.Len(t, m.ToWatch(ctx), 1)

	assert.True(t, m.RemoveFromToWatch(ctx, 1))
	assert.Empty(t, m.ToWatch(ctx))
}

func TestUnknownListNames(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	_, ok := m.List(ctx, "favourites")
	assert.False(t, ok)
	assert.False(t, m.Add(ctx, "favourites", alpha))
	assert.False(t, m.Remove(ctx, "favourites", 1))
}

func TestRatingsAndComments(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	m := lists.New(ctx, local, newFakeRemote(false))

	require.True(t, m.SetRating(ctx, "1", 9.5))
	require.True(t, m.SetComment(ctx, "1", "great"))
	require.True(t, m.SetRating(ctx, "1", 8)) // overwrite

	assert.Equal(t, models.RatingMap{"1": 8}, m.Ratings(ctx))
	assert.Equal(t, models.CommentMap{"1": "great"}, m.Comments(ctx))

	// Absent removals are no-op successes.
	assert.True(t, m.RemoveRating(ctx, "404"))
	assert.True(t, m.RemoveComment(ctx, "404"))

	require.True(t, m.RemoveRating(ctx, "1"))
	require.True(t, m.RemoveComment(ctx, "1"))
	assert.Empty(t, m.Ratings(ctx))
	assert.Empty(t, m.Comments(ctx))
}

func TestEnableRefusedWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(false)
	m := lists.New(ctx, newFakeLocal(), remote)

	err := m.Enable(ctx)
	assert.ErrorIs(t, err, lists.ErrRemoteUnavailable)
	assert.Equal(t, lists.StateLocalOnly, m.State())
	assert.Zero(t, remote.writeCount(), "no migration writes may be attempted")
}

func TestEnableMigratesAllCollections(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	remote := newFakeRemote(true)
	m := lists.New(ctx, local, remote)

	require.True(t, m.AddToWatch(ctx, alpha))
	require.True(t, m.SetRating(ctx, "1", 9))

	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, lists.StateRemoteActive, m.State())
	assert.Equal(t, models.BackendRemote, m.Backend())

	assert.Equal(t, []models.ListItem{alpha}, codec.DecodeList(remote.doc(pod.DocToWatch)))
	assert.Empty(t, codec.DecodeList(remote.doc(pod.DocWatched)))
	assert.Equal(t, models.RatingMap{"1": 9}, codec.DecodeRatings(remote.doc(pod.DocRatings)))
	assert.Empty(t, codec.DecodeComments(remote.doc(pod.DocComments)))

	// Flag persisted: a restart with an available pod stays remote.
	m2 := lists.New(ctx, local, remote)
	assert.Equal(t, lists.StateRemoteActive, m2.State())
	assert.True(t, m2.Status().Migrated)
}

func TestEnableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(true)
	m := lists.New(ctx, newFakeLocal(), remote)

	require.NoError(t, m.Enable(ctx))
	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, 4, remote.writeCount(), "second enable on an active backend is a no-op")
}

func TestMigrationFlagAtomicity(t *testing.T) {
	for failAt := 1; failAt <= 4; failAt++ {
		t.Run(fmt.Sprintf("fail write %d", failAt), func(t *testing.T) {
			ctx := context.Background()
			local := newFakeLocal()
			remote := newFakeRemote(true)
			remote.failAt = failAt
			m := lists.New(ctx, local, remote)
			require.True(t, m.AddToWatch(ctx, alpha))

			err := m.Enable(ctx)
			require.Error(t, err)
			assert.Equal(t, lists.StateLocalOnly, m.State())
			assert.Equal(t, models.BackendLocal, m.Backend())

			flag, ok, _ := local.Get(ctx, models.KeyBackendFlag)
			assert.False(t, ok && flag == string(models.BackendRemote),
				"backend flag must stay local when any migration write fails")

			// Retrying after the fault clears is idempotent and overwrites
			// any partial remote artifacts.
			require.NoError(t, m.Enable(ctx))
			assert.Equal(t, lists.StateRemoteActive, m.State())
			assert.Equal(t, []models.ListItem{alpha}, codec.DecodeList(remote.doc(pod.DocToWatch)))
		})
	}
}

func TestMutationFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	remote := newFakeRemote(true)
	m := lists.New(ctx, local, remote)
	require.NoError(t, m.Enable(ctx))

	remote.setWriteErr(errors.New("socket closed"))

	// Every mutating operation still succeeds from the caller's view.
	require.True(t, m.AddToWatch(ctx, alpha))
	require.True(t, m.SetRating(ctx, "1", 7))
	require.True(t, m.SetComment(ctx, "1", "ok"))

	// The data landed in the local store instead.
	doc, ok, err := local.Get(ctx, models.ListToWatch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []models.ListItem{alpha}, codec.DecodeList(doc))
}

func TestNoPublishWhenEveryBackendFails(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	remote := newFakeRemote(true)
	m := lists.New(ctx, local, remote)
	require.NoError(t, m.Enable(ctx))

	ch, cancel := m.Subscribe(ctx, models.ListToWatch)
	defer cancel()
	drain(t, ch) // replayed snapshot

	remote.setWriteErr(errors.New("socket closed"))
	local.mu.Lock()
	local.failSet = true
	local.mu.Unlock()

	assert.False(t, m.AddToWatch(ctx, alpha), "no backend accepted the write")
	assert.Empty(t, m.ToWatch(ctx), "cache must not be mutated optimistically")

	select {
	case items := <-ch:
		t.Fatalf("unexpected emission %v after failed write", items)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisableReturnsToLocal(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	remote := newFakeRemote(true)
	m := lists.New(ctx, local, remote)

	require.True(t, m.AddToWatch(ctx, alpha))
	require.NoError(t, m.Enable(ctx))
	require.NoError(t, m.Disable(ctx))

	assert.Equal(t, lists.StateLocalOnly, m.State())
	// Local data is untouched and immediately authoritative.
	assert.Equal(t, []models.ListItem{alpha}, m.ToWatch(ctx))

	m2 := lists.New(ctx, local, remote)
	assert.Equal(t, lists.StateLocalOnly, m2.State())
}

func TestDegradedStartupClearsFlag(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	require.NoError(t, local.Set(ctx, models.KeyBackendFlag, string(models.BackendRemote)))

	m := lists.New(ctx, local, newFakeRemote(false))

	assert.Equal(t, lists.StateDegraded, m.State())
	assert.Equal(t, models.BackendLocal, m.Backend())

	flag, ok, _ := local.Get(ctx, models.KeyBackendFlag)
	require.True(t, ok)
	assert.Equal(t, string(models.BackendLocal), flag)
}

func TestSyncReloadsFromActiveBackend(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote(true)
	m := lists.New(ctx, newFakeLocal(), remote)
	require.NoError(t, m.Enable(ctx))
	require.True(t, m.AddToWatch(ctx, alpha))

	// Another device writes to the pod behind our back.
	remote.mu.Lock()
	remote.docs[pod.DocToWatch] = codec.EncodeList([]models.ListItem{alpha, beta}, models.ListToWatch)
	remote.mu.Unlock()

	assert.Len(t, m.ToWatch(ctx), 1, "cache still serves the stale snapshot")

	m.Sync(ctx)
	assert.Equal(t, []models.ListItem{alpha, beta}, m.ToWatch(ctx))
}

func TestSubscribeReplaysLatest(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))
	require.True(t, m.AddToWatch(ctx, alpha))

	ch, cancel := m.Subscribe(ctx, models.ListToWatch)
	defer cancel()

	assert.Equal(t, []models.ListItem{alpha}, drain(t, ch),
		"new subscribers receive the current snapshot immediately")

	require.True(t, m.AddToWatch(ctx, beta))
	assert.Equal(t, []models.ListItem{alpha, beta}, drain(t, ch))
}

func TestSubscribeUnknownList(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	ch, cancel := m.Subscribe(ctx, "favourites")
	defer cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberGetsNewestSnapshot(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	ch, cancel := m.Subscribe(ctx, models.ListToWatch)
	defer cancel()

	// Never reading between mutations: pending emissions are replaced,
	// not queued, so the next receive sees the newest state.
	for i := int64(1); i <= 5; i++ {
		require.True(t, m.AddToWatch(ctx, models.ListItem{ID: i}))
	}
	assert.Len(t, drain(t, ch), 5)
}

// Two call sites mutating the same list concurrently is accepted
// last-writer-wins across processes; in-process the manager serializes
// the read-modify-write cycles, so no addition is lost.
func TestConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	m := lists.New(ctx, newFakeLocal(), newFakeRemote(false))

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.True(t, m.AddToWatch(ctx, models.ListItem{ID: id}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.ToWatch(ctx), 20)
}

// The walkthrough from the design discussion: enable with a healthy pod,
// then lose it mid-flight.
func TestEnableThenRemoteLossScenario(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	remote := newFakeRemote(true)
	m := lists.New(ctx, local, remote)

	require.True(t, m.AddToWatch(ctx, alpha))

	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, lists.StateRemoteActive, m.State())
	assert.Equal(t, []models.ListItem{alpha}, codec.DecodeList(remote.doc(pod.DocToWatch)))

	ch, cancel := m.Subscribe(ctx, models.ListToWatch)
	defer cancel()
	drain(t, ch)

	remote.setWriteErr(errors.New("network loss"))
	require.True(t, m.AddToWatch(ctx, beta), "the user-visible action still succeeds")

	assert.Equal(t, []models.ListItem{alpha, beta}, drain(t, ch))

	doc, ok, err := local.Get(ctx, models.ListToWatch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []models.ListItem{alpha, beta}, codec.DecodeList(doc), "fallback persisted locally")

	assert.Equal(t, []models.ListItem{alpha}, codec.DecodeList(remote.doc(pod.DocToWatch)),
		"remote copy keeps the pre-failure state")
}

func drain(t *testing.T, ch <-chan []models.ListItem) []models.ListItem {
	t.Helper()
	select {
	case items := <-ch:
		return items
	case <-time.After(time.Second):
		t.Fatal("expected an emission")
		return nil
	}
}
