// Package lists is the storage synchronization core. The Manager owns an
// in-memory cache of the user's collections, routes reads and writes to
// the active backend (local key-value store or remote pod), migrates data
// between the two, and publishes change notifications to subscribers.
//
// No expected failure mode escapes the Manager as an error to list
// callers: mutating operations report success or failure, and remote
// trouble degrades to local persistence rather than surfacing.
package lists

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/sourcegraph/conc"

	"cinesync/models"
	"cinesync/services/codec"
	"cinesync/services/pod"
)

// State of the storage subsystem.
type State string

const (
	// StateLocalOnly routes everything to the local store.
	StateLocalOnly State = "local_only"
	// StateRemoteActive routes everything to the pod, falling back to
	// local per-operation on write failure.
	StateRemoteActive State = "remote_active"
	// StateMigrating is the transient state during Enable.
	StateMigrating State = "migrating"
	// StateDegraded means the remote backend was flagged active but is
	// unavailable; behaviour is LocalOnly with the flag cleared.
	StateDegraded State = "degraded"
)

// ErrRemoteUnavailable is returned by Enable when the pod has no valid
// session; no migration writes are attempted in that case.
var ErrRemoteUnavailable = errors.New("lists: remote storage unavailable")

// Collection names. The two watchlists double as local-store keys and
// published stream names.
const (
	colRatings  = "ratings"
	colComments = "comments"
)

var collections = []string{models.ListToWatch, models.ListWatched, colRatings, colComments}

var collectionDocs = map[string]string{
	models.ListToWatch: pod.DocToWatch,
	models.ListWatched: pod.DocWatched,
	colRatings:         pod.DocRatings,
	colComments:        pod.DocComments,
}

// LocalStore is the on-device key-value persistence the manager depends on.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RemoteStore is the part of the pod client the manager depends on.
type RemoteStore interface {
	IsAvailable() bool
	Read(ctx context.Context, rel string) (string, error)
	Write(ctx context.Context, rel, body string) error
	Delete(ctx context.Context, rel string) error
}

// Manager orchestrates the two backends. All operations are safe for
// concurrent use; mutations are serialized so each one is a complete
// read-modify-write cycle against the backend.
type Manager struct {
	local  LocalStore
	remote RemoteStore
	events *hub
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	migrated bool
	cache    cache
}

type cache struct {
	toWatch  []models.ListItem
	watched  []models.ListItem
	ratings  models.RatingMap
	comments models.CommentMap
	loaded   map[string]bool
}

// New builds a manager and restores the persisted backend selection. A
// remote flag with an unavailable pod degrades to local: the flag is
// cleared and the condition logged, never thrown.
func New(ctx context.Context, local LocalStore, remote RemoteStore) *Manager {
	m := &Manager{
		local:  local,
		remote: remote,
		events: newHub(),
		log:    slog.Default().With("component", "lists"),
		state:  StateLocalOnly,
		cache:  cache{loaded: make(map[string]bool)},
	}

	flag, ok, err := local.Get(ctx, models.KeyBackendFlag)
	if err != nil {
		m.log.Error("restore backend flag", "error", err)
		return m
	}
	if ok && flag == string(models.BackendRemote) {
		if remote.IsAvailable() {
			m.state = StateRemoteActive
		} else {
			m.state = StateDegraded
			if err := local.Set(ctx, models.KeyBackendFlag, string(models.BackendLocal)); err != nil {
				m.log.Error("clear backend flag", "error", err)
			}
			m.log.Warn("remote backend flagged but unavailable, continuing local-only")
		}
	}
	if v, ok, err := local.Get(ctx, models.KeyMigrated); err == nil && ok && v == "true" {
		m.migrated = true
	}
	return m
}

// State returns the current synchronization state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Backend reports which storage destination is authoritative right now.
func (m *Manager) Backend() models.Backend {
	if m.State() == StateRemoteActive {
		return models.BackendRemote
	}
	return models.BackendLocal
}

// Migrated reports whether an initial migration has ever completed.
func (m *Manager) Migrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrated
}

// Status summarizes the storage subsystem for clients.
func (m *Manager) Status() models.StorageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	backend := models.BackendLocal
	if m.state == StateRemoteActive {
		backend = models.BackendRemote
	}
	return models.StorageStatus{
		Backend:   backend,
		Migrated:  m.migrated,
		Available: m.remote.IsAvailable(),
	}
}

// Enable switches persistence to the pod after migrating all four
// collections from the local store. The backend flag is persisted only
// when every migration write succeeded, so a partial migration leaves
// the local backend authoritative; re-running Enable overwrites the
// remote copies again, which is idempotent.
func (m *Manager) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRemoteActive {
		return nil
	}
	if !m.remote.IsAvailable() {
		return ErrRemoteUnavailable
	}

	m.state = StateMigrating
	for _, name := range collections {
		if err := m.remote.Write(ctx, collectionDocs[name], m.migrationDoc(ctx, name)); err != nil {
			m.state = StateLocalOnly
			m.log.Warn("migration write failed", "collection", name, "error", err)
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}

	if err := m.local.Set(ctx, models.KeyBackendFlag, string(models.BackendRemote)); err != nil {
		m.state = StateLocalOnly
		return fmt.Errorf("persist backend flag: %w", err)
	}
	if err := m.local.Set(ctx, models.KeyMigrated, "true"); err != nil {
		m.log.Error("persist migration marker", "error", err)
	}

	m.migrated = true
	m.state = StateRemoteActive
	m.invalidateLocked()
	m.log.Info("remote backend enabled")
	return nil
}

// migrationDoc builds the canonical document for one collection from
// local data. Absent or unreadable local data migrates as empty.
func (m *Manager) migrationDoc(ctx context.Context, name string) string {
	text, ok, err := m.local.Get(ctx, name)
	if err != nil {
		m.log.Error("read local collection for migration", "collection", name, "error", err)
	}
	if !ok {
		text = ""
	}
	switch name {
	case colRatings:
		return codec.EncodeRatings(codec.DecodeRatings(text))
	case colComments:
		return codec.EncodeComments(codec.DecodeComments(text))
	default:
		return codec.EncodeList(codec.DecodeList(text), name)
	}
}

// Disable returns persistence to the local store. Local data is
// untouched and becomes authoritative again immediately.
func (m *Manager) Disable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRemoteActive {
		m.state = StateLocalOnly
		return nil
	}
	if err := m.local.Set(ctx, models.KeyBackendFlag, string(models.BackendLocal)); err != nil {
		return fmt.Errorf("clear backend flag: %w", err)
	}
	m.state = StateLocalOnly
	m.invalidateLocked()
	m.log.Info("remote backend disabled")
	return nil
}

// Sync discards the in-memory cache and reloads every collection from
// the active backend, publishing fresh snapshots. Used after suspected
// external changes, e.g. on app resume.
func (m *Manager) Sync(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	remote := m.state == StateRemoteActive

	var (
		toWatch  []models.ListItem
		watched  []models.ListItem
		ratings  models.RatingMap
		comments models.CommentMap
	)
	var wg conc.WaitGroup
	wg.Go(func() { toWatch = codec.DecodeList(m.readDoc(ctx, models.ListToWatch, remote)) })
	wg.Go(func() { watched = codec.DecodeList(m.readDoc(ctx, models.ListWatched, remote)) })
	wg.Go(func() { ratings = codec.DecodeRatings(m.readDoc(ctx, colRatings, remote)) })
	wg.Go(func() { comments = codec.DecodeComments(m.readDoc(ctx, colComments, remote)) })
	wg.Wait()

	m.storeListLocked(models.ListToWatch, toWatch)
	m.storeListLocked(models.ListWatched, watched)
	m.cache.ratings = ratings
	m.cache.loaded[colRatings] = true
	m.cache.comments = comments
	m.cache.loaded[colComments] = true

	m.events.publish(models.ListToWatch, toWatch)
	m.events.publish(models.ListWatched, watched)
}

// List returns the named watchlist; ok is false for unknown names.
func (m *Manager) List(ctx context.Context, name string) ([]models.ListItem, bool) {
	if !models.KnownList(name) {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.loadListLocked(ctx, name)), true
}

// ToWatch returns the to-watch list.
func (m *Manager) ToWatch(ctx context.Context) []models.ListItem {
	items, _ := m.List(ctx, models.ListToWatch)
	return items
}

// Watched returns the watched list.
func (m *Manager) Watched(ctx context.Context) []models.ListItem {
	items, _ := m.List(ctx, models.ListWatched)
	return items
}

// Ratings returns a snapshot of the personal rating map.
func (m *Manager) Ratings(ctx context.Context) models.RatingMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.loadRatingsLocked(ctx))
}

// Comments returns a snapshot of the comment map.
func (m *Manager) Comments(ctx context.Context) models.CommentMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.loadCommentsLocked(ctx))
}

// AddToWatch appends an item to the to-watch list. Adding an id that is
// already present is a no-op reported as success.
func (m *Manager) AddToWatch(ctx context.Context, item models.ListItem) bool {
	return m.addToList(ctx, models.ListToWatch, item)
}

// RemoveFromToWatch removes an item from the to-watch list.
func (m *Manager) RemoveFromToWatch(ctx context.Context, id int64) bool {
	return m.removeFromList(ctx, models.ListToWatch, id)
}

// AddToWatched appends an item to the watched list.
func (m *Manager) AddToWatched(ctx context.Context, item models.ListItem) bool {
	return m.addToList(ctx, models.ListWatched, item)
}

// RemoveFromWatched removes an item from the watched list.
func (m *Manager) RemoveFromWatched(ctx context.Context, id int64) bool {
	return m.removeFromList(ctx, models.ListWatched, id)
}

// Add appends an item to the named list; false for unknown names or
// failed persistence.
func (m *Manager) Add(ctx context.Context, name string, item models.ListItem) bool {
	if !models.KnownList(name) {
		return false
	}
	return m.addToList(ctx, name, item)
}

// Remove removes an item from the named list.
func (m *Manager) Remove(ctx context.Context, name string, id int64) bool {
	if !models.KnownList(name) {
		return false
	}
	return m.removeFromList(ctx, name, id)
}

// SetRating records a personal rating for an item.
func (m *Manager) SetRating(ctx context.Context, id string, value float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := maps.Clone(m.loadRatingsLocked(ctx))
	next[id] = value
	if !m.persistLocked(ctx, colRatings, codec.EncodeRatings(next)) {
		return false
	}
	m.cache.ratings = next
	m.cache.loaded[colRatings] = true
	return true
}

// RemoveRating clears an item's rating. Removing an absent rating is a
// no-op reported as success.
func (m *Manager) RemoveRating(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ratings := m.loadRatingsLocked(ctx)
	if _, exists := ratings[id]; !exists {
		return true
	}
	next := maps.Clone(ratings)
	delete(next, id)
	if !m.persistLocked(ctx, colRatings, codec.EncodeRatings(next)) {
		return false
	}
	m.cache.ratings = next
	m.cache.loaded[colRatings] = true
	return true
}

// SetComment records a comment for an item, replacing any previous one.
func (m *Manager) SetComment(ctx context.Context, id, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := maps.Clone(m.loadCommentsLocked(ctx))
	next[id] = text
	if !m.persistLocked(ctx, colComments, codec.EncodeComments(next)) {
		return false
	}
	m.cache.comments = next
	m.cache.loaded[colComments] = true
	return true
}

// RemoveComment clears an item's comment.
func (m *Manager) RemoveComment(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	comments := m.loadCommentsLocked(ctx)
	if _, exists := comments[id]; !exists {
		return true
	}
	next := maps.Clone(comments)
	delete(next, id)
	if !m.persistLocked(ctx, colComments, codec.EncodeComments(next)) {
		return false
	}
	m.cache.comments = next
	m.cache.loaded[colComments] = true
	return true
}

// Subscribe returns a channel emitting the full current collection on
// every successful mutation or reload, replaying the latest snapshot to
// new subscribers immediately. The cancel func releases the
// subscription; unknown list names return a closed channel.
func (m *Manager) Subscribe(ctx context.Context, list string) (<-chan []models.ListItem, func()) {
	if !models.KnownList(list) {
		ch := make(chan []models.ListItem)
		close(ch)
		return ch, func() {}
	}
	// Prime the last-value cache so the replay is never empty-handed.
	m.mu.Lock()
	m.loadListLocked(ctx, list)
	m.mu.Unlock()
	return m.events.subscribe(list)
}

func (m *Manager) addToList(ctx context.Context, name string, item models.ListItem) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.loadListLocked(ctx, name)
	for _, existing := range items {
		if existing.ID == item.ID {
			return true
		}
	}
	next := append(cloneItems(items), item)
	if !m.persistLocked(ctx, name, codec.EncodeList(next, name)) {
		return false
	}
	m.storeListLocked(name, next)
	m.events.publish(name, next)
	return true
}

func (m *Manager) removeFromList(ctx context.Context, name string, id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.loadListLocked(ctx, name)
	next := make([]models.ListItem, 0, len(items))
	removed := false
	for _, existing := range items {
		if existing.ID == id {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if !removed {
		return true
	}
	if !m.persistLocked(ctx, name, codec.EncodeList(next, name)) {
		return false
	}
	m.storeListLocked(name, next)
	m.events.publish(name, next)
	return true
}

// persistLocked writes one collection document through the active
// backend. When the pod write fails for any reason the document is
// persisted locally instead, so the user-visible action still succeeds;
// the fallback is logged, not surfaced.
func (m *Manager) persistLocked(ctx context.Context, name, doc string) bool {
	if m.state == StateRemoteActive {
		err := m.remote.Write(ctx, collectionDocs[name], doc)
		if err == nil {
			return true
		}
		m.log.Warn("remote write failed, falling back to local", "collection", name, "error", err)
	}
	if err := m.local.Set(ctx, name, doc); err != nil {
		m.log.Error("local write failed", "collection", name, "error", err)
		return false
	}
	return true
}

// readDoc fetches one collection document from the requested backend.
// Remote read errors are swallowed and treated as empty data, the normal
// first-use condition.
func (m *Manager) readDoc(ctx context.Context, name string, remote bool) string {
	if remote {
		text, err := m.remote.Read(ctx, collectionDocs[name])
		switch {
		case err == nil:
			return text
		case errors.Is(err, pod.ErrNotFound):
			m.log.Debug("remote document absent", "collection", name)
		default:
			m.log.Warn("remote read failed, treating as empty", "collection", name, "error", err)
		}
		return ""
	}

	text, ok, err := m.local.Get(ctx, name)
	if err != nil {
		m.log.Error("local read failed, treating as empty", "collection", name, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return text
}

func (m *Manager) loadListLocked(ctx context.Context, name string) []models.ListItem {
	if !m.cache.loaded[name] {
		items := codec.DecodeList(m.readDoc(ctx, name, m.state == StateRemoteActive))
		m.storeListLocked(name, items)
		m.events.publish(name, items)
	}
	if name == models.ListWatched {
		return m.cache.watched
	}
	return m.cache.toWatch
}

func (m *Manager) loadRatingsLocked(ctx context.Context) models.RatingMap {
	if !m.cache.loaded[colRatings] {
		m.cache.ratings = codec.DecodeRatings(m.readDoc(ctx, colRatings, m.state == StateRemoteActive))
		m.cache.loaded[colRatings] = true
	}
	return m.cache.ratings
}

func (m *Manager) loadCommentsLocked(ctx context.Context) models.CommentMap {
	if !m.cache.loaded[colComments] {
		m.cache.comments = codec.DecodeComments(m.readDoc(ctx, colComments, m.state == StateRemoteActive))
		m.cache.loaded[colComments] = true
	}
	return m.cache.comments
}

func (m *Manager) storeListLocked(name string, items []models.ListItem) {
	if name == models.ListWatched {
		m.cache.watched = items
	} else {
		m.cache.toWatch = items
	}
	m.cache.loaded[name] = true
}

func (m *Manager) invalidateLocked() {
	m.cache = cache{loaded: make(map[string]bool)}
}

func cloneItems(items []models.ListItem) []models.ListItem {
	out := make([]models.ListItem, 0, len(items))
	return append(out, items...)
}
