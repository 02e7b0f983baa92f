package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Store is the document store. It validates identities, serializes writers
// per identity and notifies subscribers. Persistence is delegated to a
// Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	// structural is held exclusively by Rename and Delete, shared otherwise.
	structural sync.RWMutex
	locksMu    sync.Mutex
	locks      map[string]*sync.RWMutex

	obsMu     sync.RWMutex
	observers []observer
	nextObs   int

	// written holds the last write time per document key, so the watcher
	// can tell the store's own file changes from outside edits.
	writtenMu sync.Mutex
	written   map[string]time.Time
}

// ownWriteWindow is how long after a write file events for that document
// are attributed to the store.
const ownWriteWindow = 2 * time.Second

type observer struct {
	id int
	fn func(Event)
}

// NewStore creates a store over the given backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.RWMutex),
		written: make(map[string]time.Time),
	}
}

// SetClock replaces the time source used for CreatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Backend returns the underlying persistence backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lockFor(scope Scope, id Identity) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	key := id.Key(scope)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[key] = l
	}
	return l
}

// readLock takes the shared structural lock and the identity read lock.
func (s *Store) readLock(scope Scope, id Identity) func() {
	s.structural.RLock()
	l := s.lockFor(scope, id)
	l.RLock()
	return func() {
		l.RUnlock()
		s.structural.RUnlock()
	}
}

// writeLock takes the shared structural lock and the identity write lock.
func (s *Store) writeLock(scope Scope, id Identity) func() {
	s.structural.RLock()
	l := s.lockFor(scope, id)
	l.Lock()
	return func() {
		l.Unlock()
		s.structural.RUnlock()
	}
}

// markWritten records a write to the given documents.
func (s *Store) markWritten(scope Scope, ids ...Identity) {
	now := time.Now()
	s.writtenMu.Lock()
	defer s.writtenMu.Unlock()
	for k, t := range s.written {
		if now.Sub(t) > ownWriteWindow {
			delete(s.written, k)
		}
	}
	for _, id := range ids {
		s.written[id.Key(scope)] = now
	}
}

// wroteRecently reports whether the store wrote the document, or for a
// campaign its client, within ownWriteWindow.
func (s *Store) wroteRecently(scope Scope, id Identity) bool {
	keys := []string{id.Key(scope)}
	if scope == ScopeCampaign {
		keys = append(keys, ClientID(id.Client).Key(ScopeClient))
	}
	s.writtenMu.Lock()
	defer s.writtenMu.Unlock()
	for _, k := range keys {
		if t, ok := s.written[k]; ok && time.Since(t) <= ownWriteWindow {
			return true
		}
	}
	return false
}

// Load returns the document with its active version and version list.
func (s *Store) Load(ctx context.Context, scope Scope, id Identity) (*Document, error) {
	if err := id.Validate(scope); err != nil {
		return nil, err
	}
	unlock := s.readLock(scope, id)
	defer unlock()

	snaps, err := s.snapshots(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, documentNotFound(scope, id)
	}
	active, err := s.activeNumber(ctx, scope, id, snaps)
	if err != nil {
		return nil, err
	}

	doc := &Document{Scope: scope, Identity: id, Versions: metas(snaps, active)}
	for _, snap := range snaps {
		if snap.Number == active {
			doc.Active = versionOf(snap, active)
		}
	}
	return doc, nil
}

// activeNumber returns the active pointer, falling back to the highest
// version when the pointer is missing or dangling.
func (s *Store) activeNumber(ctx context.Context, scope Scope, id Identity, snaps []Snapshot) (int, error) {
	active, err := s.backend.Active(ctx, scope, id)
	if err != nil {
		return 0, fmt.Errorf("failed to read active version of %s: %w", id.Key(scope), err)
	}
	for _, snap := range snaps {
		if snap.Number == active {
			return active, nil
		}
	}
	if len(snaps) > 0 {
		s.logger.Warn("active version pointer missing, using latest",
			"document", id.Key(scope), "pointer", active)
		return snaps[len(snaps)-1].Number, nil
	}
	return 0, nil
}

func metas(snaps []Snapshot, active int) []VersionMeta {
	out := make([]VersionMeta, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		v := versionOf(snaps[i], active)
		out = append(out, VersionMeta{Number: v.Number, Status: v.Status, CreatedAt: v.CreatedAt})
	}
	return out
}

// LoadVersion returns one version of a document.
func (s *Store) LoadVersion(ctx context.Context, scope Scope, id Identity, number int) (*Version, error) {
	if err := id.Validate(scope); err != nil {
		return nil, err
	}
	if number < 1 {
		return nil, Invalidf("version must be positive, got %d", number)
	}
	unlock := s.readLock(scope, id)
	defer unlock()

	snap, err := s.backend.Snapshot(ctx, scope, id, number)
	if err != nil {
		return nil, err
	}
	snaps, err := s.snapshots(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	active, err := s.activeNumber(ctx, scope, id, snaps)
	if err != nil {
		return nil, err
	}
	v := versionOf(snap, active)
	return &v, nil
}

// ListVersions returns version metadata, newest first. A document that was
// never saved yields an empty list.
func (s *Store) ListVersions(ctx context.Context, scope Scope, id Identity) ([]VersionMeta, error) {
	if err := id.Validate(scope); err != nil {
		return nil, err
	}
	unlock := s.readLock(scope, id)
	defer unlock()

	snaps, err := s.snapshots(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return []VersionMeta{}, nil
	}
	active, err := s.activeNumber(ctx, scope, id, snaps)
	if err != nil {
		return nil, err
	}
	return metas(snaps, active), nil
}

// Save stores a new version numbered max+1 and makes it the active one.
func (s *Store) Save(ctx context.Context, scope Scope, id Identity, fm FrontMatter, body string) (*Version, error) {
	if err := id.Validate(scope); err != nil {
		return nil, err
	}
	if err := fm.Validate(); err != nil {
		return nil, err
	}
	fm.normalize()

	unlock := s.writeLock(scope, id)
	snaps, err := s.snapshots(ctx, scope, id)
	if err != nil {
		unlock()
		return nil, err
	}
	next := 1
	for _, snap := range snaps {
		if snap.Number >= next {
			next = snap.Number + 1
		}
	}
	if err := ctx.Err(); err != nil {
		unlock()
		return nil, err
	}
	snap := Snapshot{Number: next, CreatedAt: s.now().UTC(), FrontMatter: fm, Body: body}
	s.markWritten(scope, id)
	err = s.backend.Put(ctx, scope, id, snap)
	s.markWritten(scope, id)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("failed to save %s: %w", id.Key(scope), err)
	}
	unlock()

	s.logger.Debug("saved version", "document", id.Key(scope), "version", next)
	s.Publish(Event{Kind: EventSaved, Scope: scope, Identity: id, Version: next})

	v := versionOf(snap, next)
	return &v, nil
}

// Activate makes an existing version the active one. It never creates a
// version.
func (s *Store) Activate(ctx context.Context, scope Scope, id Identity, number int) error {
	if err := id.Validate(scope); err != nil {
		return err
	}
	unlock := s.writeLock(scope, id)
	s.markWritten(scope, id)
	err := s.backend.SetActive(ctx, scope, id, number)
	s.markWritten(scope, id)
	unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("activated version", "document", id.Key(scope), "version", number)
	s.Publish(Event{Kind: EventActivated, Scope: scope, Identity: id, Version: number})
	return nil
}

// Rename moves a document to a new name within its scope. Renaming a client
// carries its campaigns.
func (s *Store) Rename(ctx context.Context, scope Scope, id Identity, newName string) (Identity, error) {
	if scope == ScopeGlobal {
		return Identity{}, Invalidf("the global document cannot be renamed")
	}
	if err := id.Validate(scope); err != nil {
		return Identity{}, err
	}
	to := id.Renamed(scope, newName)
	if err := to.Validate(scope); err != nil {
		return Identity{}, err
	}

	s.structural.Lock()
	err := s.rename(ctx, scope, id, to)
	s.structural.Unlock()
	if err != nil {
		return Identity{}, err
	}

	s.logger.Debug("renamed document", "from", id.Key(scope), "to", to.Key(scope))
	s.Publish(Event{Kind: EventRenamed, Scope: scope, Identity: id, RenamedTo: &to})
	return to, nil
}

func (s *Store) rename(ctx context.Context, scope Scope, from, to Identity) error {
	ok, err := s.backend.Exists(ctx, scope, from)
	if err != nil {
		return err
	}
	if !ok {
		return documentNotFound(scope, from)
	}
	taken, err := s.backend.Exists(ctx, scope, to)
	if err != nil {
		return err
	}
	if taken {
		return &ConflictError{Resource: "document", ID: to.Key(scope)}
	}
	s.markWritten(scope, from, to)
	defer s.markWritten(scope, from, to)
	if err := s.backend.Rename(ctx, scope, from, to); err != nil {
		return fmt.Errorf("failed to rename %s: %w", from.Key(scope), err)
	}
	return nil
}

// Delete removes every version of a document. Deleting a client removes its
// campaigns.
func (s *Store) Delete(ctx context.Context, scope Scope, id Identity) error {
	if err := id.Validate(scope); err != nil {
		return err
	}

	s.structural.Lock()
	err := s.delete(ctx, scope, id)
	s.structural.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug("deleted document", "document", id.Key(scope))
	s.Publish(Event{Kind: EventDeleted, Scope: scope, Identity: id})
	return nil
}

func (s *Store) delete(ctx context.Context, scope Scope, id Identity) error {
	ok, err := s.backend.Exists(ctx, scope, id)
	if err != nil {
		return err
	}
	if !ok {
		return documentNotFound(scope, id)
	}
	s.markWritten(scope, id)
	defer s.markWritten(scope, id)
	if err := s.backend.Delete(ctx, scope, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id.Key(scope), err)
	}
	return nil
}

// List returns the identities stored at scope. For campaigns, a non-empty
// client limits the result to that client.
func (s *Store) List(ctx context.Context, scope Scope, client string) ([]Identity, error) {
	if _, err := ParseScope(string(scope)); err != nil {
		return nil, err
	}
	if client != "" {
		if err := ValidateName("client", client); err != nil {
			return nil, err
		}
	}
	s.structural.RLock()
	defer s.structural.RUnlock()

	ids, err := s.backend.List(ctx, scope, client)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", scope, err)
	}
	if ids == nil {
		ids = []Identity{}
	}
	sortIdentities(ids)
	return ids, nil
}

// Diff returns a unified diff between two versions of a document.
func (s *Store) Diff(ctx context.Context, scope Scope, id Identity, from, to int) (string, error) {
	a, err := s.LoadVersion(ctx, scope, id, from)
	if err != nil {
		return "", err
	}
	b, err := s.LoadVersion(ctx, scope, id, to)
	if err != nil {
		return "", err
	}
	textA, err := DocumentText(a.FrontMatter, a.Body)
	if err != nil {
		return "", err
	}
	textB, err := DocumentText(b.FrontMatter, b.Body)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA),
		B:        difflib.SplitLines(textB),
		FromFile: fmt.Sprintf("%s@v%d", id.Key(scope), from),
		ToFile:   fmt.Sprintf("%s@v%d", id.Key(scope), to),
		Context:  3,
	})
}

// Subscribe registers fn for store events and returns a function that
// removes it. Callbacks run synchronously after the change is persisted.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observer{id: id, fn: fn})
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to all subscribers.
func (s *Store) Publish(ev Event) {
	s.obsMu.RLock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, o := range s.observers {
		fns = append(fns, o.fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) snapshots(ctx context.Context, scope Scope, id Identity) ([]Snapshot, error) {
	snaps, err := s.backend.Snapshots(ctx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id.Key(scope), err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Number < snaps[j].Number })
	return snaps, nil
}
