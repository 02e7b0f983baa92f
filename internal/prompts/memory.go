package prompts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryDoc struct {
	snapshots []Snapshot
	active    int
}

// MemoryBackend keeps documents in process memory. Snapshots are deep
// copied on the way in and out so callers cannot mutate stored versions.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]*memoryDoc
	ids  map[string]Identity
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs: make(map[string]*memoryDoc),
		ids:  make(map[string]Identity),
	}
}

func copySnapshot(s Snapshot) (Snapshot, error) {
	fm, err := s.FrontMatter.Clone()
	if err != nil {
		return Snapshot{}, err
	}
	s.FrontMatter = fm
	return s, nil
}

func (m *MemoryBackend) Snapshots(ctx context.Context, scope Scope, id Identity) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := m.docs[id.Key(scope)]
	if doc == nil {
		return []Snapshot{}, nil
	}
	out := make([]Snapshot, 0, len(doc.snapshots))
	for _, s := range doc.snapshots {
		c, err := copySnapshot(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryBackend) Snapshot(ctx context.Context, scope Scope, id Identity, number int) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if doc := m.docs[id.Key(scope)]; doc != nil {
		for _, s := range doc.snapshots {
			if s.Number == number {
				return copySnapshot(s)
			}
		}
	}
	return Snapshot{}, versionNotFound(scope, id, number)
}

func (m *MemoryBackend) Active(ctx context.Context, scope Scope, id Identity) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if doc := m.docs[id.Key(scope)]; doc != nil {
		return doc.active, nil
	}
	return 0, nil
}

func (m *MemoryBackend) Put(ctx context.Context, scope Scope, id Identity, s Snapshot) error {
	c, err := copySnapshot(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := id.Key(scope)
	doc := m.docs[key]
	if doc == nil {
		doc = &memoryDoc{}
		m.docs[key] = doc
		m.ids[key] = id
	}
	doc.snapshots = append(doc.snapshots, c)
	doc.active = c.Number
	return nil
}

func (m *MemoryBackend) SetActive(ctx context.Context, scope Scope, id Identity, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc := m.docs[id.Key(scope)]; doc != nil {
		for _, s := range doc.snapshots {
			if s.Number == number {
				doc.active = number
				return nil
			}
		}
	}
	return versionNotFound(scope, id, number)
}

func (m *MemoryBackend) Exists(ctx context.Context, scope Scope, id Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.docs[id.Key(scope)]; ok {
		return true, nil
	}
	if scope == ScopeClient {
		for key, other := range m.ids {
			if other.Client == id.Client && key == other.Key(ScopeCampaign) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MemoryBackend) List(ctx context.Context, scope Scope, client string) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Identity
	add := func(id Identity) {
		k := id.Key(scope)
		if !seen[k] {
			seen[k] = true
			out = append(out, id)
		}
	}
	for key, id := range m.ids {
		switch {
		case key == id.Key(scope) && (scope != ScopeCampaign || client == "" || id.Client == client):
			add(id)
		case scope == ScopeClient && key == id.Key(ScopeCampaign):
			// campaigns imply their client
			add(ClientID(id.Client))
		}
	}
	sortIdentities(out)
	return out, nil
}

func (m *MemoryBackend) Rename(ctx context.Context, scope Scope, from, to Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type move struct {
		key    string
		stored Scope
		to     Identity
	}
	var moves []move
	for key, id := range m.ids {
		if moved, ok := movedIdentity(scope, id, key, from, to); ok {
			moves = append(moves, move{key: key, stored: scopeOfKey(key, id), to: moved})
		}
	}
	docs := make(map[string]*memoryDoc, len(moves))
	for _, mv := range moves {
		docs[mv.key] = m.docs[mv.key]
		delete(m.docs, mv.key)
		delete(m.ids, mv.key)
	}
	for _, mv := range moves {
		newKey := mv.to.Key(mv.stored)
		m.docs[newKey] = docs[mv.key]
		m.ids[newKey] = mv.to
	}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, scope Scope, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, other := range m.ids {
		if _, ok := movedIdentity(scope, other, key, id, id); ok {
			delete(m.docs, key)
			delete(m.ids, key)
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// scopeOfKey recovers the scope a stored identity was keyed under.
func scopeOfKey(key string, id Identity) Scope {
	for _, s := range Scopes {
		if id.Key(s) == key {
			return s
		}
	}
	return ScopeGlobal
}

// movedIdentity reports whether the stored identity (under key) is covered
// by an operation on from at scope, and what it becomes when from is
// renamed to to. A client operation covers the client and its campaigns.
func movedIdentity(scope Scope, id Identity, key string, from, to Identity) (Identity, bool) {
	stored := scopeOfKey(key, id)
	switch {
	case stored == scope && id == from:
		return to, true
	case scope == ScopeClient && stored == ScopeCampaign && id.Client == from.Client:
		id.Client = to.Client
		return id, true
	}
	return id, false
}

func sortIdentities(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Client != ids[j].Client {
			return ids[i].Client < ids[j].Client
		}
		if ids[i].Campaign != ids[j].Campaign {
			return ids[i].Campaign < ids[j].Campaign
		}
		return ids[i].Name < ids[j].Name
	})
}

func versionNotFound(scope Scope, id Identity, number int) error {
	return &NotFoundError{Resource: "version", ID: versionRef(scope, id, number)}
}

func documentNotFound(scope Scope, id Identity) error {
	return &NotFoundError{Resource: "document", ID: id.Key(scope)}
}

func versionRef(scope Scope, id Identity, number int) string {
	return fmt.Sprintf("%s@v%d", id.Key(scope), number)
}
