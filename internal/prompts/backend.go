package prompts

import "context"

// Backend persists snapshots and the active pointer for each identity.
// Backends are not required to lock; the Store serializes writers per
// identity and holds a structural lock across Rename and Delete.
type Backend interface {
	// Snapshots returns every stored snapshot for id in ascending version
	// order. It returns an empty slice when nothing was ever saved.
	Snapshots(ctx context.Context, scope Scope, id Identity) ([]Snapshot, error)

	// Snapshot returns one version or a NotFoundError.
	Snapshot(ctx context.Context, scope Scope, id Identity, number int) (Snapshot, error)

	// Active returns the active version number, or 0 when there is none.
	Active(ctx context.Context, scope Scope, id Identity) (int, error)

	// Put stores a new snapshot and makes it active. Readers must never see
	// the new snapshot active without it being readable.
	Put(ctx context.Context, scope Scope, id Identity, s Snapshot) error

	// SetActive moves the active pointer to an existing version.
	SetActive(ctx context.Context, scope Scope, id Identity, number int) error

	// Exists reports whether anything is stored under id. For a client this
	// includes its campaigns.
	Exists(ctx context.Context, scope Scope, id Identity) (bool, error)

	// List returns the identities stored at scope. For campaigns, client
	// limits the result to one client.
	List(ctx context.Context, scope Scope, client string) ([]Identity, error)

	// Rename moves everything stored under from to to. Renaming a client
	// carries its campaigns.
	Rename(ctx context.Context, scope Scope, from, to Identity) error

	// Delete removes everything stored under id. Deleting a client removes
	// its campaigns.
	Delete(ctx context.Context, scope Scope, id Identity) error

	Close() error
}
