// Package fsstore keeps prompt documents as text files on disk.
//
// Layout under the root:
//
//	global/v0001.md
//	global/ACTIVE
//	clients/<client>/v0001.md
//	clients/<client>/campaigns/<campaign>/v0001.md
//	blueprints/<name>/v0001.md
//
// Each vNNNN.md holds one immutable version (YAML front matter between
// `---` lines, then the body). ACTIVE holds the active version number and
// is replaced atomically with a rename.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackzampolin/hookline/internal/prompts"
)

const (
	activeFile   = "ACTIVE"
	globalDir    = "global"
	clientsDir   = "clients"
	campaignsDir = "campaigns"
	blueprintDir = "blueprints"
)

var versionFile = regexp.MustCompile(`^v(\d{4,})\.md$`)

// Backend implements prompts.Backend and prompts.Locator over a directory.
type Backend struct {
	root string
}

// New creates the root directory if needed and returns a backend over it.
func New(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Backend{root: root}, nil
}

// Root returns the store directory.
func (b *Backend) Root() string {
	return b.root
}

func (b *Backend) dir(scope prompts.Scope, id prompts.Identity) string {
	switch scope {
	case prompts.ScopeClient:
		return filepath.Join(b.root, clientsDir, id.Client)
	case prompts.ScopeCampaign:
		return filepath.Join(b.root, clientsDir, id.Client, campaignsDir, id.Campaign)
	case prompts.ScopeBlueprint:
		return filepath.Join(b.root, blueprintDir, id.Name)
	}
	return filepath.Join(b.root, globalDir)
}

func fileName(number int) string {
	return fmt.Sprintf("v%04d.md", number)
}

func (b *Backend) versionNumbers(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var numbers []int
	for _, e := range entries {
		m := versionFile.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (b *Backend) readSnapshot(dir string, number int) (prompts.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileName(number)))
	if err != nil {
		return prompts.Snapshot{}, err
	}
	snap, err := prompts.DecodeFile(data)
	if err != nil {
		return prompts.Snapshot{}, fmt.Errorf("%s: %w", filepath.Join(dir, fileName(number)), err)
	}
	// the file name is authoritative
	snap.Number = number
	return snap, nil
}

func (b *Backend) Snapshots(ctx context.Context, scope prompts.Scope, id prompts.Identity) ([]prompts.Snapshot, error) {
	dir := b.dir(scope, id)
	numbers, err := b.versionNumbers(dir)
	if err != nil {
		return nil, err
	}
	out := make([]prompts.Snapshot, 0, len(numbers))
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := b.readSnapshot(dir, n)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (b *Backend) Snapshot(ctx context.Context, scope prompts.Scope, id prompts.Identity, number int) (prompts.Snapshot, error) {
	snap, err := b.readSnapshot(b.dir(scope, id), number)
	if errors.Is(err, fs.ErrNotExist) {
		return prompts.Snapshot{}, &prompts.NotFoundError{
			Resource: "version",
			ID:       fmt.Sprintf("%s@v%d", id.Key(scope), number),
		}
	}
	return snap, err
}

func (b *Backend) Active(ctx context.Context, scope prompts.Scope, id prompts.Identity) (int, error) {
	data, err := os.ReadFile(filepath.Join(b.dir(scope, id), activeFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (b *Backend) Put(ctx context.Context, scope prompts.Scope, id prompts.Identity, s prompts.Snapshot) error {
	dir := b.dir(scope, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := prompts.EncodeFile(s)
	if err != nil {
		return err
	}
	target := filepath.Join(dir, fileName(s.Number))
	if _, err := os.Stat(target); err == nil {
		return &prompts.ConflictError{Resource: "version", ID: fmt.Sprintf("%s@v%d", id.Key(scope), s.Number)}
	}
	if err := writeAtomic(target, data); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, activeFile), []byte(strconv.Itoa(s.Number)+"\n"))
}

func (b *Backend) SetActive(ctx context.Context, scope prompts.Scope, id prompts.Identity, number int) error {
	dir := b.dir(scope, id)
	if _, err := os.Stat(filepath.Join(dir, fileName(number))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &prompts.NotFoundError{Resource: "version", ID: fmt.Sprintf("%s@v%d", id.Key(scope), number)}
		}
		return err
	}
	return writeAtomic(filepath.Join(dir, activeFile), []byte(strconv.Itoa(number)+"\n"))
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, scope prompts.Scope, id prompts.Identity) (bool, error) {
	dir := b.dir(scope, id)
	numbers, err := b.versionNumbers(dir)
	if err != nil {
		return false, err
	}
	if len(numbers) > 0 {
		return true, nil
	}
	if scope == prompts.ScopeClient {
		campaigns, err := b.List(ctx, prompts.ScopeCampaign, id.Client)
		if err != nil {
			return false, err
		}
		return len(campaigns) > 0, nil
	}
	return false, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (b *Backend) List(ctx context.Context, scope prompts.Scope, client string) ([]prompts.Identity, error) {
	var candidates []prompts.Identity
	switch scope {
	case prompts.ScopeGlobal:
		candidates = []prompts.Identity{prompts.GlobalID()}
	case prompts.ScopeClient:
		names, err := subdirs(filepath.Join(b.root, clientsDir))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			candidates = append(candidates, prompts.ClientID(n))
		}
	case prompts.ScopeCampaign:
		clients := []string{client}
		if client == "" {
			var err error
			if clients, err = subdirs(filepath.Join(b.root, clientsDir)); err != nil {
				return nil, err
			}
		}
		for _, c := range clients {
			names, err := subdirs(filepath.Join(b.root, clientsDir, c, campaignsDir))
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				candidates = append(candidates, prompts.CampaignID(c, n))
			}
		}
	case prompts.ScopeBlueprint:
		names, err := subdirs(filepath.Join(b.root, blueprintDir))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			candidates = append(candidates, prompts.BlueprintID(n))
		}
	}

	var out []prompts.Identity
	for _, id := range candidates {
		ok, err := b.Exists(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (b *Backend) Rename(ctx context.Context, scope prompts.Scope, from, to prompts.Identity) error {
	dst := b.dir(scope, to)
	taken, err := b.Exists(ctx, scope, to)
	if err != nil {
		return err
	}
	if taken {
		return &prompts.ConflictError{Resource: "document", ID: to.Key(scope)}
	}
	// only empty directories can be left at dst
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(b.dir(scope, from), dst)
}

func (b *Backend) Delete(ctx context.Context, scope prompts.Scope, id prompts.Identity) error {
	return os.RemoveAll(b.dir(scope, id))
}

func (b *Backend) Close() error { return nil }

// Locate maps a version or ACTIVE file path back to its document.
func (b *Backend) Locate(path string) (prompts.Scope, prompts.Identity, bool) {
	rel, err := filepath.Rel(b.root, path)
	if err != nil {
		return "", prompts.Identity{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	file := parts[len(parts)-1]
	if file != activeFile && !versionFile.MatchString(file) {
		return "", prompts.Identity{}, false
	}
	switch {
	case len(parts) == 2 && parts[0] == globalDir:
		return prompts.ScopeGlobal, prompts.GlobalID(), true
	case len(parts) == 3 && parts[0] == clientsDir:
		return prompts.ScopeClient, prompts.ClientID(parts[1]), true
	case len(parts) == 5 && parts[0] == clientsDir && parts[2] == campaignsDir:
		return prompts.ScopeCampaign, prompts.CampaignID(parts[1], parts[3]), true
	case len(parts) == 3 && parts[0] == blueprintDir:
		return prompts.ScopeBlueprint, prompts.BlueprintID(parts[1]), true
	}
	return "", prompts.Identity{}, false
}
