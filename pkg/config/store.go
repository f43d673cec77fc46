package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

var (
	// ErrConfigNotFound is returned when a requested profile does not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrConfigInvalid is returned when a profile document cannot be parsed.
	ErrConfigInvalid = errors.New("configuration invalid")
)

// documentExtensions are tried in order when looking up a named document.
var documentExtensions = []string{".yaml", ".yml"}

// ProfileStore loads profile documents from a directory of a repository tree.
type ProfileStore struct {
	fsys fs.FS
	dir  string
}

// NewProfileStore creates a profile store reading dir inside fsys.
func NewProfileStore(fsys fs.FS, dir string) *ProfileStore {
	return &ProfileStore{fsys: fsys, dir: cleanDir(dir)}
}

// Load reads and decodes the named profile.
func (s *ProfileStore) Load(ctx context.Context, name string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("profile %q: %w", name, ErrConfigNotFound)
	}

	data, file, err := readDocument(s.fsys, s.dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile %q: %w", name, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("profile %q (%s): %w: %v", name, file, ErrConfigInvalid, err)
	}

	return NewProfile(name, doc), nil
}

// Path returns the file a profile would be read from.
func (s *ProfileStore) Path(name string) string {
	return path.Join(s.dir, name+documentExtensions[0])
}

// List returns the names of all profiles in lexical order.
func (s *ProfileStore) List(ctx context.Context) ([]string, error) {
	return listDocuments(ctx, s.fsys, s.dir)
}

// TraitStore loads trait documents on demand.
type TraitStore struct {
	fsys fs.FS
	dir  string
}

// NewTraitStore creates a trait store reading dir inside fsys.
func NewTraitStore(fsys fs.FS, dir string) *TraitStore {
	return &TraitStore{fsys: fsys, dir: cleanDir(dir)}
}

// Load reads the named trait. A trait that does not exist is reported with
// ok=false and no error. A trait that exists but cannot be decoded returns an
// error wrapping ErrConfigInvalid.
func (s *TraitStore) Load(ctx context.Context, name string) (*Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !validName(name) {
		return nil, false, nil
	}

	data, file, err := readDocument(s.fsys, s.dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read trait %q: %w", name, err)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, true, fmt.Errorf("trait %q (%s): %w: %v", name, file, ErrConfigInvalid, err)
	}
	return doc, true, nil
}

// List returns the names of all traits in lexical order.
func (s *TraitStore) List(ctx context.Context) ([]string, error) {
	return listDocuments(ctx, s.fsys, s.dir)
}

func readDocument(fsys fs.FS, dir, name string) ([]byte, string, error) {
	var lastErr error
	for _, ext := range documentExtensions {
		file := path.Join(dir, name+ext)
		data, err := fs.ReadFile(fsys, file)
		if err == nil {
			return data, file, nil
		}
		lastErr = err
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, file, err
		}
	}
	return nil, "", lastErr
}

func listDocuments(ctx context.Context, fsys fs.FS, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		for _, ext := range documentExtensions {
			if base, ok := strings.CutSuffix(entry.Name(), ext); ok && !seen[base] {
				seen[base] = true
				names = append(names, base)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// validName rejects names that would escape the document directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func cleanDir(dir string) string {
	if dir == "" {
		return "."
	}
	return path.Clean(strings.TrimPrefix(dir, "./"))
}
