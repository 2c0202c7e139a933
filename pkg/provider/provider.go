// Package provider defines the collaborators templates are built from: named
// type schemas, named data blobs, and previously compiled sub-template
// sources. Implementations backed by fs.FS cover the common directory
// layout; anything else can supply its own implementation.
package provider

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// SchemaProvider exposes named JSON-Schema documents ("type schemas").
type SchemaProvider interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (string, error)
}

// DataProvider exposes named raw data blobs consumed by dataFile properties.
type DataProvider interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (string, error)
}

// TemplateProvider resolves cross-file references within a template set.
type TemplateProvider interface {
	Fetch(ctx context.Context, key string) (string, error)
}

// FSProvider serves files from an fs.FS, keyed by file name minus extension.
// It satisfies both SchemaProvider and DataProvider.
type FSProvider struct {
	fsys fs.FS
	dir  string
}

// NewFSProvider wraps a filesystem. dir may be "." for the root.
func NewFSProvider(fsys fs.FS, dir string) *FSProvider {
	if dir == "" {
		dir = "."
	}
	return &FSProvider{fsys: fsys, dir: dir}
}

// List returns the names of all regular files in the directory, extension
// stripped, sorted for determinism.
func (p *FSProvider) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(p.fsys, p.dir)
	if err != nil {
		return nil, fmt.Errorf("provider: list %s: %w", p.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		names = append(names, strings.TrimSuffix(name, path.Ext(name)))
	}
	sort.Strings(names)
	return names, nil
}

// Fetch reads the file whose name (minus extension) matches.
func (p *FSProvider) Fetch(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entries, err := fs.ReadDir(p.fsys, p.dir)
	if err != nil {
		return "", fmt.Errorf("provider: fetch %s: %w", name, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if strings.TrimSuffix(fileName, path.Ext(fileName)) != name {
			continue
		}
		data, err := fs.ReadFile(p.fsys, path.Join(p.dir, fileName))
		if err != nil {
			return "", fmt.Errorf("provider: fetch %s: %w", name, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("provider: %q not found in %s", name, p.dir)
}

// FSTemplateProvider resolves template keys as relative file paths.
type FSTemplateProvider struct {
	fsys fs.FS
}

// NewFSTemplateProvider wraps a filesystem rooted at the template set.
func NewFSTemplateProvider(fsys fs.FS) *FSTemplateProvider {
	return &FSTemplateProvider{fsys: fsys}
}

// Fetch reads the file at key.
func (p *FSTemplateProvider) Fetch(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := fs.ReadFile(p.fsys, key)
	if err != nil {
		return "", fmt.Errorf("provider: fetch template %s: %w", key, err)
	}
	return string(data), nil
}

// Source is the shared List/Fetch shape of SchemaProvider and DataProvider.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (string, error)
}

// GatherAll lists the provider and fetches every entry concurrently. Results
// are merged by name, never by completion order; the first failure aborts
// with an error naming the failing resource. A nil provider yields an empty
// map.
func GatherAll(ctx context.Context, p Source) (map[string]string, error) {
	if p == nil {
		return map[string]string{}, nil
	}
	names, err := p.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	out := make(map[string]string, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			text, err := p.Fetch(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("provider: gather %q: %w", name, err)
				}
				return
			}
			out[name] = text
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
