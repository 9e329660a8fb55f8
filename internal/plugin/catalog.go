// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// CatalogFile is the name of the index file in the catalog repository.
const CatalogFile = "plugins.csv"

// CatalogEntry describes a plugin that can be fetched on demand.
type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Catalog maps plugin IDs to their catalog entries.
type Catalog map[string]CatalogEntry

// Has reports whether id is listed.
func (c Catalog) Has(id string) bool {
	_, ok := c[id]
	return ok
}

// Entries returns the entries sorted by ID.
func (c Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c))
	for _, e := range c {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CatalogSource provides the catalog of remote plugins.
type CatalogSource interface {
	// Load returns the catalog, pulling the latest copy first when forcePull
	// is set.
	Load(ctx context.Context, forcePull bool) (Catalog, error)
	// Reset discards the local copy and fetches it again.
	Reset(ctx context.Context) error
}

// ParseCatalog reads rows of id,name,description,url. Blank lines and lines
// starting with '#' are ignored, as is a header row whose first field is "id".
// Rows with an invalid ID are skipped.
func ParseCatalog(r io.Reader) (Catalog, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	cat := make(Catalog)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, oops.In("catalog").With("row", row).Wrapf(err, "parse %s", CatalogFile)
		}
		id := strings.TrimSpace(rec[0])
		if row == 1 && id == "id" {
			continue
		}
		if ValidateID(id) != nil {
			continue
		}
		cat[id] = CatalogEntry{
			ID:          id,
			Name:        strings.TrimSpace(rec[1]),
			Description: strings.TrimSpace(rec[2]),
			URL:         strings.TrimSpace(rec[3]),
		}
	}
	return cat, nil
}

// GitCatalog is a catalog kept in a git repository and cloned to a local
// path.
type GitCatalog struct {
	url  string
	path string
	git  *GitFetcher
}

// NewGitCatalog creates a catalog source that clones url into path.
func NewGitCatalog(url, path string, git *GitFetcher) *GitCatalog {
	if git == nil {
		git = NewGitFetcher()
	}
	return &GitCatalog{url: url, path: path, git: git}
}

// Load implements CatalogSource.
func (g *GitCatalog) Load(ctx context.Context, forcePull bool) (Catalog, error) {
	_, err := os.Stat(g.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := g.git.Clone(ctx, g.url, g.path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, oops.In("catalog").With("path", g.path).Wrapf(err, "stat catalog")
	case forcePull:
		if err := g.git.Update(ctx, g.path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(filepath.Join(g.path, CatalogFile)) //nolint:gosec // path is from configuration
	if err != nil {
		return nil, oops.In("catalog").With("path", g.path).Wrapf(err, "open %s", CatalogFile)
	}
	defer func() { _ = f.Close() }()
	return ParseCatalog(f)
}

// Reset implements CatalogSource.
func (g *GitCatalog) Reset(ctx context.Context) error {
	if err := os.RemoveAll(g.path); err != nil {
		return oops.In("catalog").With("path", g.path).Wrapf(err, "remove catalog")
	}
	return g.git.Clone(ctx, g.url, g.path)
}
