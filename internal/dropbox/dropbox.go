// Package dropbox selects and previews files in the drop box staging area.
package dropbox

import (
	"context"
	"fmt"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moby/patternmatcher"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/internal/action"
	"github.com/grovetools/chordsync/pkg/api"
	"github.com/grovetools/chordsync/pkg/models"
)

const defaultCacheSize = 64

// viewableSuffixes are the file endings whose contents can be previewed.
var viewableSuffixes = []string{".json", ".md", ".txt", "README", "CHANGELOG"}

// Viewable reports whether the file at p can be previewed.
func Viewable(p string) bool {
	for _, suffix := range viewableSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// Select returns the tree's file paths matched by patterns, depth-first with
// siblings sorted by name. Patterns use .dockerignore syntax relative to the
// drop box root, including "**" and "!" exclusions. No patterns selects all.
func Select(tree []models.DropBoxEntry, patterns []string) ([]string, error) {
	files := models.FilePaths(tree)
	if len(patterns) == 0 {
		return files, nil
	}

	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid file pattern")
	}

	var out []string
	for _, f := range files {
		ok, err := pm.MatchesOrParentMatches(strings.TrimPrefix(f, "/"))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("failed to match %s", f))
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Viewer retrieves file contents and keeps recently viewed files in memory.
type Viewer struct {
	doer        action.Doer
	routes      api.Routes
	stripPrefix string
	cache       *lru.Cache[string, string]
}

// NewViewer creates a Viewer. stripPrefix is removed from tree paths before
// retrieval, for servers that report absolute on-disk paths.
func NewViewer(doer action.Doer, routes api.Routes, stripPrefix string, cacheSize int) (*Viewer, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}
	return &Viewer{
		doer:        doer,
		routes:      routes,
		stripPrefix: strings.TrimSuffix(stripPrefix, "/"),
		cache:       cache,
	}, nil
}

// View returns the contents of the file at p. Failed retrievals are not cached.
func (v *Viewer) View(ctx context.Context, p string) (string, error) {
	if !Viewable(p) {
		return "", errors.InvalidInput(fmt.Sprintf("%s cannot be previewed", path.Base(p)))
	}
	if contents, ok := v.cache.Get(p); ok {
		return contents, nil
	}

	remote := p
	if v.stripPrefix != "" {
		remote = strings.TrimPrefix(remote, v.stripPrefix)
	}
	resp, err := v.doer.Do(ctx, api.Get(v.routes.DropBoxRetrieve(remote)))
	if err != nil {
		return "", err
	}

	contents := string(resp.Body)
	v.cache.Add(p, contents)
	return contents, nil
}

// Cached reports whether p is in the cache.
func (v *Viewer) Cached(p string) bool {
	return v.cache.Contains(p)
}

// Purge empties the cache.
func (v *Viewer) Purge() {
	v.cache.Purge()
}
