// Package materialize rewrites favorite items so that every embedded image
// (data URLs, provider inline parts, packed assets, remote URLs and
// references to the user's own files) is stored on disk under the favorite's
// directory and referenced by its /files/ URL instead.
package materialize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"banana/storage-api/internal/storage"

	"go.uber.org/zap"
)

// Target identifies the favorite whose item is being materialized
type Target struct {
	Username     string
	FavoriteType string
	FavoriteID   string
}

type Materializer struct {
	layout  storage.Layout
	fetcher *Fetcher

	// OnStore is called after every file the materializer writes
	OnStore func(ctx context.Context, path, mime string)
}

func New(l storage.Layout, f *Fetcher) *Materializer {
	return &Materializer{
		layout:  l,
		fetcher: f,
	}
}

// Materialize walks item depth first and returns the rewritten value. Maps
// and slices are modified in place. Bad embedded content is passed through
// untouched; only storage failures are returned.
func (m *Materializer) Materialize(ctx context.Context, item any, t Target) (any, error) {
	dir, err := filepath.Abs(m.layout.FavoriteDir(t.Username, t.FavoriteType, t.FavoriteID))
	if err != nil {
		return nil, err
	}

	r := &run{
		m:        m,
		ctx:      ctx,
		target:   t,
		dir:      dir,
		userRoot: m.layout.UserDir(t.Username),
		prefix:   storage.URLPrefix(t.Username),
		memo:     make(map[string]string),
	}

	return r.walk(item)
}

// run holds the state of a single Materialize call. memo maps a source
// (data URL, remote URL or own file reference) to the URI it was stored
// under, so one image used twice in an item is stored once.
type run struct {
	m        *Materializer
	ctx      context.Context
	target   Target
	dir      string
	userRoot string
	prefix   string
	memo     map[string]string
}

func (r *run) walk(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for _, om := range objectMatchers {
			if !om.match(x) {
				continue
			}

			out, err := om.apply(r, x)
			if err != nil {
				return nil, err
			}
			if out.changed {
				return out.value, nil
			}

			// Matched the shape but the payload was unusable, treat it as a
			// plain object
			break
		}

		for k, child := range x {
			nv, err := r.walk(child)
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil

	case []any:
		for i, child := range x {
			nv, err := r.walk(child)
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil

	case string:
		for _, sm := range stringMatchers {
			if !sm.match(r, x) {
				continue
			}

			out, err := sm.apply(r, x)
			if err != nil {
				return nil, err
			}
			if out.changed {
				return out.value, nil
			}
			return x, nil
		}
		return x, nil

	default:
		return v, nil
	}
}

// store writes data as a new file in the favorite's directory and returns
// its public URI
func (r *run) store(data []byte, mime string) (string, error) {
	name, err := storage.NewFileName(storage.ExtForMime(mime))
	if err != nil {
		return "", fmt.Errorf("failed to generate file name, %w", err)
	}

	p := filepath.Join(r.dir, name)
	if err := storage.WriteFileAtomic(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write favorite media, %w", err)
	}

	return r.stored(p, mime)
}

func (r *run) stored(p, mime string) (string, error) {
	uri, ok := r.m.layout.URL(r.target.Username, p)
	if !ok {
		os.Remove(p)
		return "", fmt.Errorf("stored file %s is outside of the user directory", p)
	}

	zap.L().Debug("Materialized favorite media",
		zap.String("username", r.target.Username),
		zap.String("favorite", r.target.FavoriteType+"/"+r.target.FavoriteID),
		zap.String("uri", uri))

	if r.m.OnStore != nil {
		r.m.OnStore(r.ctx, p, mime)
	}

	return uri, nil
}
