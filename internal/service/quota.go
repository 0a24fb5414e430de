package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"banana/storage-api/internal/apperr"
	"banana/storage-api/internal/model"
	"banana/storage-api/internal/storage"

	"go.uber.org/zap"
)

// Quota tracks how many bytes each user keeps in the metered namespaces.
// usage.json is a cache of the directory sizes, it is rebuilt from disk
// whenever it looks stale or a check fails.
type Quota struct {
	layout       storage.Layout
	users        *Users
	defaultBytes int64
	locks        keyedMutex
}

func NewQuota(l storage.Layout, users *Users, defaultBytes int64) *Quota {
	return &Quota{
		layout:       l,
		users:        users,
		defaultBytes: defaultBytes,
	}
}

// Limit returns the byte limit for username. Admins are unlimited.
func (q *Quota) Limit(username string) (bytes int64, unlimited bool) {
	if q.users.IsAdmin(username) {
		return 0, true
	}

	var o model.QuotaOverride
	if err := storage.ReadJSON(q.layout.QuotaFile(username), &o); err == nil {
		return o.QuotaBytes, false
	}

	return q.defaultBytes, false
}

// SetOverride replaces the default limit of a user. nil removes the override.
func (q *Quota) SetOverride(username string, bytes *int64) error {
	if _, err := q.users.Get(username); err != nil {
		return err
	}

	if bytes == nil {
		if err := os.Remove(q.layout.QuotaFile(username)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove quota override, %w", err)
		}
		return nil
	}

	if *bytes < 0 {
		return apperr.Validation("quotaBytes can't be negative")
	}

	if err := storage.WriteJSONAtomic(q.layout.QuotaFile(username), model.QuotaOverride{QuotaBytes: *bytes}); err != nil {
		return fmt.Errorf("failed to write quota override, %w", err)
	}

	zap.L().Info("Quota override set", zap.String("username", username), zap.Int64("bytes", *bytes))

	return nil
}

// Usage returns the cached usage, recomputing it when the cache is missing
func (q *Quota) Usage(username string) (model.Usage, error) {
	u, stale := q.cached(username)
	if stale {
		return q.RecomputeUsage(username)
	}

	return u, nil
}

// cached reads usage.json. A missing or unreadable file, or one that reports
// nothing stored at all, is stale.
func (q *Quota) cached(username string) (model.Usage, bool) {
	var u model.Usage
	if err := storage.ReadJSON(q.layout.UsageFile(username), &u); err != nil {
		return model.Usage{}, true
	}

	return u, u.Total() == 0
}

// RecomputeUsage walks the metered namespaces and persists the result
func (q *Quota) RecomputeUsage(username string) (model.Usage, error) {
	unlock := q.locks.Lock(username)
	defer unlock()

	return q.recompute(username)
}

func (q *Quota) recompute(username string) (model.Usage, error) {
	uploads, err := storage.DirSize(q.layout.KindDir(username, model.KindUploads))
	if err != nil {
		return model.Usage{}, fmt.Errorf("failed to measure uploads, %w", err)
	}

	generated, err := storage.DirSize(q.layout.KindDir(username, model.KindGenerated))
	if err != nil {
		return model.Usage{}, fmt.Errorf("failed to measure generated images, %w", err)
	}

	u := model.Usage{
		UploadsBytes:   uploads,
		GeneratedBytes: generated,
		UpdatedAt:      time.Now().UTC(),
	}

	if err := storage.WriteJSONAtomic(q.layout.UsageFile(username), u); err != nil {
		return model.Usage{}, fmt.Errorf("failed to write usage record, %w", err)
	}

	zap.L().Debug("Usage recomputed", zap.String("username", username), zap.Int64("total", u.Total()))

	return u, nil
}

// AssertHasSpace fails with a quota error when storing incoming more bytes
// in kind would push the user over the limit. Before failing, usage is
// recomputed once in case the cache drifted.
func (q *Quota) AssertHasSpace(username string, kind model.Kind, incoming int64) error {
	if !kind.Metered() {
		return nil
	}

	limit, unlimited := q.Limit(username)
	if unlimited {
		return nil
	}

	u, stale := q.cached(username)
	if stale {
		var err error
		if u, err = q.RecomputeUsage(username); err != nil {
			return err
		}
	}

	if u.Total()+incoming <= limit {
		return nil
	}

	if !stale {
		var err error
		if u, err = q.RecomputeUsage(username); err != nil {
			return err
		}

		if u.Total()+incoming <= limit {
			return nil
		}
	}

	return apperr.QuotaExceeded(limit - u.Total())
}

// Fits reports whether incoming more bytes fit the stored counters. It never
// recomputes, so it is safe to call once new files are already on disk.
func (q *Quota) Fits(username string, kind model.Kind, incoming int64) bool {
	if !kind.Metered() {
		return true
	}

	limit, unlimited := q.Limit(username)
	if unlimited {
		return true
	}

	u, _ := q.cached(username)
	return u.Total()+incoming <= limit
}

func (q *Quota) AddUsage(username string, kind model.Kind, n int64) error {
	return q.ChangeUsage(username, kind, n)
}

// ChangeUsage adjusts the cached counter of kind by delta, never going below
// zero. Without a usage file the counters are rebuilt from disk instead,
// which already includes the change.
func (q *Quota) ChangeUsage(username string, kind model.Kind, delta int64) error {
	if !kind.Metered() || delta == 0 {
		return nil
	}

	unlock := q.locks.Lock(username)
	defer unlock()

	var u model.Usage
	if err := storage.ReadJSON(q.layout.UsageFile(username), &u); err != nil {
		_, err = q.recompute(username)
		return err
	}

	switch kind {
	case model.KindUploads:
		u.UploadsBytes = max(0, u.UploadsBytes+delta)
	case model.KindGenerated:
		u.GeneratedBytes = max(0, u.GeneratedBytes+delta)
	}
	u.UpdatedAt = time.Now().UTC()

	if err := storage.WriteJSONAtomic(q.layout.UsageFile(username), u); err != nil {
		return fmt.Errorf("failed to write usage record, %w", err)
	}

	return nil
}

// Summary returns the usage and the limit that applies to it
func (q *Quota) Summary(username string, recompute bool) (model.Usage, model.Quota, error) {
	var (
		u   model.Usage
		err error
	)

	if recompute {
		u, err = q.RecomputeUsage(username)
	} else {
		u, err = q.Usage(username)
	}
	if err != nil {
		return model.Usage{}, model.Quota{}, err
	}

	limit, unlimited := q.Limit(username)
	if unlimited {
		return u, model.Quota{Unlimited: true}, nil
	}

	return u, model.Quota{
		Bytes:     limit,
		Remaining: max(0, limit-u.Total()),
	}, nil
}
