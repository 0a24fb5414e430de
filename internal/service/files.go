package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"banana/storage-api/internal/apperr"
	"banana/storage-api/internal/model"
	"banana/storage-api/internal/storage"
	"banana/storage-api/pkg/util"
	"banana/storage-api/pkg/validators"

	"go.uber.org/zap"
)

// Files stores images in the metered namespaces (uploads, generated)
type Files struct {
	layout  storage.Layout
	quota   *Quota
	thumbs  *Thumbnailer
	mirror  Mirror
	maxSize int64
}

// NewFiles creates the image store. thumbs may be nil, in which case only
// client provided thumbnails are kept.
func NewFiles(l storage.Layout, q *Quota, thumbs *Thumbnailer, m Mirror, maxSize int64) *Files {
	if m == nil {
		m = NopMirror{}
	}

	return &Files{
		layout:  l,
		quota:   q,
		thumbs:  thumbs,
		mirror:  m,
		maxSize: maxSize,
	}
}

func parseKind(kind string) (model.Kind, error) {
	k := model.Kind(kind)
	if !k.Metered() {
		return "", apperr.Validation("Kind must be uploads or generated")
	}

	return k, nil
}

// SaveDataURL decodes an image data URL and stores it in kind, together with
// a thumbnail when one is provided or can be generated
func (s *Files) SaveDataURL(ctx context.Context, username, kind, dataURL, thumbDataURL string) (model.StoredFile, error) {
	k, err := parseKind(kind)
	if err != nil {
		return model.StoredFile{}, err
	}

	declared, data, ok := util.ParseDataURL(dataURL)
	if !ok || !strings.HasPrefix(declared, "image/") {
		return model.StoredFile{}, apperr.Validation("Invalid dataUrl")
	}

	mime, err := validators.ImageValidator(data, s.maxSize)
	if err != nil {
		return model.StoredFile{}, apperr.Validation(err.Error())
	}

	var thumb []byte
	if thumbDataURL != "" {
		if tm, td, ok := util.ParseDataURL(thumbDataURL); ok && strings.HasPrefix(tm, "image/") {
			if _, err := validators.ImageValidator(td, s.maxSize); err == nil {
				thumb = td
			}
		}
	}

	if err := s.quota.AssertHasSpace(username, k, int64(len(data)+len(thumb))); err != nil {
		return model.StoredFile{}, err
	}

	ext := storage.ExtForMime(mime)
	name, err := storage.NewFileName(ext)
	if err != nil {
		return model.StoredFile{}, fmt.Errorf("failed to generate file name, %w", err)
	}

	p := filepath.Join(s.layout.KindDir(username, k), name)
	if err := storage.WriteFileAtomic(p, data, 0o644); err != nil {
		return model.StoredFile{}, fmt.Errorf("failed to write image, %w", err)
	}
	s.mirror.Put(ctx, p)

	thumbPath := filepath.Join(s.layout.ThumbDir(username, k), name)
	thumbSize := s.writeThumb(ctx, username, k, p, thumbPath, thumb, ext, int64(len(data)))

	if err := s.quota.AddUsage(username, k, int64(len(data))+thumbSize); err != nil {
		zap.L().Error("Failed to update usage", zap.String("username", username), zap.Error(err))
	}

	f := model.StoredFile{
		Name:      name,
		Kind:      k,
		MimeType:  mime,
		Size:      int64(len(data)),
		ThumbSize: thumbSize,
		CreatedAt: createdAt(name, p),
	}
	f.URL, _ = s.layout.URL(username, p)
	if thumbSize > 0 {
		f.ThumbURL, _ = s.layout.URL(username, thumbPath)
	}

	return f, nil
}

// writeThumb is best-effort, the stored size is returned (0 for no thumb).
// A generated thumbnail that doesn't fit next to the image is dropped.
func (s *Files) writeThumb(ctx context.Context, username string, k model.Kind, src, dst string, thumb []byte, ext string, size int64) int64 {
	switch {
	case thumb != nil:
		if err := storage.WriteFileAtomic(dst, thumb, 0o644); err != nil {
			zap.L().Warn("Failed to write thumbnail", zap.String("username", username), zap.Error(err))
			return 0
		}

	case s.thumbs != nil && ext != "bin":
		if err := s.thumbs.Make(ctx, username, src, dst); err != nil {
			zap.L().Warn("Failed to generate thumbnail", zap.String("username", username), zap.Error(err))
			os.Remove(dst)
			return 0
		}

		if !s.quota.Fits(username, k, size+storage.FileSize(dst)) {
			zap.L().Debug("Dropping thumbnail over quota", zap.String("username", username))
			os.Remove(dst)
			return 0
		}

	default:
		return 0
	}

	s.mirror.Put(ctx, dst)

	return storage.FileSize(dst)
}

// createdAt takes the timestamp from the generated file name, falling back
// to the modification time for files that were put there by hand
func createdAt(name, p string) int64 {
	if ts, _, ok := strings.Cut(name, "_"); ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return ms
		}
	}

	if info, err := os.Stat(p); err == nil {
		return info.ModTime().UnixMilli()
	}

	return 0
}

// List returns the images in kind, newest first
func (s *Files) List(username, kind string) ([]model.StoredFile, error) {
	k, err := parseKind(kind)
	if err != nil {
		return nil, err
	}

	dir := s.layout.KindDir(username, k)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.StoredFile{}, nil
		}
		return nil, fmt.Errorf("failed to list images, %w", err)
	}

	files := []model.StoredFile{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		p := filepath.Join(dir, e.Name())
		f := model.StoredFile{
			Name:      e.Name(),
			Kind:      k,
			MimeType:  storage.MimeForExt(filepath.Ext(e.Name())),
			Size:      info.Size(),
			CreatedAt: createdAt(e.Name(), p),
		}
		f.URL, _ = s.layout.URL(username, p)

		thumbPath := filepath.Join(s.layout.ThumbDir(username, k), e.Name())
		if ts := storage.FileSize(thumbPath); ts > 0 {
			f.ThumbSize = ts
			f.ThumbURL, _ = s.layout.URL(username, thumbPath)
		}

		files = append(files, f)
	}

	slices.SortStableFunc(files, func(a, b model.StoredFile) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		default:
			return strings.Compare(b.Name, a.Name)
		}
	})

	return files, nil
}

// Delete removes one image and its thumbnail
func (s *Files) Delete(ctx context.Context, username, kind, name string) error {
	k, err := parseKind(kind)
	if err != nil {
		return err
	}

	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return apperr.Validation("Invalid file name")
	}

	p, err := storage.Resolve(s.layout.KindDir(username, k), name)
	if err != nil {
		return apperr.Validation("Invalid file name")
	}

	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return apperr.NotFound("File not found")
	}

	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to delete image, %w", err)
	}
	s.mirror.Delete(ctx, p)

	freed := info.Size()

	thumbPath := filepath.Join(s.layout.ThumbDir(username, k), name)
	if ts := storage.FileSize(thumbPath); ts > 0 {
		if err := os.Remove(thumbPath); err == nil {
			freed += ts
			s.mirror.Delete(ctx, thumbPath)
		}
	}

	if err := s.quota.ChangeUsage(username, k, -freed); err != nil {
		zap.L().Error("Failed to update usage", zap.String("username", username), zap.Error(err))
	}

	return nil
}

// Clear removes every image in kind and returns how many were deleted
func (s *Files) Clear(ctx context.Context, username, kind string) (int, error) {
	k, err := parseKind(kind)
	if err != nil {
		return 0, err
	}

	files, err := s.List(username, kind)
	if err != nil {
		return 0, err
	}

	dir := s.layout.KindDir(username, k)
	mirrorDeleteTree(ctx, s.mirror, dir)

	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("failed to clear images, %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to recreate image directory, %w", err)
	}

	if _, err := s.quota.RecomputeUsage(username); err != nil {
		return 0, err
	}

	zap.L().Info("Cleared images", zap.String("username", username), zap.String("kind", kind), zap.Int("count", len(files)))

	return len(files), nil
}
