package materialize

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"banana/storage-api/internal/storage"
	"banana/storage-api/pkg/util"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// outcome is the result of a transform. A transform that can't use its input
// reports unchanged instead of failing, the caller then keeps the original.
type outcome struct {
	value   any
	changed bool
}

var unchanged = outcome{}

func replaced(v any) outcome {
	return outcome{value: v, changed: true}
}

type objectMatcher struct {
	name  string
	match func(obj map[string]any) bool
	apply func(r *run, obj map[string]any) (outcome, error)
}

type stringMatcher struct {
	name  string
	match func(r *run, s string) bool
	apply func(r *run, s string) (outcome, error)
}

// Evaluated in order at every object node
var objectMatchers = []objectMatcher{
	{name: "packed_asset", match: isPackedAsset, apply: applyPackedAsset},
	{name: "inline_image", match: isInlineImage, apply: applyInlineImage},
}

// Evaluated in order at every string leaf, the first match decides
var stringMatchers = []stringMatcher{
	{name: "data_url", match: isImageDataURL, apply: applyDataURL},
	{name: "own_file", match: isOwnFile, apply: applyOwnFile},
	{name: "remote_url", match: isRemoteURL, apply: applyRemoteURL},
}

var inlineKeys = []string{"inline_data", "inlineData", "inLineData"}

func stringField(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			return s, true
		}
	}

	return "", false
}

// {mime|mime_type: "image/...", data: "<base64>"} without a file_uri yet
func isPackedAsset(obj map[string]any) bool {
	mime, ok := stringField(obj, "mime", "mime_type")
	if !ok || !strings.HasPrefix(mime, "image/") {
		return false
	}

	if _, ok := obj["data"].(string); !ok {
		return false
	}

	_, hasURI := obj["file_uri"]
	_, hasURICamel := obj["fileUri"]

	return !hasURI && !hasURICamel
}

func applyPackedAsset(r *run, obj map[string]any) (outcome, error) {
	mime, _ := stringField(obj, "mime", "mime_type")
	data := obj["data"].(string)

	src := data
	if !strings.HasPrefix(data, "data:") {
		src = "data:" + mime + ";base64," + data
	}

	uri, ok, err := r.dataURL(src)
	if err != nil || !ok {
		return unchanged, err
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != "data" {
			out[k] = v
		}
	}
	out["file_uri"] = uri

	return replaced(out), nil
}

func inlinePart(obj map[string]any) (map[string]any, bool) {
	for _, k := range inlineKeys {
		inline, ok := obj[k].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := inline["data"].(string); ok {
			return inline, true
		}
	}

	return nil, false
}

// A provider part carrying {inline_data: {mime_type, data}}
func isInlineImage(obj map[string]any) bool {
	_, ok := inlinePart(obj)
	return ok
}

// The whole part is replaced by a file_data reference, the shape providers
// accept for images they have to fetch
func applyInlineImage(r *run, obj map[string]any) (outcome, error) {
	inline, _ := inlinePart(obj)

	mime, ok := stringField(inline, "mime_type", "mimeType")
	if !ok || mime == "" {
		mime = "image/png"
	}

	uri, ok, err := r.dataURL("data:" + mime + ";base64," + inline["data"].(string))
	if err != nil || !ok {
		return unchanged, err
	}

	return replaced(map[string]any{
		"file_data": map[string]any{
			"mime_type": mime,
			"file_uri":  uri,
		},
	}), nil
}

func isImageDataURL(_ *run, s string) bool {
	return strings.HasPrefix(s, "data:image/") && strings.Contains(s, ";base64,")
}

func applyDataURL(r *run, s string) (outcome, error) {
	uri, ok, err := r.dataURL(s)
	if err != nil || !ok {
		return unchanged, err
	}

	return replaced(uri), nil
}

// dataURL stores the image in a data URL once per run. ok is false when the
// URL doesn't hold a decodable image.
func (r *run) dataURL(s string) (uri string, ok bool, err error) {
	if uri, ok := r.memo[s]; ok {
		return uri, true, nil
	}

	mime, data, ok := util.ParseDataURL(s)
	if !ok || !strings.HasPrefix(mime, "image/") {
		return "", false, nil
	}

	uri, err = r.store(data, mime)
	if err != nil {
		return "", false, err
	}

	r.memo[s] = uri
	return uri, true, nil
}

func isOwnFile(r *run, s string) bool {
	return strings.HasPrefix(s, r.prefix)
}

// Files referenced by a favorite are snapshotted into the favorite's own
// directory so the favorite survives deletion of the original
func applyOwnFile(r *run, s string) (outcome, error) {
	if uri, ok := r.memo[s]; ok {
		return replaced(uri), nil
	}

	rel := strings.TrimPrefix(s, r.prefix)
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}

	rel, err := url.PathUnescape(rel)
	if err != nil || !storage.Servable(rel) {
		return unchanged, nil
	}

	src, err := storage.Resolve(r.userRoot, rel)
	if err != nil {
		return unchanged, nil
	}

	// Already part of this favorite, nothing to snapshot
	if strings.HasPrefix(src, r.dir+string(filepath.Separator)) {
		return unchanged, nil
	}

	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return unchanged, nil
	}

	ext := filepath.Ext(src)
	mime := storage.MimeForExt(ext)
	if ext == "" {
		if detected, err := mimetype.DetectFile(src); err == nil {
			ext = detected.Extension()
			mime = detected.String()
		}
	}

	name, err := storage.NewFileName(ext)
	if err != nil {
		return unchanged, err
	}

	dst := filepath.Join(r.dir, name)
	if _, err := storage.CopyFile(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return unchanged, nil
		}
		return unchanged, err
	}

	uri, err := r.stored(dst, mime)
	if err != nil {
		return unchanged, err
	}

	r.memo[s] = uri
	return replaced(uri), nil
}

func isRemoteURL(_ *run, s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Remote images are fetched and stored. Any failure keeps the URL as is so
// a single dead link doesn't fail the whole favorite.
func applyRemoteURL(r *run, s string) (outcome, error) {
	if uri, ok := r.memo[s]; ok {
		return replaced(uri), nil
	}

	if r.m.fetcher == nil {
		return unchanged, nil
	}

	data, mime, err := r.m.fetcher.Fetch(r.ctx, s)
	if err != nil {
		zap.L().Debug("Keeping remote URL", zap.String("url", s), zap.Error(err))
		return unchanged, nil
	}

	uri, err := r.store(data, mime)
	if err != nil {
		return unchanged, err
	}

	r.memo[s] = uri
	return replaced(uri), nil
}
