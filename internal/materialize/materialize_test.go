package materialize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"banana/storage-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

var target = Target{Username: "alice", FavoriteType: "presets", FavoriteID: "1700000000000"}

func setup(t *testing.T) (*Materializer, storage.Layout) {
	t.Helper()

	l := storage.Layout{Root: t.TempDir()}
	return New(l, NewFetcher(1<<20, 3, 5*time.Second)), l
}

// readURI maps a /files/alice/... URI back to the stored bytes
func readURI(t *testing.T, l storage.Layout, uri string) []byte {
	t.Helper()

	rel, ok := strings.CutPrefix(uri, storage.URLPrefix("alice"))
	require.True(t, ok, uri)

	data, err := os.ReadFile(filepath.Join(l.UserDir("alice"), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return data
}

func favoriteFiles(t *testing.T, l storage.Layout) []os.DirEntry {
	t.Helper()

	entries, err := os.ReadDir(l.FavoriteDir("alice", target.FavoriteType, target.FavoriteID))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func decode(t *testing.T, s string) any {
	t.Helper()

	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestMaterializeDataURLRoundTrip(t *testing.T) {
	m, l := setup(t)
	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)

	item := decode(t, `{"id": 1, "name": "sunset", "image": "data:image/png;base64,`+pixelPNG+`"}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	obj := out.(map[string]any)
	assert.Equal(t, "sunset", obj["name"])

	uri := obj["image"].(string)
	assert.True(t, strings.HasPrefix(uri, "/files/alice/favorites/presets/1700000000000/"), uri)
	assert.True(t, strings.HasSuffix(uri, ".png"), uri)
	assert.Equal(t, raw, readURI(t, l, uri))
}

func TestMaterializeDeduplicates(t *testing.T) {
	m, l := setup(t)
	img := "data:image/png;base64," + pixelPNG

	item := decode(t, `{"a": "`+img+`", "nested": [{"b": "`+img+`"}, "`+img+`"]}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	obj := out.(map[string]any)
	nested := obj["nested"].([]any)

	assert.Equal(t, obj["a"], nested[0].(map[string]any)["b"])
	assert.Equal(t, obj["a"], nested[1])
	assert.Len(t, favoriteFiles(t, l), 1)
}

func TestMaterializePackedAsset(t *testing.T) {
	m, l := setup(t)

	item := decode(t, `{"assets": [{"name": "ref", "mime": "image/png", "data": "`+pixelPNG+`"}]}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	asset := out.(map[string]any)["assets"].([]any)[0].(map[string]any)
	assert.Equal(t, "ref", asset["name"])
	assert.Equal(t, "image/png", asset["mime"])
	assert.NotContains(t, asset, "data")

	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	assert.Equal(t, raw, readURI(t, l, asset["file_uri"].(string)))
}

func TestMaterializePackedAssetWithURIIsLeftAlone(t *testing.T) {
	m, l := setup(t)

	item := decode(t, `{"mime": "image/png", "data": "`+pixelPNG+`", "file_uri": "/files/alice/x.png"}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	assert.Equal(t, pixelPNG, out.(map[string]any)["data"])
	assert.Empty(t, favoriteFiles(t, l))
}

func TestMaterializeInlineImage(t *testing.T) {
	m, _ := setup(t)

	for _, key := range []string{"inline_data", "inlineData", "inLineData"} {
		item := decode(t, `{"parts": [{"text": "hi"}, {"`+key+`": {"data": "`+pixelPNG+`"}}]}`)

		out, err := m.Materialize(context.Background(), item, target)
		require.NoError(t, err)

		parts := out.(map[string]any)["parts"].([]any)
		assert.Equal(t, map[string]any{"text": "hi"}, parts[0])

		part := parts[1].(map[string]any)
		require.Len(t, part, 1, key)

		fileData := part["file_data"].(map[string]any)
		assert.Equal(t, "image/png", fileData["mime_type"])
		assert.True(t, strings.HasPrefix(fileData["file_uri"].(string), "/files/alice/favorites/"))
	}
}

func TestMaterializeOwnFileSnapshot(t *testing.T) {
	m, l := setup(t)

	src := filepath.Join(l.UserDir("alice"), "uploads", "orig.webp")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("webp bytes"), 0o644))

	item := decode(t, `{"ref": "/files/alice/uploads/orig.webp", "again": "/files/alice/uploads/orig.webp"}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	obj := out.(map[string]any)
	uri := obj["ref"].(string)
	assert.NotEqual(t, "/files/alice/uploads/orig.webp", uri)
	assert.True(t, strings.HasSuffix(uri, ".webp"))
	assert.Equal(t, uri, obj["again"])
	assert.Equal(t, []byte("webp bytes"), readURI(t, l, uri))

	// The snapshot must survive deletion of the original
	require.NoError(t, os.Remove(src))
	assert.Equal(t, []byte("webp bytes"), readURI(t, l, uri))
}

func TestMaterializeOwnFileMissingOrEscaping(t *testing.T) {
	m, l := setup(t)

	const refs = `["/files/alice/uploads/missing.png", "/files/alice/../bob/secret.png", "/files/bob/uploads/x.png"]`

	out, err := m.Materialize(context.Background(), decode(t, refs), target)
	require.NoError(t, err)

	assert.Equal(t, decode(t, refs), out)
	assert.Empty(t, favoriteFiles(t, l))
}

func TestMaterializeOwnFileSkipsRecords(t *testing.T) {
	m, l := setup(t)

	dir := l.UserDir("alice")
	require.NoError(t, os.MkdirAll(l.FavoritesDir("alice"), 0o755))
	for _, name := range []string{"user.json", "usage.json", "quota.json", filepath.Join("favorites", "chats.json")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{"passwordHash":"x"}`), 0o644))
	}

	const refs = `["/files/alice/user.json", "/files/alice/usage.json", "/files/alice/quota.json", "/files/alice/favorites/chats.json", "/files/alice/uploads/../user.json"]`

	out, err := m.Materialize(context.Background(), decode(t, refs), target)
	require.NoError(t, err)

	assert.Equal(t, decode(t, refs), out)
	assert.Empty(t, favoriteFiles(t, l))
}

func TestMaterializeRemoteURL(t *testing.T) {
	raw, _ := base64.StdEncoding.DecodeString(pixelPNG)
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			hits.Add(1)
			w.Header().Set("Content-Type", "image/png")
			w.Write(raw)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m, l := setup(t)

	item := decode(t, `{
		"a": "`+srv.URL+`/img.png",
		"b": "`+srv.URL+`/img.png",
		"page": "`+srv.URL+`/page",
		"loop": "`+srv.URL+`/loop",
		"missing": "`+srv.URL+`/nope"
	}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	obj := out.(map[string]any)
	uri := obj["a"].(string)
	assert.True(t, strings.HasPrefix(uri, "/files/alice/favorites/"), uri)
	assert.Equal(t, uri, obj["b"])
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, raw, readURI(t, l, uri))

	assert.Equal(t, srv.URL+"/page", obj["page"])
	assert.Equal(t, srv.URL+"/loop", obj["loop"])
	assert.Equal(t, srv.URL+"/nope", obj["missing"])
}

func TestFetcherLimits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, _, err := NewFetcher(1024, 3, time.Second).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	data, mime, err := NewFetcher(4096, 3, time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Len(t, data, 2048)
}

func TestMaterializeBadContentPassesThrough(t *testing.T) {
	m, l := setup(t)

	item := decode(t, `{
		"broken": "data:image/png;base64,!!!not base64!!!",
		"text": "data:text/plain;base64,aGVsbG8=",
		"asset": {"mime_type": "image/png", "data": "%%%"},
		"plain": "hello",
		"n": 3,
		"ok": true,
		"nothing": null
	}`)

	out, err := m.Materialize(context.Background(), item, target)
	require.NoError(t, err)

	assert.Equal(t, decode(t, `{
		"broken": "data:image/png;base64,!!!not base64!!!",
		"text": "data:text/plain;base64,aGVsbG8=",
		"asset": {"mime_type": "image/png", "data": "%%%"},
		"plain": "hello",
		"n": 3,
		"ok": true,
		"nothing": null
	}`), out)
	assert.Empty(t, favoriteFiles(t, l))
}

func TestMaterializeCallsOnStore(t *testing.T) {
	m, _ := setup(t)

	var stored []string
	m.OnStore = func(_ context.Context, path, mime string) {
		stored = append(stored, mime)
	}

	_, err := m.Materialize(context.Background(), decode(t, `["data:image/png;base64,`+pixelPNG+`"]`), target)
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png"}, stored)
}
