package service

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"banana/storage-api/internal/apperr"
	"banana/storage-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndListImages(t *testing.T) {
	env := newQuotaEnv(t)

	f, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, pixelURL)
	require.NoError(t, err)

	assert.Equal(t, model.KindUploads, f.Kind)
	assert.Equal(t, "image/png", f.MimeType)
	assert.True(t, strings.HasSuffix(f.Name, ".png"))
	assert.Equal(t, "/files/bob/uploads/"+f.Name, f.URL)
	assert.Equal(t, "/files/bob/uploads/thumbs/"+f.Name, f.ThumbURL)
	assert.NotZero(t, f.CreatedAt)

	u, err := env.quota.Usage("bob")
	require.NoError(t, err)
	assert.Equal(t, f.Size+f.ThumbSize, u.UploadsBytes)

	time.Sleep(2 * time.Millisecond)

	second, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, "")
	require.NoError(t, err)
	assert.Empty(t, second.ThumbURL)

	list, err := env.files.List("bob", "uploads")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Name, list[0].Name)
	assert.Equal(t, f.Name, list[1].Name)
	assert.Equal(t, f.ThumbURL, list[1].ThumbURL)

	empty, err := env.files.List("bob", "generated")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSaveDataURLRejectsBadInput(t *testing.T) {
	env := newQuotaEnv(t)

	_, err := env.files.SaveDataURL(bg, "bob", "favorites", pixelURL, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for _, in := range []string{
		"",
		"not a data url",
		"data:image/png;base64,%%%",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,aGVsbG8=", // declared png, actually text
	} {
		_, err := env.files.SaveDataURL(bg, "bob", "uploads", in, "")
		assert.ErrorIs(t, err, apperr.ErrValidation, in)
	}

	list, err := env.files.List("bob", "uploads")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveDataURLQuotaExceeded(t *testing.T) {
	env := newQuotaEnv(t)

	limit := int64(10)
	require.NoError(t, env.quota.SetOverride("bob", &limit))

	_, err := env.files.SaveDataURL(bg, "bob", "generated", pixelURL, "")
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	list, err := env.files.List("bob", "generated")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Admins are not metered
	_, err = env.files.SaveDataURL(bg, "alice", "generated", pixelURL, "")
	assert.NoError(t, err)
}

// fakeFFmpeg writes size zero bytes to its last argument
func fakeFFmpeg(t *testing.T, size int) string {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	bin := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\nhead -c " + strconv.Itoa(size) + " /dev/zero > \"$last\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	return bin
}

func TestGeneratedThumbnailRespectsQuota(t *testing.T) {
	env := newQuotaEnv(t)

	q := NewJobQueue(fakeFFmpeg(t, 1000), 1)
	q.StartWorkerPool()
	defer q.Stop()
	env.files = NewFiles(env.layout, env.quota, NewThumbnailer(q, 64), NopMirror{}, 1<<20)

	limit := int64(500)
	require.NoError(t, env.quota.SetOverride("bob", &limit))

	f, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, "")
	require.NoError(t, err)
	assert.Zero(t, f.ThumbSize)
	assert.Empty(t, f.ThumbURL)

	_, err = os.Stat(filepath.Join(env.layout.ThumbDir("bob", model.KindUploads), f.Name))
	assert.True(t, os.IsNotExist(err))

	u, err := env.quota.Usage("bob")
	require.NoError(t, err)
	assert.Equal(t, f.Size, u.UploadsBytes)
	assert.LessOrEqual(t, u.Total(), limit)

	// With room to spare the generated thumbnail is kept and counted
	limit = 1 << 20
	require.NoError(t, env.quota.SetOverride("bob", &limit))

	g, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), g.ThumbSize)
	assert.NotEmpty(t, g.ThumbURL)

	u, err = env.quota.Usage("bob")
	require.NoError(t, err)
	assert.Equal(t, f.Size+g.Size+1000, u.UploadsBytes)
}

func TestDeleteImage(t *testing.T) {
	env := newQuotaEnv(t)

	f, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, pixelURL)
	require.NoError(t, err)

	require.NoError(t, env.files.Delete(bg, "bob", "uploads", f.Name))

	_, err = os.Stat(filepath.Join(env.layout.KindDir("bob", model.KindUploads), f.Name))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(env.layout.ThumbDir("bob", model.KindUploads), f.Name))
	assert.True(t, os.IsNotExist(err))

	u, err := env.quota.Usage("bob")
	require.NoError(t, err)
	assert.Zero(t, u.Total())

	assert.ErrorIs(t, env.files.Delete(bg, "bob", "uploads", f.Name), apperr.ErrNotFound)

	for _, name := range []string{"", "../user.json", "..", ".hidden", "thumbs"} {
		err := env.files.Delete(bg, "bob", "uploads", name)
		assert.Error(t, err, name)
		assert.NotEqual(t, 500, apperr.Status(err), name)
	}
}

func TestClearImages(t *testing.T) {
	env := newQuotaEnv(t)

	for range 3 {
		_, err := env.files.SaveDataURL(bg, "bob", "generated", pixelURL, pixelURL)
		require.NoError(t, err)
	}
	kept, err := env.files.SaveDataURL(bg, "bob", "uploads", pixelURL, "")
	require.NoError(t, err)

	n, err := env.files.Clear(bg, "bob", "generated")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := env.files.List("bob", "generated")
	require.NoError(t, err)
	assert.Empty(t, list)

	u, err := env.quota.Usage("bob")
	require.NoError(t, err)
	assert.Zero(t, u.GeneratedBytes)
	assert.Equal(t, kept.Size, u.UploadsBytes)
}
