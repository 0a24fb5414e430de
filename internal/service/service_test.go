package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"banana/storage-api/internal/materialize"
	"banana/storage-api/internal/storage"

	"github.com/stretchr/testify/require"
)

const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

var (
	testSecret = []byte("test-secret")
	pixelURL   = "data:image/png;base64," + pixelPNG
)

type testEnv struct {
	layout    storage.Layout
	users     *Users
	quota     *Quota
	files     *Files
	favorites *Favorites
}

func newTestEnv(t *testing.T, admins ...string) *testEnv {
	t.Helper()

	l := storage.Layout{Root: t.TempDir()}
	users := NewUsers(l, testSecret, time.Hour, admins)
	quota := NewQuota(l, users, 1<<20)
	m := materialize.New(l, materialize.NewFetcher(1<<20, 3, 5*time.Second))

	return &testEnv{
		layout:    l,
		users:     users,
		quota:     quota,
		files:     NewFiles(l, quota, nil, NopMirror{}, 1<<20),
		favorites: NewFavorites(l, m, NopMirror{}),
	}
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()

	_, err := e.users.Register(username, "secret123")
	require.NoError(t, err)
}

func writeFile(t *testing.T, p string, size int) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
}

var bg = context.Background()
