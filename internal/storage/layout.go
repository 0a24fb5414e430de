// Package storage maps users, namespaces and favorites onto the data
// directory and contains the filesystem helpers the services share
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"banana/storage-api/internal/model"
)

const (
	userFile     = "user.json"
	usageFile    = "usage.json"
	quotaFile    = "quota.json"
	favoritesDir = "favorites"
	thumbsDir    = "thumbs"
)

// Layout resolves every path below the data directory:
//
//	<root>/users/<username>/user.json
//	<root>/users/<username>/usage.json
//	<root>/users/<username>/quota.json
//	<root>/users/<username>/{uploads,generated}/[thumbs/]<file>
//	<root>/users/<username>/favorites/<type>.json
//	<root>/users/<username>/favorites/<type>/<id>/<file>
type Layout struct {
	Root string
}

func (l Layout) UsersDir() string {
	return filepath.Join(l.Root, "users")
}

func (l Layout) UserDir(username string) string {
	return filepath.Join(l.UsersDir(), username)
}

func (l Layout) UserFile(username string) string {
	return filepath.Join(l.UserDir(username), userFile)
}

func (l Layout) UsageFile(username string) string {
	return filepath.Join(l.UserDir(username), usageFile)
}

func (l Layout) QuotaFile(username string) string {
	return filepath.Join(l.UserDir(username), quotaFile)
}

func (l Layout) KindDir(username string, kind model.Kind) string {
	return filepath.Join(l.UserDir(username), string(kind))
}

func (l Layout) ThumbDir(username string, kind model.Kind) string {
	return filepath.Join(l.KindDir(username, kind), thumbsDir)
}

func (l Layout) FavoritesDir(username string) string {
	return filepath.Join(l.UserDir(username), favoritesDir)
}

func (l Layout) CollectionFile(username, favType string) string {
	return filepath.Join(l.FavoritesDir(username), favType+".json")
}

func (l Layout) FavoriteDir(username, favType, id string) string {
	return filepath.Join(l.FavoritesDir(username), favType, SafeSegment(id))
}

// URLPrefix is the public prefix under which a user's files are served
func URLPrefix(username string) string {
	return "/files/" + username + "/"
}

// URL turns an absolute path inside the user's directory into its public
// URL. ok is false when abs is outside of that directory.
func (l Layout) URL(username, abs string) (u string, ok bool) {
	base, err := filepath.Abs(l.UserDir(username))
	if err != nil {
		return "", false
	}

	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	return URLPrefix(username) + filepath.ToSlash(rel), true
}

// Servable reports whether rel, relative to a user's directory, names stored
// media. Account records and collection files never are.
func Servable(rel string) bool {
	parts := strings.Split(strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(rel)), "/"), "/")

	switch parts[0] {
	case string(model.KindUploads), string(model.KindGenerated):
		return len(parts) >= 2
	case favoritesDir:
		// favorites/<type>/<id>/<file>
		return len(parts) >= 4
	}

	return false
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeSegment makes a client supplied value usable as a single directory name.
// Values that had to be rewritten get a "~" and a hash of the original, so
// two different values never share a directory.
func SafeSegment(s string) string {
	safe := unsafeSegment.ReplaceAllString(s, "_")
	if safe == s && strings.Trim(s, ".") != "" {
		return s
	}

	sum := sha256.Sum256([]byte(s))
	return "_" + safe + "~" + hex.EncodeToString(sum[:8])
}
