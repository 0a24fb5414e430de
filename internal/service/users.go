// Package service implements the user store, quota accounting, image and
// favorite storage on top of the per-user data directory
package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"banana/storage-api/internal/apperr"
	"banana/storage-api/internal/model"
	"banana/storage-api/internal/storage"
	"banana/storage-api/pkg/security"
	"banana/storage-api/pkg/validators"

	"go.uber.org/zap"
)

const msgBadCredentials = "Invalid username or password"

type Users struct {
	layout   storage.Layout
	hasher   *security.PBKDF2Hash
	secret   []byte
	tokenTTL time.Duration
	admins   []string
	locks    keyedMutex
}

// NewUsers creates the user store. When admins is not empty exactly those
// usernames become admins on registration, otherwise the first user to
// register does.
func NewUsers(l storage.Layout, secret []byte, tokenTTL time.Duration, admins []string) *Users {
	return &Users{
		layout:   l,
		hasher:   security.New(),
		secret:   secret,
		tokenTTL: tokenTTL,
		admins:   admins,
	}
}

func (s *Users) Register(username, password string) (model.User, error) {
	if err := validators.UsernameValidator(username); err != nil {
		return model.User{}, apperr.Validation(err.Error())
	}

	if err := validators.PasswordValidator(password); err != nil {
		return model.User{}, apperr.Validation(err.Error())
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	if _, err := os.Stat(s.layout.UserDir(username)); err == nil {
		return model.User{}, apperr.Conflict("Username already taken")
	}

	isAdmin, err := s.shouldBeAdmin(username)
	if err != nil {
		return model.User{}, err
	}

	salt, hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password, %w", err)
	}

	dirs := []string{
		s.layout.KindDir(username, model.KindUploads),
		s.layout.KindDir(username, model.KindGenerated),
		s.layout.FavoritesDir(username),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return model.User{}, fmt.Errorf("failed to create user directory, %w", err)
		}
	}

	now := time.Now().UTC()
	u := model.User{
		Username:     username,
		PasswordSalt: salt,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := storage.WriteJSONAtomic(s.layout.UserFile(username), u); err != nil {
		return model.User{}, fmt.Errorf("failed to write user record, %w", err)
	}

	if err := storage.WriteJSONAtomic(s.layout.UsageFile(username), model.Usage{UpdatedAt: now}); err != nil {
		return model.User{}, fmt.Errorf("failed to write usage record, %w", err)
	}

	zap.L().Info("New user registered", zap.String("username", username), zap.Bool("admin", isAdmin))

	return u, nil
}

func (s *Users) shouldBeAdmin(username string) (bool, error) {
	if len(s.admins) > 0 {
		return slices.Contains(s.admins, username), nil
	}

	entries, err := os.ReadDir(s.layout.UsersDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to list users, %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			return false, nil
		}
	}

	return true, nil
}

// Login checks the credentials and returns a signed token. Unknown users and
// wrong passwords get the same error.
func (s *Users) Login(username, password string) (string, model.User, error) {
	if username == "" || password == "" {
		return "", model.User{}, apperr.Validation("Username and password are required")
	}

	if validators.UsernameValidator(username) != nil {
		return "", model.User{}, apperr.Auth(msgBadCredentials)
	}

	u, err := s.Get(username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", model.User{}, apperr.Auth(msgBadCredentials)
		}
		return "", model.User{}, err
	}

	ok, err := s.hasher.VerifyPasswd(password, u.PasswordSalt, u.PasswordHash)
	if err != nil {
		return "", model.User{}, fmt.Errorf("failed to verify password, %w", err)
	}
	if !ok {
		return "", model.User{}, apperr.Auth(msgBadCredentials)
	}

	token, err := security.CreateToken(s.secret, security.TokenPayload{
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		Exp:      time.Now().Add(s.tokenTTL).UnixMilli(),
	})
	if err != nil {
		return "", model.User{}, fmt.Errorf("failed to create token, %w", err)
	}

	return token, u, nil
}

func (s *Users) Get(username string) (model.User, error) {
	if validators.UsernameValidator(username) != nil {
		return model.User{}, apperr.NotFound("User not found")
	}

	var u model.User
	if err := storage.ReadJSON(s.layout.UserFile(username), &u); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.User{}, apperr.NotFound("User not found")
		}
		return model.User{}, fmt.Errorf("failed to read user record, %w", err)
	}

	return u, nil
}

// IsAdmin reads the flag from disk, the token claim may be stale
func (s *Users) IsAdmin(username string) bool {
	u, err := s.Get(username)
	return err == nil && u.IsAdmin
}

func (s *Users) Promote(username string) (model.User, error) {
	unlock := s.locks.Lock(username)
	defer unlock()

	u, err := s.Get(username)
	if err != nil {
		return model.User{}, err
	}

	u.IsAdmin = true
	u.UpdatedAt = time.Now().UTC()

	if err := storage.WriteJSONAtomic(s.layout.UserFile(username), u); err != nil {
		return model.User{}, fmt.Errorf("failed to write user record, %w", err)
	}

	zap.L().Info("User promoted to admin", zap.String("username", username))

	return u, nil
}

// List returns every user with a readable record, sorted by username
func (s *Users) List() ([]model.Public, error) {
	entries, err := os.ReadDir(s.layout.UsersDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Public{}, nil
		}
		return nil, fmt.Errorf("failed to list users, %w", err)
	}

	users := []model.Public{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		u, err := s.Get(e.Name())
		if err != nil {
			zap.L().Warn("Skipping unreadable user record", zap.String("username", e.Name()), zap.Error(err))
			continue
		}

		users = append(users, u.Public())
	}

	return users, nil
}
