package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"banana/storage-api/internal/apperr"
	"banana/storage-api/internal/materialize"
	"banana/storage-api/internal/storage"
	"banana/storage-api/pkg/validators"

	"go.uber.org/zap"
)

// Favorites keeps one JSON array per favorite type. Newest items come first.
type Favorites struct {
	layout       storage.Layout
	materializer *materialize.Materializer
	mirror       Mirror
	locks        keyedMutex
}

func NewFavorites(l storage.Layout, m *materialize.Materializer, mirror Mirror) *Favorites {
	if mirror == nil {
		mirror = NopMirror{}
	}

	return &Favorites{
		layout:       l,
		materializer: m,
		mirror:       mirror,
	}
}

func validType(favType string) error {
	if err := validators.FavoriteTypeValidator(favType); err != nil {
		return apperr.Validation(err.Error())
	}

	return nil
}

// IDString gives ids a single comparable form, so 17 and "17" match
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

func itemID(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return ""
	}

	return IDString(obj["id"])
}

// List returns the stored items. A missing or unreadable file is an empty
// collection.
func (s *Favorites) List(username, favType string) ([]any, error) {
	if err := validType(favType); err != nil {
		return nil, err
	}

	return s.read(username, favType), nil
}

func (s *Favorites) read(username, favType string) []any {
	data, err := os.ReadFile(s.layout.CollectionFile(username, favType))
	if err != nil {
		return []any{}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil || items == nil {
		zap.L().Warn("Unreadable favorites file, treating it as empty",
			zap.String("username", username),
			zap.String("type", favType),
			zap.Error(err))
		return []any{}
	}

	return items
}

// Append inserts item at the front of the collection
func (s *Favorites) Append(username, favType string, item any) error {
	if err := validType(favType); err != nil {
		return err
	}

	unlock := s.locks.Lock(username + "/" + favType)
	defer unlock()

	items := append([]any{item}, s.read(username, favType)...)

	if err := storage.WriteJSONAtomic(s.layout.CollectionFile(username, favType), items); err != nil {
		return fmt.Errorf("failed to write favorites, %w", err)
	}

	return nil
}

// Remove drops every item whose id matches. Removing an unknown id is not an
// error. Reports whether anything was removed.
func (s *Favorites) Remove(username, favType, id string) (bool, error) {
	if err := validType(favType); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(username + "/" + favType)
	defer unlock()

	items := s.read(username, favType)
	kept := make([]any, 0, len(items))
	for _, it := range items {
		if itemID(it) != id {
			kept = append(kept, it)
		}
	}

	if len(kept) == len(items) {
		return false, nil
	}

	if err := storage.WriteJSONAtomic(s.layout.CollectionFile(username, favType), kept); err != nil {
		return false, fmt.Errorf("failed to write favorites, %w", err)
	}

	return true, nil
}

// Save assigns an id when the item has none, stores every embedded image
// under the favorite's directory and appends the rewritten item
func (s *Favorites) Save(ctx context.Context, username, favType string, item any) (map[string]any, error) {
	if err := validType(favType); err != nil {
		return nil, err
	}

	obj, ok := item.(map[string]any)
	if !ok {
		return nil, apperr.Validation("Item must be a JSON object")
	}

	if IDString(obj["id"]) == "" {
		obj["id"] = json.Number(strconv.FormatInt(time.Now().UnixMilli(), 10))
	}

	rawID := obj["id"]
	id := IDString(rawID)

	out, err := s.materializer.Materialize(ctx, obj, materialize.Target{
		Username:     username,
		FavoriteType: favType,
		FavoriteID:   id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store favorite media, %w", err)
	}

	obj = out.(map[string]any)
	if _, ok := obj["id"]; !ok {
		// The whole item was an inline image part and got replaced
		obj["id"] = rawID
	}

	if err := s.Append(username, favType, obj); err != nil {
		return nil, err
	}

	zap.L().Debug("Favorite saved", zap.String("username", username), zap.String("type", favType), zap.String("id", id))

	return obj, nil
}

// Delete removes the item and the media stored for it. Media is left alone
// when no item had the id.
func (s *Favorites) Delete(ctx context.Context, username, favType, id string) error {
	removed, err := s.Remove(username, favType, id)
	if err != nil || !removed {
		return err
	}

	dir := s.layout.FavoriteDir(username, favType, id)
	mirrorDeleteTree(ctx, s.mirror, dir)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete favorite media, %w", err)
	}

	return nil
}
