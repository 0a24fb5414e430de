package validators

import (
	"errors"
	"slices"
)

var ValidFavoriteTypes = []string{"presets", "chats", "collections"}

var ErrFavoriteTypeInvalid = errors.New("favorite type must be one of presets, chats or collections")

func FavoriteTypeValidator(t string) error {
	if !slices.Contains(ValidFavoriteTypes, t) {
		return ErrFavoriteTypeInvalid
	}

	return nil
}
