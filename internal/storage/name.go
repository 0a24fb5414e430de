package storage

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

var extByMime = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// ExtForMime returns the file extension (without dot) used for a MIME type
func ExtForMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	if ext, ok := extByMime[mime]; ok {
		return ext
	}

	return "bin"
}

// MimeForExt is the reverse of ExtForMime, empty for unknown extensions
func MimeForExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		ext = "jpg"
	}

	for m, e := range extByMime {
		if e == ext {
			return m
		}
	}

	return ""
}

// NewFileName builds "<epochMillis>_<12 hex chars>.<ext>". The timestamp plus
// 6 random bytes is unique enough that no locking is needed.
func NewFileName(ext string) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}

	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(b) + "." + ext, nil
}
