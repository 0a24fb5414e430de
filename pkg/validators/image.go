package validators

import (
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrImageEmpty       = errors.New("no image data provided")
	ErrImageTooLarge    = errors.New("image too large")
	ErrImageUnsupported = errors.New("unsupported image type")
)

// ImageValidator checks that data really is an image and that it fits into
// maxSize bytes. The declared type from a data URL is easy to spoof so the
// bytes themselves are sniffed. Returns the detected MIME type.
func ImageValidator(data []byte, maxSize int64) (string, error) {
	if len(data) == 0 {
		return "", ErrImageEmpty
	}

	if maxSize > 0 && int64(len(data)) > maxSize {
		return "", ErrImageTooLarge
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", ErrImageUnsupported
	}

	return strings.SplitN(mime.String(), ";", 2)[0], nil
}
