package util

import (
	"encoding/base64"
	"strings"
)

// ParseDataURL decodes a base64 data URL ("data:<mime>[;params];base64,<data>").
// ok is false for anything malformed, non-base64 or empty.
func ParseDataURL(s string) (mime string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return "", nil, false
	}

	meta, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false
	}

	mime = strings.SplitN(strings.TrimSuffix(meta, ";base64"), ";", 2)[0]
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return "", nil, false
	}

	data, ok = DecodeBase64(payload)
	if !ok {
		return "", nil, false
	}

	return mime, data, true
}

// DecodeBase64 accepts padded and unpadded standard base64 with any
// whitespace the client may have wrapped it in
func DecodeBase64(s string) ([]byte, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, false
		}
	}

	if len(data) == 0 {
		return nil, false
	}

	return data, true
}
