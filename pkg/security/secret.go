package security

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const secretSize = 32

// LoadSecret resolves the token signing secret. An explicit override wins,
// then a secret persisted at path, otherwise a new one is generated and
// written to path so tokens survive restarts.
func LoadSecret(override, path string) ([]byte, error) {
	if override != "" {
		return []byte(override), nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		s := strings.TrimSpace(string(data))
		if s != "" {
			secret, err := hex.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("secret file %s is not hex encoded, %w", path, err)
			}
			return secret, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read secret file, %w", err)
	}

	secret, err := genRandByt(secretSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret, %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret dir, %w", err)
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist secret, %w", err)
	}

	zap.L().Info("Generated a new token secret", zap.String("path", path))

	return secret, nil
}
