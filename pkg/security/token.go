package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

const CookieName = "banana_token"

// TokenPayload is the self-contained body of an auth token. Exp is in unix
// milliseconds, zero means the token never expires.
type TokenPayload struct {
	Username string `json:"u"`
	IsAdmin  bool   `json:"a"`
	Exp      int64  `json:"exp,omitempty"`
}

var b64 = base64.RawURLEncoding

// CreateToken encodes p as "<base64url(json)>.<base64url(hmac)>"
func CreateToken(secret []byte, p TokenPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	encoded := b64.EncodeToString(body)
	return encoded + "." + sign(secret, encoded), nil
}

// VerifyToken returns the payload of a valid token. Any problem with the
// token, including a decode failure, reports false.
func VerifyToken(secret []byte, token string) (TokenPayload, bool) {
	if token == "" {
		return TokenPayload{}, false
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return TokenPayload{}, false
	}

	want := sign(secret, parts[0])
	if !hmac.Equal([]byte(want), []byte(parts[1])) {
		return TokenPayload{}, false
	}

	body, err := b64.DecodeString(parts[0])
	if err != nil {
		return TokenPayload{}, false
	}

	// A present exp is always checked, even when it is 0
	var claims struct {
		TokenPayload
		Exp *int64 `json:"exp"`
	}
	if err := json.Unmarshal(body, &claims); err != nil {
		return TokenPayload{}, false
	}

	p := claims.TokenPayload
	if claims.Exp != nil {
		if *claims.Exp <= time.Now().UnixMilli() {
			return TokenPayload{}, false
		}
		p.Exp = *claims.Exp
	}

	if p.Username == "" {
		return TokenPayload{}, false
	}

	return p, true
}

func sign(secret []byte, encoded string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	return b64.EncodeToString(mac.Sum(nil))
}
