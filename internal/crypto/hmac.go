package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// APIAuth holds the HMAC credentials returned by the venue's derive-api-key
// flow. Private endpoints require every request to carry headers signed
// with the secret.
type APIAuth struct {
	Key        string
	Secret     string // base64 standard encoding
	Passphrase string
}

// Headers signs method+path+body for the current time and returns the
// POLY_* headers for a private API request.
func (a *APIAuth) Headers(address, method, path, body string) map[string]string {
	return a.HeadersAt(address, method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with an explicit Unix timestamp.
func (a *APIAuth) HeadersAt(address, method, path, body string, unix int64) map[string]string {
	ts := strconv.FormatInt(unix, 10)

	secret, err := base64.StdEncoding.DecodeString(a.Secret)
	if err != nil {
		// Sign with the raw bytes when the secret is not valid base64.
		secret = []byte(a.Secret)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    a.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": a.Passphrase,
		"POLY_SIGNATURE":  sig,
	}
}

// String redacts the credentials for log output.
func (a *APIAuth) String() string {
	return fmt.Sprintf("APIAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
