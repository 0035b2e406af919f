package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAtSignsKnownVector(t *testing.T) {
	auth := &APIAuth{
		Key:        "key-1",
		Secret:     "c3VwZXItc2VjcmV0LXNpZ25pbmcta2V5",
		Passphrase: "pass-1",
	}

	headers := auth.HeadersAt("0xabc", "POST", "/order", `{"size":1}`, 1700000000)

	assert.Equal(t, "0xabc", headers["POLY_ADDRESS"])
	assert.Equal(t, "key-1", headers["POLY_API_KEY"])
	assert.Equal(t, "1700000000", headers["POLY_TIMESTAMP"])
	assert.Equal(t, "pass-1", headers["POLY_PASSPHRASE"])
	assert.Equal(t, "thrcZ8o2xtWQLs7cHIw/sXIYpTl6gr/DsmjEQWS/FAc=", headers["POLY_SIGNATURE"])
}

func TestHeadersAtFallsBackToRawSecret(t *testing.T) {
	auth := &APIAuth{Key: "key-2", Secret: "not*base64*secret"}

	headers := auth.HeadersAt("0xabc", "GET", "/book", "", 1700000000)

	assert.Equal(t, "R9WGtQU2/Me/vps+l0DY3QPVw7SKmvnC3Rx4L6Nzf7s=", headers["POLY_SIGNATURE"])
}

func TestStringRedactsCredentials(t *testing.T) {
	auth := &APIAuth{Key: "key-123456", Secret: "secret-123456"}

	s := auth.String()
	require.NotContains(t, s, "key-123456")
	require.NotContains(t, s, "secret-123456")
	assert.Contains(t, s, "key-****")
}
