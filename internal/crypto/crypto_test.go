package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManager_RoundTrip(t *testing.T) {
	km, err := NewKeyManager("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := km.EncryptSecret("api-secret-xyz")
	require.NoError(t, err)

	plain, err := km.DecryptSecret(sealed)
	require.NoError(t, err)
	assert.Equal(t, "api-secret-xyz", plain)
}

func TestKeyManager_WrongPasswordFails(t *testing.T) {
	km, err := NewKeyManager("right")
	require.NoError(t, err)
	sealed, err := km.EncryptSecret("secret")
	require.NoError(t, err)

	other, err := NewKeyManager("wrong")
	require.NoError(t, err)
	_, err = other.DecryptSecret(sealed)
	assert.Error(t, err)
}

func TestKeyManager_UniqueEnvelopesPerCall(t *testing.T) {
	km, err := NewKeyManager("pw")
	require.NoError(t, err)

	a, err := km.EncryptSecret("secret")
	require.NoError(t, err)
	b, err := km.EncryptSecret("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyManager_EmptyPasswordRejected(t *testing.T) {
	_, err := NewKeyManager("")
	assert.Error(t, err)
}

func TestKeyManager_GarbageEnvelopeRejected(t *testing.T) {
	km, err := NewKeyManager("pw")
	require.NoError(t, err)
	_, err = km.DecryptSecret([]byte("not json"))
	assert.Error(t, err)
}

func TestRequestSigner_DeterministicSignature(t *testing.T) {
	s := &RequestSigner{Key: "key-1", Secret: "secret-1"}

	h1 := s.HeadersAt("POST", "/v1/orders", `{"qty":1}`, 1756600000)
	h2 := s.HeadersAt("POST", "/v1/orders", `{"qty":1}`, 1756600000)
	assert.Equal(t, h1["X-RB-SIGNATURE"], h2["X-RB-SIGNATURE"])
	assert.Equal(t, "key-1", h1["X-RB-API-KEY"])
	assert.Equal(t, "1756600000", h1["X-RB-TIMESTAMP"])

	// Any component change alters the signature.
	h3 := s.HeadersAt("POST", "/v1/orders", `{"qty":2}`, 1756600000)
	assert.NotEqual(t, h1["X-RB-SIGNATURE"], h3["X-RB-SIGNATURE"])
}

func TestRequestSigner_RedactedString(t *testing.T) {
	s := &RequestSigner{Key: "abcdef123456", Secret: "zz"}
	out := s.String()
	assert.NotContains(t, out, "abcdef123456")
	assert.Contains(t, out, "abcd****")
	assert.Contains(t, out, "****")
}
