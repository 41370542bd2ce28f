package storage

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recompute(token string, expire int64, key string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(fmt.Sprintf("%s%d", token, expire)))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestIssueUploadCredential_FreshTokensAndValidSignatures(t *testing.T) {
	t.Parallel()

	s := NewSigner("private_key_1", "public_key_1")

	first, err := s.IssueUploadCredential()
	require.NoError(t, err)
	second, err := s.IssueUploadCredential()
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.NotEqual(t, first.Signature, second.Signature)

	for _, c := range []UploadCredential{first, second} {
		assert.Equal(t, "public_key_1", c.PublicKey)
		assert.Equal(t, recompute(c.Token, c.Expire, "private_key_1"), c.Signature)
		assert.Regexp(t, `^[0-9a-f]{40}$`, c.Signature)
	}
}

func TestIssueUploadCredential_ExpiryWindow(t *testing.T) {
	t.Parallel()

	s := NewSigner("k", "p")
	before := time.Now().Unix()
	c, err := s.IssueUploadCredential()
	require.NoError(t, err)
	after := time.Now().Unix()

	assert.Less(t, c.Expire-before, int64(3600))
	assert.GreaterOrEqual(t, c.Expire-after, int64(3000))
}

func TestIssueUploadCredential_Deterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 12, 16, 3, 37, 38, 0, time.UTC)
	s := NewSigner("secret", "pub")
	s.now = func() time.Time { return now }
	s.newToken = func() string { return "token-123" }

	c, err := s.IssueUploadCredential()
	require.NoError(t, err)

	wantExpire := now.Add(55 * time.Minute).Unix()
	assert.Equal(t, "token-123", c.Token)
	assert.Equal(t, wantExpire, c.Expire)
	assert.Equal(t, recompute("token-123", wantExpire, "secret"), c.Signature)
	assert.Equal(t, c.Signature, Sign("token-123", wantExpire, "secret"))
}

func TestIssueUploadCredential_MissingKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, private, public string
	}{
		{"no private key", "", "pub"},
		{"no public key", "priv", ""},
		{"no keys", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSigner(tc.private, tc.public).IssueUploadCredential()
			require.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}
