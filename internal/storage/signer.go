package storage

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CredentialTTL is how long an upload credential stays valid. ImageKit rejects
// expiries an hour or more in the future.
const CredentialTTL = 55 * time.Minute

// UploadCredential authorises one direct client upload. It is never persisted.
type UploadCredential struct {
	Token     string `json:"token"     example:"3f1c2a8e-7d0b-4c55-9f0e-2a6c3b9d1e47"`
	Expire    int64  `json:"expire"    example:"1760871300"`
	Signature string `json:"signature" example:"a94a8fe5ccb19ba61c4c0873d391e987982fbbd3"`
	PublicKey string `json:"publicKey" example:"public_Xyz="`
}

// Signer issues upload credentials. It keeps no state between calls.
type Signer struct {
	privateKey string
	publicKey  string
	now        func() time.Time
	newToken   func() string
}

// NewSigner creates a Signer. Missing keys are reported per call, not here.
func NewSigner(privateKey, publicKey string) *Signer {
	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		now:        time.Now,
		newToken:   uuid.NewString,
	}
}

// IssueUploadCredential returns a fresh token with its expiry and signature.
func (s *Signer) IssueUploadCredential() (UploadCredential, error) {
	if s.privateKey == "" || s.publicKey == "" {
		return UploadCredential{}, ErrNotConfigured
	}

	token := s.newToken()
	expire := s.now().Add(CredentialTTL).Unix()

	return UploadCredential{
		Token:     token,
		Expire:    expire,
		Signature: Sign(token, expire, s.privateKey),
		PublicKey: s.publicKey,
	}, nil
}

// Sign computes lowercase hex(HMAC-SHA1(privateKey, token + expire)).
func Sign(token string, expire int64, privateKey string) string {
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(token + strconv.FormatInt(expire, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
