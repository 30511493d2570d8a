package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

const signingInfo = "carepay/blob-download/v1"

// Signer issues and checks time-limited download links. The HMAC key is derived
// from the configured master secret so the raw secret is never used directly.
type Signer struct {
	key     []byte
	baseURL string
}

func NewSigner(masterSecret, baseURL string) (*Signer, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("blob signing secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(signingInfo)), key); err != nil {
		return nil, fmt.Errorf("derive blob signing key: %w", err)
	}
	return &Signer{key: key, baseURL: baseURL}, nil
}

func (s *Signer) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns a download link for key valid until now+ttl.
func (s *Signer) SignedURL(key string, now time.Time, ttl time.Duration) (string, time.Time) {
	expiresAt := now.Add(ttl).Truncate(time.Second)
	expires := expiresAt.Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(key, expires))
	return s.baseURL + "/blobs/" + key + "?" + q.Encode(), expiresAt
}

// Verify checks a signature and its expiry. Expired and forged links are
// indistinguishable to the caller.
func (s *Signer) Verify(key, expiresParam, signature string, now time.Time) bool {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return false
	}
	if now.Unix() >= expires {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.sign(key, expires))
	return hmac.Equal(got, want)
}
