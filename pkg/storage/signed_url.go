package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner issues time-limited links to answer-sheet objects held by
// the file-storage collaborator. The storage side verifies the same token.
type SignedURLSigner struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided base URL, secret and TTL.
func NewSignedURLSigner(baseURL, secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Sign returns a download URL for objectKey scoped to the given reader.
func (s *SignedURLSigner) Sign(objectKey, readerID string) (string, time.Time, error) {
	if objectKey == "" || readerID == "" {
		return "", time.Time{}, fmt.Errorf("object key and reader required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	token := s.token(objectKey, readerID, expiresAt.Unix())

	q := url.Values{}
	q.Set("reader", readerID)
	q.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	q.Set("token", token)
	return fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(objectKey), q.Encode()), expiresAt, nil
}

// Verify checks a token produced by Sign.
func (s *SignedURLSigner) Verify(objectKey, readerID string, expiresUnix int64, token string) error {
	expected := s.token(objectKey, readerID, expiresUnix)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return fmt.Errorf("invalid token signature")
	}
	if s.now().After(time.Unix(expiresUnix, 0)) {
		return fmt.Errorf("token expired")
	}
	return nil
}

func (s *SignedURLSigner) token(objectKey, readerID string, expiresUnix int64) string {
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(objectKey))
	payload := fmt.Sprintf("%s|%s|%d", encodedKey, readerID, expiresUnix)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
