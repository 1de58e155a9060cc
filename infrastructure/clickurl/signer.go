// Package clickurl provides HMAC-SHA256 signing for ad click URLs and keyed
// digests used to pseudonymize identifiers.
package clickurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SignatureLength is the number of hex characters used for the truncated HMAC signature.
const SignatureLength = 12

// ClickParams identifies one rendered ad placement.
type ClickParams struct {
	AdID           string
	DecisionID     string
	Mode           string
	Timestamp      int64
	DestinationURL string
}

// Message returns the pipe-delimited form signed for a click:
// "adid|decisionid|mode|timestamp|url".
func (p ClickParams) Message() string {
	return strings.Join([]string{
		p.AdID,
		p.DecisionID,
		p.Mode,
		strconv.FormatInt(p.Timestamp, 10),
		p.DestinationURL,
	}, "|")
}

// Signer signs and verifies messages with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a new Signer with the given secret string.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Digest returns the full hex-encoded HMAC-SHA256 of message.
func (s *Signer) Digest(message string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))

	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns the first SignatureLength hex characters of the digest.
func (s *Signer) Sign(message string) string {
	return s.Digest(message)[:SignatureLength]
}

// Verify checks signature against message in constant time.
func (s *Signer) Verify(message, signature string) bool {
	expected := s.Sign(message)

	return hmac.Equal([]byte(expected), []byte(signature))
}
