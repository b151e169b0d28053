package validation

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the hub signs with HMAC-SHA1
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// Signature errors. Callers map all of them to 401.
var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrUnsupportedAlgo    = errors.New("unsupported signature algorithm")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrNoSecret           = errors.New("no signing secret configured")
)

var signatureAlgorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// VerifySignature checks an "algorithm=hexdigest" header against the HMAC of
// body under secret. The digest comparison is constant time.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrNoSecret
	}
	if header == "" {
		return ErrMissingSignature
	}

	algo, digest, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || digest == "" {
		return ErrMalformedSignature
	}
	newHash, ok := signatureAlgorithms[strings.ToLower(algo)]
	if !ok {
		return ErrUnsupportedAlgo
	}

	provided, err := hex.DecodeString(digest)
	if err != nil {
		return ErrMalformedSignature
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the "algorithm=hexdigest" header value for body.
func Sign(secret string, body []byte, algo string) string {
	newHash, ok := signatureAlgorithms[algo]
	if !ok {
		newHash, algo = sha1.New, "sha1"
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return algo + "=" + hex.EncodeToString(mac.Sum(nil))
}
