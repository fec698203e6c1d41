package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

var ErrInvalidSignature = errors.New("invalid callback signature")

// Signer authenticates gateway callbacks with the shop's secret key.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer { return Signer{secret: []byte(secret)} }

// Canonical joins every field except the signature as key=value pairs sorted by
// key and separated by '&'. Values are used verbatim, without URL escaping.
func Canonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == FieldSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

func (s Signer) mac(fields map[string]string) []byte {
	h := hmac.New(sha1.New, s.secret)
	h.Write([]byte(Canonical(fields)))
	return h.Sum(nil)
}

// Sign returns the lowercase hex HMAC-SHA1 of the canonical form.
func (s Signer) Sign(fields map[string]string) string {
	return hex.EncodeToString(s.mac(fields))
}

// Verify compares sig against the expected signature in constant time. An empty
// secret never verifies anything.
func (s Signer) Verify(fields map[string]string, sig string) error {
	if len(s.secret) == 0 || sig == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, s.mac(fields)) {
		return ErrInvalidSignature
	}
	return nil
}
