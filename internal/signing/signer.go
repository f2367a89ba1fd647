package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// Sign returns the lowercase hex HMAC-SHA256 of canonical under secret.
func Sign(secret string, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer signs outgoing requests for one identity.
type Signer struct {
	secret string
	nowFn  func() time.Time
}

func NewSigner(secret string, nowFn func() time.Time) *Signer {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Signer{secret: secret, nowFn: nowFn}
}

// SignRequest sets the signature headers on r. body must be the exact bytes
// the request will send.
func (s *Signer) SignRequest(r *http.Request, body []byte) {
	timestamp := strconv.FormatInt(s.nowFn().UnixMilli(), 10)
	canonical := BuildCanonical(r.Method, r.URL.RequestURI(), body, timestamp)
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderSignature, Sign(s.secret, canonical))
}
