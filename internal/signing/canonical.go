// Package signing builds and verifies per-identity HMAC request signatures.
//
// Client and server derive the same canonical string from a request:
//
//	METHOD \n path \n sorted-query \n timestamp \n body-digest
//
// and sign it with HMAC-SHA256 under the identity's signing key.
package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// BuildCanonical returns the string both sides sign. rawURL may be absolute or
// a request URI; only its path and query take part.
func BuildCanonical(method string, rawURL string, body []byte, timestamp string) string {
	path, query := splitURL(rawURL)
	method = strings.ToUpper(strings.TrimSpace(method))

	return strings.Join([]string{
		method,
		path,
		CanonicalQuery(query),
		timestamp,
		BodyDigest(method, body),
	}, "\n")
}

func splitURL(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		path, query, _ := strings.Cut(rawURL, "?")
		if path == "" {
			path = "/"
		}
		return path, query
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return path, u.RawQuery
}

// QueryWellFormed reports whether every pair of rawURL's query decodes.
// CanonicalQuery skips pairs that do not, so such a query is not fully covered
// by a signature and Verify refuses it.
func QueryWellFormed(rawURL string) bool {
	_, query := splitURL(rawURL)
	_, err := url.ParseQuery(query)
	return err == nil
}

// CanonicalQuery decodes the raw query, sorts by key then value and re-encodes it.
func CanonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	// ParseQuery keeps every pair it could decode even when it reports an error.
	values, _ := url.ParseQuery(rawQuery)
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(values))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// BodyDigest is the lowercase hex SHA-256 of the canonical body, or "" when the
// method carries no body or the body is empty.
func BodyDigest(method string, body []byte) string {
	if !methodHasBody(strings.ToUpper(method)) || len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	payload := body
	if canonical, err := CanonicalJSON(body); err == nil {
		payload = canonical
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

var errTrailingData = errors.New("trailing data after JSON value")

// CanonicalJSON re-serialises a JSON document with object keys sorted at every
// level. Arrays keep their order, numbers keep their literal text and HTML
// characters are not escaped.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}

	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators writes U+2028 and U+2029 raw, as JSON.stringify does.
// encoding/json always escapes them. Other escape pairs are copied untouched.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			out = append(out, b[i])
			continue
		}
		if rest := b[i+1:]; bytes.HasPrefix(rest, []byte("u2028")) || bytes.HasPrefix(rest, []byte("u2029")) {
			if rest[4] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, b[i])
		if i+1 < len(b) {
			out = append(out, b[i+1])
			i++
		}
	}
	return out
}
