// Package sigv4 builds AWS Signature Version 4 presigned URLs.
//
// Only query-string signing with "host" as the single signed header is
// supported, which is what WebSocket upgrades and plain GET downloads need.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

const (
	// Algorithm is the value of X-Amz-Algorithm.
	Algorithm = "AWS4-HMAC-SHA256"

	// EmptyPayloadHash is the hex SHA-256 of the empty string, the payload hash
	// used when a request carries no body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// UnsignedPayload may be used as PayloadHash when the body is not signed.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// MaxExpires is the longest validity SigV4 accepts.
	MaxExpires = 7 * 24 * time.Hour

	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
	terminator = "aws4_request"
)

// ErrMissingCredentials is returned when the access key, secret, host, region
// or service is empty.
var ErrMissingCredentials = errors.New("sigv4: missing credentials")

// Error describes why a request could not be signed.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sigv4: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Request is the input to [Presign].
//
// Credentials need an access key and secret. The session token is optional:
// long-term keys are signed without X-Amz-Security-Token, temporary ones
// carry it in the query.
type Request struct {
	// Method defaults to GET.
	Method string

	// Scheme of the resulting URL, e.g. "wss" or "https". Defaults to https.
	Scheme string

	// Host including an optional port, e.g. "example.amazonaws.com:8443".
	Host string

	// Path is the unescaped resource path. Defaults to "/".
	Path string

	Service string
	Region  string

	Credentials aws.Credentials

	// Expires is rounded down to whole seconds. Zero means 15 seconds.
	Expires time.Duration

	// PayloadHash defaults to [EmptyPayloadHash].
	PayloadHash string

	// Query holds additional parameters. They are signed along with the
	// X-Amz-* parameters.
	Query url.Values
}

// Presign returns the signed URL for req at time now. The same inputs always
// produce the same URL.
func Presign(req Request, now time.Time) (*url.URL, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = "GET"
	}
	scheme := req.Scheme
	if scheme == "" {
		scheme = "https"
	}
	path := req.Path
	if path == "" {
		path = "/"
	}
	expires := req.Expires
	if expires == 0 {
		expires = 15 * time.Second
	}
	payloadHash := req.PayloadHash
	if payloadHash == "" {
		payloadHash = EmptyPayloadHash
	}

	now = now.UTC()
	amzDate := now.Format(timeFormat)
	date := now.Format(dateFormat)
	scope := strings.Join([]string{date, req.Region, req.Service, terminator}, "/")

	q := url.Values{}
	for k, vs := range req.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("X-Amz-Algorithm", Algorithm)
	q.Set("X-Amz-Credential", req.Credentials.AccessKeyID+"/"+scope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", strconv.FormatInt(int64(expires/time.Second), 10))
	q.Set("X-Amz-SignedHeaders", "host")
	if req.Credentials.SessionToken != "" {
		q.Set("X-Amz-Security-Token", req.Credentials.SessionToken)
	}

	canonicalPath := EscapePath(path)
	canonicalQuery := CanonicalQuery(q)
	canonicalRequest := strings.Join([]string{
		method,
		canonicalPath,
		canonicalQuery,
		"host:" + strings.ToLower(req.Host) + "\n",
		"host",
		payloadHash,
	}, "\n")

	stringToSign := strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := SigningKey(req.Credentials.SecretAccessKey, date, req.Region, req.Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	return &url.URL{
		Scheme:   scheme,
		Host:     req.Host,
		Path:     path,
		RawPath:  canonicalPath,
		RawQuery: canonicalQuery + "&X-Amz-Signature=" + signature,
	}, nil
}

func validate(req Request) error {
	checks := []struct {
		field string
		value string
	}{
		{"access key", req.Credentials.AccessKeyID},
		{"secret key", req.Credentials.SecretAccessKey},
		{"host", req.Host},
		{"region", req.Region},
		{"service", req.Service},
	}
	for _, c := range checks {
		if c.value == "" {
			return &Error{Field: c.field, Err: ErrMissingCredentials}
		}
	}
	if req.Expires < 0 || req.Expires > MaxExpires {
		return &Error{Field: "expires", Err: fmt.Errorf("%s outside (0, %s]", req.Expires, MaxExpires)}
	}
	return nil
}

// SigningKey derives the request signing key from the secret, the request date
// (YYYYMMDD), the region and the service.
func SigningKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(terminator))
}

// CanonicalQuery encodes q sorted by key and then value, with RFC 3986
// escaping.
func CanonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), q[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(Escape(k))
			b.WriteByte('=')
			b.WriteString(Escape(v))
		}
	}
	return b.String()
}

// EscapePath escapes every path segment with [Escape], keeping the slashes.
func EscapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = Escape(s)
	}
	return strings.Join(segs, "/")
}

// Escape percent-encodes s per RFC 3986: only A-Z a-z 0-9 - _ . ~ are left
// as-is, everything else becomes %XX with upper-case hex.
func Escape(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
