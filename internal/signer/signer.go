// Package signer produces time-limited presigned GET URLs for an
// S3-compatible object store using the SigV4 query-string scheme.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/your-org/clipline/internal/config"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	service         = "s3"
	terminator      = "aws4_request"
	unsignedPayload = "UNSIGNED-PAYLOAD"
)

type Signer struct {
	endpoint  string // host, no scheme
	region    string
	bucket    string
	accessKey string
	secretKey string
	useSSL    bool
}

func New(cfg config.StorageConfig) *Signer {
	return &Signer{
		endpoint:  cfg.Endpoint,
		region:    cfg.Region,
		bucket:    cfg.Bucket,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		useSSL:    cfg.UseSSL,
	}
}

// Sign returns a presigned GET URL for the object key, valid for
// expiresIn seconds from now. The clock is injected so signatures are
// reproducible in tests. The signer cannot verify its own output;
// a wrong region or bucket still yields a well-formed URL that the
// store will reject.
func (s *Signer) Sign(key string, expiresIn int, now time.Time) (string, error) {
	if s.accessKey == "" || s.secretKey == "" {
		return "", fmt.Errorf("sign %s: storage credentials not configured", key)
	}

	now = now.UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	scope := strings.Join([]string{dateStamp, s.region, service, terminator}, "/")

	canonicalURI := "/" + s.bucket + "/" + uriEncode(key, false)

	query := map[string]string{
		"X-Amz-Algorithm":     algorithm,
		"X-Amz-Credential":    s.accessKey + "/" + scope,
		"X-Amz-Date":          amzDate,
		"X-Amz-Expires":       fmt.Sprintf("%d", expiresIn),
		"X-Amz-SignedHeaders": "host",
	}
	canonicalQuery := canonicalQueryString(query)

	canonicalRequest := strings.Join([]string{
		"GET",
		canonicalURI,
		canonicalQuery,
		"host:" + s.endpoint + "\n",
		"host",
		unsignedPayload,
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))

	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	signingKey := deriveKey(s.secretKey, dateStamp, s.region)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s?%s&X-Amz-Signature=%s",
		scheme, s.endpoint, canonicalURI, canonicalQuery, signature), nil
}

// deriveKey runs the chained HMAC key derivation:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
func deriveKey(secret, dateStamp, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func canonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, uriEncode(k, true)+"="+uriEncode(params[k], true))
	}
	return strings.Join(parts, "&")
}

// uriEncode percent-encodes per the SigV4 rules: unreserved characters
// stay literal, everything else becomes %XX; "/" is kept in paths.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}
