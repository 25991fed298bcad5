package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.WebhookRequest) (bool, error)
}

const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// HeaderHMACVerifier validates an HMAC-SHA256 signature carried in a request
// header against the raw body. When no secret is configured or the header is
// absent the check is skipped and the delivery passes, since the upstream
// marketplaces treat the signature as optional. Set Require to fail closed
// instead.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
	Require  bool
}

// Verify returns (accepted, err). A skipped check returns (true, nil); a
// verification mismatch returns (false, nil). Malformed input never panics.
func (v HeaderHMACVerifier) Verify(_ context.Context, req core.WebhookRequest) (bool, error) {
	secret := strings.TrimSpace(v.Secret)
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if secret == "" || header == "" {
		if v.Require {
			return false, core.NewSignatureError(
				"signature verification required but secret or header is absent",
				map[string]any{"marketplace": req.Marketplace, "header": v.Header},
			)
		}
		return true, nil
	}

	provided := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if provided == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(provided)
		if err != nil {
			return false, nil
		}
		return subtle.ConstantTimeCompare(decoded, expected) == 1, nil
	default:
		decoded, err := hex.DecodeString(provided)
		if err != nil {
			return false, nil
		}
		return subtle.ConstantTimeCompare(decoded, expected) == 1, nil
	}
}

// Sign computes the signature value for a payload in the verifier's
// encoding. Used by synthetic test dispatches.
func (v HeaderHMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(v.Secret)))
	_, _ = mac.Write(payload)
	sum := mac.Sum(nil)
	encoded := hex.EncodeToString(sum)
	if strings.EqualFold(strings.TrimSpace(v.Encoding), EncodingBase64) {
		encoded = base64.StdEncoding.EncodeToString(sum)
	}
	return strings.TrimSpace(v.Prefix) + encoded
}

// HeaderTokenVerifier compares a static verification token, for
// marketplaces that send a shared token instead of a payload signature.
type HeaderTokenVerifier struct {
	Header  string
	Token   string
	Require bool
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.WebhookRequest) (bool, error) {
	expected := strings.TrimSpace(v.Token)
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if expected == "" || actual == "" {
		if v.Require {
			return false, core.NewSignatureError(
				"token verification required but token or header is absent",
				map[string]any{"marketplace": req.Marketplace, "header": v.Header},
			)
		}
		return true, nil
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1, nil
}

// NoopVerifier accepts every delivery. Used by marketplaces that define no
// signing scheme for their notifications (eBay Trading notifications).
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, core.WebhookRequest) (bool, error) {
	return true, nil
}

const defaultTimestampTolerance = 5 * time.Minute

// TimestampWithinTolerance validates the unix-seconds timestamp header some
// marketplaces attach, rejecting replays outside the window. An absent or
// unparsable value passes; the signature check is the authoritative gate.
func TimestampWithinTolerance(value string, now time.Time, tolerance time.Duration) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return true
	}
	if tolerance <= 0 {
		tolerance = defaultTimestampTolerance
	}
	delta := now.UTC().Sub(time.Unix(seconds, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
