package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

func signHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHeaderHMACVerifier_AcceptsValidSignature(t *testing.T) {
	body := []byte(`{"event_type":"order.new","posting_number":"P-1"}`)
	verifier := HeaderHMACVerifier{
		Header:   "X-Ozon-Signature",
		Secret:   "s1",
		Encoding: EncodingHex,
	}

	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
		Marketplace: "ozon",
		Headers:     map[string]string{"X-Ozon-Signature": signHex("s1", body)},
		Body:        body,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid signature to be accepted")
	}
}

func TestHeaderHMACVerifier_RejectsMutatedPayload(t *testing.T) {
	body := []byte(`{"event_type":"order.new","posting_number":"P-1"}`)
	verifier := HeaderHMACVerifier{
		Header:   "X-Ozon-Signature",
		Secret:   "s1",
		Encoding: EncodingHex,
	}
	sig := signHex("s1", body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
			Marketplace: "ozon",
			Headers:     map[string]string{"X-Ozon-Signature": sig},
			Body:        mutated,
		})
		if err != nil {
			t.Fatalf("verify mutated byte %d: %v", i, err)
		}
		if ok {
			t.Fatalf("expected rejection after mutating byte %d", i)
		}
	}
}

func TestHeaderHMACVerifier_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"event_type":"order.new"}`)
	verifier := HeaderHMACVerifier{Header: "X-Signature", Secret: "s2", Encoding: EncodingHex}

	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
		Headers: map[string]string{"X-Signature": signHex("s1", body)},
		Body:    body,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected signature made with a different secret to be rejected")
	}
}

func TestHeaderHMACVerifier_SkipsWhenUnconfigured(t *testing.T) {
	verifier := HeaderHMACVerifier{Header: "X-Signature", Encoding: EncodingHex}
	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{Body: []byte("{}")})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected fail-open pass when no secret is configured")
	}
}

func TestHeaderHMACVerifier_RequireFailsClosed(t *testing.T) {
	verifier := HeaderHMACVerifier{Header: "X-Signature", Encoding: EncodingHex, Require: true}
	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{Body: []byte("{}")})
	if err == nil {
		t.Fatalf("expected misconfiguration error when Require is set")
	}
	if ok {
		t.Fatalf("expected rejection when Require is set and no secret is configured")
	}
	if !core.IsSignatureInvalid(err) {
		t.Fatalf("expected signature text code, got %v", err)
	}
}

func TestHeaderHMACVerifier_MalformedSignatureReturnsFalse(t *testing.T) {
	verifier := HeaderHMACVerifier{Header: "X-Signature", Secret: "s1", Encoding: EncodingHex}
	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
		Headers: map[string]string{"X-Signature": "zz-not-hex"},
		Body:    []byte("{}"),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected malformed signature to be rejected, not to error")
	}
}

func TestHeaderHMACVerifier_SignRoundTrip(t *testing.T) {
	body := []byte(`{"eventType":"order.created"}`)
	verifier := HeaderHMACVerifier{Header: "X-Hepsiburada-Signature", Secret: "hb", Encoding: EncodingBase64}

	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
		Headers: map[string]string{"X-Hepsiburada-Signature": verifier.Sign(body)},
		Body:    body,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected self-signed payload to verify")
	}
}

func TestHeaderTokenVerifier(t *testing.T) {
	verifier := HeaderTokenVerifier{Header: "X-Amz-Signature", Token: "tok-1"}

	ok, err := verifier.Verify(context.Background(), core.WebhookRequest{
		Headers: map[string]string{"X-Amz-Signature": "tok-1"},
	})
	if err != nil || !ok {
		t.Fatalf("expected matching token to pass, ok=%v err=%v", ok, err)
	}

	ok, err = verifier.Verify(context.Background(), core.WebhookRequest{
		Headers: map[string]string{"X-Amz-Signature": "tok-2"},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatched token to be rejected")
	}
}

func TestTimestampWithinTolerance(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if !TimestampWithinTolerance("", now, 0) {
		t.Fatalf("expected absent timestamp to pass")
	}
	recent := strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10)
	if !TimestampWithinTolerance(recent, now, 5*time.Minute) {
		t.Fatalf("expected recent timestamp to pass")
	}
	stale := strconv.FormatInt(now.Add(-30*time.Minute).Unix(), 10)
	if TimestampWithinTolerance(stale, now, 5*time.Minute) {
		t.Fatalf("expected stale timestamp to be rejected")
	}
}
