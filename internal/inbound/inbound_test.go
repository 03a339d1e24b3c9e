package inbound

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"
)

func stripeHeader(ts string, secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyStripeStyle_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	header := stripeHeader(ts, secret, body)

	if !VerifyStripeStyle(body, header, secret, 300*time.Second) {
		t.Fatal("expected valid Stripe-style signature to verify")
	}
}

func TestVerifyStripeStyle_TamperedBody(t *testing.T) {
	secret := "whsec_test"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	header := stripeHeader(ts, secret, []byte(`{"id":"evt_1"}`))

	if VerifyStripeStyle([]byte(`{"id":"evt_2"}`), header, secret, 300*time.Second) {
		t.Fatal("tampered body must not verify")
	}
}

func TestVerifyStripeStyle_StaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	secret := "whsec_test"
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
	header := stripeHeader(ts, secret, body)

	if VerifyStripeStyle(body, header, secret, 300*time.Second) {
		t.Fatal("stale timestamp must not verify")
	}
}

func TestVerifyStripeStyle_MultipleSignatures(t *testing.T) {
	body := []byte(`{}`)
	secret := "whsec_test"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	valid := stripeHeader(ts, secret, body)

	header := "t=" + ts + ",v1=deadbeef," + valid[strings.Index(valid, "v1="):]

	if !VerifyStripeStyle(body, header, secret, 300*time.Second) {
		t.Fatal("should verify when any one v1 candidate matches")
	}
}

func TestVerifyStripeStyle_Malformed(t *testing.T) {
	if VerifyStripeStyle([]byte(`{}`), "not-a-valid-header", "secret", 300*time.Second) {
		t.Fatal("malformed header must not verify")
	}
	if VerifyStripeStyle([]byte(`{}`), "", "secret", 300*time.Second) {
		t.Fatal("empty header must not verify")
	}
}

func TestVerifyGitHubStyle_Valid(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	secret := "gh-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !VerifyGitHubStyle(body, header, secret) {
		t.Fatal("expected valid GitHub-style signature to verify")
	}
}

func TestVerifyGitHubStyle_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	mac := hmac.New(sha256.New, []byte("secret-a"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if VerifyGitHubStyle(body, header, "secret-b") {
		t.Fatal("wrong secret must not verify")
	}
}

func TestVerifyGitHubStyle_MissingPrefix(t *testing.T) {
	if VerifyGitHubStyle([]byte(`{}`), "deadbeef", "secret") {
		t.Fatal("header without sha256= prefix must not verify")
	}
}

func TestVerifySlackStyle_Valid(t *testing.T) {
	body := []byte(`{"type":"event_callback"}`)
	secret := "slack-secret"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !VerifySlackStyle(body, sig, ts, secret, 300*time.Second) {
		t.Fatal("expected valid Slack-style signature to verify")
	}
}

func TestVerifySlackStyle_StaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	secret := "slack-secret"
	ts := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)

	base := "v0:" + ts + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if VerifySlackStyle(body, sig, ts, secret, 300*time.Second) {
		t.Fatal("stale timestamp must not verify")
	}
}

func TestVerifyNative_RoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	secret := "whsec_native"
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	sig := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if !VerifyNative(body, sig, ts, secret, 300*time.Second) {
		t.Fatal("expected native signature to verify")
	}
}

func TestVerifyNative_MalformedNeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("VerifyNative panicked on malformed input: %v", r)
		}
	}()

	if VerifyNative(nil, "", "", "", time.Second) {
		t.Fatal("empty input must not verify")
	}
}
