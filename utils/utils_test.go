package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"clipflow/models"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-at-least-32-bytes-long")

func TestWebhookJWTRoundTrip(t *testing.T) {
	now := time.Now().Unix()
	token, err := SignWebhookJWT(&models.WebhookClaims{
		Issuer:    "event-bus",
		Subject:   "rule/transcode",
		IssuedAt:  now,
		ExpiresAt: now + 300,
		Stages:    []string{"completion"},
	}, testSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	v := WebhookVerifier{Secret: testSecret, Issuer: "event-bus"}
	claims, err := v.Verify(token, "completion")
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.Subject != "rule/transcode" {
		t.Errorf("Expected subject rule/transcode, got %s", claims.Subject)
	}
	if _, err := v.Verify(token, ""); err != nil {
		t.Errorf("Expected no scope check for an empty stage, got %v", err)
	}
}

func TestWebhookJWTStageScope(t *testing.T) {
	now := time.Now().Unix()
	scoped, _ := SignWebhookJWT(&models.WebhookClaims{IssuedAt: now, ExpiresAt: now + 300, Stages: []string{"completion"}}, testSecret)
	v := WebhookVerifier{Secret: testSecret}

	if _, err := v.Verify(scoped, "upload"); !errors.Is(err, ErrStageNotAllowed) {
		t.Errorf("Expected ErrStageNotAllowed, got %v", err)
	}
	if _, err := v.Verify(scoped, "completion"); err != nil {
		t.Errorf("Expected completion to be allowed, got %v", err)
	}

	unscoped, _ := SignWebhookJWT(&models.WebhookClaims{IssuedAt: now, ExpiresAt: now + 300}, testSecret)
	for _, stage := range []string{"upload", "completion", "analysis"} {
		if _, err := v.Verify(unscoped, stage); err != nil {
			t.Errorf("Expected an unscoped token to allow %s, got %v", stage, err)
		}
	}
}

func TestWebhookJWTRejections(t *testing.T) {
	now := time.Now().Unix()
	v := WebhookVerifier{Secret: testSecret}

	expired, _ := SignWebhookJWT(&models.WebhookClaims{IssuedAt: now - 600, ExpiresAt: now - 300}, testSecret)
	if _, err := v.Verify(expired, ""); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	future, _ := SignWebhookJWT(&models.WebhookClaims{IssuedAt: now + 600}, testSecret)
	if _, err := v.Verify(future, ""); !errors.Is(err, ErrTokenNotYetValid) {
		t.Errorf("Expected ErrTokenNotYetValid, got %v", err)
	}

	valid, _ := SignWebhookJWT(&models.WebhookClaims{Issuer: "someone", IssuedAt: now}, testSecret)
	strict := WebhookVerifier{Secret: testSecret, Issuer: "event-bus"}
	if _, err := strict.Verify(valid, ""); !errors.Is(err, ErrInvalidIssuer) {
		t.Errorf("Expected ErrInvalidIssuer, got %v", err)
	}
	other := WebhookVerifier{Secret: []byte("another-secret-key-that-is-also-32-bytes!")}
	if _, err := other.Verify(valid, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}
	if _, err := v.Verify("not-a-token", ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
	if _, err := (WebhookVerifier{}).Verify(valid, ""); !errors.Is(err, ErrNoVerificationKey) {
		t.Errorf("Expected ErrNoVerificationKey, got %v", err)
	}
}

func TestGenerateRNS(t *testing.T) {
	a, err := GenerateRNS()
	if err != nil {
		t.Fatalf("GenerateRNS failed: %v", err)
	}
	b, _ := GenerateRNS()
	if len(a) != 12 || a == b {
		t.Errorf("Expected two distinct 12 char names, got %q and %q", a, b)
	}
	if strings.Trim(a, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789") != "" {
		t.Errorf("Unexpected characters in %q", a)
	}
}
