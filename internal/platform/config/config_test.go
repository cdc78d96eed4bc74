package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":    "fitmarket-dev",
		"API_STORAGE_CONTENT_BUCKET": "fitmarket-content",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(baseEnv()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "fitmarket-dev" {
		t.Fatalf("expected firestore project to fall back to firebase, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.Site.CountryCode != "49" || cfg.Site.DraftTTL != 24*time.Hour {
		t.Fatalf("unexpected site defaults %+v", cfg.Site)
	}
	if cfg.Storage.Backend != "gcs" {
		t.Fatalf("expected gcs backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("unexpected idempotency header %q", cfg.Idempotency.Header)
	}
	if len(cfg.Security.HMAC.Secrets) != 0 {
		t.Fatalf("expected no hmac secrets, got %v", cfg.Security.HMAC.Secrets)
	}
}

func TestLoad_OverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_SITE_COUNTRY_CODE"] = "+43"
	env["API_SITE_DRAFT_TTL"] = "2h"
	env["API_SITE_PUBLIC_BASE_URL"] = "https://fitmarket.example/"
	env["API_PSP_STRIPE_API_KEY"] = "secret://stripe/api"
	env["API_PSP_STRIPE_WEBHOOK_SECRET"] = "sm://stripe/webhook"
	env["API_SECURITY_HMAC_SECRETS"] = "Payments=secret://relay/payments, broken"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		return map[string]string{
			"secret://stripe/api":     "sk_test_1",
			"secret://stripe/webhook": "whsec_1 ",
			"secret://relay/payments": "relay-key",
		}[ref], nil
	})

	cfg, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env), WithSecretResolver(resolver),
		WithRequiredSecrets("PSP.StripeAPIKey", "PSP.StripeWebhookSecret"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %q", cfg.Server.Port)
	}
	if cfg.Site.CountryCode != "43" || cfg.Site.DraftTTL != 2*time.Hour {
		t.Fatalf("unexpected site config %+v", cfg.Site)
	}
	if cfg.Site.PublicBaseURL != "https://fitmarket.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Site.PublicBaseURL)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_1" || cfg.PSP.StripeWebhookSecret != "whsec_1" {
		t.Fatalf("secrets not resolved: %+v", cfg.PSP)
	}
	if got := cfg.Security.HMAC.Secrets["payments"]; got != "relay-key" || len(cfg.Security.HMAC.Secrets) != 1 {
		t.Fatalf("unexpected hmac secrets %v", cfg.Security.HMAC.Secrets)
	}
}

func TestLoad_DotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIREBASE_PROJECT_ID=from-file\nAPI_STORAGE_CONTENT_BUCKET=bucket\nAPI_SERVER_PORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "7001"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Fatalf("expected project from .env, got %q", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7001" {
		t.Fatalf("explicit map must win over .env, got %q", cfg.Server.Port)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv(), WithEnvMap(baseEnv()))
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_SITE_COUNTRY_CODE":    "4a",
		"API_STORAGE_BACKEND":      "memory",
		"API_SECURITY_ENVIRONMENT": "prod",
	}
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{"Firebase.ProjectID": true, "Storage.Backend": true, "Site.CountryCode": true}
	fields := verr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Fatalf("unexpected field %q in %v", f, fields)
		}
	}
}

func TestLoad_SecretResolverFailure(t *testing.T) {
	env := baseEnv()
	env["API_EMAIL_RESEND_API_KEY"] = "secret://resend/key"

	boom := errors.New("permission denied")
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env),
		WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) { return "", boom })))

	var serr *SecretError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if serr.Ref != "secret://resend/key" || !errors.Is(err, boom) {
		t.Fatalf("unexpected secret error %+v", serr)
	}
}

func TestLoad_SecretReferenceWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["API_CACHE_REDIS_PASSWORD"] = "sm://redis/password"
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(env))
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestLoad_MissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(""), WithoutSystemEnv(), WithEnvMap(baseEnv()),
		WithRequiredSecrets("PSP.StripeWebhookSecret", "PSP.StripeAPIKey", "PSP.StripeAPIKey"))

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	names := missing.Names()
	if len(names) != 2 || names[0] != "PSP.StripeAPIKey" || names[1] != "PSP.StripeWebhookSecret" {
		t.Fatalf("unexpected names %v", names)
	}
	for _, redacted := range missing.RedactedNames() {
		if redacted == "PSP.StripeAPIKey" || len(redacted) != 16 {
			t.Fatalf("expected hashed names, got %q", redacted)
		}
	}
}

func TestEnvironmentValues_Precedence(t *testing.T) {
	t.Setenv("API_SERVER_PORT", "from-os")
	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")

	values, err := EnvironmentValues(WithEnvFile(""), WithEnvMap(map[string]string{"API_SERVER_PORT": "from-map"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["API_SERVER_PORT"] != "from-map" {
		t.Fatalf("expected map to win, got %q", values["API_SERVER_PORT"])
	}
	if values["API_FIREBASE_PROJECT_ID"] != "os-project" {
		t.Fatalf("expected OS value, got %q", values["API_FIREBASE_PROJECT_ID"])
	}
}
