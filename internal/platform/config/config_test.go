package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"API_AUTH_SECRET_KEY": "dev-secret"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Auth.Algorithm != "HS256" {
		t.Errorf("unexpected algorithm %s", cfg.Auth.Algorithm)
	}
	if cfg.Auth.AccessTokenTTL != 30*time.Minute {
		t.Errorf("unexpected access ttl %s", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("unexpected refresh ttl %s", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
}

func TestLoadLegacyKeys(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"SECRET_KEY":                  "legacy",
		"ALGORITHM":                   "hs256",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "45",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.SecretKey != "legacy" {
		t.Errorf("expected legacy secret, got %q", cfg.Auth.SecretKey)
	}
	if cfg.Auth.AccessTokenTTL != 45*time.Minute {
		t.Errorf("expected 45m access ttl, got %s", cfg.Auth.AccessTokenTTL)
	}

	cfg, err = load(t, map[string]string{
		"SECRET_KEY":                  "legacy",
		"API_AUTH_SECRET_KEY":         "modern",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "45",
		"API_AUTH_ACCESS_TOKEN_TTL":   "10m",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.SecretKey != "modern" || cfg.Auth.AccessTokenTTL != 10*time.Minute {
		t.Errorf("expected prefixed keys to win, got %q %s", cfg.Auth.SecretKey, cfg.Auth.AccessTokenTTL)
	}
}

func TestLoadResolvesSecretReference(t *testing.T) {
	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved-key", nil
	})

	cfg, err := load(t, map[string]string{"API_AUTH_SECRET_KEY": "sm://auth/signing-key"},
		WithSecretResolver(resolver),
		WithRequiredSecrets("Auth.SecretKey"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.SecretKey != "resolved-key" {
		t.Errorf("expected resolved secret, got %q", cfg.Auth.SecretKey)
	}
	if !slices.Equal(refs, []string{"secret://auth/signing-key"}) {
		t.Errorf("unexpected refs %v", refs)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})
	_, err := load(t, map[string]string{"API_AUTH_SECRET_KEY": "secret://auth/key"}, WithSecretResolver(resolver))

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://auth/key" {
		t.Errorf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "   ", nil
	})
	_, err := load(t, map[string]string{"API_AUTH_SECRET_KEY": "secret://auth/key"},
		WithSecretResolver(resolver),
		WithRequiredSecrets("Auth.SecretKey"),
	)

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for blank key, got %v", err)
	}
	if !slices.Contains(validation.Fields(), "Auth.SecretKey") {
		t.Errorf("expected Auth.SecretKey flagged, got %v", validation.Fields())
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := load(t, map[string]string{
		"API_STORAGE_BACKEND":        "firestore",
		"API_AUTH_ALGORITHM":         "RS256",
		"API_AUTH_REFRESH_TOKEN_TTL": "1m",
	})

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"Firestore.ProjectID", "Auth.SecretKey", "Auth.Algorithm", "Auth.RefreshTokenTTL"}
	if !slices.Equal(validation.Fields(), want) {
		t.Errorf("expected %v, got %v", want, validation.Fields())
	}
}

func TestLoadReadsDotEnvBelowExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local\nexport API_AUTH_SECRET_KEY=\"from-file\"\nAPI_SERVER_PORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "7100"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.SecretKey != "from-file" {
		t.Errorf("expected secret from dotenv, got %q", cfg.Auth.SecretKey)
	}
	if cfg.Server.Port != "7100" {
		t.Errorf("expected explicit port to win, got %s", cfg.Server.Port)
	}
}
