package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Catalog.PreviewCount != 5 {
		t.Errorf("expected preview count 5, got %d", cfg.Catalog.PreviewCount)
	}
	if cfg.Remote.BatchSize != 6 {
		t.Errorf("expected batch size 6, got %d", cfg.Remote.BatchSize)
	}
	if cfg.Nav.Settle != 400*time.Millisecond {
		t.Errorf("unexpected settle interval %s", cfg.Nav.Settle)
	}
	if cfg.Search.Debounce != time.Second {
		t.Errorf("unexpected debounce %s", cfg.Search.Debounce)
	}
	if cfg.Catalog.EmptyOverridesFallThrough {
		t.Errorf("expected empty override documents to supersede by default")
	}
	if cfg.Remote.ListingURL != defaultListingURL {
		t.Errorf("unexpected listing url %s", cfg.Remote.ListingURL)
	}
	if !cfg.Preload.Enabled || cfg.Preload.Watch {
		t.Errorf("unexpected preload defaults: %+v", cfg.Preload)
	}
	if cfg.Server.DevMode {
		t.Errorf("dev mode should default to off")
	}
	if cfg.Server.SecureCookies || cfg.Server.SessionTTL != 30*time.Minute {
		t.Errorf("unexpected session defaults: secure=%v ttl=%s", cfg.Server.SecureCookies, cfg.Server.SessionTTL)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                                    "9000",
		"WEB_DEV":                                 "1",
		"WEB_SITE_BASE_URL":                       "https://example.com/site/",
		"WEB_CATALOG_PREVIEW":                     "3",
		"WEB_CATALOG_EMPTY_OVERRIDES_FALLTHROUGH": "yes",
		"WEB_REMOTE_RAW_BASE_URL":                 "https://raw.example.com/repo/",
		"WEB_NAV_SETTLE":                          "0s",
		"LOG_LEVEL":                               "debug",
	}
	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("expected PORT fallback, got %s", cfg.Server.Port)
	}
	if !cfg.Server.DevMode || !cfg.Preload.Watch {
		t.Errorf("expected dev mode to enable watching: %+v %+v", cfg.Server, cfg.Preload)
	}
	if cfg.Site.BaseURL != "https://example.com/site" {
		t.Errorf("expected trimmed base url, got %s", cfg.Site.BaseURL)
	}
	if cfg.Catalog.PreviewCount != 3 || !cfg.Catalog.EmptyOverridesFallThrough {
		t.Errorf("unexpected catalog config %+v", cfg.Catalog)
	}
	if cfg.Remote.RawBaseURL != "https://raw.example.com/repo" {
		t.Errorf("unexpected raw base %s", cfg.Remote.RawBaseURL)
	}
	if cfg.Nav.Settle != 0 {
		t.Errorf("expected zero settle, got %s", cfg.Nav.Settle)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unexpected log level %s", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"WEB_REMOTE_BATCH_SIZE": "0",
		"WEB_CATALOG_PREVIEW":   "-1",
	}
	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := verr.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected two invalid fields, got %v", fields)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport WEB_PORT=7070\nWEB_SITE_DIR='public/site'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	cfg, err := Load(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"WEB_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("explicit map should win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Site.Dir != "public/site" {
		t.Errorf("expected dotenv site dir, got %s", cfg.Site.Dir)
	}
}
