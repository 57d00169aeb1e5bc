package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultHandlerTimeout  = 30 * time.Second
	defaultTemplatesDir    = "templates"
	defaultPublicDir       = "public"
	defaultSiteDir         = "site"
	defaultLocalesDir      = "locales"
	defaultFallbackLocale  = "en"
	defaultPreviewCount    = 5
	defaultBatchSize       = 6
	defaultFetchTimeout    = 10 * time.Second
	defaultContentCacheTTL = 5 * time.Minute
	defaultNavSettle       = 400 * time.Millisecond
	defaultSearchDebounce  = 1000 * time.Millisecond
	defaultListingURL      = "https://api.github.com/repos/AlphaDroid-devices/OTA/contents/"
	defaultRawBaseURL      = "https://raw.githubusercontent.com/AlphaDroid-devices/OTA/master"
	defaultBlobBaseURL     = "https://github.com/AlphaDroid-devices/OTA/blob/master"
	defaultDownloadBaseURL = "https://sourceforge.net/projects/alphadroid-project/files"
	defaultCacheName       = "preload-v1"
	defaultLogLevel        = "info"
	defaultSessionTTL      = 30 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Site    SiteConfig
	Catalog CatalogConfig
	Remote  RemoteConfig
	Preload PreloadConfig
	Nav     NavConfig
	Search  SearchConfig
	Log     LogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	HandlerTimeout time.Duration
	TemplatesDir   string
	PublicDir      string
	LocalesDir     string
	FallbackLocale string
	DevMode        bool
	// SessionKey signs session cookies; empty generates a process-ephemeral key.
	SessionKey    string
	SecureCookies bool
	SessionTTL    time.Duration
}

// SiteConfig locates page fragments and data documents. When BaseURL is set,
// fragments and documents are fetched over HTTP; otherwise they are read from Dir.
type SiteConfig struct {
	Dir             string
	BaseURL         string
	LocalFile       bool
	ContentCacheTTL time.Duration
}

// CatalogConfig tunes the catalog source chain.
type CatalogConfig struct {
	PreviewCount              int
	EmptyOverridesFallThrough bool
	FetchTimeout              time.Duration
	DownloadBaseURL           string
	BlobBaseURL               string
}

// RemoteConfig points at the upstream device repository.
type RemoteConfig struct {
	ListingURL string
	RawBaseURL string
	BatchSize  int
	UserAgent  string
	Token      string
}

// PreloadConfig controls the warm cache and the named storage cache.
type PreloadConfig struct {
	Enabled   bool
	CachePath string
	CacheName string
	Watch     bool
}

// NavConfig tunes navigation transitions.
type NavConfig struct {
	Settle time.Duration
}

// SearchConfig tunes the search controller.
type SearchConfig struct {
	Debounce time.Duration
}

// LogConfig controls logging.
type LogConfig struct {
	Level string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	// Port resolution mirrors Cloud Run: WEB_PORT, then PORT, else 8080.
	port := stringWithDefault(lookup, "WEB_PORT", "")
	if port == "" {
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	devMode := boolWithDefault(lookup, "WEB_DEV", false) || boolWithDefault(lookup, "DEV", false)

	cfg := Config{
		Server: ServerConfig{
			Port:           port,
			ReadTimeout:    durationWithDefault(lookup, "WEB_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "WEB_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "WEB_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			HandlerTimeout: durationWithDefault(lookup, "WEB_SERVER_HANDLER_TIMEOUT", defaultHandlerTimeout),
			TemplatesDir:   stringWithDefault(lookup, "WEB_TEMPLATES_DIR", defaultTemplatesDir),
			PublicDir:      stringWithDefault(lookup, "WEB_PUBLIC_DIR", defaultPublicDir),
			LocalesDir:     stringWithDefault(lookup, "WEB_LOCALES_DIR", defaultLocalesDir),
			FallbackLocale: strings.ToLower(stringWithDefault(lookup, "WEB_FALLBACK_LOCALE", defaultFallbackLocale)),
			DevMode:        devMode,
			SessionKey:     stringWithDefault(lookup, "WEB_SESSION_SIGNING_KEY", ""),
			SecureCookies:  strings.EqualFold(stringWithDefault(lookup, "WEB_ENV", ""), "prod"),
			SessionTTL:     durationWithDefault(lookup, "WEB_SESSION_TTL", defaultSessionTTL),
		},
		Site: SiteConfig{
			Dir:             stringWithDefault(lookup, "WEB_SITE_DIR", defaultSiteDir),
			BaseURL:         strings.TrimRight(stringWithDefault(lookup, "WEB_SITE_BASE_URL", ""), "/"),
			LocalFile:       boolWithDefault(lookup, "WEB_SITE_LOCAL_FILE", false),
			ContentCacheTTL: durationWithDefault(lookup, "WEB_CONTENT_CACHE_TTL", defaultContentCacheTTL),
		},
		Catalog: CatalogConfig{
			PreviewCount:              intWithDefault(lookup, "WEB_CATALOG_PREVIEW", defaultPreviewCount),
			EmptyOverridesFallThrough: boolWithDefault(lookup, "WEB_CATALOG_EMPTY_OVERRIDES_FALLTHROUGH", false),
			FetchTimeout:              durationWithDefault(lookup, "WEB_CATALOG_FETCH_TIMEOUT", defaultFetchTimeout),
			DownloadBaseURL:           strings.TrimRight(stringWithDefault(lookup, "WEB_CATALOG_DOWNLOAD_BASE_URL", defaultDownloadBaseURL), "/"),
			BlobBaseURL:               strings.TrimRight(stringWithDefault(lookup, "WEB_CATALOG_BLOB_BASE_URL", defaultBlobBaseURL), "/"),
		},
		Remote: RemoteConfig{
			ListingURL: stringWithDefault(lookup, "WEB_REMOTE_LISTING_URL", defaultListingURL),
			RawBaseURL: strings.TrimRight(stringWithDefault(lookup, "WEB_REMOTE_RAW_BASE_URL", defaultRawBaseURL), "/"),
			BatchSize:  intWithDefault(lookup, "WEB_REMOTE_BATCH_SIZE", defaultBatchSize),
			UserAgent:  stringWithDefault(lookup, "WEB_REMOTE_USER_AGENT", "alphadroid-devices-web"),
			Token:      stringWithDefault(lookup, "WEB_REMOTE_TOKEN", ""),
		},
		Preload: PreloadConfig{
			Enabled:   boolWithDefault(lookup, "WEB_PRELOAD", true),
			CachePath: stringWithDefault(lookup, "WEB_PRELOAD_CACHE_PATH", ""),
			CacheName: stringWithDefault(lookup, "WEB_PRELOAD_CACHE_NAME", defaultCacheName),
			Watch:     boolWithDefault(lookup, "WEB_PRELOAD_WATCH", devMode),
		},
		Nav: NavConfig{
			Settle: durationWithDefault(lookup, "WEB_NAV_SETTLE", defaultNavSettle),
		},
		Search: SearchConfig{
			Debounce: durationWithDefault(lookup, "WEB_SEARCH_DEBOUNCE", defaultSearchDebounce),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	return ":" + c.Server.Port
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Site.Dir == "" && cfg.Site.BaseURL == "" {
		missing = append(missing, "Site.Dir")
	}
	if cfg.Catalog.PreviewCount < 0 {
		missing = append(missing, "Catalog.PreviewCount")
	}
	if cfg.Remote.BatchSize <= 0 {
		missing = append(missing, "Remote.BatchSize")
	}
	if cfg.Nav.Settle < 0 {
		missing = append(missing, "Nav.Settle")
	}
	if cfg.Search.Debounce < 0 {
		missing = append(missing, "Search.Debounce")
	}
	if cfg.Server.SessionTTL <= 0 {
		missing = append(missing, "Server.SessionTTL")
	}
	if strings.TrimSpace(cfg.Preload.CacheName) == "" {
		missing = append(missing, "Preload.CacheName")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(value, "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
