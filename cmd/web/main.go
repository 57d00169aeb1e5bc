package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/catalog"
	"alphadroid.org/devices-web/internal/config"
	"alphadroid.org/devices-web/internal/content"
	"alphadroid.org/devices-web/internal/i18n"
	mw "alphadroid.org/devices-web/internal/middleware"
	"alphadroid.org/devices-web/internal/nav"
	"alphadroid.org/devices-web/internal/observability"
	"alphadroid.org/devices-web/internal/preload"
	"alphadroid.org/devices-web/internal/render"
	"alphadroid.org/devices-web/internal/source"
)

var (
	templatesDir = "templates"
	publicDir    = "public"
	// devMode reparses templates on each request (WEB_DEV or DEV).
	devMode    bool
	tmplCache  *template.Template
	i18nBundle *i18n.Bundle
)

var supportedLocales = []string{"en", "ja"}

// app holds the wired services behind the HTTP handlers.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	holder   *preload.Holder
	resolver *content.Resolver
	chain    *catalog.Chain
	renderer *render.Renderer
	clients  *clients
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var addr string
	flag.StringVar(&addr, "addr", cfg.Addr(), "HTTP listen address")
	flag.StringVar(&cfg.Server.TemplatesDir, "templates", cfg.Server.TemplatesDir, "templates directory")
	flag.StringVar(&cfg.Server.PublicDir, "public", cfg.Server.PublicDir, "public assets directory")
	flag.StringVar(&cfg.Site.Dir, "site", cfg.Site.Dir, "site content directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, addr, logger); err != nil {
		logger.Fatal("web server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, addr string, logger *zap.Logger) error {
	templatesDir = cfg.Server.TemplatesDir
	publicDir = cfg.Server.PublicDir
	devMode = cfg.Server.DevMode

	bundle, err := i18n.Load(os.DirFS(cfg.Server.LocalesDir), cfg.Server.FallbackLocale, supportedLocales)
	if err != nil {
		return fmt.Errorf("load i18n: %w", err)
	}
	i18nBundle = bundle

	if !devMode {
		tc, err := parseTemplates()
		if err != nil {
			return fmt.Errorf("parse templates: %w", err)
		}
		tmplCache = tc
	}

	a, closeApp, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeApp()
	go a.clients.janitor(ctx, cfg.Server.SessionTTL/2)

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web listening", zap.String("addr", addr), zap.Bool("devMode", devMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// newApp wires the content and catalog sources. The returned func releases
// the storage cache.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, func(), error) {
	var site source.Fetcher
	if cfg.Site.BaseURL != "" {
		h := source.NewHTTP(cfg.Site.BaseURL, cfg.Catalog.FetchTimeout)
		h.UserAgent = cfg.Remote.UserAgent
		// Bundled pages cover a remote that is down.
		site = source.Chain{h, source.NewDir(os.DirFS(cfg.Site.Dir))}
	} else {
		site = source.NewDir(os.DirFS(cfg.Site.Dir))
	}

	var store *preload.Store
	if cfg.Preload.CachePath != "" {
		s, err := preload.OpenStore(ctx, cfg.Preload.CachePath, cfg.Preload.CacheName)
		if err != nil {
			return nil, nil, err
		}
		store = s
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close preload store", zap.Error(err))
		}
	}

	holder := &preload.Holder{}
	resolver := content.NewResolver(content.Options{
		Preloaded: holder,
		Site:      site,
		LocalFile: cfg.Site.LocalFile,
		CacheTTL:  cfg.Site.ContentCacheTTL,
		Logger:    logger.Named("content"),
	})

	warm := func(ctx context.Context) {
		c, err := preload.Bootstrap(ctx, site, store, logger.Named("preload"))
		if err != nil {
			logger.Warn("preload incomplete", zap.Error(err))
		}
		holder.Store(c)
		resolver.Invalidate()
		pages, records := c.Len()
		logger.Info("preload ready", zap.Int("pages", pages), zap.Int("records", records))
	}
	if cfg.Preload.Enabled {
		warm(ctx)
		if cfg.Preload.Watch && cfg.Site.BaseURL == "" {
			if err := preload.Watch(ctx, cfg.Site.Dir, preload.DefaultReloadDelay, warm, logger.Named("preload")); err != nil {
				logger.Warn("preload watch disabled", zap.Error(err))
			}
		}
	}

	remoteHTTP := source.NewHTTP("", cfg.Catalog.FetchTimeout)
	remoteHTTP.UserAgent = cfg.Remote.UserAgent
	remoteHTTP.Token = cfg.Remote.Token
	remoteHTTP.Accept = "application/vnd.github+json"

	chain := catalog.New(catalog.Options{
		Site:      site,
		Preloaded: holder,
		Remote: &catalog.Remote{
			ListingURL: cfg.Remote.ListingURL,
			RawBaseURL: cfg.Remote.RawBaseURL,
			BatchSize:  cfg.Remote.BatchSize,
			HTTP:       remoteHTTP,
			Logger:     logger.Named("remote"),
		},
		EmptyOverridesFallThrough: cfg.Catalog.EmptyOverridesFallThrough,
		DownloadBaseURL:           cfg.Catalog.DownloadBaseURL,
		BlobBaseURL:               cfg.Catalog.BlobBaseURL,
		Logger:                    logger.Named("catalog"),
	})

	renderer, err := render.NewRenderer(cfg.Catalog.BlobBaseURL)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	renderer.Debounce = cfg.Search.Debounce

	a := &app{
		cfg:      cfg,
		logger:   logger,
		holder:   holder,
		resolver: resolver,
		chain:    chain,
		renderer: renderer,
	}
	a.clients = newClients(cfg.Server.SessionTTL, a.newClient)
	return a, closeFn, nil
}

// newClient builds the per-session navigator and the catalog it loads grids into.
func (a *app) newClient() *client {
	cat := render.NewCatalog(a.chain, a.renderer, a.logger.Named("render"))
	return &client{
		catalog: cat,
		nav: nav.New(nav.Options{
			Fetcher:      a.resolver,
			Loader:       cat,
			Settle:       a.cfg.Nav.Settle,
			PreviewCount: a.cfg.Catalog.PreviewCount,
			Logger:       a.logger.Named("nav"),
		}),
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// If deployed behind a trusted reverse proxy/load balancer, RealIP will use
	// X-Forwarded-For to determine the client IP. Ensure only trusted proxies
	// can set these headers in production environments.
	r.Use(middleware.RealIP)
	r.Use(mw.HTMX)
	r.Use(mw.Session(mw.SessionOptions{
		SigningKey: []byte(a.cfg.Server.SessionKey),
		Secure:     a.cfg.Server.SecureCookies,
		MaxAge:     a.cfg.Server.SessionTTL,
		Logger:     a.logger,
	}))
	r.Use(mw.Locale(i18nBundle))
	r.Use(mw.Logger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(a.cfg.Server.HandlerTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/assets/*", http.StripPrefix("/assets", mw.AssetsWithCache(os.DirFS(filepath.Join(publicDir, "assets")), "")))
	if a.cfg.Site.BaseURL == "" {
		r.Handle("/images/*", http.StripPrefix("/images", mw.AssetsWithCache(os.DirFS(filepath.Join(a.cfg.Site.Dir, "images")), "")))
	}

	r.Get("/", a.HomeHandler)
	r.Get("/nav/{key}", a.NavHandler)
	r.Get("/devices", a.DevicesHandler)
	r.Get("/devices/search", a.SearchHandler)
	r.Get("/devices/{codename}", a.DetailHandler)
	return r
}

func parseTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"now": time.Now,
		"t": func(lang, key string) string {
			if i18nBundle == nil {
				return key
			}
			return i18nBundle.T(lang, key)
		},
		// JSON-LD payloads are produced by seo.JSON and emitted verbatim.
		"jsonld": func(s string) template.JS { return template.JS(s) },
	}
	// Recursively discover and parse all .tmpl files. Note: ParseGlob doesn't support **.
	var files []string
	if err := filepath.WalkDir(templatesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found under %s", templatesDir)
	}
	return template.New("_root").Funcs(funcMap).ParseFiles(files...)
}

// execute renders the named template. In dev mode, templates are reparsed on each request.
func execute(w http.ResponseWriter, status int, name string, data any) {
	var t *template.Template
	if devMode {
		tc, err := parseTemplates()
		if err != nil {
			http.Error(w, fmt.Sprintf("template parse error: %v", err), http.StatusInternalServerError)
			return
		}
		t = tc
	} else {
		t = tmplCache
	}
	if t == nil {
		http.Error(w, "template not initialized", http.StatusInternalServerError)
		return
	}
	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, fmt.Sprintf("template exec error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}
