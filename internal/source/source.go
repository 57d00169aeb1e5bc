// Package source fetches site documents (page fragments, aggregate JSON) from a
// local directory or an HTTP origin behind one interface.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("source: document not found")

// maxDocumentBytes caps a single document read.
const maxDocumentBytes = 16 << 20

// Document is a fetched document plus the transport's last-modified signal.
type Document struct {
	Path         string
	Body         []byte
	LastModified *time.Time
}

// Fetcher resolves a site-relative path to a document.
type Fetcher interface {
	Fetch(ctx context.Context, p string) (Document, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned status %d", e.URL, e.Code)
}

// CleanPath normalises a site-relative path and rejects traversal.
func CleanPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean(p)
	if clean == "." || !fs.ValidPath(clean) {
		return "", false
	}
	return clean, true
}

// Dir serves documents from a filesystem, typically os.DirFS(siteDir).
type Dir struct {
	FS fs.FS
}

// NewDir returns a Dir over fsys.
func NewDir(fsys fs.FS) *Dir {
	return &Dir{FS: fsys}
}

// Fetch reads p from the filesystem. The file's modification time is reported
// as LastModified.
func (d *Dir) Fetch(ctx context.Context, p string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if d == nil || d.FS == nil {
		return Document{}, ErrNotFound
	}
	clean, ok := CleanPath(p)
	if !ok {
		return Document{}, ErrNotFound
	}
	data, err := fs.ReadFile(d.FS, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("source: read %s: %w", clean, err)
	}
	doc := Document{Path: clean, Body: data}
	if info, statErr := fs.Stat(d.FS, clean); statErr == nil && !info.ModTime().IsZero() {
		mod := info.ModTime().UTC()
		doc.LastModified = &mod
	}
	return doc, nil
}

// HTTP fetches documents relative to BaseURL, or absolute URLs via FetchURL.
type HTTP struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
	Token     string
	Accept    string
}

// NewHTTP returns an HTTP source with a bounded client timeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Fetch resolves p against BaseURL.
func (h *HTTP) Fetch(ctx context.Context, p string) (Document, error) {
	if h == nil || h.BaseURL == "" {
		return Document{}, ErrNotFound
	}
	clean, ok := CleanPath(p)
	if !ok {
		return Document{}, ErrNotFound
	}
	endpoint, err := url.JoinPath(h.BaseURL, clean)
	if err != nil {
		return Document{}, fmt.Errorf("source: join %s: %w", clean, err)
	}
	doc, err := h.FetchURL(ctx, endpoint)
	if err != nil {
		return Document{}, err
	}
	doc.Path = clean
	return doc, nil
}

// FetchURL performs a GET against an absolute URL.
func (h *HTTP) FetchURL(ctx context.Context, endpoint string) (Document, error) {
	client := http.DefaultClient
	if h != nil && h.Client != nil {
		client = h.Client
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, err
	}
	if h != nil {
		if h.Accept != "" {
			req.Header.Set("Accept", h.Accept)
		}
		if h.UserAgent != "" {
			req.Header.Set("User-Agent", h.UserAgent)
		}
		if h.Token != "" {
			req.Header.Set("Authorization", "Bearer "+h.Token)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Document{}, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return Document{}, &StatusError{URL: endpoint, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return Document{}, fmt.Errorf("source: read %s: %w", endpoint, err)
	}
	doc := Document{Path: endpoint, Body: body}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			t = t.UTC()
			doc.LastModified = &t
		}
	}
	return doc, nil
}

// Chain tries each fetcher in order and returns the first document found.
type Chain []Fetcher

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, p string) (Document, error) {
	var errs []error
	for _, f := range c {
		if f == nil {
			continue
		}
		doc, err := f.Fetch(ctx, p)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return Document{}, ErrNotFound
	}
	return Document{}, errors.Join(errs...)
}
