package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alphadroid.org/devices-web/internal/source"
)

const defaultBatchSize = 6

// ListingItem is one entry of the remote directory listing.
type ListingItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	HTMLURL     string `json:"html_url"`
}

// IsDeviceFile reports whether the item is a JSON file.
func (i ListingItem) IsDeviceFile() bool {
	return i.Type == "file" && strings.HasSuffix(strings.ToLower(i.Name), ".json")
}

// Remote talks to the external repository's listing and raw-content endpoints.
type Remote struct {
	ListingURL string
	RawBaseURL string
	BatchSize  int
	HTTP       *source.HTTP
	Logger     *zap.Logger
}

// List fetches the directory listing and keeps JSON files only.
func (r *Remote) List(ctx context.Context) ([]ListingItem, error) {
	if r == nil || strings.TrimSpace(r.ListingURL) == "" {
		return nil, fmt.Errorf("catalog: remote listing not configured")
	}
	doc, err := r.HTTP.FetchURL(ctx, r.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: list remote: %w", err)
	}
	var items []ListingItem
	if err := json.Unmarshal(doc.Body, &items); err != nil {
		return nil, fmt.Errorf("catalog: decode remote listing: %w", err)
	}
	out := items[:0]
	for _, it := range items {
		if it.IsDeviceFile() {
			out = append(out, it)
		}
	}
	return out, nil
}

// FetchAll fetches every listed file in sequential batches, each batch running
// its requests concurrently. Failed files are logged and dropped; the order of
// the result follows the listing.
func (r *Remote) FetchAll(ctx context.Context, items []ListingItem) []Raw {
	size := r.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	logger := r.logger()
	results := make([]*Raw, len(items))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			item := items[i]
			g.Go(func() error {
				endpoint := item.DownloadURL
				if endpoint == "" {
					endpoint = item.HTMLURL
				}
				raw, err := r.fetchFile(ctx, item.Name, endpoint)
				if err != nil {
					logger.Warn("device file fetch failed", zap.String("file", item.Name), zap.Error(err))
					return nil
				}
				results[i] = &raw
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			break
		}
	}
	out := make([]Raw, 0, len(items))
	for _, raw := range results {
		if raw != nil {
			out = append(out, *raw)
		}
	}
	return out
}

// FetchDevice fetches <raw base>/<codename>.json.
func (r *Remote) FetchDevice(ctx context.Context, codename string) (Raw, error) {
	if r == nil || strings.TrimSpace(r.RawBaseURL) == "" {
		return Raw{}, fmt.Errorf("catalog: remote raw base not configured")
	}
	name := codename + ".json"
	endpoint, err := url.JoinPath(r.RawBaseURL, url.PathEscape(name))
	if err != nil {
		return Raw{}, fmt.Errorf("catalog: join raw url: %w", err)
	}
	return r.fetchFile(ctx, name, endpoint)
}

func (r *Remote) fetchFile(ctx context.Context, name, endpoint string) (Raw, error) {
	if endpoint == "" {
		return Raw{}, fmt.Errorf("catalog: %s has no download url", name)
	}
	doc, err := r.HTTP.FetchURL(ctx, endpoint)
	if err != nil {
		return Raw{}, err
	}
	return DecodeFile(name, endpoint, doc.LastModified, doc.Body)
}

func (r *Remote) logger() *zap.Logger {
	if r == nil || r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
