// Package contracts fetches the exchange's instrument master, a gzipped
// JSON dump of every tradable contract. The file is large and refreshed
// daily, so it is streamed to disk rather than held in memory and only
// replaces the previous copy once fully extracted and validated.
package contracts

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultURL is the provider's complete instrument master.
const DefaultURL = "https://assets.upstox.com/market-quote/instruments/exchange/complete.json.gz"

// DefaultTimeout bounds the whole download and extraction.
const DefaultTimeout = 120 * time.Second

// Info describes the instrument master currently on disk.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient overrides the HTTP client used for the download.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

// WithURL overrides the instrument master location.
func WithURL(url string) Option {
	return func(d *Downloader) {
		d.url = url
	}
}

// WithTimeout overrides the overall download deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		d.timeout = timeout
	}
}

// Downloader streams the instrument master to a local JSON file.
type Downloader struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewDownloader creates a Downloader with the provider defaults.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		client:  http.DefaultClient,
		url:     DefaultURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches, extracts and validates the instrument master into
// destPath. The previous file, if any, stays in place until the new one is
// complete; a partial or invalid download never clobbers it.
func (d *Downloader) Download(ctx context.Context, destPath string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	slog.InfoContext(ctx, "downloading instrument master", "url", d.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return Info{}, fmt.Errorf("building download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("downloading instrument master: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("downloading instrument master: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
		return Info{}, fmt.Errorf("creating contracts directory: %w", err)
	}

	if err := extractTo(destPath, resp.Body); err != nil {
		return Info{}, err
	}

	info, err := Stat(destPath)
	if err != nil {
		return Info{}, err
	}
	slog.InfoContext(ctx, "instrument master updated", "path", info.Path, "size", info.Size)
	return info, nil
}

// extractTo decompresses the gzip stream into destPath via a temp file and
// rename, validating that the payload is well-formed JSON along the way.
func extractTo(destPath string, compressed io.Reader) error {
	gz, err := gzip.NewReader(compressed)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	// Validate while streaming: the decoder walks every token, so a
	// truncated or corrupt payload fails before the rename.
	decoder := json.NewDecoder(io.TeeReader(gz, tmp))
	for {
		if _, err := decoder.Token(); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("instrument master is not valid JSON: %w", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flushing instrument master: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("replacing instrument master: %w", err)
	}
	return nil
}

// Stat reports the instrument master currently on disk.
func Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("no instrument master at %s: %w", path, err)
	}
	return Info{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
