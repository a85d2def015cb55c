package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/pvclearsky/internal/httputil"
	"github.com/lox/pvclearsky/internal/metrics"
)

var ErrUnsupportedScheme = errors.New("unsupported dataset url scheme")

// MetadataFile is the station metadata table of the dataset.
const MetadataFile = "metadata.csv"

// DefaultFiles lists the files of the published PVOD release.
func DefaultFiles() []string {
	files := []string{MetadataFile}
	for i := 0; i < 10; i++ {
		files = append(files, fmt.Sprintf("station%02d.csv", i))
	}
	return files
}

// Fetcher downloads dataset files over HTTP(S) or FTP with retries.
type Fetcher struct {
	client          *http.Client
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httputil.NewClient()
	}
	return &Fetcher{
		client:          client,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsed:      2 * time.Minute,
	}
}

func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.InitialInterval
	bo.MaxElapsedTime = f.MaxElapsed
	return backoff.WithContext(bo, ctx)
}

// Fetch downloads a single file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	start := time.Now()
	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = f.fetchHTTP(ctx, u.String())
	case "ftp":
		body, err = f.fetchFTP(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DatasetFetchesTotal.WithLabelValues(u.Scheme, status).Inc()
	metrics.DatasetFetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())
	return body, err
}

func (f *Fetcher) fetchHTTP(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := httputil.NewRequest(target)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", target, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, f.backOff(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}
	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	var body []byte
	operation := func() error {
		conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(user, pass); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}

		resp, err := conn.Retr(u.Path)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("ftp retr %s: %w", u.Path, err))
		}
		defer resp.Close()

		body, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, f.backOff(ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// FetchDataset downloads each named file from baseURL into dir and returns
// the written paths.
func (f *Fetcher) FetchDataset(ctx context.Context, baseURL string, names []string, dir string) ([]string, error) {
	if len(names) == 0 {
		names = DefaultFiles()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	base := strings.TrimSuffix(baseURL, "/")
	var paths []string
	for _, name := range names {
		body, err := f.Fetch(ctx, base+"/"+name)
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("fetched dataset file", "name", name, "bytes", len(body))
		paths = append(paths, path)
	}
	return paths, nil
}
