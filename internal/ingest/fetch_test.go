package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testFetcher(client *http.Client) *Fetcher {
	f := NewFetcher(client)
	f.InitialInterval = time.Millisecond
	f.MaxElapsed = time.Second
	return f
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "pvclearsky/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testFetcher(srv.Client()).Fetch(context.Background(), srv.URL+"/metadata.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestFetch_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(srv.Client()).Fetch(context.Background(), srv.URL+"/missing.csv")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := testFetcher(nil).Fetch(context.Background(), "s3://bucket/metadata.csv")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("err = %v, want ErrUnsupportedScheme", err)
	}
}

func TestFetchDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	paths, err := testFetcher(srv.Client()).FetchDataset(context.Background(), srv.URL+"/pvod/", []string{"metadata.csv", "station00.csv"}, dir)
	if err != nil {
		t.Fatalf("FetchDataset: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2", len(paths))
	}

	b, err := os.ReadFile(filepath.Join(dir, "station00.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "file:/pvod/station00.csv" {
		t.Errorf("content = %q", b)
	}
}

func TestDefaultFiles(t *testing.T) {
	files := DefaultFiles()
	if len(files) != 11 {
		t.Fatalf("len = %d, want 11", len(files))
	}
	if files[0] != MetadataFile || files[10] != "station09.csv" {
		t.Errorf("files = %v", files)
	}
}
