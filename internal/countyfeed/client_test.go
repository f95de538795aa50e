package countyfeed

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taxlien/internal/config"
	"taxlien/internal/pipeline"
	"taxlien/internal/scoring"
	"taxlien/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: h}
}

const rollCSV = "Parcel,Amount Owed,Land Value\nA-1,1000,5000\nA-2,2500,9000\n"

func testConfig() config.Config {
	return config.Config{
		FeedURL:          "https://county.test/feeds/index.json",
		FeedToken:        "secret",
		FeedRateLimitRPS: 1000,
		FeedRefreshHours: 24,
		MinQualityScore:  50,
	}
}

func TestDownloadRetriesAndNamesFile(t *testing.T) {
	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Fatalf("auth=%q", r.Header.Get("Authorization"))
			}
			attempt++
			if attempt == 1 {
				return response(http.StatusServiceUnavailable, "", "busy"), nil
			}
			return response(http.StatusOK, "text/csv; charset=utf-8", rollCSV), nil
		}),
	}

	f, contentType, err := client.Download(context.Background(), "https://county.test/download?id=7")
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 || contentType != "text/csv" {
		t.Fatalf("attempt=%d type=%s", attempt, contentType)
	}
	if f.Name != "download.csv" || string(f.Content) != rollCSV {
		t.Fatalf("file=%s", f.Name)
	}
}

func TestDownloadPermanentError(t *testing.T) {
	attempt := 0
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempt++
			return response(http.StatusNotFound, "", "missing"), nil
		}),
	}
	if _, _, err := client.Download(context.Background(), "https://county.test/x.csv"); err == nil {
		t.Fatal("expected error")
	}
	if attempt != 1 {
		t.Fatalf("attempt=%d", attempt)
	}
}

func TestRefreshImportsManifest(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := testConfig()
	engine := scoring.NewEngine(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }, 1)
	svc := NewSyncService(db, cfg, pipeline.NewImportService(db, cfg, engine, nil), nil)

	var paths []string
	svc.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			paths = append(paths, r.URL.Path)
			switch r.URL.Path {
			case "/feeds/index.json":
				return response(http.StatusOK, "application/json", `{"files":[{"name":"north.csv","url":"north"},{"url":"/lists/south.csv"},{"name":"west.csv","url":"west"}]}`), nil
			case "/feeds/north", "/lists/south.csv":
				return response(http.StatusOK, "text/csv", rollCSV), nil
			case "/feeds/west":
				return response(http.StatusOK, "text/csv", "\n\n"), nil
			}
			return response(http.StatusNotFound, "", ""), nil
		}),
	}

	res, err := svc.Refresh(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Files != 3 || len(res.DatasetIDs) != 2 || res.Rejected != 1 || res.Skipped {
		t.Fatalf("res=%+v paths=%v", res, paths)
	}
	ds, err := db.GetDataset(res.DatasetIDs[0])
	if err != nil || ds.Filename != "north.csv" || ds.Source != "feed" {
		t.Fatalf("ds=%+v err=%v", ds, err)
	}

	res, err = svc.Refresh(context.Background(), false)
	if err != nil || !res.Skipped {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	res, err = svc.Refresh(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.DatasetIDs) != 2 || res.Rejected != 1 {
		t.Fatalf("forced res=%+v", res)
	}
}

func TestRefreshSkipsUnchangedFiles(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := testConfig()
	cfg.FeedURL = "https://county.test/roll.csv"
	cfg.FeedRefreshHours = 0
	svc := NewSyncService(db, cfg, pipeline.NewImportService(db, cfg, scoring.NewEngine(nil, 1), nil), nil)
	svc.client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusOK, "text/csv", rollCSV), nil
		}),
	}

	if res, err := svc.Refresh(context.Background(), false); err != nil || len(res.DatasetIDs) != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	res, err := svc.Refresh(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != 1 || len(res.DatasetIDs) != 0 {
		t.Fatalf("res=%+v", res)
	}
}

func TestRefreshRequiresURL(t *testing.T) {
	cfg := testConfig()
	cfg.FeedURL = ""
	svc := &SyncService{cfg: cfg}
	if _, err := svc.Refresh(context.Background(), false); err == nil {
		t.Fatal("expected error")
	}
}
