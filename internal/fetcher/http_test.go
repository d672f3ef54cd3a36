package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleFeed = `<ExrateList><DateTime>12/31/2023 11:59:59 PM</DateTime></ExrateList>`

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchWritesFile(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "feed")
	h := NewHTTP(HTTPOptions{
		URL:       srv.URL,
		OutputDir: dir,
		FileName:  "vcb.xml",
		Timeout:   time.Second,
		UserAgent: "raterelay-test",
	}, noopLogger())

	path, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("下载成功时不应报错: %v", err)
	}
	if path != filepath.Join(dir, "vcb.xml") {
		t.Fatalf("unexpected path %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if string(raw) != sampleFeed {
		t.Fatalf("文件内容不一致: %s", raw)
	}
	if ua != "raterelay-test" {
		t.Fatalf("应发送配置的 User-Agent, 实际 %q", ua)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("临时文件应被清理, 实际 %d 个文件", len(entries))
	}
}

func TestFetchOverwritesPreviousCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vcb.xml"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewHTTP(HTTPOptions{URL: srv.URL, OutputDir: dir, FileName: "vcb.xml"}, noopLogger())
	path, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != sampleFeed {
		t.Fatalf("旧文件应被覆盖")
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	h := NewHTTP(HTTPOptions{URL: srv.URL, OutputDir: dir}, noopLogger())
	_, err := h.Fetch(context.Background())
	if err == nil {
		t.Fatal("HTTP 503 应返回错误")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "maintenance") {
		t.Fatalf("错误信息应包含状态码和响应内容: %v", err)
	}
	if _, statErr := os.Stat(h.Path()); !os.IsNotExist(statErr) {
		t.Fatal("失败时不应写入文件")
	}
}

func TestNewHTTPDefaults(t *testing.T) {
	h := NewHTTP(HTTPOptions{}, noopLogger())
	if h.opts.URL != DefaultFeedURL {
		t.Fatalf("默认 URL 不正确: %s", h.opts.URL)
	}
	if h.Path() != "vcb_rate.xml" {
		t.Fatalf("默认文件名不正确: %s", h.Path())
	}
}
