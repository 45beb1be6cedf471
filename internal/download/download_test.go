package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
)

func TestIsYouTubeURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc123", true},
		{"https://youtube.com/watch?v=abc123", true},
		{"https://youtu.be/abc123", true},
		{"https://m.youtube.com/watch?v=abc123", true},
		{"https://music.youtube.com/watch?v=abc123", true},
		{"https://vimeo.com/12345", false},
		{"https://example.com/youtube.com/video.mp4", false},
		{"not a url at all ://", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsYouTubeURL(tc.url); got != tc.want {
			t.Errorf("IsYouTubeURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestHTTPDownload(t *testing.T) {
	payload := strings.Repeat("x", 100*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	var lastCurrent, lastTotal int64
	d := NewHTTPDownloader()
	path, res, err := d.Download(context.Background(), srv.URL+"/media/talk.mp4", t.TempDir(),
		func(current, total int64) {
			lastCurrent, lastTotal = current, total
		})
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if !strings.HasSuffix(path, "talk.mp4") {
		t.Errorf("path = %s, want name from url", path)
	}
	if res.Title != "talk" {
		t.Errorf("title = %q, want talk", res.Title)
	}
	if lastCurrent != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Errorf("final progress = %d/%d, want %d/%d", lastCurrent, lastTotal, len(payload), len(payload))
	}
}

func TestHTTPDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	d := NewHTTPDownloader()
	if _, _, err := d.Download(context.Background(), srv.URL+"/missing.mp4", t.TempDir(), nil); err == nil {
		t.Fatal("expected error for 404")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := d.Download(ctx, srv.URL+"/missing.mp4", t.TempDir(), nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestDeriveFilename(t *testing.T) {
	if got := deriveFilename("https://cdn.example.com/a/b/lecture.webm"); got != "lecture.webm" {
		t.Errorf("deriveFilename = %q, want lecture.webm", got)
	}
	// A bare host has no usable path component; a generated name is used.
	if got := deriveFilename("https://cdn.example.com/"); !strings.HasPrefix(got, "source-") {
		t.Errorf("deriveFilename = %q, want generated source-* name", got)
	}
}
