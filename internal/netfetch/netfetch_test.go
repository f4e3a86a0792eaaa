package netfetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchTooLarge(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), server.Client(), server.URL, Options{MaxBytes: 512})
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetchRejectsScheme(t *testing.T) {
	_, err := Fetch(context.Background(), http.DefaultClient, "file:///tmp/nope", Options{})
	if err != ErrInvalidURL {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestFetchFilename(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/photos/kerb.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		_, _ = w.Write([]byte("pdf"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/photos/kerb.jpg", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cases := map[string]string{
		"/photos/kerb.jpg": "kerb.jpg",
		"/download":        "report.pdf",
		"/moved":           "kerb.jpg",
	}
	for p, want := range cases {
		res, err := Fetch(context.Background(), server.Client(), server.URL+p, Options{})
		if err != nil {
			t.Fatalf("fetch %s: %v", p, err)
		}
		if res.Filename != want {
			t.Fatalf("fetch %s: expected filename %q, got %q", p, want, res.Filename)
		}
	}
}

func TestFetchTooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), server.Client(), server.URL+"/a", Options{MaxRedirects: 2})
	if err != ErrTooManyRedirects {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestFetchStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	if _, err := Fetch(context.Background(), server.Client(), server.URL, Options{}); err == nil {
		t.Fatalf("expected error for 404")
	}
}
