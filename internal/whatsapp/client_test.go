package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stafflink/wabridge/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(nil, config.WhatsAppConfig{
		AccessToken:    "token-123",
		APIBaseURL:     srv.URL,
		APIVersion:     "v23.0",
		TimeoutSeconds: 5,
	})
	return client, srv
}

func TestClientMediaInfo(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/media-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "media-1",
			"url": "https://lookaside.example/media-1",
			"mime_type": "image/jpeg",
			"sha256": "abc",
			"file_size": 1234
		}`))
	})

	info, err := client.MediaInfo(context.Background(), "media-1")
	if err != nil {
		t.Fatalf("MediaInfo() error: %v", err)
	}
	if info.URL != "https://lookaside.example/media-1" {
		t.Fatalf("MediaInfo() url = %q", info.URL)
	}
	if info.MimeType != "image/jpeg" || info.FileSize != 1234 {
		t.Fatalf("MediaInfo() = %+v", info)
	}
}

func TestClientMediaInfoErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mediaID string
		handler http.HandlerFunc
	}{
		{
			name:    "empty media id",
			mediaID: "",
			handler: func(w http.ResponseWriter, r *http.Request) {},
		},
		{
			name:    "non-200 status",
			mediaID: "media-1",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name:    "missing download url",
			mediaID: "media-1",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id": "media-1"}`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, _ := newTestClient(t, tt.handler)
			if _, err := client.MediaInfo(context.Background(), tt.mediaID); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestClientDownload(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("binary-bytes"))
	})

	data, contentType, err := client.Download(context.Background(), srv.URL+"/file")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if string(data) != "binary-bytes" {
		t.Fatalf("Download() data = %q", data)
	}
	if contentType != "image/png" {
		t.Fatalf("Download() content type = %q", contentType)
	}
}

func TestClientDownloadNon200(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if _, _, err := client.Download(context.Background(), srv.URL+"/file"); err == nil {
		t.Fatalf("expected error")
	}
}
