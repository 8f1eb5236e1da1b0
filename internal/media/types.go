// Package media relocates provider-hosted attachments into durable storage
// and records them alongside their message. The whole pipeline is
// best-effort: nothing here may fail the already-persisted message.
package media

import (
	"context"
	"strings"
	"time"

	"github.com/stafflink/wabridge/internal/whatsapp"
)

// Media is a stored attachment record, at most one per message.
type Media struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	WaMediaID  string    `json:"wa_media_id"`
	MimeType   string    `json:"mime_type,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	Sha256     string    `json:"sha256,omitempty"`
	StorageURL string    `json:"storage_url,omitempty"`
	Caption    string    `json:"caption,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GraphClient is the subset of the Cloud API client the relocator consumes.
type GraphClient interface {
	MediaInfo(ctx context.Context, mediaID string) (whatsapp.MediaInfo, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// mimeExtensions is the fixed MIME-to-extension table used when the provider
// supplies no filename.
var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"audio/aac":       ".aac",
	"audio/amr":       ".amr",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/ogg":       ".ogg",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"application/pdf": ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"text/plain": ".txt",
}

// ExtensionForMime returns the mapped file extension, ".bin" for unmapped
// types. Parameters after a semicolon (codecs etc.) are ignored.
func ExtensionForMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	return ".bin"
}
