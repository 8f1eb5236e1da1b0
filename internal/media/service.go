package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/stafflink/wabridge/internal/db"
	"github.com/stafflink/wabridge/internal/storage"
	"github.com/stafflink/wabridge/internal/whatsapp"
)

// ErrNotFound indicates no media row exists for the message.
var ErrNotFound = errors.New("media not found")

// Service fetches provider media and relocates it into durable storage.
type Service struct {
	db       dbpkg.Querier
	client   GraphClient
	provider storage.Provider
	logger   *slog.Logger
}

func NewService(log *slog.Logger, db dbpkg.Querier, client GraphClient, provider storage.Provider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:       db,
		client:   client,
		provider: provider,
		logger:   log.With(slog.String("service", "media")),
	}
}

// Relocate resolves the media reference, downloads the binary, re-uploads it
// to durable storage under the owning message, and records the media row.
// The message is already committed when this runs; any failure is logged and
// swallowed. Metadata resolution failing means no row is written; download or
// upload failing still records whatever metadata was obtained, with an empty
// storage URL.
func (s *Service) Relocate(ctx context.Context, messageID string, ref whatsapp.MediaRef) {
	if strings.TrimSpace(ref.ID) == "" {
		return
	}
	log := s.logger.With(
		slog.String("message_id", messageID),
		slog.String("wa_media_id", ref.ID),
	)

	info, err := s.client.MediaInfo(ctx, ref.ID)
	if err != nil {
		log.Warn("media info fetch failed", slog.Any("error", err))
		return
	}

	mimeType := firstNonEmpty(info.MimeType, ref.MimeType)
	fileName := strings.TrimSpace(ref.Filename)
	if fileName == "" {
		fileName = ref.ID + ExtensionForMime(mimeType)
	}

	storageURL := ""
	fileSize := info.FileSize
	data, contentType, err := s.client.Download(ctx, info.URL)
	if err != nil {
		log.Warn("media download failed", slog.Any("error", err))
	} else {
		if fileSize == 0 {
			fileSize = int64(len(data))
		}
		if mimeType == "" {
			mimeType = contentType
		}
		key := path.Join(messageID, fileName)
		if err := s.provider.Put(ctx, key, bytes.NewReader(data)); err != nil {
			log.Warn("media upload failed", slog.Any("error", err))
		} else {
			storageURL = s.provider.AccessPath(key)
		}
	}

	if err := s.insert(ctx, messageID, ref, info, mimeType, fileName, fileSize, storageURL); err != nil {
		log.Warn("media record insert failed", slog.Any("error", err))
		return
	}
	log.Debug("media relocated", slog.String("storage_url", storageURL))
}

func (s *Service) insert(
	ctx context.Context,
	messageID string,
	ref whatsapp.MediaRef,
	info whatsapp.MediaInfo,
	mimeType, fileName string,
	fileSize int64,
	storageURL string,
) error {
	pgMessageID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}
	sha := firstNonEmpty(info.Sha256, ref.Sha256)
	_, err = s.db.Exec(ctx, `
		INSERT INTO wa_media (message_id, wa_media_id, mime_type, file_name, file_size, sha256, storage_url, caption)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO NOTHING`,
		pgMessageID,
		ref.ID,
		dbpkg.Text(mimeType),
		dbpkg.Text(fileName),
		nullableInt8(fileSize),
		dbpkg.Text(sha),
		dbpkg.Text(storageURL),
		dbpkg.Text(ref.Caption),
	)
	return err
}

// GetByMessageID returns the media row attached to a message.
func (s *Service) GetByMessageID(ctx context.Context, messageID string) (Media, error) {
	pgMessageID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return Media{}, fmt.Errorf("invalid message id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, message_id, wa_media_id, mime_type, file_name, file_size, sha256, storage_url, caption, created_at
		FROM wa_media WHERE message_id = $1`, pgMessageID)
	var (
		id         pgtype.UUID
		msgID      pgtype.UUID
		mime       pgtype.Text
		fileName   pgtype.Text
		fileSize   pgtype.Int8
		sha        pgtype.Text
		storageURL pgtype.Text
		caption    pgtype.Text
		createdAt  pgtype.Timestamptz
		media      Media
	)
	if err := row.Scan(&id, &msgID, &media.WaMediaID, &mime, &fileName,
		&fileSize, &sha, &storageURL, &caption, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Media{}, ErrNotFound
		}
		return Media{}, err
	}
	media.ID = dbpkg.UUIDToString(id)
	media.MessageID = dbpkg.UUIDToString(msgID)
	media.MimeType = dbpkg.TextToString(mime)
	media.FileName = dbpkg.TextToString(fileName)
	if fileSize.Valid {
		media.FileSize = fileSize.Int64
	}
	media.Sha256 = dbpkg.TextToString(sha)
	media.StorageURL = dbpkg.TextToString(storageURL)
	media.Caption = dbpkg.TextToString(caption)
	media.CreatedAt = createdAt.Time
	return media, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nullableInt8(v int64) pgtype.Int8 {
	if v == 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: v, Valid: true}
}
