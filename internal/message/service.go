package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/stafflink/wabridge/internal/db"
	"github.com/stafflink/wabridge/internal/whatsapp"
)

// ErrNotFound indicates the message does not exist.
var ErrNotFound = errors.New("message not found")

// Service persists messages and applies delivery-state transitions.
type Service struct {
	db     dbpkg.Querier
	logger *slog.Logger
}

func NewService(log *slog.Logger, db dbpkg.Querier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:     db,
		logger: log.With(slog.String("service", "message")),
	}
}

const messageColumns = `id, conversation_id, wamid, direction, message_type, status,
	body, sent_at, delivered_at, read_at, failed_at, error_code, error_message, created_at`

// Ingest stores one inbound message. Deduplication is by provider message ID
// (wamid): a known wamid is skipped, and a concurrent duplicate losing the
// insert race lands on the same branch via the unique index. The second
// return value reports whether a new row was inserted.
func (s *Service) Ingest(ctx context.Context, conversationID string, in whatsapp.InboundMessage) (Message, bool, error) {
	wamid := strings.TrimSpace(in.Message.ID)
	if wamid == "" {
		return Message{}, false, fmt.Errorf("provider message id is required")
	}
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Message{}, false, fmt.Errorf("invalid conversation id: %w", err)
	}

	if existing, err := s.GetByWAMID(ctx, wamid); err == nil {
		s.logger.Info("duplicate message skipped", slog.String("wamid", wamid))
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Message{}, false, fmt.Errorf("dedup lookup: %w", err)
	}

	raw := in.Raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	body := ExtractBody(in.Message)
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
		INSERT INTO wa_messages (conversation_id, wamid, direction, message_type, status, body, sent_at, delivered_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wamid) DO NOTHING
		RETURNING `+messageColumns,
		pgConversationID,
		wamid,
		string(DirectionInbound),
		string(MapContentType(in.Message.Type)),
		string(StatusDelivered),
		dbpkg.Text(body),
		dbpkg.Timestamptz(in.Message.SentAt()),
		now,
		raw,
	)
	msg, err := scanMessage(row)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	// Lost the race against a concurrent duplicate delivery.
	existing, err := s.GetByWAMID(ctx, wamid)
	if err != nil {
		return Message{}, false, fmt.Errorf("fetch message after insert conflict: %w", err)
	}
	s.logger.Info("duplicate message skipped", slog.String("wamid", wamid))
	return existing, false, nil
}

// statusColumns maps a provider status to the timestamp column it fills.
var statusColumns = map[string]string{
	string(StatusSent):      "sent_at",
	string(StatusDelivered): "delivered_at",
	string(StatusRead):      "read_at",
	string(StatusFailed):    "failed_at",
}

// ApplyStatus applies one delivery-state update by provider message ID.
// Monotonicity is not enforced: the status field is last-write-wins and
// timestamp columns of skipped intermediate states stay unset. A status for
// an unknown wamid is informational, not an error.
func (s *Service) ApplyStatus(ctx context.Context, status whatsapp.Status) error {
	wamid := strings.TrimSpace(status.ID)
	if wamid == "" {
		return fmt.Errorf("provider message id is required")
	}
	column, ok := statusColumns[status.Status]
	if !ok {
		s.logger.Warn("unrecognized delivery status ignored",
			slog.String("wamid", wamid),
			slog.String("status", status.Status))
		return nil
	}

	occurredAt := status.OccurredAt()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var (
		tag pgconn.CommandTag
		err error
	)
	if status.Status == string(StatusFailed) {
		code, errMsg := firstError(status.Errors)
		tag, err = s.db.Exec(ctx, `
			UPDATE wa_messages
			SET status = $2, failed_at = $3, error_code = $4, error_message = $5
			WHERE wamid = $1`,
			wamid, status.Status, occurredAt, toNullableInt(code), dbpkg.Text(errMsg),
		)
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE wa_messages SET status = $2, `+column+` = $3 WHERE wamid = $1`,
			wamid, status.Status, occurredAt,
		)
	}
	if err != nil {
		return fmt.Errorf("apply status %s: %w", status.Status, err)
	}
	if tag.RowsAffected() == 0 {
		// Status arrived before ingestion, or for a message never tracked
		// (template sends outside this flow). No retry is scheduled.
		s.logger.Info("status update for unknown message",
			slog.String("wamid", wamid),
			slog.String("status", status.Status))
	}
	return nil
}

// GetByWAMID returns a message by its provider message ID.
func (s *Service) GetByWAMID(ctx context.Context, wamid string) (Message, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM wa_messages WHERE wamid = $1`, wamid)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

// ListByConversation returns a conversation's messages oldest-first.
func (s *Service) ListByConversation(ctx context.Context, conversationID string, limit int32) ([]Message, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM wa_messages
		WHERE conversation_id = $1
		ORDER BY created_at
		LIMIT $2`, pgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func firstError(errs []whatsapp.APIError) (int, string) {
	if len(errs) == 0 {
		return 0, ""
	}
	first := errs[0]
	msg := first.Message
	if msg == "" {
		msg = first.Title
	}
	return first.Code, msg
}

func toNullableInt(v int) pgtype.Int4 {
	if v == 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(v), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		id             pgtype.UUID
		conversationID pgtype.UUID
		body           pgtype.Text
		sentAt         pgtype.Timestamptz
		deliveredAt    pgtype.Timestamptz
		readAt         pgtype.Timestamptz
		failedAt       pgtype.Timestamptz
		errorCode      pgtype.Int4
		errorMessage   pgtype.Text
		createdAt      pgtype.Timestamptz
		msg            Message
	)
	if err := row.Scan(&id, &conversationID, &msg.WAMID, &msg.Direction, &msg.Type,
		&msg.Status, &body, &sentAt, &deliveredAt, &readAt, &failedAt,
		&errorCode, &errorMessage, &createdAt); err != nil {
		return Message{}, err
	}
	msg.ID = dbpkg.UUIDToString(id)
	msg.ConversationID = dbpkg.UUIDToString(conversationID)
	msg.Body = dbpkg.TextToString(body)
	msg.SentAt = timePtr(sentAt)
	msg.DeliveredAt = timePtr(deliveredAt)
	msg.ReadAt = timePtr(readAt)
	msg.FailedAt = timePtr(failedAt)
	if errorCode.Valid {
		msg.ErrorCode = int(errorCode.Int32)
	}
	msg.ErrorMessage = dbpkg.TextToString(errorMessage)
	msg.CreatedAt = createdAt.Time
	return msg, nil
}

func timePtr(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
