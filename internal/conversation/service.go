// Package conversation manages chat threads keyed by (account, external
// phone identity).
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/stafflink/wabridge/internal/candidate"
	dbpkg "github.com/stafflink/wabridge/internal/db"
)

// Conversation is one ongoing exchange with an external phone number.
type Conversation struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	WaID          string     `json:"wa_id"`
	PhoneNumber   string     `json:"phone_number"`
	ProfileName   string     `json:"profile_name,omitempty"`
	CandidateID   string     `json:"candidate_id,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ErrNotFound indicates the conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// CandidateDirectory is the read-only lookup used for auto-linking.
type CandidateDirectory interface {
	FindByPhone(ctx context.Context, digits string) (candidate.Candidate, error)
}

// Service resolves and maintains conversations.
type Service struct {
	db         dbpkg.Querier
	candidates CandidateDirectory
	logger     *slog.Logger
}

func NewService(log *slog.Logger, db dbpkg.Querier, candidates CandidateDirectory) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:         db,
		candidates: candidates,
		logger:     log.With(slog.String("service", "conversation")),
	}
}

const conversationColumns = `id, account_id, wa_id, phone_number, profile_name,
	candidate_id, unread_count, last_message_at, created_at`

// Resolve returns the conversation for (accountID, waID), creating it on
// first contact. A changed non-empty profile name on an existing thread is
// refreshed opportunistically; that update failing is logged, not fatal.
func (s *Service) Resolve(ctx context.Context, accountID, waID, profileName string) (Conversation, error) {
	waID = strings.TrimSpace(waID)
	if waID == "" {
		return Conversation{}, fmt.Errorf("wa id is required")
	}
	pgAccountID, err := dbpkg.ParseUUID(accountID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid account id: %w", err)
	}
	profileName = strings.TrimSpace(profileName)

	conv, err := s.getByWaID(ctx, pgAccountID, waID)
	switch {
	case err == nil:
		if profileName != "" && profileName != conv.ProfileName {
			if _, updateErr := s.db.Exec(ctx, `
				UPDATE wa_conversations SET profile_name = $2, updated_at = now() WHERE id = $1`,
				conv.ID, profileName,
			); updateErr != nil {
				s.logger.Warn("profile name refresh failed",
					slog.String("conversation_id", conv.ID),
					slog.Any("error", updateErr))
			} else {
				conv.ProfileName = profileName
			}
		}
		return conv, nil
	case !errors.Is(err, ErrNotFound):
		return Conversation{}, fmt.Errorf("lookup conversation: %w", err)
	}

	return s.create(ctx, pgAccountID, waID, profileName)
}

// create inserts a new conversation with a best-effort candidate auto-link.
// A concurrent duplicate delivery loses the insert race and falls back to the
// row the winner created.
func (s *Service) create(ctx context.Context, accountID pgtype.UUID, waID, profileName string) (Conversation, error) {
	var candidateID pgtype.UUID
	if s.candidates != nil {
		cand, err := s.candidates.FindByPhone(ctx, waID)
		switch {
		case err == nil:
			if parsed, parseErr := dbpkg.ParseUUID(cand.ID); parseErr == nil {
				candidateID = parsed
				s.logger.Info("auto-linked candidate",
					slog.String("wa_id", waID),
					slog.String("candidate_id", cand.ID))
			}
		case !errors.Is(err, candidate.ErrNotFound):
			s.logger.Warn("candidate lookup failed", slog.String("wa_id", waID), slog.Any("error", err))
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO wa_conversations (account_id, wa_id, phone_number, profile_name, candidate_id, last_message_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (account_id, wa_id) DO NOTHING
		RETURNING `+conversationColumns,
		accountID, waID, "+"+waID, dbpkg.Text(profileName), candidateID,
	)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	conv, err = s.getByWaID(ctx, accountID, waID)
	if err != nil {
		return Conversation{}, fmt.Errorf("fetch conversation after insert conflict: %w", err)
	}
	return conv, nil
}

// TouchInbound records an inbound message on the thread: unread counter up,
// last-message timestamp forward.
func (s *Service) TouchInbound(ctx context.Context, conversationID string, at time.Time) error {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, `
		UPDATE wa_conversations
		SET unread_count = unread_count + 1,
		    last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
		    updated_at = now()
		WHERE id = $1`,
		pgID, at,
	)
	return err
}

// MarkRead resets the unread counter.
func (s *Service) MarkRead(ctx context.Context, conversationID string) error {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE wa_conversations SET unread_count = 0, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one conversation by ID.
func (s *Service) Get(ctx context.Context, conversationID string) (Conversation, error) {
	pgID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM wa_conversations WHERE id = $1`, pgID)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return conv, err
}

// List returns conversations ordered by most recent activity.
func (s *Service) List(ctx context.Context, limit int32) ([]Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM wa_conversations
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conversations []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *Service) getByWaID(ctx context.Context, accountID pgtype.UUID, waID string) (Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM wa_conversations
		WHERE account_id = $1 AND wa_id = $2`,
		accountID, waID,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return conv, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		id            pgtype.UUID
		accountID     pgtype.UUID
		profileName   pgtype.Text
		candidateID   pgtype.UUID
		lastMessageAt pgtype.Timestamptz
		createdAt     pgtype.Timestamptz
		conv          Conversation
	)
	if err := row.Scan(&id, &accountID, &conv.WaID, &conv.PhoneNumber,
		&profileName, &candidateID, &conv.UnreadCount, &lastMessageAt, &createdAt); err != nil {
		return Conversation{}, err
	}
	conv.ID = dbpkg.UUIDToString(id)
	conv.AccountID = dbpkg.UUIDToString(accountID)
	conv.ProfileName = dbpkg.TextToString(profileName)
	conv.CandidateID = dbpkg.UUIDToString(candidateID)
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}
	conv.CreatedAt = createdAt.Time
	return conv, nil
}
