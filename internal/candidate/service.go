// Package candidate exposes the read-only CRM candidate directory consumed
// by the conversation resolver.
package candidate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/stafflink/wabridge/internal/db"
)

// Candidate is the directory subset the resolver needs.
type Candidate struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound indicates no candidate matched; a normal outcome for unknown
// numbers.
var ErrNotFound = errors.New("candidate not found")

// Service reads the candidate directory.
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
		logger: log.With(slog.String("service", "candidate")),
	}
}

// FindByPhone matches a candidate against the provider-format digits under
// three normalizations: "+<digits>", the raw digits, and the Swiss national
// form ("41791234567" -> "0791234567"). Best-effort: numbers outside the
// Swiss country code only match the first two variants.
func (s *Service) FindByPhone(ctx context.Context, digits string) (Candidate, error) {
	variants := PhoneVariants(digits)
	if len(variants) == 0 {
		return Candidate{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, full_name, phone, created_at
		FROM candidates
		WHERE phone = ANY($1)
		ORDER BY created_at
		LIMIT 1`,
		variants,
	)
	var (
		id        pgtype.UUID
		phone     pgtype.Text
		createdAt pgtype.Timestamptz
		cand      Candidate
	)
	if err := row.Scan(&id, &cand.FullName, &phone, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Candidate{}, ErrNotFound
		}
		return Candidate{}, err
	}
	cand.ID = dbpkg.UUIDToString(id)
	cand.Phone = dbpkg.TextToString(phone)
	cand.CreatedAt = createdAt.Time
	return cand, nil
}

// swissCountryCode is the only national format the heuristic rewrites.
const swissCountryCode = "41"

// PhoneVariants returns the normalized lookup forms for a provider-format
// number (digits only).
func PhoneVariants(digits string) []string {
	digits = strings.TrimSpace(digits)
	if digits == "" {
		return nil
	}
	variants := []string{"+" + digits, digits}
	if rest, ok := strings.CutPrefix(digits, swissCountryCode); ok && rest != "" {
		variants = append(variants, "0"+rest)
	}
	return variants
}
