// Package account maps provider phone identities to internal business
// accounts.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/stafflink/wabridge/internal/db"
)

// Account is one connected messaging phone identity.
type Account struct {
	ID                 string    `json:"id"`
	PhoneNumberID      string    `json:"phone_number_id"`
	BusinessAccountID  string    `json:"business_account_id"`
	DisplayPhoneNumber string    `json:"display_phone_number"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Service resolves accounts, provisioning placeholders for unseen phone
// identities.
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
		logger: log.With(slog.String("service", "account")),
	}
}

// Resolve returns the account for a phone-identity ID, creating a placeholder
// on first sight. The insert is an atomic upsert backed by the unique index
// on phone_number_id, so concurrent first deliveries converge on one row.
func (s *Service) Resolve(ctx context.Context, phoneNumberID, businessAccountID string) (Account, error) {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return Account{}, fmt.Errorf("phone number id is required")
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO wa_accounts (phone_number_id, business_account_id)
		VALUES ($1, $2)
		ON CONFLICT (phone_number_id) DO UPDATE SET updated_at = now()
		RETURNING id, phone_number_id, business_account_id, display_phone_number, is_active, created_at`,
		phoneNumberID, strings.TrimSpace(businessAccountID),
	)
	acct, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("resolve account: %w", err)
	}
	return acct, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		acct      Account
	)
	if err := row.Scan(&id, &acct.PhoneNumberID, &acct.BusinessAccountID,
		&acct.DisplayPhoneNumber, &acct.IsActive, &createdAt); err != nil {
		return Account{}, err
	}
	acct.ID = dbpkg.UUIDToString(id)
	acct.CreatedAt = createdAt.Time
	return acct, nil
}
