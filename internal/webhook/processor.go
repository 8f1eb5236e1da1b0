// Package webhook drives inbound webhook events through account,
// conversation, message, and media handling.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/stafflink/wabridge/internal/account"
	"github.com/stafflink/wabridge/internal/conversation"
	"github.com/stafflink/wabridge/internal/message"
	"github.com/stafflink/wabridge/internal/whatsapp"
)

// AccountResolver maps provider phone identities to accounts.
type AccountResolver interface {
	Resolve(ctx context.Context, phoneNumberID, businessAccountID string) (account.Account, error)
}

// ConversationResolver maps senders to conversation threads.
type ConversationResolver interface {
	Resolve(ctx context.Context, accountID, waID, profileName string) (conversation.Conversation, error)
	TouchInbound(ctx context.Context, conversationID string, at time.Time) error
}

// MessageStore ingests messages and applies status updates.
type MessageStore interface {
	Ingest(ctx context.Context, conversationID string, in whatsapp.InboundMessage) (message.Message, bool, error)
	ApplyStatus(ctx context.Context, status whatsapp.Status) error
}

// MediaRelocator moves provider media into durable storage, best-effort.
type MediaRelocator interface {
	Relocate(ctx context.Context, messageID string, ref whatsapp.MediaRef)
}

// Processor applies a flattened event sequence. Every per-event failure is
// isolated: event N failing never prevents events N+1.. from being attempted.
type Processor struct {
	accounts      AccountResolver
	conversations ConversationResolver
	messages      MessageStore
	media         MediaRelocator
	logger        *slog.Logger
}

func NewProcessor(
	log *slog.Logger,
	accounts AccountResolver,
	conversations ConversationResolver,
	messages MessageStore,
	media MediaRelocator,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		accounts:      accounts,
		conversations: conversations,
		messages:      messages,
		media:         media,
		logger:        log.With(slog.String("component", "webhook_processor")),
	}
}

type accountResolution struct {
	account account.Account
	err     error
}

// Process handles every event in order. Account resolution is memoized per
// phone identity; a resolution failure abandons only that identity's events,
// other entries in the same payload continue independently.
func (p *Processor) Process(ctx context.Context, events []whatsapp.Event) {
	resolved := make(map[string]accountResolution)

	for _, event := range events {
		res, ok := resolved[event.PhoneNumberID]
		if !ok {
			acct, err := p.accounts.Resolve(ctx, event.PhoneNumberID, event.BusinessAccountID)
			res = accountResolution{account: acct, err: err}
			resolved[event.PhoneNumberID] = res
			if err != nil {
				p.logger.Warn("account resolution failed, abandoning entry events",
					slog.String("phone_number_id", event.PhoneNumberID),
					slog.Any("error", err))
			}
		}
		if res.err != nil {
			continue
		}

		switch event.Kind {
		case whatsapp.EventInboundMessage:
			p.processMessage(ctx, res.account, event)
		case whatsapp.EventStatusUpdate:
			p.processStatus(ctx, event)
		case whatsapp.EventError:
			p.logger.Warn("provider reported webhook error",
				slog.String("phone_number_id", event.PhoneNumberID),
				slog.Int("code", event.Error.Code),
				slog.String("title", event.Error.Title),
				slog.String("message", event.Error.Message))
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, acct account.Account, event whatsapp.Event) {
	in := event.Message
	msg := in.Message

	conv, err := p.conversations.Resolve(ctx, acct.ID, msg.From, in.ProfileName())
	if err != nil {
		p.logger.Warn("conversation resolution failed, abandoning message",
			slog.String("wamid", msg.ID),
			slog.String("from", msg.From),
			slog.Any("error", err))
		return
	}

	stored, inserted, err := p.messages.Ingest(ctx, conv.ID, *in)
	if err != nil {
		p.logger.Warn("message ingest failed",
			slog.String("wamid", msg.ID),
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
		return
	}
	if !inserted {
		return
	}

	if err := p.conversations.TouchInbound(ctx, conv.ID, time.Now().UTC()); err != nil {
		p.logger.Warn("conversation touch failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	// Media relocation runs only after the message insert committed; its
	// failures never surface past the relocator.
	if ref, ok := msg.MediaRef(); ok && p.media != nil {
		p.media.Relocate(ctx, stored.ID, ref)
	}
}

func (p *Processor) processStatus(ctx context.Context, event whatsapp.Event) {
	if err := p.messages.ApplyStatus(ctx, *event.Status); err != nil {
		p.logger.Warn("status update failed",
			slog.String("wamid", event.Status.ID),
			slog.String("status", event.Status.Status),
			slog.Any("error", err))
	}
}
