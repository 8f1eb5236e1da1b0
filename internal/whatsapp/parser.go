package whatsapp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// EventKind discriminates flattened webhook events.
type EventKind string

const (
	EventInboundMessage EventKind = "inbound_message"
	EventStatusUpdate   EventKind = "status_update"
	EventError          EventKind = "error"
)

// Event is one flattened webhook occurrence. Exactly one of Message, Status,
// or Error is set depending on Kind.
type Event struct {
	Kind              EventKind
	BusinessAccountID string
	PhoneNumberID     string
	Message           *InboundMessage
	Status            *Status
	Error             *APIError
}

// InboundMessage pairs a decoded message with its sender contact (when the
// payload provides one) and the verbatim provider JSON.
type InboundMessage struct {
	Message Message
	Contact *Contact
	Raw     json.RawMessage
}

// ProfileName returns the sender's profile display name, empty when the
// payload carried no matching contact.
func (m InboundMessage) ProfileName() string {
	if m.Contact == nil {
		return ""
	}
	return strings.TrimSpace(m.Contact.Profile.Name)
}

// Parser flattens webhook envelopes into an ordered event sequence.
type Parser struct {
	logger *slog.Logger
}

func NewParser(log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{logger: log.With(slog.String("component", "webhook_parser"))}
}

// Decode unmarshals a raw webhook body into the envelope.
func (p *Parser) Decode(body []byte) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	return payload, nil
}

// Flatten walks entries, changes, and their message/status/error lists and
// yields every event in document order. Malformed changes are skipped with a
// warning; siblings continue. No ordering is assumed between event kinds.
func (p *Parser) Flatten(payload Payload) []Event {
	var events []Event
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			phoneNumberID := strings.TrimSpace(change.Value.Metadata.PhoneNumberID)
			if phoneNumberID == "" {
				p.logger.Warn("change missing phone_number_id, skipping",
					slog.String("business_account_id", entry.ID))
				continue
			}
			for _, raw := range change.Value.Messages {
				var msg Message
				if err := json.Unmarshal(raw, &msg); err != nil {
					p.logger.Warn("undecodable message, skipping",
						slog.String("phone_number_id", phoneNumberID),
						slog.Any("error", err))
					continue
				}
				if strings.TrimSpace(msg.ID) == "" {
					p.logger.Warn("message without id, skipping",
						slog.String("phone_number_id", phoneNumberID))
					continue
				}
				events = append(events, Event{
					Kind:              EventInboundMessage,
					BusinessAccountID: entry.ID,
					PhoneNumberID:     phoneNumberID,
					Message: &InboundMessage{
						Message: msg,
						Contact: matchContact(change.Value.Contacts, msg.From),
						Raw:     raw,
					},
				})
			}
			for i := range change.Value.Statuses {
				status := change.Value.Statuses[i]
				if strings.TrimSpace(status.ID) == "" {
					continue
				}
				events = append(events, Event{
					Kind:              EventStatusUpdate,
					BusinessAccountID: entry.ID,
					PhoneNumberID:     phoneNumberID,
					Status:            &status,
				})
			}
			for i := range change.Value.Errors {
				apiErr := change.Value.Errors[i]
				events = append(events, Event{
					Kind:              EventError,
					BusinessAccountID: entry.ID,
					PhoneNumberID:     phoneNumberID,
					Error:             &apiErr,
				})
			}
		}
	}
	return events
}

// matchContact finds the contact whose wa_id equals the sender, falling back
// to the first contact when the payload carries exactly one.
func matchContact(contacts []Contact, from string) *Contact {
	for i := range contacts {
		if contacts[i].WaID == from {
			return &contacts[i]
		}
	}
	if len(contacts) == 1 {
		return &contacts[0]
	}
	return nil
}
