// Package message persists inbound communication units and applies delivery
// state updates.
package message

import "time"

// Direction distinguishes inbound from outbound messages.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Type is the internal content-type tag.
type Type string

const (
	TypeText        Type = "text"
	TypeImage       Type = "image"
	TypeDocument    Type = "document"
	TypeAudio       Type = "audio"
	TypeVideo       Type = "video"
	TypeSticker     Type = "sticker"
	TypeLocation    Type = "location"
	TypeContacts    Type = "contacts"
	TypeInteractive Type = "interactive"
	TypeReaction    Type = "reaction"
	TypeUnknown     Type = "unknown"
)

// DeliveryStatus is the message delivery state.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is one communication unit belonging to a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	WAMID          string         `json:"wamid"`
	Direction      Direction      `json:"direction"`
	Type           Type           `json:"message_type"`
	Status         DeliveryStatus `json:"status"`
	Body           string         `json:"body,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
	ErrorCode      int            `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MapContentType maps a provider message type to the internal tag. Total:
// any unrecognized value maps to unknown.
func MapContentType(providerType string) Type {
	switch providerType {
	case "text":
		return TypeText
	case "image":
		return TypeImage
	case "document":
		return TypeDocument
	case "audio":
		return TypeAudio
	case "video":
		return TypeVideo
	case "sticker":
		return TypeSticker
	case "location":
		return TypeLocation
	case "contacts":
		return TypeContacts
	case "interactive", "button":
		return TypeInteractive
	case "reaction":
		return TypeReaction
	default:
		return TypeUnknown
	}
}
