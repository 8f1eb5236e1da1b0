// Package whatsapp models the WhatsApp Business Cloud API surface consumed by
// the gateway: webhook payloads, signature verification, and the Graph API
// media endpoints.
package whatsapp

import (
	"encoding/json"
	"strconv"
	"time"
)

// Payload is the outermost webhook envelope.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update within an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value is the payload of a "messages" change. Messages are kept raw so the
// verbatim provider JSON can be retained per message for audit.
type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []Status          `json:"statuses,omitempty"`
	Errors           []APIError        `json:"errors,omitempty"`
}

// Metadata identifies the receiving phone identity.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact describes the sender of an inbound message.
type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

type Profile struct {
	Name string `json:"name"`
}

// Message is one inbound message. Exactly one of the per-type fields is set,
// discriminated by Type.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Context     *Context     `json:"context,omitempty"`
	Text        *Text        `json:"text,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Sticker     *Media       `json:"sticker,omitempty"`
	Document    *Document    `json:"document,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Contacts    []ComplexVCard `json:"contacts,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Reaction    *Reaction    `json:"reaction,omitempty"`
	Errors      []APIError   `json:"errors,omitempty"`
}

// Context references the message being replied to.
type Context struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

type Text struct {
	Body string `json:"body"`
}

// Media covers image, audio, video, and sticker payloads.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
}

type Document struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ComplexVCard is a shared contact card; only the display name is consumed.
type ComplexVCard struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
	} `json:"name"`
}

type Interactive struct {
	Type        string            `json:"type"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
}

type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Status is a delivery-state update for a previously sent message.
type Status struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Timestamp   string     `json:"timestamp"`
	RecipientID string     `json:"recipient_id"`
	Errors      []APIError `json:"errors,omitempty"`
}

// APIError is the provider's error object, delivered both on message level
// and change level.
type APIError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
	Details struct {
		Details string `json:"details"`
	} `json:"error_data,omitempty"`
}

// MediaInfo is the Graph API media metadata response. URL is short-lived.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// MediaRef is a normalized reference to an attached media object.
type MediaRef struct {
	ID       string
	MimeType string
	Sha256   string
	Filename string
	Caption  string
}

// MediaRef extracts the media attachment of the message, if any.
func (m Message) MediaRef() (MediaRef, bool) {
	switch m.Type {
	case "image":
		if m.Image != nil {
			return MediaRef{ID: m.Image.ID, MimeType: m.Image.MimeType, Sha256: m.Image.Sha256, Caption: m.Image.Caption}, true
		}
	case "audio":
		if m.Audio != nil {
			return MediaRef{ID: m.Audio.ID, MimeType: m.Audio.MimeType, Sha256: m.Audio.Sha256, Caption: m.Audio.Caption}, true
		}
	case "video":
		if m.Video != nil {
			return MediaRef{ID: m.Video.ID, MimeType: m.Video.MimeType, Sha256: m.Video.Sha256, Caption: m.Video.Caption}, true
		}
	case "sticker":
		if m.Sticker != nil {
			return MediaRef{ID: m.Sticker.ID, MimeType: m.Sticker.MimeType, Sha256: m.Sticker.Sha256, Caption: m.Sticker.Caption}, true
		}
	case "document":
		if m.Document != nil {
			return MediaRef{ID: m.Document.ID, MimeType: m.Document.MimeType, Sha256: m.Document.Sha256, Filename: m.Document.Filename, Caption: m.Document.Caption}, true
		}
	}
	return MediaRef{}, false
}

// Caption returns the media caption of the message, empty when none.
func (m Message) Caption() string {
	if ref, ok := m.MediaRef(); ok {
		return ref.Caption
	}
	return ""
}

// SentAt converts the provider's Unix-seconds timestamp string. Zero time on
// malformed input.
func (m Message) SentAt() time.Time {
	return unixTime(m.Timestamp)
}

// OccurredAt converts the status timestamp. Zero time on malformed input.
func (s Status) OccurredAt() time.Time {
	return unixTime(s.Timestamp)
}

func unixTime(value string) time.Time {
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
