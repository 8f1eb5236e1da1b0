package whatsapp

import (
	"testing"
)

const fullPayload = `{
	"object": "whatsapp_business_account",
	"entry": [
		{
			"id": "waba-1",
			"changes": [
				{
					"field": "messages",
					"value": {
						"messaging_product": "whatsapp",
						"metadata": {"display_phone_number": "41790000000", "phone_number_id": "pn-1"},
						"contacts": [{"profile": {"name": "Maria"}, "wa_id": "41791112233"}],
						"messages": [
							{"from": "41791112233", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "hello"}},
							{"from": "41791112233", "id": "wamid.2", "timestamp": "1700000001", "type": "image", "image": {"id": "media-1", "mime_type": "image/jpeg", "sha256": "abc"}}
						],
						"statuses": [
							{"id": "wamid.out.1", "status": "delivered", "timestamp": "1700000002", "recipient_id": "41791112233"}
						],
						"errors": [
							{"code": 131051, "title": "Unsupported message type"}
						]
					}
				},
				{
					"field": "account_update",
					"value": {}
				}
			]
		},
		{
			"id": "waba-2",
			"changes": [
				{
					"field": "messages",
					"value": {
						"messaging_product": "whatsapp",
						"metadata": {"phone_number_id": ""},
						"messages": [
							{"from": "41790001122", "id": "wamid.skipped", "type": "text", "text": {"body": "lost"}}
						]
					}
				}
			]
		}
	]
}`

func TestParserFlatten(t *testing.T) {
	t.Parallel()
	parser := NewParser(nil)

	payload, err := parser.Decode([]byte(fullPayload))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	events := parser.Flatten(payload)

	if len(events) != 4 {
		t.Fatalf("Flatten() yielded %d events, want 4", len(events))
	}

	first := events[0]
	if first.Kind != EventInboundMessage {
		t.Fatalf("events[0].Kind = %q, want %q", first.Kind, EventInboundMessage)
	}
	if first.BusinessAccountID != "waba-1" || first.PhoneNumberID != "pn-1" {
		t.Fatalf("events[0] routing = (%q, %q)", first.BusinessAccountID, first.PhoneNumberID)
	}
	if first.Message.Message.ID != "wamid.1" {
		t.Fatalf("events[0] wamid = %q", first.Message.Message.ID)
	}
	if got := first.Message.ProfileName(); got != "Maria" {
		t.Fatalf("events[0] profile name = %q, want Maria", got)
	}
	if len(first.Message.Raw) == 0 {
		t.Fatalf("events[0] raw payload not retained")
	}

	second := events[1]
	if second.Kind != EventInboundMessage || second.Message.Message.Type != "image" {
		t.Fatalf("events[1] = (%q, %q)", second.Kind, second.Message.Message.Type)
	}
	if ref, ok := second.Message.Message.MediaRef(); !ok || ref.ID != "media-1" {
		t.Fatalf("events[1] media ref = (%+v, %v)", ref, ok)
	}

	third := events[2]
	if third.Kind != EventStatusUpdate || third.Status.ID != "wamid.out.1" {
		t.Fatalf("events[2] = (%q, %v)", third.Kind, third.Status)
	}

	fourth := events[3]
	if fourth.Kind != EventError || fourth.Error.Code != 131051 {
		t.Fatalf("events[3] = (%q, %v)", fourth.Kind, fourth.Error)
	}
}

func TestParserFlattenSkipsMalformedSiblings(t *testing.T) {
	t.Parallel()
	parser := NewParser(nil)

	payload, err := parser.Decode([]byte(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "waba-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "pn-1"},
					"messages": [
						{"from": "417", "id": "", "type": "text", "text": {"body": "no id"}},
						{"from": "417", "id": "wamid.ok", "type": "text", "text": {"body": "kept"}}
					]
				}
			}]
		}]
	}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	events := parser.Flatten(payload)
	if len(events) != 1 {
		t.Fatalf("Flatten() yielded %d events, want 1", len(events))
	}
	if events[0].Message.Message.ID != "wamid.ok" {
		t.Fatalf("surviving wamid = %q", events[0].Message.Message.ID)
	}
}

func TestParserDecodeRejectsMalformedJSON(t *testing.T) {
	t.Parallel()
	parser := NewParser(nil)
	if _, err := parser.Decode([]byte(`{"entry": [`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMessageSentAt(t *testing.T) {
	t.Parallel()
	msg := Message{Timestamp: "1700000000"}
	if got := msg.SentAt(); got.Unix() != 1700000000 {
		t.Fatalf("SentAt() = %v", got)
	}
	if got := (Message{Timestamp: "garbage"}).SentAt(); !got.IsZero() {
		t.Fatalf("SentAt(garbage) = %v, want zero", got)
	}
}
