package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/stafflink/wabridge/internal/conversation"
	"github.com/stafflink/wabridge/internal/message"
)

const testConversationID = "3f2d5a50-9a50-4d9c-9a31-7bb0c0a4a111"

type fakeDirectory struct {
	conversations []conversation.Conversation
	markedRead    []string
}

func (f *fakeDirectory) List(_ context.Context, _ int32) ([]conversation.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeDirectory) Get(_ context.Context, conversationID string) (conversation.Conversation, error) {
	for _, conv := range f.conversations {
		if conv.ID == conversationID {
			return conv, nil
		}
	}
	return conversation.Conversation{}, conversation.ErrNotFound
}

func (f *fakeDirectory) MarkRead(_ context.Context, conversationID string) error {
	for _, conv := range f.conversations {
		if conv.ID == conversationID {
			f.markedRead = append(f.markedRead, conversationID)
			return nil
		}
	}
	return conversation.ErrNotFound
}

type fakeMessageLog struct {
	messages []message.Message
}

func (f *fakeMessageLog) ListByConversation(_ context.Context, _ string, _ int32) ([]message.Message, error) {
	return f.messages, nil
}

func newConversationsTestServer(directory *fakeDirectory, messages *fakeMessageLog) *echo.Echo {
	e := echo.New()
	NewConversationsHandler(testLogger(), directory, messages).Register(e)
	return e
}

func TestConversationsList(t *testing.T) {
	t.Parallel()
	directory := &fakeDirectory{conversations: []conversation.Conversation{
		{ID: testConversationID, WaID: "41791112233", UnreadCount: 2},
	}}
	e := newConversationsTestServer(directory, &fakeMessageLog{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []conversation.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].WaID != "41791112233" {
		t.Fatalf("response = %+v", got)
	}
}

func TestConversationsListMessages(t *testing.T) {
	t.Parallel()
	directory := &fakeDirectory{conversations: []conversation.Conversation{{ID: testConversationID}}}
	messages := &fakeMessageLog{messages: []message.Message{
		{ID: "m1", ConversationID: testConversationID, WAMID: "wamid.1", Body: "hello"},
	}}
	e := newConversationsTestServer(directory, messages)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+testConversationID+"/messages", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []message.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].WAMID != "wamid.1" {
		t.Fatalf("response = %+v", got)
	}
}

func TestConversationsListMessagesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{
			name:       "invalid uuid",
			path:       "/api/conversations/not-a-uuid/messages",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown conversation",
			path:       "/api/conversations/3f2d5a50-9a50-4d9c-9a31-7bb0c0a4a999/messages",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newConversationsTestServer(&fakeDirectory{}, &fakeMessageLog{})
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestConversationsMarkRead(t *testing.T) {
	t.Parallel()
	directory := &fakeDirectory{conversations: []conversation.Conversation{{ID: testConversationID, UnreadCount: 3}}}
	e := newConversationsTestServer(directory, &fakeMessageLog{})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+testConversationID+"/read", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(directory.markedRead) != 1 || directory.markedRead[0] != testConversationID {
		t.Fatalf("markedRead = %v", directory.markedRead)
	}
}
