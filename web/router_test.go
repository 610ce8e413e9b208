package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/relay"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestApp(t *testing.T, d Deps) *iris.Application {
	t.Helper()
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.RelayCtx == nil {
		d.RelayCtx = context.Background()
	}
	app := iris.New()
	RegisterRoutes(app, d)
	require.NoError(t, app.Build())
	return app
}

func TestRouter_SendMessageUsesCallerIdentity(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	chat := mocks.NewMockIChatService(ctrl)
	messageID := uuid.New()
	// The sender comes from the token, never from the request body
	chat.EXPECT().
		Send(domain.MessageDraft{SenderID: "alice", ReceiverID: "bob", Content: "hello from http"}).
		Return(domain.Message{
			ID:         messageID,
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    "hello from http",
			CreatedAt:  time.Now().UTC(),
			Status:     domain.StatusSent,
		}, relay.RecipientOffline, nil).
		Times(1)

	app := newTestApp(t, Deps{Chat: chat})

	token, err := auth.GenerateToken("alice", domain.RoleCustomer, time.Hour)
	req.NoError(err)

	body, err := json.Marshal(map[string]string{
		"sender_id":   "mallory",
		"receiver_id": "bob",
		"content":     "hello from http",
	})
	req.NoError(err)

	r := httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	var resp map[string]any
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal(messageID.String(), resp["_id"])
	req.Equal("alice", resp["sender_id"])
	req.Equal("recipient_offline", resp["delivery"])
}

func TestRouter_SendMessageRequiresToken(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No Send expectation: an unauthenticated request never reaches the service
	chat := mocks.NewMockIChatService(ctrl)
	app := newTestApp(t, Deps{Chat: chat})

	body := []byte(`{"receiver_id":"bob","content":"hi"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestRouter_SendMessageRejectsEmptyFields(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	chat := mocks.NewMockIChatService(ctrl)
	app := newTestApp(t, Deps{Chat: chat})

	token, err := auth.GenerateToken("alice", domain.RoleCustomer, time.Hour)
	req.NoError(err)

	body := []byte(`{"receiver_id":"","content":""}`)
	r := httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	req.Equal(http.StatusBadRequest, w.Code)
}
