package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
	"github.com/xxxsen/mchat/internal/service"
)

func TestAssistantEndpoints(t *testing.T) {
	env := setupRouter(t, 0)

	res := env.do(t, http.MethodGet, "/api/v1/assistants", nil)
	require.Equal(t, 0, res.Code)
	list := decode[[]*model.Assistant](t, res)
	require.Len(t, list, 1)
	require.Equal(t, "Helper", list[0].Name)

	res = env.do(t, http.MethodGet, "/api/v1/assistants/999", nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)

	res = env.do(t, http.MethodGet, "/api/v1/assistants/abc", nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)
}

func TestAdminAssistantLifecycle(t *testing.T) {
	env := setupRouter(t, 0)

	res := env.do(t, http.MethodPost, "/api/v1/admin/assistants", map[string]interface{}{"description": "no name"})
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = env.do(t, http.MethodPost, "/api/v1/admin/assistants", map[string]interface{}{"name": "Coder"})
	require.Equal(t, 0, res.Code)
	created := decode[model.Assistant](t, res)

	path := fmt.Sprintf("/api/v1/admin/assistants/%d", created.ID)
	res = env.do(t, http.MethodPut, path+"/prompt", map[string]interface{}{"prompt_content": "be brief"})
	require.Equal(t, 0, res.Code)
	require.Equal(t, "be brief", decode[model.Assistant](t, res).PromptContent)

	res = env.do(t, http.MethodPut, path+"/parameters", map[string]interface{}{"model_parameters": map[string]interface{}{"temperature": 0.2}})
	require.Equal(t, 0, res.Code)

	res = env.do(t, http.MethodPut, path+"/knowledge_binding", map[string]interface{}{"knowledge_ids": []int64{3, 3, 1}})
	require.Equal(t, 0, res.Code)
	require.Equal(t, []int64{3, 1}, decode[model.Assistant](t, res).KnowledgeIDs)

	res = env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, 0, res.Code)
	res = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestConversationAndSend(t *testing.T) {
	env := setupRouter(t, 0)
	aid := env.assistant.ID

	res := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d", aid), map[string]string{"conversation_id": "c1"})
	require.Equal(t, 0, res.Code)
	require.Equal(t, "c1", decode[model.Conversation](t, res).ID)

	res = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/chat/%d", aid), map[string]string{"message": "hi there", "conversation_id": "c1"})
	require.Equal(t, 0, res.Code)
	turn := decode[service.TurnResult](t, res)
	require.Equal(t, "hello from the assistant", turn.Reply)
	require.Equal(t, "c1", turn.ConversationID)

	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/chat/%d/history?conversation_id=c1", aid), nil)
	require.Equal(t, 0, res.Code)
	history := decode[struct {
		Messages []*model.Message `json:"messages"`
	}](t, res)
	require.Len(t, history.Messages, 3)
	require.Equal(t, model.MessageTypeOpening, history.Messages[0].MessageType)
	require.Equal(t, model.RoleAssistant, history.Messages[2].Role)

	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d", aid), nil)
	require.Equal(t, 0, res.Code)
	convs := decode[[]*model.Conversation](t, res)
	require.Len(t, convs, 1)
	require.Equal(t, "hi there", convs[0].Title)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%d/c1", aid), nil)
	require.Equal(t, 0, res.Code)
	res = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%d/c1", aid), nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestSendErrors(t *testing.T) {
	env := setupRouter(t, 0)
	path := fmt.Sprintf("/api/v1/chat/%d", env.assistant.ID)

	res := env.do(t, http.MethodPost, path, map[string]string{"message": "   "})
	require.Equal(t, errcode.ErrInvalid, res.Code)

	env.completer.err = appErr.Upstream(fmt.Errorf("502 bad gateway"))
	res = env.do(t, http.MethodPost, path, map[string]string{"message": "hello"})
	require.Equal(t, errcode.ErrUpstream, res.Code)

	env.completer.err = appErr.ErrUnavailable
	res = env.do(t, http.MethodPost, path, map[string]string{"message": "hello"})
	require.Equal(t, errcode.ErrAIUnavailable, res.Code)

	res = env.do(t, http.MethodPost, "/api/v1/chat/999", map[string]string{"message": "hello"})
	require.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestSendRateLimited(t *testing.T) {
	env := setupRouter(t, time.Hour)
	path := fmt.Sprintf("/api/v1/chat/%d", env.assistant.ID)

	res := env.do(t, http.MethodPost, path, map[string]string{"message": "one"})
	require.Equal(t, 0, res.Code)
	res = env.do(t, http.MethodPost, path, map[string]string{"message": "two"})
	require.Equal(t, errcode.ErrTooMany, res.Code)
}

func TestAttachmentAndContext(t *testing.T) {
	env := setupRouter(t, 0)
	aid := env.assistant.ID

	res := env.upload(t, fmt.Sprintf("/api/v1/chat/%d/attachments", aid), "notes.txt", []byte("The quick brown fox"), nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = env.upload(t, fmt.Sprintf("/api/v1/chat/%d/attachments", aid), "notes.txt", []byte("The quick brown fox"),
		map[string]string{"conversation_id": "c9"})
	require.Equal(t, 0, res.Code)
	msg := decode[model.Message](t, res)
	require.Equal(t, model.MessageTypeAttachment, msg.MessageType)
	require.Len(t, msg.Attachments, 1)

	req := httptest.NewRequest(http.MethodGet, msg.Attachments[0].URL, nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "The quick brown fox", resp.Body.String())

	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/chat/%d/context?conversation_id=c9", aid), nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)
	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/chat/%d/context?conversation_id=c9&q=fox", aid), nil)
	require.Equal(t, 0, res.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	env := setupRouter(t, 0)

	res := env.upload(t, "/api/v1/admin/docs", "guide.md", []byte("# Intro\nmchat answers questions.\n"),
		map[string]string{"parameters": "not json"})
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = env.upload(t, "/api/v1/admin/docs", "guide.md", []byte("# Intro\nmchat answers questions.\n"),
		map[string]string{"description": "user guide"})
	require.Equal(t, 0, res.Code)
	doc := decode[model.Document](t, res)
	require.Equal(t, "guide", doc.Name)
	require.Equal(t, model.ParseStatusUploaded, doc.ParseStatus)

	res = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/docs/%d/parse", doc.ID), nil)
	require.Equal(t, 0, res.Code)
	require.Equal(t, model.ParseStatusParsed, decode[model.Document](t, res).ParseStatus)

	name := "Guide"
	res = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/admin/docs/%d", doc.ID), map[string]interface{}{"name": name})
	require.Equal(t, 0, res.Code)
	require.Equal(t, name, decode[model.Document](t, res).Name)

	res = env.do(t, http.MethodGet, "/api/v1/admin/docs", nil)
	require.Equal(t, 0, res.Code)
	require.Len(t, decode[[]*model.Document](t, res), 1)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/docs/%d", doc.ID), nil)
	require.Equal(t, 0, res.Code)
	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/docs/%d", doc.ID), nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestFileMissingReturnsNotFound(t *testing.T) {
	env := setupRouter(t, 0)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/files/missing.txt", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func dialChat(t *testing.T, env *testEnv) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(env.router)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + fmt.Sprintf("/api/v1/ws/chat/%d", env.assistant.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		_ = conn.Close()
		server.Close()
	}
}

func readEvents(t *testing.T, conn *websocket.Conn) []service.StreamEvent {
	t.Helper()
	var events []service.StreamEvent
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev service.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == service.EventEnd || ev.Type == service.EventError {
			return events
		}
	}
}

func TestWebSocketStream(t *testing.T) {
	env := setupRouter(t, 0)
	conn, closeFn := dialChat(t, env)
	defer closeFn()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "   "}))
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hello", "conversation_id": "ws1"}))
	events := readEvents(t, conn)

	var text strings.Builder
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, service.EventChunk, ev.Type)
		text.WriteString(ev.Content)
	}
	require.Equal(t, "hello from the assistant", text.String())
	last := events[len(events)-1]
	require.Equal(t, service.EventEnd, last.Type)
	require.Equal(t, "ws1", last.ConversationID)

	assert.Eventually(t, func() bool {
		msgs, _ := env.messages.ListByConversation(t.Context(), env.assistant.ID, "ws1")
		return len(msgs) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketStreamError(t *testing.T) {
	env := setupRouter(t, 0)
	env.completer.err = appErr.Upstream(fmt.Errorf("boom"))
	conn, closeFn := dialChat(t, env)
	defer closeFn()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hello", "conversation_id": "ws2"}))
	events := readEvents(t, conn)
	require.Len(t, events, 1)
	require.Equal(t, service.EventError, events[0].Type)
	require.Contains(t, events[0].Content, "boom")
}
