package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/mchat/internal/config"
	"github.com/xxxsen/mchat/internal/filestore"
	"github.com/xxxsen/mchat/internal/handler"
	"github.com/xxxsen/mchat/internal/middleware"
	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/service"
)

type testEnv struct {
	router    http.Handler
	assistant *model.Assistant
	completer *echoCompleter
	messages  *memMessages
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, sendInterval time.Duration) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	assistantStore := &memAssistants{items: map[int64]*model.Assistant{}}
	conversations := &memConversations{items: map[string]*model.Conversation{}}
	messages := &memMessages{}
	attachments := &memAttachmentChunks{}
	docs := &memDocuments{items: map[int64]*model.Document{}}
	docChunks := &memDocumentChunks{items: map[int64][]*model.DocumentChunk{}}
	completer := &echoCompleter{reply: "hello from the assistant"}

	assistants := service.NewAssistantService(assistantStore, 16, time.Minute)
	name, opening := "Helper", "Hi, how can I help?"
	assistant, err := assistants.Create(context.Background(), service.AssistantInput{Name: &name, OpeningMessage: &opening})
	require.NoError(t, err)

	chat := service.NewChatService(service.ChatDeps{
		Profiles:      assistants,
		Conversations: conversations,
		Messages:      messages,
		Attachments:   attachments,
		Completer:     completer,
		Files:         store,
	}, service.ChatOptions{UploadLimitBytes: 1 << 20})
	documents := service.NewDocumentService(docs, docChunks, store, 1<<20)

	deps := handler.RouterDeps{
		Assistants:   handler.NewAssistantHandler(assistants),
		Chat:         handler.NewChatHandler(chat, 1<<20),
		WS:           handler.NewWSHandler(chat, nil),
		Documents:    handler.NewDocumentHandler(documents, 1<<20),
		Files:        handler.NewFileHandler(store),
		SendInterval: sendInterval,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testEnv{router: engine, assistant: assistant, completer: completer, messages: messages}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(t, req)
}

func (e *testEnv) upload(t *testing.T, path, filename string, content []byte, fields map[string]string) envelope {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) envelope {
	t.Helper()
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var out envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
