package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/middleware"
	"github.com/xxxsen/mchat/internal/service"
)

const (
	wsWriteWait   = 10 * time.Second
	wsMaxReadSize = 1 << 20
	wsQueueSize   = 8
)

// WSHandler streams chat turns over a WebSocket. Each connection reads
// requests on its own goroutine and runs turns one after another, so a
// connection never has two turns in flight.
type WSHandler struct {
	chat     *service.ChatService
	upgrader websocket.Upgrader
}

func NewWSHandler(chat *service.ChatService, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     middleware.OriginAllowed(allowedOrigins),
		},
	}
}

type wsRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func (h *WSHandler) Chat(c *gin.Context) {
	aid, err := strconv.ParseInt(c.Param("assistant_id"), 10, 64)
	if err != nil || aid <= 0 {
		c.Status(http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxReadSize)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	logger := logutil.GetLogger(ctx).With(zap.Int64("assistant_id", aid))

	requests := make(chan wsRequest, wsQueueSize)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("websocket read stopped", zap.Error(err))
				}
				return
			}
			if strings.TrimSpace(req.Message) == "" {
				continue
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	sink := func(ev service.StreamEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(ev)
	}
	for req := range requests {
		err := h.chat.StreamTurn(ctx, aid, strings.TrimSpace(req.ConversationID), req.Message, sink)
		if err == nil {
			continue
		}
		if service.IsStreamAborted(err) || ctx.Err() != nil {
			logger.Info("websocket stream aborted", zap.Error(err))
			return
		}
		logger.Warn("websocket turn failed", zap.Error(err))
	}
}
