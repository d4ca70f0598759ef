package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/ai"
	"github.com/xxxsen/mchat/internal/convo"
	"github.com/xxxsen/mchat/internal/embedding"
	"github.com/xxxsen/mchat/internal/extract"
	"github.com/xxxsen/mchat/internal/filestore"
	"github.com/xxxsen/mchat/internal/metrics"
	"github.com/xxxsen/mchat/internal/model"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
	"github.com/xxxsen/mchat/internal/pkg/timeutil"
	"github.com/xxxsen/mchat/internal/rag"
)

const (
	titleMaxRunes = 30

	EventChunk = "chunk"
	EventEnd   = "end"
	EventError = "error"
)

type ProfileSource interface {
	Profile(ctx context.Context, assistantID int64) (*model.AssistantProfile, error)
}

type ContextRetriever interface {
	RetrieveAttachments(ctx context.Context, assistantID int64, conversationID, query string, limit int) ([]rag.Hit, error)
	RetrieveKnowledge(ctx context.Context, knowledgeIDs []int64, query string, limit int) ([]rag.Hit, error)
}

type Completer interface {
	Complete(ctx context.Context, messages []ai.Message) (string, error)
	Stream(ctx context.Context, messages []ai.Message, emit ai.EmitFunc) error
}

type ChatOptions struct {
	StreamBuffer           int
	PersistPartialOnError  bool
	MaxMessageChars        int
	UploadLimitBytes       int64
	AttachmentChunkSize    int
	AttachmentChunkOverlap int
	VectorDimension        int
	AttachmentContextLimit int
	KnowledgeContextLimit  int
}

type ChatDeps struct {
	Profiles      ProfileSource
	Conversations ConversationStore
	Messages      MessageStore
	Attachments   AttachmentChunkWriter
	Retriever     ContextRetriever
	Completer     Completer
	Files         filestore.Store
	Locks         *convo.LockRegistry
}

// StreamEvent is one frame sent to a streaming client.
type StreamEvent struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type StreamSink func(ev StreamEvent) error

type TurnContexts struct {
	Attachments []string `json:"attachments"`
	Knowledge   []string `json:"knowledge"`
}

type TurnResult struct {
	Reply          string       `json:"reply"`
	ConversationID string       `json:"conversation_id"`
	Contexts       TurnContexts `json:"contexts"`
}

type RetrievalResult struct {
	Attachments []rag.Hit `json:"attachments"`
	Knowledge   []rag.Hit `json:"knowledge"`
}

type ChatService struct {
	deps ChatDeps
	opts ChatOptions
	ids  *idGenerator
}

func NewChatService(deps ChatDeps, opts ChatOptions) *ChatService {
	if deps.Locks == nil {
		deps.Locks = convo.NewLockRegistry()
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 32
	}
	if opts.AttachmentChunkSize <= 0 {
		opts.AttachmentChunkSize = rag.DefaultChunkSize
	}
	if opts.AttachmentChunkOverlap < 0 || opts.AttachmentChunkOverlap >= opts.AttachmentChunkSize {
		opts.AttachmentChunkOverlap = 0
	}
	if opts.VectorDimension <= 0 {
		opts.VectorDimension = embedding.DefaultDimension
	}
	if opts.AttachmentContextLimit <= 0 {
		opts.AttachmentContextLimit = 4
	}
	if opts.KnowledgeContextLimit <= 0 {
		opts.KnowledgeContextLimit = 5
	}
	return &ChatService{deps: deps, opts: opts, ids: newIDGenerator()}
}

// EnsureConversation returns the conversation when it exists, otherwise
// creates it and persists the assistant's opening message.
func (s *ChatService) EnsureConversation(ctx context.Context, assistantID int64, conversationID string) (*model.Conversation, error) {
	profile, err := s.deps.Profiles.Profile(ctx, assistantID)
	if err != nil {
		return nil, err
	}
	conversationID = s.conversationID(conversationID)
	release, err := s.deps.Locks.Acquire(ctx, convo.Key(assistantID, conversationID))
	if err != nil {
		return nil, err
	}
	defer release()
	return s.ensureLocked(ctx, profile, conversationID)
}

func (s *ChatService) conversationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return s.ids.Next()
	}
	return id
}

func (s *ChatService) ensureLocked(ctx context.Context, profile *model.AssistantProfile, conversationID string) (*model.Conversation, error) {
	conv, err := s.deps.Conversations.Get(ctx, profile.ID, conversationID)
	if err == nil {
		return conv, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	now := timeutil.NowUnix()
	conv = &model.Conversation{ID: conversationID, AssistantID: profile.ID, Ctime: now, Mtime: now}
	if err := s.deps.Conversations.Create(ctx, conv); err != nil {
		if appErr.IsConflict(err) {
			return s.deps.Conversations.Get(ctx, profile.ID, conversationID)
		}
		return nil, err
	}
	if strings.TrimSpace(profile.OpeningMessage) != "" {
		opening := &model.Message{
			ConversationID: conversationID,
			AssistantID:    profile.ID,
			Role:           model.RoleAssistant,
			Content:        profile.OpeningMessage,
			MessageType:    model.MessageTypeOpening,
			Attachments:    []model.Attachment{},
			HideName:       true,
			Ctime:          now,
		}
		if err := s.deps.Messages.Create(ctx, opening); err != nil {
			return nil, err
		}
	}
	logutil.GetLogger(ctx).Info("conversation created",
		zap.Int64("assistant_id", profile.ID), zap.String("conversation_id", conversationID))
	return conv, nil
}

func (s *ChatService) validateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", appErr.Invalid("message is required")
	}
	if s.opts.MaxMessageChars > 0 && utf8.RuneCountInString(message) > s.opts.MaxMessageChars {
		return "", appErr.Invalid("message too long")
	}
	return message, nil
}

type preparedTurn struct {
	conversationID string
	prompt         []ai.Message
	contexts       TurnContexts
}

// prepareTurn appends the user message and assembles the prompt while
// holding the conversation lock. The lock is released before returning.
func (s *ChatService) prepareTurn(ctx context.Context, assistantID int64, conversationID, message string) (*preparedTurn, error) {
	profile, err := s.deps.Profiles.Profile(ctx, assistantID)
	if err != nil {
		return nil, err
	}
	conversationID = s.conversationID(conversationID)
	release, err := s.deps.Locks.Acquire(ctx, convo.Key(assistantID, conversationID))
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.ensureLocked(ctx, profile, conversationID)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	userMsg := &model.Message{
		ConversationID: conversationID,
		AssistantID:    assistantID,
		Role:           model.RoleUser,
		Content:        message,
		MessageType:    model.MessageTypeText,
		Attachments:    []model.Attachment{},
		Ctime:          now,
	}
	if err := s.deps.Messages.Create(ctx, userMsg); err != nil {
		return nil, err
	}
	title := ""
	if conv.Title == "" {
		title = conversationTitle(message)
	}
	if err := s.deps.Conversations.Touch(ctx, assistantID, conversationID, title, now); err != nil {
		return nil, err
	}
	res := s.retrieve(ctx, profile, conversationID, message)
	transcript, err := s.deps.Messages.ListByConversation(ctx, assistantID, conversationID)
	if err != nil {
		return nil, err
	}
	contexts := TurnContexts{Attachments: rag.Snippets(res.Attachments), Knowledge: rag.Snippets(res.Knowledge)}
	return &preparedTurn{
		conversationID: conversationID,
		prompt:         convo.BuildPrompt(profile, contexts.Attachments, contexts.Knowledge, transcript),
		contexts:       contexts,
	}, nil
}

// retrieve never fails the turn; a broken lookup degrades to no context.
func (s *ChatService) retrieve(ctx context.Context, profile *model.AssistantProfile, conversationID, query string) *RetrievalResult {
	logger := logutil.GetLogger(ctx).With(zap.Int64("assistant_id", profile.ID), zap.String("conversation_id", conversationID))
	res := &RetrievalResult{Attachments: []rag.Hit{}, Knowledge: []rag.Hit{}}
	if s.deps.Retriever == nil {
		return res
	}
	att, err := s.deps.Retriever.RetrieveAttachments(ctx, profile.ID, conversationID, query, s.opts.AttachmentContextLimit)
	if err != nil {
		logger.Warn("attachment retrieval failed, continue without it", zap.Error(err))
	} else {
		res.Attachments = att
	}
	know, err := s.deps.Retriever.RetrieveKnowledge(ctx, profile.KnowledgeIDs, query, s.opts.KnowledgeContextLimit)
	if err != nil {
		logger.Warn("knowledge retrieval failed, continue without it", zap.Error(err))
	} else {
		res.Knowledge = know
	}
	metrics.RetrievalHits.WithLabelValues(rag.SourceAttachment).Observe(float64(len(res.Attachments)))
	metrics.RetrievalHits.WithLabelValues(rag.SourceKnowledge).Observe(float64(len(res.Knowledge)))
	return res
}

func (s *ChatService) appendReply(ctx context.Context, assistantID int64, conversationID, reply string) error {
	release, err := s.deps.Locks.Acquire(ctx, convo.Key(assistantID, conversationID))
	if err != nil {
		return err
	}
	defer release()
	now := timeutil.NowUnix()
	msg := &model.Message{
		ConversationID: conversationID,
		AssistantID:    assistantID,
		Role:           model.RoleAssistant,
		Content:        reply,
		MessageType:    model.MessageTypeText,
		Attachments:    []model.Attachment{},
		Ctime:          now,
	}
	if err := s.deps.Messages.Create(ctx, msg); err != nil {
		return err
	}
	return s.deps.Conversations.Touch(ctx, assistantID, conversationID, "", now)
}

// SendTurn runs one blocking turn. The conversation lock is not held while
// the completion call is in flight.
func (s *ChatService) SendTurn(ctx context.Context, assistantID int64, conversationID, message string) (result *TurnResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveTurn("send", start, err) }()
	message, err = s.validateMessage(message)
	if err != nil {
		return nil, err
	}
	turn, err := s.prepareTurn(ctx, assistantID, conversationID, message)
	if err != nil {
		return nil, err
	}
	reply, err := s.deps.Completer.Complete(ctx, turn.prompt)
	if err != nil {
		logutil.GetLogger(ctx).Error("completion failed",
			zap.Int64("assistant_id", assistantID), zap.String("conversation_id", turn.conversationID), zap.Error(err))
		return nil, err
	}
	if err := s.appendReply(context.WithoutCancel(ctx), assistantID, turn.conversationID, reply); err != nil {
		return nil, err
	}
	return &TurnResult{Reply: reply, ConversationID: turn.conversationID, Contexts: turn.contexts}, nil
}

// StreamTurn forwards reply fragments to sink as they arrive and always
// finishes with exactly one end or error event, unless the sink itself
// broke. The full reply is persisted on success; on failure the partial
// reply is kept only when configured to.
func (s *ChatService) StreamTurn(ctx context.Context, assistantID int64, conversationID, message string, sink StreamSink) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveTurn("stream", start, err) }()
	logger := logutil.GetLogger(ctx).With(zap.Int64("assistant_id", assistantID))

	message, err = s.validateMessage(message)
	if err != nil {
		_ = sink(StreamEvent{Type: EventError, Content: err.Error()})
		return err
	}
	turn, err := s.prepareTurn(ctx, assistantID, conversationID, message)
	if err != nil {
		_ = sink(StreamEvent{Type: EventError, Content: err.Error()})
		return err
	}
	logger = logger.With(zap.String("conversation_id", turn.conversationID))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	items := convo.Bridge(streamCtx, s.opts.StreamBuffer, func(ctx context.Context, emit func(string) error) error {
		return s.deps.Completer.Stream(ctx, turn.prompt, emit)
	})

	var reply strings.Builder
	var sinkErr, streamErr error
	for item := range items {
		switch item.Kind {
		case convo.ItemChunk:
			reply.WriteString(item.Text)
			if sinkErr != nil {
				continue
			}
			if sinkErr = sink(StreamEvent{Type: EventChunk, Content: item.Text}); sinkErr != nil {
				logger.Warn("stream sink failed, stop forwarding", zap.Error(sinkErr))
				cancel()
				continue
			}
			metrics.StreamFragments.Inc()
		case convo.ItemError:
			streamErr = item.Err
		}
	}

	persistCtx := context.WithoutCancel(ctx)
	if streamErr == nil && sinkErr == nil {
		text := reply.String()
		if strings.TrimSpace(text) != "" {
			if err := s.appendReply(persistCtx, assistantID, turn.conversationID, text); err != nil {
				_ = sink(StreamEvent{Type: EventError, Content: err.Error()})
				return err
			}
		}
		return sink(StreamEvent{Type: EventEnd, ConversationID: turn.conversationID})
	}

	failure := streamErr
	if sinkErr != nil {
		failure = sinkErr
	}
	if s.opts.PersistPartialOnError && strings.TrimSpace(reply.String()) != "" {
		if err := s.appendReply(persistCtx, assistantID, turn.conversationID, reply.String()); err != nil {
			logger.Error("persist partial reply failed", zap.Error(err))
		}
	} else if reply.Len() > 0 {
		logger.Info("partial reply discarded", zap.Int("chars", utf8.RuneCountInString(reply.String())))
	}
	logger.Error("stream turn failed", zap.Error(failure))
	if sinkErr == nil {
		_ = sink(StreamEvent{Type: EventError, Content: failure.Error()})
	}
	return failure
}

// UploadAttachment stores a file as an attachment message. Text that can be
// extracted is chunked and embedded for retrieval inside this conversation.
func (s *ChatService) UploadAttachment(ctx context.Context, assistantID int64, conversationID string, file UploadFile) (*model.Message, error) {
	if strings.TrimSpace(file.Filename) == "" || file.Reader == nil {
		return nil, appErr.Invalid("file is required")
	}
	data, err := extract.ReadAll(file.Reader, s.readLimit())
	if err != nil {
		return nil, err
	}
	if s.opts.UploadLimitBytes > 0 && int64(len(data)) > s.opts.UploadLimitBytes {
		return nil, appErr.Invalid("file too large")
	}
	profile, err := s.deps.Profiles.Profile(ctx, assistantID)
	if err != nil {
		return nil, err
	}
	conversationID = s.conversationID(conversationID)
	release, err := s.deps.Locks.Acquire(ctx, convo.Key(assistantID, conversationID))
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := s.ensureLocked(ctx, profile, conversationID); err != nil {
		return nil, err
	}

	logger := logutil.GetLogger(ctx).With(zap.Int64("assistant_id", assistantID), zap.String("conversation_id", conversationID))
	key := filestore.NewKey(file.Filename)
	if err := s.deps.Files.Save(ctx, key, bytes.NewReader(data), int64(len(data)), file.ContentType); err != nil {
		return nil, err
	}
	now := timeutil.NowUnix()
	msg := &model.Message{
		ConversationID: conversationID,
		AssistantID:    assistantID,
		Role:           model.RoleUser,
		Content:        file.Filename,
		MessageType:    model.MessageTypeAttachment,
		Attachments: []model.Attachment{{
			ID:          key,
			Filename:    file.Filename,
			URL:         s.deps.Files.URL(key),
			ContentType: file.ContentType,
			Size:        int64(len(data)),
			UploadedAt:  now,
		}},
		Ctime: now,
	}
	if err := s.deps.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.deps.Conversations.Touch(ctx, assistantID, conversationID, "", now); err != nil {
		return nil, err
	}

	text, err := extract.Text(file.Filename, file.ContentType, data)
	if err != nil {
		logger.Warn("extract attachment text failed, skip indexing", zap.String("filename", file.Filename), zap.Error(err))
		return msg, nil
	}
	chunks := rag.BuildAttachmentChunks(text, s.opts.AttachmentChunkSize, s.opts.AttachmentChunkOverlap, s.opts.VectorDimension)
	if len(chunks) == 0 {
		logger.Info("attachment has no indexable text", zap.String("filename", file.Filename))
		return msg, nil
	}
	for _, c := range chunks {
		c.AssistantID = assistantID
		c.ConversationID = conversationID
		c.MessageID = msg.ID
		c.Ctime = now
	}
	if err := s.deps.Attachments.CreateBatch(ctx, chunks); err != nil {
		return nil, err
	}
	logger.Info("attachment indexed", zap.String("filename", file.Filename), zap.Int("chunks", len(chunks)))
	return msg, nil
}

func (s *ChatService) readLimit() int64 {
	if s.opts.UploadLimitBytes <= 0 {
		return 0
	}
	return s.opts.UploadLimitBytes + 1
}

// History returns the transcript; an unknown conversation reads as empty.
func (s *ChatService) History(ctx context.Context, assistantID int64, conversationID string) ([]*model.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, appErr.Invalid("conversation_id is required")
	}
	return s.deps.Messages.ListByConversation(ctx, assistantID, conversationID)
}

func (s *ChatService) ListConversations(ctx context.Context, assistantID int64, limit, offset uint) ([]*model.Conversation, error) {
	return s.deps.Conversations.ListByAssistant(ctx, assistantID, limit, offset)
}

// DeleteConversation drops the conversation, its transcript and chunks.
// Attachment files are removed best effort.
func (s *ChatService) DeleteConversation(ctx context.Context, assistantID int64, conversationID string) error {
	release, err := s.deps.Locks.Acquire(ctx, convo.Key(assistantID, conversationID))
	if err != nil {
		return err
	}
	defer release()
	msgs, err := s.deps.Messages.ListByConversation(ctx, assistantID, conversationID)
	if err != nil {
		return err
	}
	if err := s.deps.Conversations.Delete(ctx, assistantID, conversationID); err != nil {
		return err
	}
	for _, m := range msgs {
		for _, att := range m.Attachments {
			if err := s.deps.Files.Delete(ctx, att.ID); err != nil {
				logutil.GetLogger(ctx).Warn("delete attachment file failed", zap.String("key", att.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// RetrieveContext exposes both ranked hit lists for diagnostics.
func (s *ChatService) RetrieveContext(ctx context.Context, assistantID int64, conversationID, query string) (*RetrievalResult, error) {
	profile, err := s.deps.Profiles.Profile(ctx, assistantID)
	if err != nil {
		return nil, err
	}
	if s.deps.Retriever == nil {
		return &RetrievalResult{Attachments: []rag.Hit{}, Knowledge: []rag.Hit{}}, nil
	}
	att, err := s.deps.Retriever.RetrieveAttachments(ctx, assistantID, conversationID, query, s.opts.AttachmentContextLimit)
	if err != nil {
		return nil, err
	}
	know, err := s.deps.Retriever.RetrieveKnowledge(ctx, profile.KnowledgeIDs, query, s.opts.KnowledgeContextLimit)
	if err != nil {
		return nil, err
	}
	return &RetrievalResult{Attachments: att, Knowledge: know}, nil
}

// SweepLocks drops conversation locks idle for longer than idle.
func (s *ChatService) SweepLocks(idle time.Duration) int {
	return s.deps.Locks.Sweep(idle)
}

func (s *ChatService) LockCount() int {
	return s.deps.Locks.Len()
}

func conversationTitle(message string) string {
	runes := []rune(strings.Join(strings.Fields(message), " "))
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes])
	}
	return string(runes)
}

// IsStreamAborted reports whether a stream ended because the caller went away.
func IsStreamAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}
