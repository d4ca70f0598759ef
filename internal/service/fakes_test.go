package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xxxsen/mchat/internal/ai"
	"github.com/xxxsen/mchat/internal/model"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

type memAssistants struct {
	mu     sync.Mutex
	items  map[int64]*model.Assistant
	nextID int64
	gets   int
}

func newMemAssistants(items ...*model.Assistant) *memAssistants {
	m := &memAssistants{items: map[int64]*model.Assistant{}}
	for _, a := range items {
		m.nextID++
		a.ID = m.nextID
		m.items[a.ID] = a
	}
	return m
}

func (m *memAssistants) Create(_ context.Context, a *model.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAssistants) Update(_ context.Context, a *model.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAssistants) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memAssistants) GetByID(_ context.Context, id int64) (*model.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	a, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssistants) List(_ context.Context) ([]*model.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Assistant, 0, len(m.items))
	for _, a := range m.items {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAssistants) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

type memConversations struct {
	mu    sync.Mutex
	items map[string]*model.Conversation
}

func newMemConversations() *memConversations {
	return &memConversations{items: map[string]*model.Conversation{}}
}

func convKey(assistantID int64, id string) string {
	return fmt.Sprintf("%d/%s", assistantID, id)
}

func (m *memConversations) Create(_ context.Context, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := convKey(c.AssistantID, c.ID)
	if _, ok := m.items[k]; ok {
		return appErr.ErrConflict
	}
	cp := *c
	m.items[k] = &cp
	return nil
}

func (m *memConversations) Get(_ context.Context, assistantID int64, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[convKey(assistantID, id)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversations) ListByAssistant(_ context.Context, assistantID int64, _, _ uint) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Conversation, 0)
	for _, c := range m.items {
		if c.AssistantID == assistantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memConversations) Touch(_ context.Context, assistantID int64, id, title string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[convKey(assistantID, id)]
	if !ok {
		return appErr.ErrNotFound
	}
	c.Mtime = mtime
	if title != "" {
		c.Title = title
	}
	return nil
}

func (m *memConversations) Delete(_ context.Context, assistantID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := convKey(assistantID, id)
	if _, ok := m.items[k]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, k)
	return nil
}

type memMessages struct {
	mu     sync.Mutex
	items  []*model.Message
	nextID int64
}

func (m *memMessages) Create(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *memMessages) ListByConversation(_ context.Context, assistantID int64, conversationID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Message, 0)
	for _, msg := range m.items {
		if msg.AssistantID == assistantID && msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAttachmentChunks struct {
	mu    sync.Mutex
	items []*model.AttachmentChunk
}

func (m *memAttachmentChunks) CreateBatch(_ context.Context, chunks []*model.AttachmentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, chunks...)
	return nil
}

func (m *memAttachmentChunks) ListByScope(_ context.Context, assistantID int64, conversationID string) ([]*model.AttachmentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.AttachmentChunk, 0)
	for _, c := range m.items {
		if c.AssistantID == assistantID && c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memDocuments struct {
	mu     sync.Mutex
	items  map[int64]*model.Document
	nextID int64
}

func newMemDocuments() *memDocuments {
	return &memDocuments{items: map[int64]*model.Document{}}
}

func (m *memDocuments) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	doc.ID = m.nextID
	cp := *doc
	m.items[doc.ID] = &cp
	return nil
}

func (m *memDocuments) Update(_ context.Context, doc *model.Document) error {
	return m.put(doc)
}

func (m *memDocuments) UpdateParseState(_ context.Context, doc *model.Document) error {
	return m.put(doc)
}

func (m *memDocuments) put(doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[doc.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *doc
	m.items[doc.ID] = &cp
	return nil
}

func (m *memDocuments) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id int64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocuments) List(_ context.Context, _, _ uint) ([]*model.Document, error) {
	return m.filter(func(*model.Document) bool { return true }), nil
}

func (m *memDocuments) ListByStatus(_ context.Context, status string, limit uint) ([]*model.Document, error) {
	out := m.filter(func(d *model.Document) bool { return d.ParseStatus == status })
	if limit > 0 && uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDocuments) ListByIDs(_ context.Context, ids []int64) ([]*model.Document, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.filter(func(d *model.Document) bool { return want[d.ID] }), nil
}

func (m *memDocuments) filter(keep func(*model.Document) bool) []*model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0)
	for _, d := range m.items {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memDocumentChunks struct {
	mu    sync.Mutex
	items map[int64][]*model.DocumentChunk
}

func newMemDocumentChunks() *memDocumentChunks {
	return &memDocumentChunks{items: map[int64][]*model.DocumentChunk{}}
}

func (m *memDocumentChunks) ReplaceForDocument(_ context.Context, documentID int64, chunks []*model.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[documentID] = chunks
	return nil
}

func (m *memDocumentChunks) DeleteByDocument(_ context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, documentID)
	return nil
}

func (m *memDocumentChunks) ListByDocuments(_ context.Context, documentIDs []int64, limit int) ([]*model.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]int64(nil), documentIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*model.DocumentChunk, 0)
	for _, id := range ids {
		for _, c := range m.items[id] {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCompleter struct {
	mu        sync.Mutex
	prompts   [][]ai.Message
	reply     string
	err       error
	fragments []string
	streamErr error
	entered   chan struct{}
	release   chan struct{}
}

func (f *fakeCompleter) record(msgs []ai.Message) {
	f.mu.Lock()
	f.prompts = append(f.prompts, msgs)
	f.mu.Unlock()
}

func (f *fakeCompleter) lastPrompt() []ai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []ai.Message) (string, error) {
	f.record(msgs)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Stream(_ context.Context, msgs []ai.Message, emit ai.EmitFunc) error {
	f.record(msgs)
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return err
		}
	}
	return f.streamErr
}
