package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mchat/internal/model"
)

type fixedEmbedder struct {
	vec  []float32
	dims []int
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string, dim int) ([]float32, error) {
	f.dims = append(f.dims, dim)
	out := make([]float32, dim)
	copy(out, f.vec)
	return out, nil
}

func (f *fixedEmbedder) ModelName() string { return "fixed" }

type fakeAttachmentStore struct {
	chunks []*model.AttachmentChunk
	calls  int
}

func (f *fakeAttachmentStore) ListByScope(_ context.Context, _ int64, _ string) ([]*model.AttachmentChunk, error) {
	f.calls++
	return f.chunks, nil
}

type fakeDocumentStore struct {
	docs []*model.Document
}

func (f *fakeDocumentStore) ListByIDs(_ context.Context, ids []int64) ([]*model.Document, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*model.Document
	for _, d := range f.docs {
		if want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeChunkStore struct {
	chunks    []*model.DocumentChunk
	lastLimit int
}

func (f *fakeChunkStore) ListByDocuments(_ context.Context, _ []int64, limit int) ([]*model.DocumentChunk, error) {
	f.lastLimit = limit
	if limit > 0 && len(f.chunks) > limit {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func vec(first float32) []float32 {
	return []float32{first, 0, 0, 0}
}

func attachment(content string, score float32) *model.AttachmentChunk {
	return &model.AttachmentChunk{Content: content, Embedding: vec(score)}
}

func docChunk(docID int64, index int, content string, score float32, metadata map[string]interface{}) *model.DocumentChunk {
	return &model.DocumentChunk{DocumentID: docID, ChunkIndex: index, Content: content, Embedding: vec(score), Metadata: metadata}
}

func newTestRetriever(att *fakeAttachmentStore, docs *fakeDocumentStore, chunks *fakeChunkStore, opts ...Option) *Retriever {
	base := []Option{WithEmbedder(&fixedEmbedder{vec: []float32{1}}), WithDimension(4)}
	return NewRetriever(att, docs, chunks, append(base, opts...)...)
}

func TestRetrieveAttachmentsRanksAndCuts(t *testing.T) {
	store := &fakeAttachmentStore{chunks: []*model.AttachmentChunk{
		attachment("low", 0.1),
		attachment("high", 0.9),
		attachment("negative", -0.3),
		attachment("mid", 0.4),
		attachment("zero", 0),
	}}
	r := newTestRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{})

	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "fox", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "high", hits[0].Content)
	require.Equal(t, "mid", hits[1].Content)
	require.Equal(t, "[attachment | similarity 0.90]\nhigh", hits[0].Snippet)

	all, err := r.RetrieveAttachments(context.Background(), 1, "c1", "fox", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, h := range all {
		require.Greater(t, h.Score, 0.0)
	}
}

func TestRetrieveAttachmentsBlankQuery(t *testing.T) {
	store := &fakeAttachmentStore{chunks: []*model.AttachmentChunk{attachment("x", 0.9)}}
	r := newTestRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{})

	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "   ", 3)
	require.NoError(t, err)
	require.Empty(t, hits)
	require.Equal(t, 0, store.calls)
}

func TestRetrieveAttachmentsZeroQueryVector(t *testing.T) {
	store := &fakeAttachmentStore{chunks: []*model.AttachmentChunk{attachment("x", 0.9)}}
	r := NewRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{}, WithDimension(4))

	// punctuation only, the hash embedder yields no tokens
	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "?!", 3)
	require.NoError(t, err)
	require.Empty(t, hits)
	require.Equal(t, 0, store.calls)
}

func TestRetrieveAttachmentsTiesKeepScanOrder(t *testing.T) {
	store := &fakeAttachmentStore{chunks: []*model.AttachmentChunk{
		attachment("first", 0.5),
		attachment("second", 0.5),
		attachment("third", 0.5),
	}}
	r := newTestRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{})
	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "fox", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, []string{hits[0].Content, hits[1].Content, hits[2].Content})
}

func TestRetrieveKnowledgePerSourceTopK(t *testing.T) {
	docs := &fakeDocumentStore{docs: []*model.Document{
		{ID: 1, Name: "manual", Parameters: map[string]interface{}{"top_k": float64(1)}},
		{ID: 2, Name: "faq"},
	}}
	chunks := &fakeChunkStore{chunks: []*model.DocumentChunk{
		docChunk(1, 0, "manual-a", 0.8, nil),
		docChunk(1, 1, "manual-b", 0.7, nil),
		docChunk(2, 0, "faq-a", 0.75, nil),
		docChunk(2, 1, "faq-b", 0.2, nil),
	}}
	r := newTestRetriever(&fakeAttachmentStore{}, docs, chunks)

	hits, err := r.RetrieveKnowledge(context.Background(), []int64{1, 2}, "fox", 10)
	require.NoError(t, err)
	contents := make([]string, 0, len(hits))
	for _, h := range hits {
		contents = append(contents, h.Content)
	}
	require.Equal(t, []string{"manual-a", "faq-a", "faq-b"}, contents)
}

func TestRetrieveKnowledgeThresholdAndLimit(t *testing.T) {
	docs := &fakeDocumentStore{docs: []*model.Document{
		{ID: 1, Name: "strict", Parameters: map[string]interface{}{"similarity_threshold": 0.5}},
		{ID: 2, Name: "loose"},
	}}
	chunks := &fakeChunkStore{chunks: []*model.DocumentChunk{
		docChunk(1, 0, "strict-low", 0.4, nil),
		docChunk(1, 1, "strict-high", 0.6, nil),
		docChunk(2, 0, "loose-low", 0.3, nil),
		docChunk(2, 1, "loose-neg", -0.1, nil),
	}}
	r := newTestRetriever(&fakeAttachmentStore{}, docs, chunks, WithScanLimit(50))

	hits, err := r.RetrieveKnowledge(context.Background(), []int64{1, 2}, "fox", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "strict-high", hits[0].Content)
	require.Equal(t, 50, chunks.lastLimit)

	hits, err = r.RetrieveKnowledge(context.Background(), []int64{1, 2}, "fox", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "loose-low", hits[1].Content)
}

func TestRetrieveKnowledgeRendersProvenance(t *testing.T) {
	docs := &fakeDocumentStore{docs: []*model.Document{{ID: 7, Name: "handbook"}}}
	chunks := &fakeChunkStore{chunks: []*model.DocumentChunk{
		docChunk(7, 0, "body", 0.87, map[string]interface{}{
			"section_title": "Setup",
			"section_level": float64(2),
			"category":      "ops",
		}),
		docChunk(7, 1, "plain", 0.5, map[string]interface{}{"section_title": ""}),
	}}
	r := newTestRetriever(&fakeAttachmentStore{}, docs, chunks)

	hits, err := r.RetrieveKnowledge(context.Background(), []int64{7}, "fox", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "[knowledge | source: handbook | section: Setup (level 2) | category: ops | similarity 0.87]\nbody", hits[0].Snippet)
	require.Equal(t, "[knowledge | source: handbook | similarity 0.50]\nplain", hits[1].Snippet)
}

func TestRetrieveKnowledgeWithoutSources(t *testing.T) {
	chunks := &fakeChunkStore{chunks: []*model.DocumentChunk{docChunk(1, 0, "x", 0.9, nil)}}
	r := newTestRetriever(&fakeAttachmentStore{}, &fakeDocumentStore{}, chunks)

	hits, err := r.RetrieveKnowledge(context.Background(), nil, "fox", 5)
	require.NoError(t, err)
	require.Empty(t, hits)

	hits, err = r.RetrieveKnowledge(context.Background(), []int64{99}, "fox", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestRetrieveEmbedsQueryPerStoredDimension(t *testing.T) {
	embedder := &fixedEmbedder{vec: []float32{1}}
	store := &fakeAttachmentStore{chunks: []*model.AttachmentChunk{
		{Content: "dim4", Embedding: []float32{0.5, 0, 0, 0}},
		{Content: "dim8", Embedding: []float32{0.6, 0, 0, 0, 0, 0, 0, 0}},
		{Content: "dim8-b", Embedding: []float32{0.2, 0, 0, 0, 0, 0, 0, 0}},
	}}
	r := NewRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{}, WithEmbedder(embedder), WithDimension(4))

	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "fox", 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "dim8", hits[0].Content)
	require.Equal(t, []int{4, 8}, embedder.dims)
}

func TestRetrieveWithHashEmbedder(t *testing.T) {
	chunks := BuildAttachmentChunks("The quick brown fox jumps over the lazy dog", 800, 120, 96)
	store := &fakeAttachmentStore{chunks: append(chunks, BuildAttachmentChunks("completely unrelated words", 800, 120, 96)...)}
	r := NewRetriever(store, &fakeDocumentStore{}, &fakeChunkStore{})

	hits, err := r.RetrieveAttachments(context.Background(), 1, "c1", "fox", 4)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Contains(t, hits[0].Content, "quick brown fox")
}
