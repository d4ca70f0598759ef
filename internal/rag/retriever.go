package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/embedding"
	"github.com/xxxsen/mchat/internal/model"
)

const DefaultScanLimit = 2000

type AttachmentChunkStore interface {
	ListByScope(ctx context.Context, assistantID int64, conversationID string) ([]*model.AttachmentChunk, error)
}

type DocumentStore interface {
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Document, error)
}

// DocumentChunkStore returns chunks ordered by (document_id, chunk_index).
type DocumentChunkStore interface {
	ListByDocuments(ctx context.Context, documentIDs []int64, limit int) ([]*model.DocumentChunk, error)
}

type Retriever struct {
	attachments AttachmentChunkStore
	documents   DocumentStore
	chunks      DocumentChunkStore
	embedder    embedding.IEmbedder
	dim         int
	scanLimit   int
}

type Option func(r *Retriever)

func WithEmbedder(e embedding.IEmbedder) Option {
	return func(r *Retriever) {
		if e != nil {
			r.embedder = e
		}
	}
}

func WithDimension(dim int) Option {
	return func(r *Retriever) {
		if dim > 0 {
			r.dim = dim
		}
	}
}

func WithScanLimit(limit int) Option {
	return func(r *Retriever) {
		if limit > 0 {
			r.scanLimit = limit
		}
	}
}

func NewRetriever(attachments AttachmentChunkStore, documents DocumentStore, chunks DocumentChunkStore, opts ...Option) *Retriever {
	r := &Retriever{
		attachments: attachments,
		documents:   documents,
		chunks:      chunks,
		embedder:    embedding.NewHashEmbedder(),
		dim:         embedding.DefaultDimension,
		scanLimit:   DefaultScanLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// queryVectors embeds the query lazily, once per stored dimension.
type queryVectors struct {
	ctx      context.Context
	embedder embedding.IEmbedder
	text     string
	byDim    map[int][]float32
}

func (q *queryVectors) get(dim int) ([]float32, error) {
	if v, ok := q.byDim[dim]; ok {
		return v, nil
	}
	v, err := q.embedder.Embed(q.ctx, q.text, dim)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q.byDim[dim] = v
	return v, nil
}

// prepare returns nil when the query carries no signal.
func (r *Retriever) prepare(ctx context.Context, query string) (*queryVectors, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	q := &queryVectors{ctx: ctx, embedder: r.embedder, text: query, byDim: map[int][]float32{}}
	vec, err := q.get(r.dim)
	if err != nil {
		return nil, err
	}
	if embedding.IsZero(vec) {
		return nil, nil
	}
	return q, nil
}

func (r *Retriever) dimOf(v []float32) int {
	if len(v) == 0 {
		return r.dim
	}
	return len(v)
}

// RetrieveAttachments ranks the attachment chunks of one conversation.
func (r *Retriever) RetrieveAttachments(ctx context.Context, assistantID int64, conversationID, query string, limit int) ([]Hit, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("assistant_id", assistantID), zap.String("conversation_id", conversationID))
	q, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if q == nil || limit <= 0 {
		logger.Debug("attachment retrieval skipped, query has no signal")
		return []Hit{}, nil
	}
	chunks, err := r.attachments.ListByScope(ctx, assistantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list attachment chunks: %w", err)
	}
	hits := make([]Hit, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := q.get(r.dimOf(chunk.Embedding))
		if err != nil {
			return nil, err
		}
		score := embedding.Similarity(vec, chunk.Embedding)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			Source:     SourceAttachment,
			Score:      score,
			Content:    chunk.Content,
			ChunkIndex: chunk.ChunkIndex,
		})
	}
	hits = rank(hits, limit)
	for i := range hits {
		hits[i].Snippet = renderAttachment(&hits[i])
	}
	logger.Debug("attachment retrieval finished", zap.Int("scanned", len(chunks)), zap.Int("hits", len(hits)))
	return hits, nil
}

// RetrieveKnowledge ranks chunks of the bound knowledge documents. Each
// document may narrow its own contribution with similarity_threshold and
// top_k before the pooled global cut at limit.
func (r *Retriever) RetrieveKnowledge(ctx context.Context, knowledgeIDs []int64, query string, limit int) ([]Hit, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int("sources", len(knowledgeIDs)))
	if len(knowledgeIDs) == 0 || limit <= 0 {
		return []Hit{}, nil
	}
	q, err := r.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if q == nil {
		logger.Debug("knowledge retrieval skipped, query has no signal")
		return []Hit{}, nil
	}
	docs, err := r.documents.ListByIDs(ctx, knowledgeIDs)
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	if len(docs) == 0 {
		return []Hit{}, nil
	}
	sources := make(map[int64]*model.Document, len(docs))
	overrides := make(map[int64]RetrievalConfig, len(docs))
	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		sources[doc.ID] = doc
		overrides[doc.ID] = ResolveRetrieval(doc.Parameters)
		ids = append(ids, doc.ID)
	}
	chunks, err := r.chunks.ListByDocuments(ctx, ids, r.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
	}

	perSource := make(map[int64][]Hit, len(docs))
	order := make([]int64, 0, len(docs))
	for _, chunk := range chunks {
		doc, ok := sources[chunk.DocumentID]
		if !ok {
			continue
		}
		vec, err := q.get(r.dimOf(chunk.Embedding))
		if err != nil {
			return nil, err
		}
		score := embedding.Similarity(vec, chunk.Embedding)
		if score <= 0 {
			continue
		}
		if threshold := overrides[doc.ID].SimilarityThreshold; threshold != nil && score < *threshold {
			continue
		}
		if _, seen := perSource[doc.ID]; !seen {
			order = append(order, doc.ID)
		}
		perSource[doc.ID] = append(perSource[doc.ID], knowledgeHit(doc, chunk, score))
	}

	pooled := make([]Hit, 0, len(chunks))
	for _, id := range order {
		hits := perSource[id]
		if topK := overrides[id].TopK; topK != nil {
			hits = rank(hits, *topK)
		}
		pooled = append(pooled, hits...)
	}
	pooled = rank(pooled, limit)
	for i := range pooled {
		pooled[i].Snippet = renderKnowledge(&pooled[i])
	}
	logger.Debug("knowledge retrieval finished", zap.Int("scanned", len(chunks)), zap.Int("hits", len(pooled)))
	return pooled, nil
}

func knowledgeHit(doc *model.Document, chunk *model.DocumentChunk, score float64) Hit {
	h := Hit{
		Source:       SourceKnowledge,
		Score:        score,
		Content:      chunk.Content,
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		ChunkIndex:   chunk.ChunkIndex,
	}
	if title, ok := chunk.Metadata["section_title"].(string); ok {
		h.SectionTitle = title
	}
	h.SectionLevel = positiveInt(chunk.Metadata["section_level"], 1)
	if category, ok := chunk.Metadata["category"].(string); ok {
		h.Category = category
	}
	return h
}

// rank orders hits by score, keeping the scan order among equal scores,
// and cuts the list at limit. It sorts in place.
func rank(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
