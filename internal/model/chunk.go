package model

type DocumentChunk struct {
	ID             int64                  `json:"id"`
	DocumentID     int64                  `json:"document_id"`
	AssistantID    *int64                 `json:"assistant_id"`
	ChunkIndex     int                    `json:"chunk_index"`
	Content        string                 `json:"content"`
	Embedding      []float32              `json:"embedding"`
	EmbeddingModel string                 `json:"embedding_model"`
	Metadata       map[string]interface{} `json:"metadata"`
	Ctime          int64                  `json:"ctime"`
	Mtime          int64                  `json:"mtime"`
}

type AttachmentChunk struct {
	ID             int64     `json:"id"`
	AssistantID    int64     `json:"assistant_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	ChunkIndex     int       `json:"chunk_index"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"embedding"`
	Ctime          int64     `json:"ctime"`
}
