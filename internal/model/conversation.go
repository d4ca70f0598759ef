package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	MessageTypeText       = "text"
	MessageTypeAttachment = "attachment"
	MessageTypeOpening    = "opening"
)

type Conversation struct {
	ID          string `json:"id"`
	AssistantID int64  `json:"assistant_id"`
	Title       string `json:"title"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

type Message struct {
	ID             int64        `json:"id"`
	ConversationID string       `json:"conversation_id"`
	AssistantID    int64        `json:"assistant_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	MessageType    string       `json:"message_type"`
	Attachments    []Attachment `json:"attachments"`
	HideName       bool         `json:"hideName"`
	Ctime          int64        `json:"ctime"`
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	UploadedAt  int64  `json:"uploaded_at,omitempty"`
}
