package model

type Assistant struct {
	ID              int64                  `json:"id"`
	Name            string                 `json:"name"`
	Icon            string                 `json:"icon"`
	Description     string                 `json:"description"`
	PromptContent   string                 `json:"prompt_content"`
	SystemPrompt    string                 `json:"system_prompt"`
	ScenePrompt     string                 `json:"scene_prompt"`
	UserPrefill     string                 `json:"user_prefill"`
	OpeningMessage  string                 `json:"opening_message"`
	ModelParameters map[string]interface{} `json:"model_parameters"`
	KnowledgeIDs    []int64                `json:"knowledge_ids"`
	Ctime           int64                  `json:"ctime"`
	Mtime           int64                  `json:"mtime"`
}

// AssistantProfile is the slice of an assistant the chat pipeline needs.
type AssistantProfile struct {
	ID             int64   `json:"id"`
	SystemPrompt   string  `json:"system_prompt"`
	ScenePrompt    string  `json:"scene_prompt"`
	PromptContent  string  `json:"prompt_content"`
	OpeningMessage string  `json:"opening_message"`
	KnowledgeIDs   []int64 `json:"knowledge_ids"`
}

func (a *Assistant) Profile() *AssistantProfile {
	ids := make([]int64, len(a.KnowledgeIDs))
	copy(ids, a.KnowledgeIDs)
	return &AssistantProfile{
		ID:             a.ID,
		SystemPrompt:   a.SystemPrompt,
		ScenePrompt:    a.ScenePrompt,
		PromptContent:  a.PromptContent,
		OpeningMessage: a.OpeningMessage,
		KnowledgeIDs:   ids,
	}
}
