package convo

import (
	"strings"

	"github.com/xxxsen/mchat/internal/ai"
	"github.com/xxxsen/mchat/internal/model"
)

const (
	attachmentNoteHeader = "Reference material from files the user attached to this conversation:"
	knowledgeNoteHeader  = "Reference material from the knowledge base:"
)

// BuildPrompt lays out the outbound messages: system prompt, scene prompt,
// default prompt, attachment note, knowledge note, then the transcript in
// chronological order. Empty parts are skipped.
func BuildPrompt(profile *model.AssistantProfile, attachmentCtx, knowledgeCtx []string, transcript []*model.Message) []ai.Message {
	messages := make([]ai.Message, 0, len(transcript)+5)
	addSystem := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: text})
	}
	if profile != nil {
		addSystem(profile.SystemPrompt)
		addSystem(profile.ScenePrompt)
		addSystem(profile.PromptContent)
	}
	if len(attachmentCtx) > 0 {
		addSystem(attachmentNoteHeader + "\n\n" + strings.Join(attachmentCtx, "\n\n"))
	}
	if len(knowledgeCtx) > 0 {
		addSystem(knowledgeNoteHeader + "\n\n" + strings.Join(knowledgeCtx, "\n\n"))
	}
	for _, msg := range transcript {
		if turn, ok := transcriptTurn(msg); ok {
			messages = append(messages, turn)
		}
	}
	return messages
}

func transcriptTurn(msg *model.Message) (ai.Message, bool) {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return ai.Message{}, false
	}
	switch msg.Role {
	case model.RoleAssistant:
		return ai.Message{Role: ai.RoleAssistant, Content: msg.Content}, true
	case model.RoleSystem:
		return ai.Message{Role: ai.RoleSystem, Content: msg.Content}, true
	}
	if msg.MessageType == model.MessageTypeAttachment {
		return ai.Message{Role: ai.RoleUser, Content: "[uploaded file] " + msg.Content}, true
	}
	return ai.Message{Role: ai.RoleUser, Content: msg.Content}, true
}
