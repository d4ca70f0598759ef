package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/model"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
	"github.com/xxxsen/mchat/internal/pkg/timeutil"
)

// AssistantInput carries a create or partial update. Nil fields are left
// untouched on update.
type AssistantInput struct {
	Name            *string                `json:"name"`
	Icon            *string                `json:"icon"`
	Description     *string                `json:"description"`
	PromptContent   *string                `json:"prompt_content"`
	SystemPrompt    *string                `json:"system_prompt"`
	ScenePrompt     *string                `json:"scene_prompt"`
	UserPrefill     *string                `json:"user_prefill"`
	OpeningMessage  *string                `json:"opening_message"`
	ModelParameters map[string]interface{} `json:"model_parameters"`
	KnowledgeIDs    []int64                `json:"knowledge_ids"`
}

type AssistantService struct {
	assistants AssistantStore
	profiles   *expirable.LRU[int64, *model.AssistantProfile]
}

func NewAssistantService(assistants AssistantStore, cacheSize int, cacheTTL time.Duration) *AssistantService {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &AssistantService{
		assistants: assistants,
		profiles:   expirable.NewLRU[int64, *model.AssistantProfile](cacheSize, nil, cacheTTL),
	}
}

func (s *AssistantService) List(ctx context.Context) ([]*model.Assistant, error) {
	return s.assistants.List(ctx)
}

func (s *AssistantService) Get(ctx context.Context, id int64) (*model.Assistant, error) {
	return s.assistants.GetByID(ctx, id)
}

// Profile is the read-through cached view used on every chat turn.
func (s *AssistantService) Profile(ctx context.Context, id int64) (*model.AssistantProfile, error) {
	if p, ok := s.profiles.Get(id); ok {
		return p, nil
	}
	a, err := s.assistants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := a.Profile()
	s.profiles.Add(id, p)
	return p, nil
}

func (s *AssistantService) Create(ctx context.Context, in AssistantInput) (*model.Assistant, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, appErr.Invalid("name is required")
	}
	now := timeutil.NowUnix()
	a := &model.Assistant{
		ModelParameters: map[string]interface{}{},
		KnowledgeIDs:    []int64{},
		Ctime:           now,
		Mtime:           now,
	}
	if err := applyAssistantInput(a, in); err != nil {
		return nil, err
	}
	if err := s.assistants.Create(ctx, a); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("assistant created", zap.Int64("assistant_id", a.ID), zap.String("name", a.Name))
	return a, nil
}

func (s *AssistantService) Update(ctx context.Context, id int64, in AssistantInput) (*model.Assistant, error) {
	return s.modify(ctx, id, func(a *model.Assistant) error {
		return applyAssistantInput(a, in)
	})
}

func (s *AssistantService) UpdatePrompt(ctx context.Context, id int64, prompt string) (*model.Assistant, error) {
	return s.modify(ctx, id, func(a *model.Assistant) error {
		a.PromptContent = prompt
		return nil
	})
}

func (s *AssistantService) UpdateParameters(ctx context.Context, id int64, params map[string]interface{}) (*model.Assistant, error) {
	return s.modify(ctx, id, func(a *model.Assistant) error {
		if params == nil {
			params = map[string]interface{}{}
		}
		a.ModelParameters = params
		return nil
	})
}

func (s *AssistantService) BindKnowledge(ctx context.Context, id int64, knowledgeIDs []int64) (*model.Assistant, error) {
	ids, err := normalizeKnowledgeIDs(knowledgeIDs)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(a *model.Assistant) error {
		a.KnowledgeIDs = ids
		return nil
	})
}

func (s *AssistantService) Delete(ctx context.Context, id int64) error {
	defer s.profiles.Remove(id)
	return s.assistants.Delete(ctx, id)
}

// Seed inserts the default assistants when none exist.
func (s *AssistantService) Seed(ctx context.Context) (int, error) {
	count, err := s.assistants.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	now := timeutil.NowUnix()
	for _, seed := range seedAssistants {
		a := seed
		a.ModelParameters = map[string]interface{}{}
		a.KnowledgeIDs = []int64{}
		a.Ctime, a.Mtime = now, now
		if err := s.assistants.Create(ctx, &a); err != nil {
			return 0, err
		}
	}
	logutil.GetLogger(ctx).Info("seeded default assistants", zap.Int("count", len(seedAssistants)))
	return len(seedAssistants), nil
}

func (s *AssistantService) modify(ctx context.Context, id int64, fn func(a *model.Assistant) error) (*model.Assistant, error) {
	a, err := s.assistants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	a.Mtime = timeutil.NowUnix()
	if err := s.assistants.Update(ctx, a); err != nil {
		return nil, err
	}
	s.profiles.Remove(id)
	return a, nil
}

func applyAssistantInput(a *model.Assistant, in AssistantInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return appErr.Invalid("name is required")
		}
		a.Name = name
	}
	setString(&a.Icon, in.Icon)
	setString(&a.Description, in.Description)
	setString(&a.PromptContent, in.PromptContent)
	setString(&a.SystemPrompt, in.SystemPrompt)
	setString(&a.ScenePrompt, in.ScenePrompt)
	setString(&a.UserPrefill, in.UserPrefill)
	setString(&a.OpeningMessage, in.OpeningMessage)
	if in.ModelParameters != nil {
		a.ModelParameters = in.ModelParameters
	}
	if in.KnowledgeIDs != nil {
		ids, err := normalizeKnowledgeIDs(in.KnowledgeIDs)
		if err != nil {
			return err
		}
		a.KnowledgeIDs = ids
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func normalizeKnowledgeIDs(ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, appErr.Invalid("knowledge ids must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

var seedAssistants = []model.Assistant{
	{
		Name:           "文档助手",
		Icon:           "https://cdn-icons-png.flaticon.com/512/3135/3135715.png",
		Description:    "帮你解读 PDF、操作手册和技术文档内容",
		PromptContent:  "请以结构化方式解读文档，并给出重点摘要与可执行建议。",
		SystemPrompt:   "你是一名专业的技术顾问，擅长阅读和解构多种文档格式。",
		ScenePrompt:    "当前场景：用户需要理解技术文档或说明书中的关键信息。",
		UserPrefill:    "我现在遇到了下面的文档问题：",
		OpeningMessage: "你好，我是文档助手，告诉我你正在阅读的文档或遇到的困惑吧。",
	},
	{
		Name:           "翻译助手",
		Icon:           "https://cdn-icons-png.flaticon.com/512/6073/6073873.png",
		Description:    "支持中英互译，保持语气自然。",
		PromptContent:  "请把用户的内容进行准确、自然的中英翻译。",
		SystemPrompt:   "你是一名专业的翻译员，熟悉多领域术语。",
		ScenePrompt:    "当前场景：提供高质量的双语翻译服务。",
		UserPrefill:    "请翻译以下内容：",
		OpeningMessage: "你好，我是翻译助手，直接输入要翻译的内容就可以了。",
	},
	{
		Name:           "科研问答助手",
		Icon:           "https://cdn-icons-png.flaticon.com/512/9018/9018883.png",
		Description:    "面向学术研究与论文答疑。",
		PromptContent:  "回答时给出严谨的推理过程和引用建议。",
		SystemPrompt:   "你是一名科研助手，熟悉论文阅读、实验设计与数据解读。",
		ScenePrompt:    "当前场景：为科研工作者提供学术问答支持。",
		UserPrefill:    "我的科研问题是：",
		OpeningMessage: "你好，我是科研助手，可以告诉我你的研究主题或遇到的问题。",
	},
}
