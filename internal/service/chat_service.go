package service

import (
	"context"
	"fmt"
	"strings"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/llm"
	"doc-chat-go/pkg/log"
)

// RefusalText 是上下文不足时模型被要求逐字返回的固定拒答文本。
const RefusalText = "I don't have relevant information to answer that question."

const defaultRules = `You are an AI assistant restricted to answering **only** using the context provided below. You must not use external knowledge.

- If the context doesn't contain an answer, respond exactly with: "` + RefusalText + `"
- Do not guess or hallucinate. Do not rely on prior knowledge.
- Keep your tone helpful and structured (bullet points if needed).`

// ChatService 定义了基于检索的问答操作。
type ChatService interface {
	// Answer 在命名空间内检索上下文并生成受限回答。
	Answer(ctx context.Context, query, namespace string) (string, error)
	// History 返回该命名空间的对话历史。
	History(ctx context.Context, namespace string) ([]model.ChatMessage, error)
}

type chatService struct {
	searchService    SearchService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	promptCfg        config.LLMPromptConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService, llmClient llm.Client, conversationRepo repository.ConversationRepository, promptCfg config.LLMPromptConfig) ChatService {
	return &chatService{
		searchService:    searchService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		promptCfg:        promptCfg,
	}
}

// Answer 协调检索与生成：检索到的分块文本拼接为受限上下文，
// 一次非流式调用补全服务，回答原样返回。
func (s *chatService) Answer(ctx context.Context, query, namespace string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", apperr.Newf(apperr.KindValidation, "", "查询内容为空")
	}

	// 1. 检索上下文（topK 使用配置默认值）
	results, err := s.searchService.Retrieve(ctx, query, namespace, 0)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 2. 构建受限 system 消息并调用补全服务
	messages := []llm.Message{
		{Role: "system", Content: s.buildSystemMessage(results)},
		{Role: "user", Content: query},
	}
	answer, err := s.llmClient.ChatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}

	// 3. 保存对话历史。使用后台上下文：即使原始请求已被取消，
	// 也希望保存成功生成的回答；失败只记日志。
	if err := s.conversationRepo.AppendExchange(context.Background(), namespace, query, answer); err != nil {
		log.Errorf("保存对话历史失败: %v", err)
	}

	return answer, nil
}

// History 返回该命名空间的对话历史。
func (s *chatService) History(ctx context.Context, namespace string) ([]model.ChatMessage, error) {
	return s.conversationRepo.GetHistory(ctx, namespace)
}

// buildSystemMessage 把检索结果拼成受限上下文的 system 消息。
// 各段文本以空行分隔；无检索结果时上下文为空，规则会引导模型拒答。
func (s *chatService) buildSystemMessage(results []model.SearchResult) string {
	rules := s.promptCfg.Rules
	if rules == "" {
		rules = defaultRules
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	contextText := strings.Join(texts, "\n\n")
	if contextText == "" && s.promptCfg.NoResultText != "" {
		contextText = s.promptCfg.NoResultText
	}

	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\nContext:\n")
	sys.WriteString(contextText)
	return sys.String()
}
