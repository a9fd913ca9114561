package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/llm"
)

type fakeSearchService struct {
	results []model.SearchResult
	err     error
}

func (f *fakeSearchService) Retrieve(ctx context.Context, query, namespace string, topK int) ([]model.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeLLM struct {
	answer       string
	err          error
	lastMessages []llm.Message
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, messages []llm.Message) (string, error) {
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeConversationRepo struct {
	history   []model.ChatMessage
	appendErr error
	appended  [][2]string
}

func (f *fakeConversationRepo) GetHistory(ctx context.Context, namespace string) ([]model.ChatMessage, error) {
	return f.history, nil
}

func (f *fakeConversationRepo) AppendExchange(ctx context.Context, namespace, question, answer string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, [2]string{question, answer})
	return nil
}

func TestAnswerEmptyQueryRejected(t *testing.T) {
	svc := NewChatService(&fakeSearchService{}, &fakeLLM{}, &fakeConversationRepo{}, config.LLMPromptConfig{})

	_, err := svc.Answer(context.Background(), "  ", "ns")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestAnswerPromptContainsContextAndRules(t *testing.T) {
	search := &fakeSearchService{results: []model.SearchResult{
		{Text: "first passage"},
		{Text: "second passage"},
	}}
	client := &fakeLLM{answer: "an answer"}
	svc := NewChatService(search, client, &fakeConversationRepo{}, config.LLMPromptConfig{})

	answer, err := svc.Answer(context.Background(), "what is up", "ns")
	require.NoError(t, err)
	assert.Equal(t, "an answer", answer)

	require.Len(t, client.lastMessages, 2)
	system := client.lastMessages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, RefusalText)
	assert.Contains(t, system.Content, "Context:\nfirst passage\n\nsecond passage")

	user := client.lastMessages[1]
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, "what is up", user.Content)
}

func TestAnswerEmptyContextStillAsksModel(t *testing.T) {
	// 无检索结果时上下文为空，由规则引导模型返回固定拒答文本。
	client := &fakeLLM{answer: RefusalText}
	svc := NewChatService(&fakeSearchService{}, client, &fakeConversationRepo{}, config.LLMPromptConfig{})

	answer, err := svc.Answer(context.Background(), "unknown topic", "ns")
	require.NoError(t, err)
	assert.Equal(t, RefusalText, answer)
	assert.Contains(t, client.lastMessages[0].Content, "Context:\n")
}

func TestAnswerRetrieveFailureSurfaced(t *testing.T) {
	search := &fakeSearchService{err: errors.New("index down")}
	svc := NewChatService(search, &fakeLLM{}, &fakeConversationRepo{}, config.LLMPromptConfig{})

	_, err := svc.Answer(context.Background(), "question", "ns")
	assert.Error(t, err)
}

func TestAnswerLLMFailureSurfaced(t *testing.T) {
	client := &fakeLLM{err: apperr.Newf(apperr.KindTransient, "llm", "upstream timeout")}
	repo := &fakeConversationRepo{}
	svc := NewChatService(&fakeSearchService{}, client, repo, config.LLMPromptConfig{})

	_, err := svc.Answer(context.Background(), "question", "ns")
	require.Error(t, err)
	// 失败的问答不写入历史
	assert.Empty(t, repo.appended)
}

func TestAnswerAppendsExchangeToHistory(t *testing.T) {
	repo := &fakeConversationRepo{}
	svc := NewChatService(&fakeSearchService{}, &fakeLLM{answer: "the answer"}, repo, config.LLMPromptConfig{})

	_, err := svc.Answer(context.Background(), "the question", "ns")
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "the question", repo.appended[0][0])
	assert.Equal(t, "the answer", repo.appended[0][1])
}

func TestAnswerHistoryFailureNotFatal(t *testing.T) {
	repo := &fakeConversationRepo{appendErr: errors.New("redis down")}
	svc := NewChatService(&fakeSearchService{}, &fakeLLM{answer: "ok"}, repo, config.LLMPromptConfig{})

	answer, err := svc.Answer(context.Background(), "question", "ns")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestAnswerCustomPromptOverrides(t *testing.T) {
	client := &fakeLLM{answer: "ok"}
	svc := NewChatService(&fakeSearchService{}, client, &fakeConversationRepo{}, config.LLMPromptConfig{
		Rules:        "custom rules",
		NoResultText: "nothing found",
	})

	_, err := svc.Answer(context.Background(), "question", "ns")
	require.NoError(t, err)
	assert.Contains(t, client.lastMessages[0].Content, "custom rules")
	assert.Contains(t, client.lastMessages[0].Content, "nothing found")
}

func TestHistoryDelegatesToRepo(t *testing.T) {
	repo := &fakeConversationRepo{history: []model.ChatMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}}
	svc := NewChatService(&fakeSearchService{}, &fakeLLM{}, repo, config.LLMPromptConfig{})

	history, err := svc.History(context.Background(), "ns")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
