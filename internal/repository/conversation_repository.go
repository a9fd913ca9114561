package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"doc-chat-go/internal/model"
)

// 对话历史保留的消息条数与过期时间。
const (
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了按命名空间存取对话历史的接口。
type ConversationRepository interface {
	GetHistory(ctx context.Context, namespace string) ([]model.ChatMessage, error)
	AppendExchange(ctx context.Context, namespace, question, answer string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func historyKey(namespace string) string {
	return fmt.Sprintf("conversation:%s", namespace)
}

// GetHistory 从 Redis 获取对话历史记录，无历史时返回空切片。
func (r *redisConversationRepository) GetHistory(ctx context.Context, namespace string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(namespace)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendExchange 追加一轮问答并裁剪到最近 historyLimit 条。
func (r *redisConversationRepository) AppendExchange(ctx context.Context, namespace, question, answer string) error {
	messages, err := r.GetHistory(ctx, namespace)
	if err != nil {
		return err
	}

	now := time.Now()
	messages = append(messages,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(namespace), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}
