// Package embedding 提供了调用远程 Embedding 服务的客户端。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"doc-chat-go/internal/config"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/log"
)

// 错误分类时使用的服务标识。
const providerName = "embedding"

// Client 定义了 Embedding 客户端的接口。
// EmbedMany 保证顺序对应：输出下标 i 的向量对应输入下标 i 的文本。
type Client interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient 创建一个 OpenAI 兼容的 Embedding 客户端。
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedOne 将单条文本向量化。
func (c *openAICompatibleClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany 将一批文本向量化，结果与输入顺序一一对应。
// 客户端本身不做缓存与重试；重试策略由调用方决定。
func (c *openAICompatibleClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Debugf("[EmbeddingClient] 调用 Embedding API, model: %s, 批大小: %d", c.cfg.Model, len(texts))

	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败: %v", err)
		return nil, apperr.Newf(apperr.KindTransient, providerName, "failed to call embedding api: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, apperr.Newf(apperr.KindTransient, providerName, "embedding api returned status: %s", resp.Status)
		}
		// 4xx（含鉴权失败）不可重试
		return nil, apperr.Newf(apperr.KindBadResponse, providerName, "embedding api returned status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, apperr.Newf(apperr.KindBadResponse, providerName, "failed to decode embedding response: %v", err)
	}
	if len(embeddingResp.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindBadResponse, providerName,
			"embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	// 按响应中的 index 归位，保证与输入顺序一致
	vectors := make([][]float32, len(texts))
	for _, d := range embeddingResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperr.Newf(apperr.KindBadResponse, providerName, "embedding api returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, apperr.Newf(apperr.KindBadResponse, providerName, "embedding api returned empty vector at index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, apperr.Newf(apperr.KindBadResponse, providerName, "embedding api returned no vector for index %d", i)
		}
	}
	return vectors, nil
}
