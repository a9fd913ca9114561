// Package rerank 提供了调用远程重排序服务的客户端。
//
// 重排序是检索的可选增强：任何失败都以分类错误返回给调用方，
// 由调用方决定降级策略，绝不让重排序失败拖垮整次检索。
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"doc-chat-go/internal/config"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/log"
)

const providerName = "rerank"

// Client 定义了重排序客户端的接口。
// Rerank 返回候选下标的一个排列，按相关性从高到低。
type Client interface {
	Rerank(ctx context.Context, query string, texts []string) ([]int, error)
}

type httpClient struct {
	cfg    config.RerankConfig
	client *http.Client
}

// NewClient 创建一个重排序客户端。
func NewClient(cfg config.RerankConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type rerankRequest struct {
	Model string   `json:"model"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Result struct {
		Data []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		} `json:"data"`
	} `json:"result"`
}

// Rerank 以一次请求对全部候选打分，按得分降序返回下标排列。
// 得分相同的候选保持原有相对顺序（稳定排序），使相同输入的输出确定。
func (c *httpClient) Rerank(ctx context.Context, query string, texts []string) ([]int, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Debugf("[RerankClient] 调用 Rerank API, model: %s, 候选数: %d", c.cfg.Model, len(texts))

	reqBody := rerankRequest{Model: c.cfg.Model, Query: query, Texts: texts}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/reranker", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Newf(apperr.KindTransient, providerName, "failed to call rerank api: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, apperr.Newf(apperr.KindTransient, providerName, "rerank api returned status: %s", resp.Status)
		}
		return nil, apperr.Newf(apperr.KindBadResponse, providerName, "rerank api returned status: %s", resp.Status)
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, apperr.Newf(apperr.KindBadResponse, providerName, "failed to decode rerank response: %v", err)
	}
	if len(rr.Result.Data) != len(texts) {
		return nil, apperr.Newf(apperr.KindBadResponse, providerName,
			"rerank api returned %d scores for %d texts", len(rr.Result.Data), len(texts))
	}

	// 得分降序；得分相同时按候选的原始下标升序，保证相同输入输出确定
	scored := rr.Result.Data
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Index < scored[j].Index
	})

	indices := make([]int, 0, len(scored))
	seen := make(map[int]struct{}, len(scored))
	for _, item := range scored {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, apperr.Newf(apperr.KindBadResponse, providerName, "rerank api returned out-of-range index %d", item.Index)
		}
		if _, dup := seen[item.Index]; dup {
			return nil, apperr.Newf(apperr.KindBadResponse, providerName, "rerank api returned duplicate index %d", item.Index)
		}
		seen[item.Index] = struct{}{}
		indices = append(indices, item.Index)
	}
	return indices, nil
}
