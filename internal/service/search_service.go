// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/embedding"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/rerank"
	"doc-chat-go/pkg/retry"
)

// VectorSearcher 是检索所需的向量索引查询能力。
type VectorSearcher interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.SearchResult, error)
}

// SearchService 定义了检索操作。
type SearchService interface {
	// Retrieve 在命名空间内检索与 query 最相关的 topK 个分块。
	// topK 非正数时使用配置默认值。
	Retrieve(ctx context.Context, query, namespace string, topK int) ([]model.SearchResult, error)
}

type searchService struct {
	embedder embedding.Client
	index    VectorSearcher
	reranker rerank.Client
	topK     int
}

// NewSearchService 创建一个新的 SearchService 实例。
// reranker 可以为 nil，此时跳过重排序。
func NewSearchService(embedder embedding.Client, index VectorSearcher, reranker rerank.Client, cfg config.RetrievalConfig) SearchService {
	topK := cfg.TopK
	if topK <= 0 {
		topK = config.DefaultTopK
	}
	return &searchService{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		topK:     topK,
	}
}

// Retrieve 执行查询向量化、命名空间内 top-k 相似度检索与可选的重排序。
//
// 向量化或索引失败对本次检索是致命的；重排序失败只记日志并
// 回退到相似度顺序——检索绝不因重排序失败而失败。
func (s *searchService) Retrieve(ctx context.Context, query, namespace string, topK int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Newf(apperr.KindValidation, "", "查询内容为空")
	}
	if topK <= 0 {
		topK = s.topK
	}

	// 1. 向量化查询
	var queryVector []float32
	err := retry.Do(ctx, 2, retry.DefaultBaseDelay, func() error {
		var embedErr error
		queryVector, embedErr = s.embedder.EmbedOne(ctx, query)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	// 2. 命名空间内 top-k 检索；命中不足 topK 不算错误
	results, err := s.index.Query(ctx, namespace, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("向量索引查询失败: %w", err)
	}
	if len(results) == 0 {
		return []model.SearchResult{}, nil
	}

	// 3. 可选的重排序，失败即降级
	if s.reranker == nil {
		return results, nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	indices, err := s.reranker.Rerank(ctx, query, texts)
	if err != nil {
		log.Warnf("[SearchService] 重排序失败, 回退到相似度顺序: %v", err)
		return results, nil
	}
	if len(indices) != len(results) {
		log.Warnf("[SearchService] 重排序返回 %d 个下标, 候选 %d 个, 回退到相似度顺序", len(indices), len(results))
		return results, nil
	}

	reranked := make([]model.SearchResult, 0, len(results))
	for _, idx := range indices {
		reranked = append(reranked, results[idx])
	}
	return reranked, nil
}
