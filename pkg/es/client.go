// Package es 将 Elasticsearch 封装为按命名空间隔离的向量索引。
//
// 隔离完全由 namespace 字段上的 term 过滤实现：每次写入和查询都
// 必须携带且只携带一个 namespace，任何操作都不会跨越它。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/log"
)

const providerName = "index"

// Client 是向量索引的客户端，可安全地被多个 goroutine 并发使用。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端，并在索引不存在时按给定向量维度创建。
func NewClient(cfg config.ElasticsearchConfig, dims int) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	esClient, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}

	c := &Client{es: esClient, indexName: cfg.IndexName}
	if err := c.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，不存在则按余弦相似度创建。
func (c *Client) createIndexIfNotExists(dims int) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"namespace": { "type": "keyword" },
				"filename": { "type": "keyword" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"created_at": { "type": "date" },
				"source_offset": { "type": "integer" }
			}
		}
	}`, dims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// esDocument 是向量记录在索引中的存储形式。
type esDocument struct {
	Namespace    string    `json:"namespace"`
	Filename     string    `json:"filename"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	CreatedAt    time.Time `json:"created_at"`
	SourceOffset int       `json:"source_offset"`
}

// Upsert 以一次 Bulk 请求将一批向量记录写入给定命名空间。
// 文档 _id 即 chunk_id；记录写入后归索引所有。
func (c *Client) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range records {
		meta := map[string]map[string]string{
			"index": {"_index": c.indexName, "_id": r.ID},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		doc := esDocument{
			Namespace:    namespace,
			Filename:     r.Meta.Filename,
			TextContent:  r.Meta.Text,
			Vector:       r.Vector,
			CreatedAt:    r.Meta.CreatedAt,
			SourceOffset: r.Meta.SourceOffset,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return apperr.Newf(apperr.KindIndex, providerName, "bulk upsert failed: %v", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperr.Newf(apperr.KindIndex, providerName, "bulk upsert returned error: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return apperr.Newf(apperr.KindIndex, providerName, "failed to decode bulk response: %v", err)
	}
	if bulkResp.Errors {
		return apperr.Newf(apperr.KindIndex, providerName, "bulk upsert reported per-item errors")
	}
	return nil
}

// Query 在给定命名空间内做 top-k 余弦相似度检索。
// 命名空间内向量不足 topK 时返回全部可用结果，不算错误。
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]model.SearchResult, error) {
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"namespace": namespace},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperr.Newf(apperr.KindIndex, providerName, "search failed: %v", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperr.Newf(apperr.KindIndex, providerName, "search returned error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, apperr.Newf(apperr.KindIndex, providerName, "failed to decode search response: %v", err)
	}

	results := make([]model.SearchResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResult{
			ChunkID:      hit.ID,
			Text:         hit.Source.TextContent,
			Filename:     hit.Source.Filename,
			SourceOffset: hit.Source.SourceOffset,
			Score:        hit.Score,
		})
	}
	return results, nil
}

// DeleteByFilename 删除命名空间内归属某文件的全部向量记录。
func (c *Client) DeleteByFilename(ctx context.Context, namespace, filename string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"namespace": namespace}},
					{"term": map[string]interface{}{"filename": filename}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.indexName},
		&buf,
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return apperr.Newf(apperr.KindIndex, providerName, "delete by query failed: %v", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperr.Newf(apperr.KindIndex, providerName, "delete by query returned error: %s", res.String())
	}
	return nil
}
