// Package pipeline 实现了文档入库的核心流程：
// 分块经向量化后按固定批次并发写入向量索引。
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/embedding"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/retry"
)

// VectorIndex 是调度器需要的向量索引写入能力。
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error
}

// Scheduler 将分块切成固定大小的批次，在有界并发下逐批
// 向量化并写入索引。批次之间相互独立：单批失败不中止
// 其余批次，结果按批聚合返回。
type Scheduler struct {
	embedder     embedding.Client
	index        VectorIndex
	pool         *ants.Pool
	batchSize    int
	embedRetries int
}

// NewScheduler 创建一个批量入库调度器，并发度由 cfg.Workers 限定。
func NewScheduler(embedder embedding.Client, index VectorIndex, cfg config.IngestConfig) (*Scheduler, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	retries := cfg.EmbedRetries
	if retries <= 0 {
		retries = config.DefaultEmbedRetries
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		embedder:     embedder,
		index:        index,
		pool:         pool,
		batchSize:    batchSize,
		embedRetries: retries,
	}, nil
}

// Release 释放工作池。
func (s *Scheduler) Release() {
	s.pool.Release()
}

// Ingest 将分块写入给定命名空间。
//
// 所有批次结算（成功、失败或取消）后才返回；已提交的批次
// 保持提交，不做跨批回滚——对大文件上传来说，部分入库好过
// 整体丢失。返回值逐一列出失败的批次及原因。
func (s *Scheduler) Ingest(ctx context.Context, chunks []model.Chunk, namespace string) *model.IngestResult {
	if len(chunks) == 0 {
		return &model.IngestResult{}
	}

	batches := s.partition(chunks)
	log.Infof("[Scheduler] 开始入库: namespace=%s, 分块=%d, 批次=%d", namespace, len(chunks), len(batches))

	// 每个任务只写自己的下标，无需加锁
	outcomes := make([]error, len(batches))
	var wg sync.WaitGroup
	for i := range batches {
		i := i
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = s.processBatch(ctx, batches[i], namespace)
		})
		if submitErr != nil {
			outcomes[i] = fmt.Errorf("提交批次到工作池失败: %w", submitErr)
			wg.Done()
		}
	}
	wg.Wait()

	result := &model.IngestResult{TotalBatches: len(batches)}
	for i, err := range outcomes {
		if err == nil {
			result.SucceededChunks += len(batches[i])
			continue
		}
		result.FailedBatches = append(result.FailedBatches, model.BatchFailure{
			BatchIndex: i,
			ChunkCount: len(batches[i]),
			Reason:     err.Error(),
		})
		log.Errorf("[Scheduler] 批次 %d 入库失败: %v", i, err)
	}
	log.Infof("[Scheduler] 入库完成: namespace=%s, 成功分块=%d, 失败批次=%d",
		namespace, result.SucceededChunks, len(result.FailedBatches))
	return result
}

// partition 将分块按 batchSize 切成连续批次。
func (s *Scheduler) partition(chunks []model.Chunk) [][]model.Chunk {
	var batches [][]model.Chunk
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}

// processBatch 处理单个批次：先整批向量化，再一次性写入索引。
// 批内严格先 embed 后 upsert；批间无任何顺序依赖。
func (s *Scheduler) processBatch(ctx context.Context, batch []model.Chunk, namespace string) error {
	// 整体已取消时不再发起远程调用
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("批次未开始即被取消: %w", err)
	}

	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := retry.Do(ctx, s.embedRetries, retry.DefaultBaseDelay, func() error {
		var embedErr error
		vectors, embedErr = s.embedder.EmbedMany(ctx, texts)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("批次向量化失败: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("向量数量 %d 与批次分块数 %d 不一致", len(vectors), len(batch))
	}

	records := make([]model.VectorRecord, len(batch))
	for i, chunk := range batch {
		records[i] = model.VectorRecord{
			ID:     chunk.ChunkID,
			Vector: vectors[i],
			Meta: model.RecordMeta{
				Namespace:    namespace,
				Filename:     chunk.Filename,
				Text:         chunk.Text,
				CreatedAt:    chunk.CreatedAt,
				SourceOffset: chunk.SourceOffset,
			},
		}
	}

	if err := s.index.Upsert(ctx, namespace, records); err != nil {
		return fmt.Errorf("批次写入索引失败: %w", err)
	}
	return nil
}
