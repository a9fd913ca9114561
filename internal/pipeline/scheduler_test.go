package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat-go/internal/config"
	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/apperr"
)

// fakeEmbedder 为每个文本返回确定性的向量，可配置整批失败。
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failTexts map[string]bool // 批内包含任一文本则整批失败
	transient int             // 前 N 次调用返回瞬时错误
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if calls <= f.transient {
		return nil, apperr.New(apperr.KindTransient, "embedding", fmt.Errorf("temporary failure"))
	}
	for _, text := range texts {
		if f.failTexts[text] {
			return nil, apperr.New(apperr.KindBadResponse, "embedding", fmt.Errorf("bad input %q", text))
		}
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text))}
	}
	return vectors, nil
}

// fakeIndex 记录所有 upsert 的记录。
type fakeIndex struct {
	mu      sync.Mutex
	records []model.VectorRecord
	batches int
	failAll bool
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace string, records []model.VectorRecord) error {
	if f.failAll {
		return apperr.Newf(apperr.KindIndex, "elasticsearch", "index unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	f.records = append(f.records, records...)
	return nil
}

func makeChunks(n int) []model.Chunk {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		chunks[i] = model.Chunk{
			ChunkID:   fmt.Sprintf("chunk-%03d", i),
			Text:      strings.Repeat("x", i+1),
			Namespace: "ns",
			Filename:  "doc.pdf",
		}
	}
	return chunks
}

func newTestScheduler(t *testing.T, embedder *fakeEmbedder, index *fakeIndex, batchSize, workers int) *Scheduler {
	t.Helper()
	s, err := NewScheduler(embedder, index, config.IngestConfig{
		BatchSize:    batchSize,
		Workers:      workers,
		EmbedRetries: 3,
	})
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestIngestEmptyInput(t *testing.T) {
	s := newTestScheduler(t, &fakeEmbedder{}, &fakeIndex{}, 4, 2)
	result := s.Ingest(context.Background(), nil, "ns")
	assert.Equal(t, 0, result.TotalBatches)
	assert.Equal(t, 0, result.SucceededChunks)
	assert.Empty(t, result.FailedBatches)
}

func TestIngestBatchCount(t *testing.T) {
	index := &fakeIndex{}
	s := newTestScheduler(t, &fakeEmbedder{}, index, 4, 2)

	result := s.Ingest(context.Background(), makeChunks(10), "ns")

	// 10 个分块按每批 4 个切分为 3 批
	assert.Equal(t, 3, result.TotalBatches)
	assert.Equal(t, 10, result.SucceededChunks)
	assert.Empty(t, result.FailedBatches)
	assert.Equal(t, 3, index.batches)
	assert.Len(t, index.records, 10)
}

func TestIngestAllChunksCommittedOnce(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			index := &fakeIndex{}
			s := newTestScheduler(t, &fakeEmbedder{}, index, 3, workers)

			chunks := makeChunks(20)
			result := s.Ingest(context.Background(), chunks, "ns")
			assert.Equal(t, 20, result.SucceededChunks)

			seen := make(map[string]int)
			for _, rec := range index.records {
				seen[rec.ID]++
			}
			for _, chunk := range chunks {
				assert.Equal(t, 1, seen[chunk.ChunkID], "chunk %s committed wrong number of times", chunk.ChunkID)
			}
		})
	}
}

func TestIngestSingleBatchFailureIsIsolated(t *testing.T) {
	// 第二批（下标 4..7）中的一个分块令整批向量化失败，
	// 其余批次必须照常提交。
	chunks := makeChunks(10)
	embedder := &fakeEmbedder{failTexts: map[string]bool{chunks[5].Text: true}}
	index := &fakeIndex{}
	s := newTestScheduler(t, embedder, index, 4, 2)

	result := s.Ingest(context.Background(), chunks, "ns")

	assert.Equal(t, 3, result.TotalBatches)
	assert.Equal(t, 6, result.SucceededChunks)
	require.Len(t, result.FailedBatches, 1)
	assert.Equal(t, 1, result.FailedBatches[0].BatchIndex)
	assert.Equal(t, 4, result.FailedBatches[0].ChunkCount)
	assert.Contains(t, result.FailedBatches[0].Reason, "向量化失败")
	assert.Len(t, index.records, 6)
}

func TestIngestRetriesTransientEmbedFailures(t *testing.T) {
	// 前两次调用返回瞬时错误，第三次成功：批次最终提交。
	embedder := &fakeEmbedder{transient: 2}
	index := &fakeIndex{}
	s := newTestScheduler(t, embedder, index, 8, 1)

	result := s.Ingest(context.Background(), makeChunks(4), "ns")

	assert.Equal(t, 4, result.SucceededChunks)
	assert.Empty(t, result.FailedBatches)
	assert.Equal(t, 3, embedder.calls)
}

func TestIngestIndexFailureReported(t *testing.T) {
	index := &fakeIndex{failAll: true}
	s := newTestScheduler(t, &fakeEmbedder{}, index, 4, 2)

	result := s.Ingest(context.Background(), makeChunks(8), "ns")

	assert.Equal(t, 0, result.SucceededChunks)
	assert.Len(t, result.FailedBatches, 2)
	for _, failure := range result.FailedBatches {
		assert.Contains(t, failure.Reason, "写入索引失败")
	}
}

func TestIngestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	index := &fakeIndex{}
	s := newTestScheduler(t, &fakeEmbedder{}, index, 4, 2)
	result := s.Ingest(ctx, makeChunks(8), "ns")

	assert.Equal(t, 0, result.SucceededChunks)
	assert.Len(t, result.FailedBatches, 2)
	assert.Empty(t, index.records)
}

func TestIngestRecordCarriesChunkMetadata(t *testing.T) {
	index := &fakeIndex{}
	s := newTestScheduler(t, &fakeEmbedder{}, index, 4, 1)

	chunks := makeChunks(2)
	chunks[0].SourceOffset = 7
	s.Ingest(context.Background(), chunks, "tenant-b")

	require.Len(t, index.records, 2)
	byID := make(map[string]model.VectorRecord)
	for _, rec := range index.records {
		byID[rec.ID] = rec
	}
	rec := byID["chunk-000"]
	assert.Equal(t, chunks[0].Text, rec.Meta.Text)
	assert.Equal(t, "tenant-b", rec.Meta.Namespace)
	assert.Equal(t, "doc.pdf", rec.Meta.Filename)
	assert.Equal(t, 7, rec.Meta.SourceOffset)
}
