package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"doc-chat-go/internal/model"
)

func TestSummarizeFailures(t *testing.T) {
	result := &model.IngestResult{
		SucceededChunks: 12,
		TotalBatches:    4,
		FailedBatches: []model.BatchFailure{
			{BatchIndex: 1, ChunkCount: 4, Reason: "批次向量化失败"},
			{BatchIndex: 3, ChunkCount: 2, Reason: "批次写入索引失败"},
		},
	}

	note := summarizeFailures(result)
	assert.Contains(t, note, "2/4 个批次失败")
	assert.Contains(t, note, "批次1")
	assert.Contains(t, note, "批次3")
	assert.Contains(t, note, "批次向量化失败")
}
