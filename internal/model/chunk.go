// Package model 包含了应用的数据模型定义。
package model

import "time"

// Chunk 是一段带出处元数据的有界文本窗口，是向量化与存储的基本单位。
// Chunk 在切块时创建后不再修改；ChunkID 全局唯一且不复用。
type Chunk struct {
	ChunkID      string    // UUID，切块时生成
	Text         string    // 窗口内容
	Namespace    string    // 租户隔离键
	Filename     string    // 来源文件名
	CreatedAt    time.Time // 切块时间
	SourceOffset int       // 来自抽取环节的位置信息（页/节序号）
}

// VectorRecord 是 Chunk 在向量索引中的持久化形式。
// 文本被复制进元数据，检索时无需二次查询即可返回内容。
type VectorRecord struct {
	ID     string     `json:"id"`
	Vector []float32  `json:"vector"`
	Meta   RecordMeta `json:"meta"`
}

// RecordMeta 是随向量一起持久化的结构化元数据。
// 固定字段而非开放映射，使租户隔离不变量可被静态检查。
type RecordMeta struct {
	Namespace    string    `json:"namespace"`
	Filename     string    `json:"filename"`
	Text         string    `json:"text_content"`
	CreatedAt    time.Time `json:"created_at"`
	SourceOffset int       `json:"source_offset"`
}

// SearchResult 是一次相似度查询的瞬态结果，按索引的余弦相似度排序。
type SearchResult struct {
	ChunkID      string  `json:"chunkId"`
	Text         string  `json:"text"`
	Filename     string  `json:"filename"`
	SourceOffset int     `json:"sourceOffset"`
	Score        float64 `json:"score"`
}

// IngestResult 汇总一次入库的逐批结果。
// 单批失败不会中止其余批次；失败批次在这里逐一列出。
type IngestResult struct {
	SucceededChunks int            `json:"succeededChunks"`
	TotalBatches    int            `json:"totalBatches"`
	FailedBatches   []BatchFailure `json:"failedBatches,omitempty"`
}

// BatchFailure 描述一个失败批次及其原因。
type BatchFailure struct {
	BatchIndex int    `json:"batchIndex"`
	ChunkCount int    `json:"chunkCount"`
	Reason     string `json:"reason"`
}
