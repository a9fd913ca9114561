package model

import "time"

// 文档处理状态。
const (
	DocStatusProcessing = 0 // 已入队，处理中
	DocStatusCompleted  = 1 // 全部分块入库成功
	DocStatusPartial    = 2 // 部分批次失败，成功批次已提交
	DocStatusFailed     = 3 // 处理失败，未入库任何分块
)

// Document 对应于数据库中的 'documents' 表。
// 它记录一次上传的元数据与处理结果；分块本身只存在于向量索引中，
// 以 Namespace + Filename 归属到该文档。
type Document struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename    string     `gorm:"type:varchar(255);not null" json:"filename"`
	Namespace   string     `gorm:"type:varchar(36);not null;index" json:"-"`
	ObjectName  string     `gorm:"type:varchar(512);not null" json:"-"`
	Size        int64      `gorm:"not null" json:"size"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	ChunkCount  int        `gorm:"not null;default:0" json:"chunkCount"`
	FailureNote string     `gorm:"type:text" json:"failureNote,omitempty"`
	UploadedAt  time.Time  `gorm:"autoCreateTime" json:"uploadedAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
