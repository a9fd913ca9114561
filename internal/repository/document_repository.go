package repository

import (
	"time"

	"gorm.io/gorm"

	"doc-chat-go/internal/model"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
// 所有查询都以 namespace 为过滤条件，不跨租户读取。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByIDAndNamespace(id uint, namespace string) (*model.Document, error)
	FindByNamespace(namespace string) ([]*model.Document, error)
	UpdateResult(id uint, status, chunkCount int, failureNote string) error
	Delete(id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) FindByIDAndNamespace(id uint, namespace string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND namespace = ?", id, namespace).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByNamespace(namespace string) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.Where("namespace = ?", namespace).Order("uploaded_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateResult(id uint, status, chunkCount int, failureNote string) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       status,
		"chunk_count":  chunkCount,
		"failure_note": failureNote,
		"processed_at": &now,
	}).Error
}

func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Document{}, id).Error
}
