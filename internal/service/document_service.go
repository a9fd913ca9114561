package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"

	"doc-chat-go/internal/model"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/apperr"
	"doc-chat-go/pkg/extract"
	"doc-chat-go/pkg/kafka"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/storage"
	"doc-chat-go/pkg/tasks"
)

// VectorDeleter 删除某个文件在向量索引中的全部切片。
type VectorDeleter interface {
	DeleteByFilename(ctx context.Context, namespace, filename string) error
}

// DocumentService 接口定义了文档的上传、查询与删除操作。
type DocumentService interface {
	Upload(ctx context.Context, namespace string, reader io.Reader, filename string, size int64) (*model.Document, error)
	List(namespace string) ([]*model.Document, error)
	Get(id uint, namespace string) (*model.Document, error)
	Delete(ctx context.Context, id uint, namespace string) error
}

type documentService struct {
	documentRepo repository.DocumentRepository
	store        *storage.Store
	producer     *kafka.Producer
	index        VectorDeleter
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository, store *storage.Store, producer *kafka.Producer, index VectorDeleter) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		store:        store,
		producer:     producer,
		index:        index,
	}
}

// Upload 将文件暂存到对象存储，创建文档记录，并投递异步处理任务。
// 上传立即返回，切片、向量化与索引在消费端完成。
func (s *documentService) Upload(ctx context.Context, namespace string, reader io.Reader, filename string, size int64) (*model.Document, error) {
	if !extract.IsSupportedFile(filename) {
		return nil, apperr.Newf(apperr.KindValidation, "upload",
			"unsupported file type %q, allowed: .pdf .doc .docx .txt", filepath.Ext(filename))
	}

	objectName := fmt.Sprintf("%s/%s_%s", namespace, uuid.NewString(), filename)
	if err := s.store.Put(ctx, objectName, reader, size); err != nil {
		return nil, fmt.Errorf("暂存文件失败: %w", err)
	}

	doc := &model.Document{
		Filename:   filename,
		Namespace:  namespace,
		ObjectName: objectName,
		Size:       size,
		Status:     model.DocStatusProcessing,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		// 记录创建失败时清理已上传的对象，避免孤儿文件。
		if removeErr := s.store.Remove(ctx, objectName); removeErr != nil {
			log.Errorf("清理暂存对象 %s 失败: %v", objectName, removeErr)
		}
		return nil, err
	}

	task := tasks.DocumentProcessingTask{
		DocumentID: doc.ID,
		ObjectName: objectName,
		FileName:   filename,
		Namespace:  namespace,
	}
	if err := s.producer.ProduceTask(ctx, task); err != nil {
		if markErr := s.documentRepo.UpdateResult(doc.ID, model.DocStatusFailed, 0, "任务投递失败"); markErr != nil {
			log.Errorf("标记文档 %d 失败状态出错: %v", doc.ID, markErr)
		}
		return nil, fmt.Errorf("投递文档处理任务失败: %w", err)
	}

	log.Infof("文档 %s (id=%d) 已接收, namespace=%s", filename, doc.ID, namespace)
	return doc, nil
}

// List 返回某个 namespace 下的全部文档。
func (s *documentService) List(namespace string) ([]*model.Document, error) {
	return s.documentRepo.FindByNamespace(namespace)
}

// Get 返回单个文档的处理状态，跨 namespace 的访问视为不存在。
func (s *documentService) Get(id uint, namespace string) (*model.Document, error) {
	return s.documentRepo.FindByIDAndNamespace(id, namespace)
}

// Delete 删除文档：先清除向量索引切片，再删除暂存对象与数据库记录。
func (s *documentService) Delete(ctx context.Context, id uint, namespace string) error {
	doc, err := s.documentRepo.FindByIDAndNamespace(id, namespace)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByFilename(ctx, namespace, doc.Filename); err != nil {
		return fmt.Errorf("删除向量切片失败: %w", err)
	}
	if err := s.store.Remove(ctx, doc.ObjectName); err != nil {
		log.Errorf("删除暂存对象 %s 失败: %v", doc.ObjectName, err)
	}
	return s.documentRepo.Delete(doc.ID)
}
