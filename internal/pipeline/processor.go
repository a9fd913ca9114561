package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"doc-chat-go/internal/chunker"
	"doc-chat-go/internal/model"
	"doc-chat-go/internal/repository"
	"doc-chat-go/pkg/extract"
	"doc-chat-go/pkg/log"
	"doc-chat-go/pkg/storage"
	"doc-chat-go/pkg/tasks"
)

// Processor 封装了文档从对象存储到向量索引的完整处理流程。
type Processor struct {
	store        *storage.Store
	extractor    *extract.Client
	chunker      *chunker.Chunker
	scheduler    *Scheduler
	documentRepo repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store *storage.Store,
	extractor *extract.Client,
	ck *chunker.Chunker,
	scheduler *Scheduler,
	documentRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		store:        store,
		extractor:    extractor,
		chunker:      ck,
		scheduler:    scheduler,
		documentRepo: documentRepo,
	}
}

// Process 是文档处理的主函数：下载、抽取、切块、批量入库，
// 最后把逐批结果落到文档记录上。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %d, FileName: %s", task.DocumentID, task.FileName)

	// 1. 从对象存储下载文件
	object, err := p.store.Get(ctx, task.ObjectName)
	if err != nil {
		p.markFailed(task, "下载文件失败")
		return fmt.Errorf("从对象存储下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		p.markFailed(task, "读取文件失败")
		return fmt.Errorf("读取对象流失败: %w", err)
	}
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		p.markFailed(task, "文件内容为空")
		return errors.New("文件内容为空")
	}

	// 2. 抽取有序文本段
	sections, err := p.extractor.ExtractSections(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		p.markFailed(task, "文本抽取失败")
		return fmt.Errorf("文本抽取失败: %w", err)
	}

	// 3. 切块并盖上出处元数据
	chunks := p.chunker.Split(sections, task.FileName, task.Namespace)
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", task.FileName)
		p.markFailed(task, "未生成任何文本分块")
		return errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 文本切块完成, 共 %d 个分块", len(chunks))

	// 4. 批量向量化并写入索引
	result := p.scheduler.Ingest(ctx, chunks, task.Namespace)

	// 5. 根据逐批结果更新文档状态
	status := model.DocStatusCompleted
	note := ""
	switch {
	case result.SucceededChunks == 0:
		status = model.DocStatusFailed
		note = summarizeFailures(result)
	case len(result.FailedBatches) > 0:
		status = model.DocStatusPartial
		note = summarizeFailures(result)
	}
	if err := p.documentRepo.UpdateResult(task.DocumentID, status, result.SucceededChunks, note); err != nil {
		log.Errorf("[Processor] 更新文档处理结果失败, DocumentID: %d, Error: %v", task.DocumentID, err)
	}

	if status == model.DocStatusFailed {
		// 全部批次失败时返回错误，交由消费者的重投递机制处理
		return fmt.Errorf("全部 %d 个批次入库失败", result.TotalBatches)
	}
	log.Infof("[Processor] 文档处理完成, DocumentID: %d, 成功分块: %d, 失败批次: %d",
		task.DocumentID, result.SucceededChunks, len(result.FailedBatches))
	return nil
}

func (p *Processor) markFailed(task tasks.DocumentProcessingTask, note string) {
	if err := p.documentRepo.UpdateResult(task.DocumentID, model.DocStatusFailed, 0, note); err != nil {
		log.Errorf("[Processor] 标记文档失败状态出错, DocumentID: %d, Error: %v", task.DocumentID, err)
	}
}

// summarizeFailures 把失败批次压成一条可读的说明。
func summarizeFailures(result *model.IngestResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d/%d 个批次失败:", len(result.FailedBatches), result.TotalBatches)
	for _, f := range result.FailedBatches {
		fmt.Fprintf(&sb, " [批次%d: %s]", f.BatchIndex, f.Reason)
	}
	return sb.String()
}
