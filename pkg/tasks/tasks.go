// Package tasks 定义了通过 Kafka 投递的任务结构。
package tasks

// DocumentProcessingTask 描述一个待处理的文档入库任务。
type DocumentProcessingTask struct {
	DocumentID uint   `json:"document_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	Namespace  string `json:"namespace"`
}
