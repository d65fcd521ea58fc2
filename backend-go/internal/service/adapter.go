package service

import (
	"context"

	"DocStack/backend-go/internal/data"
)

// =================================================================================
// 外部系统依赖接口
// Service 层只依赖接口，生产环境由 data.Data / HayhooksClient / SFTPDeployer 实现，
// 测试时用假实现替换
// =================================================================================

// IndexManager 搜索索引管理 (由 *data.Data 实现)
type IndexManager interface {
	CreateIndex(ctx context.Context, name string, dim int) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	DeleteBySourceID(ctx context.Context, index string, sourceID string) error
	Stats(ctx context.Context, name string) (*data.IndexStats, error)
}

// RuntimeInvoker Pipeline 运行时调用 (由 *HayhooksClient 实现)
type RuntimeInvoker interface {
	IndexDocuments(ctx context.Context, slug string, files []RuntimeFile, metadata map[string]string) (*IndexResult, error)
	Query(ctx context.Context, slug string, text string, topK int) ([]RetrievedDoc, error)
	Health(ctx context.Context) error
}

// PipelineDeployer 远端 Pipeline 部署 (由 *SFTPDeployer 实现)
type PipelineDeployer interface {
	Deploy(slug string, pipelineType string, yamlContent string) error
	DeletePipelines(slug string) error
	CheckDeployment(slug string) (*DeployStatus, error)
}

// ObjectStore 原始文件存储 (由 *data.Data 实现)
type ObjectStore interface {
	PutObject(ctx context.Context, docstoreID uint, filename string, content []byte, mimeType string) (string, error)
	GetObject(ctx context.Context, objectName string) ([]byte, error)
	RemoveObject(ctx context.Context, objectName string) error
}

// TaskQueue 任务队列生产端 (由 *data.Data 实现)
type TaskQueue interface {
	PushTask(ctx context.Context, queue string, payload string) error
}
