package dto

import "time"

type CreateDocstoreReq struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`

	// 不传则从 name 派生
	Slug string `json:"slug" binding:"omitempty,min=2,max=100"`

	// 模型配置 (不传用默认: bge-large + sentence 切分)
	ModelSettings *ModelSettingsReq `json:"model_settings"`
}

type ModelSettingsReq struct {
	EmbedderModel string `json:"embedder_model"`
	SplitterType  string `json:"splitter_type" binding:"omitempty,oneof=sentence word passage"`
	SplitLength   int    `json:"split_length"`
	SplitOverlap  int    `json:"split_overlap"`
	Normalize     *bool  `json:"normalize_embeddings"`
	BatchSize     int    `json:"batch_size"`
}

type UpdateDocstoreReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type DocstoreResp struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	IndexName      string    `json:"index_name"`
	CreatorID      uint      `json:"creator_id"`
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// DocstoreStatsResp 统计接口：冗余字段 + 索引真实数据
type DocstoreStatsResp struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	IndexName      string `json:"index_name"`
	DocumentCount  int    `json:"document_count"`
	ChunkCount     int    `json:"chunk_count"`
	TotalSizeBytes int64  `json:"total_size_bytes"`

	// 来自 OpenSearch 的实时数据 (索引不可达时为 null)
	IndexDocCount   *int64 `json:"index_doc_count"`
	IndexSizeBytes  *int64 `json:"index_size_bytes"`
	IsActive        bool   `json:"is_active"`
}

// ReindexResp 重建索引结果
type ReindexResp struct {
	OldIndexName string `json:"old_index_name"`
	NewIndexName string `json:"new_index_name"`
	Replayed     int    `json:"replayed"` // 回放的文档数
	Failed       int    `json:"failed"`
}

// DeleteDocstoreResp 删库结果：元数据删除成功但索引清理失败时带 warning
type DeleteDocstoreResp struct {
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}
