package model

import "time"

// 文档处理状态机: pending -> processing -> completed / failed
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

type Document struct {
	BaseModel
	DocstoreID uint `gorm:"index;not null" json:"docstore_id"`
	UploadedBy uint `gorm:"index;not null" json:"uploaded_by"`

	// 文件元数据
	Filename  string `gorm:"size:255;not null" json:"filename"`
	MimeType  string `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes int64  `gorm:"not null" json:"size_bytes"`

	// SHA256，同库去重用
	Checksum string `gorm:"size:64;index;not null" json:"checksum"`

	// 原始文件在 MinIO 中的对象名，重建索引时回放用
	StoragePath string `gorm:"size:255;not null" json:"storage_path"`

	// 状态机
	Status   string `gorm:"default:'pending';index" json:"status"`
	ErrorMsg string `json:"error_msg"`

	// 索引元数据
	ChunkCount int    `gorm:"default:0" json:"chunk_count"`
	SourceID   string `gorm:"size:64;index" json:"source_id"` // 索引里 chunk 的 source_id 标记

	ProcessedAt *time.Time `json:"processed_at"`
}
