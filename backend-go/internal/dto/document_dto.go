package dto

import "time"

// 单文件上传结果枚举
const (
	UploadOutcomeIndexed   = "indexed"   // 已受理，正在/已经进索引
	UploadOutcomeDuplicate = "duplicate" // 同库重复，跳过
	UploadOutcomeFailed    = "failed"    // 同步拒绝
)

// UploadOutcome 上传接口逐文件返回，部分成功是常态，不做整批 pass/fail
type UploadOutcome struct {
	Filename   string `json:"filename"`
	Outcome    string `json:"outcome"` // indexed / duplicate / failed
	DocumentID uint   `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type DocumentResp struct {
	ID          uint       `json:"id"`
	DocstoreID  uint       `json:"docstore_id"`
	Filename    string     `json:"filename"`
	MimeType    string     `json:"mime_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Checksum    string     `json:"checksum"`
	Status      string     `json:"status"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	ChunkCount  int        `json:"chunk_count"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}
