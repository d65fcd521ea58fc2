package model

import "gorm.io/datatypes"

// 切分策略枚举
const (
	SplitterSentence = "sentence"
	SplitterWord     = "word"
	SplitterPassage  = "passage"
)

// ModelConfig 文档库的 Embedding/切分配置
// 一个库同一时间只有一条 is_active=true 的配置；修改配置不会回溯已索引的文档
type ModelConfig struct {
	BaseModel
	DocstoreID uint `gorm:"index;not null" json:"docstore_id"`

	// Embedder
	EmbedderModel string `gorm:"size:150;not null" json:"embedder_model"` // 如 "BAAI/bge-large-en-v1.5"
	EmbeddingDim  int    `gorm:"not null" json:"embedding_dim"`

	// Splitter
	SplitterType string `gorm:"size:20;not null" json:"splitter_type"` // sentence / word / passage
	SplitLength  int    `gorm:"not null" json:"split_length"`
	SplitOverlap int    `gorm:"not null" json:"split_overlap"`

	// 扩展配置: {"normalize_embeddings": true, "batch_size": 32}
	EmbedderSettings datatypes.JSON `json:"embedder_settings"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}
