package model

import "time"

// Pipeline 类型枚举
const (
	PipelineTypeIndexing = "indexing"
	PipelineTypeQuery    = "query"
)

// Pipeline 渲染后的 Haystack Pipeline 定义，部署到 Hayhooks 运行时
// 一个库每种类型同一时间只有一条 is_active=true；重新部署 version+1
type Pipeline struct {
	BaseModel
	DocstoreID uint `gorm:"index;not null" json:"docstore_id"`
	CreatedBy  uint `gorm:"index;not null" json:"created_by"`

	Name string `gorm:"size:100;not null" json:"name"`
	Type string `gorm:"size:20;not null;index" json:"type"` // indexing / query

	// 完整 YAML 内容
	YAMLContent string `gorm:"type:text;not null" json:"yaml_content"`
	Version     int    `gorm:"default:1" json:"version"`

	// 部署状态
	IsActive   bool       `gorm:"default:false" json:"is_active"`
	Deployed   bool       `gorm:"default:false" json:"deployed"`
	DeployedAt *time.Time `json:"deployed_at"`
}
