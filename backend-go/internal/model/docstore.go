package model

// Docstore 文档库：一组文档 + 独立的搜索索引 + 独立的 Pipeline 配置
type Docstore struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`

	// 🔥 核心字段：slug 全局唯一且创建后不可变 (决定 Pipeline 名和索引名)
	Slug string `gorm:"uniqueIndex;size:100;not null" json:"slug"`

	// 当前指向的 OpenSearch 索引: {prefix}-{slug}-{unix时间戳}
	// 重建索引时会生成新一代索引名，旧索引在切换后才删除
	IndexName string `gorm:"size:150;not null" json:"index_name"`

	CreatorID uint `gorm:"index;not null" json:"creator_id"`

	// 冗余统计字段 (上传/删除时维护，stats 接口会用索引真实数据校准)
	DocumentCount  int   `gorm:"default:0" json:"document_count"`
	ChunkCount     int   `gorm:"default:0" json:"chunk_count"`
	TotalSizeBytes int64 `gorm:"default:0" json:"total_size_bytes"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// 🔗 关联 (删库级联)
	Documents    []Document    `gorm:"foreignKey:DocstoreID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
	ModelConfigs []ModelConfig `gorm:"foreignKey:DocstoreID;constraint:OnDelete:CASCADE" json:"model_configs,omitempty"`
	Pipelines    []Pipeline    `gorm:"foreignKey:DocstoreID;constraint:OnDelete:CASCADE" json:"pipelines,omitempty"`
}
