package dto

// QueryReq 检索请求，支持单库与多库
type QueryReq struct {
	DocstoreIDs []uint `json:"docstore_ids" binding:"required,min=1"`
	Query       string `json:"query" binding:"required"`
	TopK        int    `json:"top_k"` // 不传默认 10
}

// QueryHit 单条检索结果，带来源库信息方便前端溯源
type QueryHit struct {
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	SourceID     string  `json:"source_id,omitempty"`
	DocstoreID   uint    `json:"docstore_id"`
	DocstoreSlug string  `json:"docstore_slug"`
}

type QueryResp struct {
	Query string     `json:"query"`
	Hits  []QueryHit `json:"hits"`

	// 多库检索时部分库失败不影响整体，失败的库记录在这
	Errors map[string]string `json:"errors,omitempty"`
}

// HealthResp 三个外部系统的可达性聚合
type HealthResp struct {
	Status   string            `json:"status"` // ok / degraded
	Services map[string]string `json:"services"`
}
