package dto

import "time"

type CreatePipelineReq struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required,oneof=indexing query"`
	YAMLContent string `json:"yaml_content" binding:"required"`
}

type UpdatePipelineReq struct {
	Name        *string `json:"name"`
	YAMLContent *string `json:"yaml_content"`
	IsActive    *bool   `json:"is_active"`
}

type PipelineResp struct {
	ID          uint       `json:"id"`
	DocstoreID  uint       `json:"docstore_id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	YAMLContent string     `json:"yaml_content"`
	Version     int        `json:"version"`
	IsActive    bool       `json:"is_active"`
	Deployed    bool       `json:"deployed"`
	DeployedAt  *time.Time `json:"deployed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GeneratePipelinesResp 按当前模型配置渲染出的两条 Pipeline YAML
type GeneratePipelinesResp struct {
	Indexing string `json:"indexing"`
	Query    string `json:"query"`
}
