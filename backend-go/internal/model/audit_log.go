package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 审计日志，只写不改
type AuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	UserID uint `gorm:"index" json:"user_id"`

	// 动作元数据
	Action       string `gorm:"size:50;not null;index" json:"action"`        // create_docstore / upload_document / ...
	ResourceType string `gorm:"size:30;not null" json:"resource_type"`       // docstore / document / pipeline
	ResourceID   uint   `gorm:"index" json:"resource_id"`

	// 细节快照 (JSON)
	Details datatypes.JSON `json:"details"`

	IPAddress string `gorm:"size:45" json:"ip_address"`
}
