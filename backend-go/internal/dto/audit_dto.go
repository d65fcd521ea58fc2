package dto

import "time"

// AuditListReq 审计日志查询
type AuditListReq struct {
	Page         int    `form:"page,default=1"`
	PageSize     int    `form:"page_size,default=20"`
	Action       string `form:"action"`        // 选填，筛选动作
	ResourceType string `form:"resource_type"` // 选填
}

type AuditListResp struct {
	Total int64        `json:"total"`
	List  []AuditEntry `json:"list"`
}

type AuditEntry struct {
	ID           uint      `json:"id"`
	UserID       uint      `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   uint      `json:"resource_id"`
	Details      string    `json:"details"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
}
