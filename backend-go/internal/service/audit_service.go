package service

import (
	"context"
	"encoding/json"
	"log"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditService 审计日志：只写不改
type AuditService struct {
	DB *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db}
}

// Record 写一条审计记录
// 审计失败不影响主流程，只打日志
func (s *AuditService) Record(ctx context.Context, userID uint, action string, resourceType string, resourceID uint, details map[string]interface{}, ip string) {
	var detailJSON datatypes.JSON
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailJSON = datatypes.JSON(b)
		}
	}

	entry := &model.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      detailJSON,
		IPAddress:    ip,
	}

	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		log.Printf("❌ 审计日志写入失败: action=%s err=%v", action, err)
	}
}

// List 分页查询
func (s *AuditService) List(ctx context.Context, req dto.AuditListReq) (*dto.AuditListResp, error) {
	db := s.DB.WithContext(ctx).Model(&model.AuditLog{})

	if req.Action != "" {
		db = db.Where("action = ?", req.Action)
	}
	if req.ResourceType != "" {
		db = db.Where("resource_type = ?", req.ResourceType)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 20
	}

	var entries []model.AuditLog
	if err := db.Order("created_at desc").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	resp := &dto.AuditListResp{Total: total, List: make([]dto.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		resp.List = append(resp.List, dto.AuditEntry{
			ID:           e.ID,
			UserID:       e.UserID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      string(e.Details),
			IPAddress:    e.IPAddress,
			CreatedAt:    e.CreatedAt,
		})
	}
	return resp, nil
}
