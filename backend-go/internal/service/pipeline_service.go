package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"

	"gorm.io/gorm"
)

// PipelineService Pipeline 生命周期：渲染预览 / 自定义版本 / 部署到运行时
type PipelineService struct {
	db       *gorm.DB
	deployer PipelineDeployer
	gen      *PipelineGenerator
	audit    *AuditService
	cfg      *conf.Config
}

func NewPipelineService(d *data.Data, deployer PipelineDeployer, gen *PipelineGenerator, audit *AuditService, cfg *conf.Config) *PipelineService {
	return &PipelineService{
		db:       d.DB,
		deployer: deployer,
		gen:      gen,
		audit:    audit,
		cfg:      cfg,
	}
}

// ListPipelines 某个库下的全部 Pipeline，新版本在前
func (s *PipelineService) ListPipelines(ctx context.Context, storeID uint) ([]dto.PipelineResp, error) {
	if _, err := findStore(ctx, s.db, storeID); err != nil {
		return nil, err
	}

	var pipelines []model.Pipeline
	if err := s.db.WithContext(ctx).
		Where("docstore_id = ?", storeID).
		Order("type asc, version desc").
		Find(&pipelines).Error; err != nil {
		return nil, err
	}

	result := make([]dto.PipelineResp, 0, len(pipelines))
	for i := range pipelines {
		result = append(result, *toPipelineResp(&pipelines[i]))
	}
	return result, nil
}

// GetPipeline 按 ID 查询
func (s *PipelineService) GetPipeline(ctx context.Context, id uint) (*dto.PipelineResp, error) {
	p, err := s.loadPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	return toPipelineResp(p), nil
}

// GeneratePipelines 按当前激活的模型配置渲染两条 YAML 预览，不落库不部署
// 同一份配置渲染结果字节级一致，方便前端做 diff
func (s *PipelineService) GeneratePipelines(ctx context.Context, storeID uint) (*dto.GeneratePipelinesResp, error) {
	store, err := findStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	mc, err := ensureActiveModelConfig(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}

	params := renderParams(s.cfg, store.IndexName, mc)
	indexing, err := s.gen.Render(model.PipelineTypeIndexing, params)
	if err != nil {
		return nil, err
	}
	query, err := s.gen.Render(model.PipelineTypeQuery, params)
	if err != nil {
		return nil, err
	}
	return &dto.GeneratePipelinesResp{Indexing: indexing, Query: query}, nil
}

// CreatePipeline 保存一条自定义 Pipeline，同类型旧版本自动失活
func (s *PipelineService) CreatePipeline(ctx context.Context, userID uint, storeID uint, req dto.CreatePipelineReq) (*dto.PipelineResp, error) {
	if _, err := findStore(ctx, s.db, storeID); err != nil {
		return nil, err
	}

	p := &model.Pipeline{
		DocstoreID:  storeID,
		CreatedBy:   userID,
		Name:        req.Name,
		Type:        req.Type,
		YAMLContent: req.YAMLContent,
		Version:     1,
		IsActive:    true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 同类型只保留一条激活
		if err := tx.Model(&model.Pipeline{}).
			Where("docstore_id = ? AND type = ? AND is_active = ?", storeID, req.Type, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, userID, "create_pipeline", "pipeline", p.ID, map[string]interface{}{
		"docstore_id": storeID, "type": req.Type,
	}, "")
	return toPipelineResp(p), nil
}

// UpdatePipeline 改内容则版本 +1 且部署状态失效，需要重新部署才能生效
func (s *PipelineService) UpdatePipeline(ctx context.Context, id uint, req dto.UpdatePipelineReq) (*dto.PipelineResp, error) {
	p, err := s.loadPipeline(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.YAMLContent != nil && *req.YAMLContent != p.YAMLContent {
		updates["yaml_content"] = *req.YAMLContent
		updates["version"] = p.Version + 1
		updates["deployed"] = false
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(p).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return toPipelineResp(p), nil
}

// DeletePipeline 删除一条 Pipeline 定义 (远端文件不动，由库删除统一清理)
func (s *PipelineService) DeletePipeline(ctx context.Context, id uint) error {
	p, err := s.loadPipeline(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Unscoped().Delete(p).Error
}

// DeployPipeline 把指定 Pipeline 的 YAML 写到远端运行时目录
// 远端写入成功才更新部署状态
// 版本按写次数递增：重复部署同一份内容也 +1，历史记录的是每次落到远端的动作
func (s *PipelineService) DeployPipeline(ctx context.Context, userID uint, id uint) (*dto.PipelineResp, error) {
	p, err := s.loadPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	store, err := findStore(ctx, s.db, p.DocstoreID)
	if err != nil {
		return nil, err
	}

	if err := s.deployer.Deploy(store.Slug, p.Type, p.YAMLContent); err != nil {
		return nil, err
	}

	now := time.Now()
	newVersion := p.Version + 1
	if err := s.db.WithContext(ctx).Model(p).Updates(map[string]interface{}{
		"deployed":    true,
		"deployed_at": now,
		"is_active":   true,
		"version":     newVersion,
	}).Error; err != nil {
		return nil, err
	}
	p.Deployed = true
	p.DeployedAt = &now
	p.IsActive = true
	p.Version = newVersion

	s.audit.Record(ctx, userID, "deploy_pipeline", "pipeline", p.ID, map[string]interface{}{
		"docstore_id": p.DocstoreID, "type": p.Type, "version": p.Version,
	}, "")

	log.Printf("🚀 Pipeline 已部署: %s/%s v%d", store.Slug, p.Type, p.Version)
	return toPipelineResp(p), nil
}

// CheckDeployment 查看远端目录里实际躺着什么文件
func (s *PipelineService) CheckDeployment(ctx context.Context, storeID uint) (*DeployStatus, error) {
	store, err := findStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	return s.deployer.CheckDeployment(store.Slug)
}

func (s *PipelineService) loadPipeline(ctx context.Context, id uint) (*model.Pipeline, error) {
	var p model.Pipeline
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("pipeline 不存在 (id=%d)", id)
		}
		return nil, err
	}
	return &p, nil
}

// savePipelineVersion 部署成功后落一条新版本记录，同类型旧版本失活
// 部署链路里元数据只是记录，失败不回滚远端文件，只打日志
func savePipelineVersion(db *gorm.DB, storeID uint, userID uint, pipelineType string, yamlContent string) {
	err := db.Transaction(func(tx *gorm.DB) error {
		var latest model.Pipeline
		version := 1
		if err := tx.Where("docstore_id = ? AND type = ?", storeID, pipelineType).
			Order("version desc").First(&latest).Error; err == nil {
			version = latest.Version + 1
		}

		if err := tx.Model(&model.Pipeline{}).
			Where("docstore_id = ? AND type = ? AND is_active = ?", storeID, pipelineType, true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		now := time.Now()
		return tx.Create(&model.Pipeline{
			DocstoreID:  storeID,
			CreatedBy:   userID,
			Name:        fmt.Sprintf("%s pipeline", pipelineType),
			Type:        pipelineType,
			YAMLContent: yamlContent,
			Version:     version,
			IsActive:    true,
			Deployed:    true,
			DeployedAt:  &now,
		}).Error
	})
	if err != nil {
		log.Printf("⚠️ Pipeline 版本记录写入失败 (store=%d type=%s): %v", storeID, pipelineType, err)
	}
}

func toPipelineResp(m *model.Pipeline) *dto.PipelineResp {
	return &dto.PipelineResp{
		ID:          m.ID,
		DocstoreID:  m.DocstoreID,
		Name:        m.Name,
		Type:        m.Type,
		YAMLContent: m.YAMLContent,
		Version:     m.Version,
		IsActive:    m.IsActive,
		Deployed:    m.Deployed,
		DeployedAt:  m.DeployedAt,
		CreatedAt:   m.CreatedAt,
	}
}
