package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"
	"DocStack/backend-go/internal/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 模型配置默认值 (对应 bge-large + 句子切分)
const (
	DefaultEmbedderModel = "BAAI/bge-large-en-v1.5"
	DefaultSplitterType  = model.SplitterSentence
	DefaultSplitLength   = 55
	DefaultSplitOverlap  = 5
	DefaultBatchSize     = 32
	DefaultTopK          = 10
)

// 旧索引清理队列 (消费端见 worker 包)
const DropIndexQueue = "task:drop_index"

// DocstoreService 文档库编排层：跨 Postgres / OpenSearch / Hayhooks 的多步操作在这里排序
// 一致性策略：成功路径上元数据写入放最后，销毁路径上元数据删除放最前
type DocstoreService struct {
	db       *gorm.DB
	search   IndexManager
	objects  ObjectStore
	queue    TaskQueue
	runtime  RuntimeInvoker
	deployer PipelineDeployer
	gen      *PipelineGenerator
	audit    *AuditService
	locks    *StoreLockSet
	cfg      *conf.Config
}

func NewDocstoreService(d *data.Data, runtime RuntimeInvoker, deployer PipelineDeployer, gen *PipelineGenerator, audit *AuditService, cfg *conf.Config) *DocstoreService {
	return &DocstoreService{
		db:       d.DB,
		search:   d,
		objects:  d,
		queue:    d,
		runtime:  runtime,
		deployer: deployer,
		gen:      gen,
		audit:    audit,
		locks:    NewStoreLockSet(),
		cfg:      cfg,
	}
}

// =================================================================================
// 1. 创建 / 查询 / 更新
// =================================================================================

// CreateDocstore 创建文档库
// 顺序：先建 OpenSearch 索引，索引建成功后才落元数据，避免元数据指向不存在的索引
func (s *DocstoreService) CreateDocstore(ctx context.Context, userID uint, req dto.CreateDocstoreReq) (*dto.DocstoreResp, error) {
	// 1. slug 派生与校验
	slug := req.Slug
	if slug == "" {
		slug = utils.Slugify(req.Name)
	}
	if !utils.IsValidSlug(slug) {
		return nil, errs.Validation("非法的 slug: %q (只允许小写字母数字和中划线)", slug)
	}

	// 2. 唯一性检查 (slug 创建后不可变)
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Docstore{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errs.Conflict("slug '%s' 已被占用", slug)
	}

	// 3. 解析模型配置 (默认 bge-large + sentence 切分)
	mc := resolveModelSettings(req.ModelSettings)

	// 4. 生成本代索引名: {prefix}-{slug}-{unix时间戳}
	indexName := s.newIndexName(slug, "")

	// 5. 先建索引 (失败则什么都没写入，直接返回 DependencyError)
	if err := s.search.CreateIndex(ctx, indexName, mc.EmbeddingDim); err != nil {
		return nil, errs.Dependency("搜索索引创建失败", err)
	}

	// 6. 元数据落库 (库 + 配置一个事务)
	store := &model.Docstore{
		Name:        req.Name,
		Slug:        slug,
		Description: req.Description,
		IndexName:   indexName,
		CreatorID:   userID,
		IsActive:    true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(store).Error; err != nil {
			return err
		}
		mc.DocstoreID = store.ID
		return tx.Create(mc).Error
	})
	if err != nil {
		// 元数据写失败，回收刚建的索引，避免留孤儿
		if derr := s.search.DeleteIndex(ctx, indexName); derr != nil {
			log.Printf("⚠️ 索引 %s 回收失败: %v", indexName, derr)
		}
		// 并发创建同名 slug 时唯一键兜底，输家拿 Conflict 而不是裸数据库错误
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("slug '%s' 已被占用", slug)
		}
		return nil, err
	}

	// 7. 审计
	s.audit.Record(ctx, userID, "create_docstore", "docstore", store.ID, map[string]interface{}{
		"slug": slug, "index_name": indexName,
	}, "")

	log.Printf("✅ 文档库已创建: %s (index=%s)", slug, indexName)
	return toDocstoreResp(store), nil
}

// ListDocstores 列出活跃的库
func (s *DocstoreService) ListDocstores(ctx context.Context) ([]dto.DocstoreResp, error) {
	var stores []model.Docstore
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		Find(&stores).Error; err != nil {
		return nil, err
	}

	result := make([]dto.DocstoreResp, 0, len(stores))
	for i := range stores {
		result = append(result, *toDocstoreResp(&stores[i]))
	}
	return result, nil
}

// GetDocstore 按 ID 查询
func (s *DocstoreService) GetDocstore(ctx context.Context, id uint) (*dto.DocstoreResp, error) {
	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDocstoreResp(store), nil
}

// UpdateDocstore 只允许改展示字段，slug 和索引名不可变
func (s *DocstoreService) UpdateDocstore(ctx context.Context, id uint, req dto.UpdateDocstoreReq) (*dto.DocstoreResp, error) {
	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(store).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return toDocstoreResp(store), nil
}

// GetStats 统计：冗余计数 + OpenSearch 实时数据
// 索引可达时顺便把 chunk_count 校准回数据库
func (s *DocstoreService) GetStats(ctx context.Context, id uint) (*dto.DocstoreStatsResp, error) {
	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.DocstoreStatsResp{
		ID:             store.ID,
		Name:           store.Name,
		Slug:           store.Slug,
		IndexName:      store.IndexName,
		DocumentCount:  store.DocumentCount,
		ChunkCount:     store.ChunkCount,
		TotalSizeBytes: store.TotalSizeBytes,
		IsActive:       store.IsActive,
	}

	stats, err := s.search.Stats(ctx, store.IndexName)
	if err != nil {
		// 索引不可达不算失败，实时字段留空
		log.Printf("⚠️ 索引统计获取失败 (%s): %v", store.IndexName, err)
		return resp, nil
	}

	resp.IndexDocCount = &stats.DocCount
	resp.IndexSizeBytes = &stats.SizeBytes

	// 校准冗余 chunk 计数
	if int(stats.DocCount) != store.ChunkCount {
		s.db.WithContext(ctx).Model(store).Update("chunk_count", stats.DocCount)
		resp.ChunkCount = int(stats.DocCount)
	}
	return resp, nil
}

// =================================================================================
// 2. 删除
// =================================================================================

// DeleteDocstore 删库
// 顺序：元数据先删 (级联文档/配置/Pipeline)，再清理索引和远端 Pipeline
// 清理失败只降级为 warning —— 索引孤儿打日志，不无限重试
func (s *DocstoreService) DeleteDocstore(ctx context.Context, userID uint, id uint) (*dto.DeleteDocstoreResp, error) {
	release, ok := s.locks.TryAcquire(id)
	if !ok {
		return nil, errs.Conflict("该库正在进行其他写操作，请稍后重试")
	}
	defer release()

	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}

	// 1. 收集要清理的 MinIO 对象
	var objectPaths []string
	s.db.WithContext(ctx).Model(&model.Document{}).
		Where("docstore_id = ?", id).
		Pluck("storage_path", &objectPaths)

	// 2. 元数据事务删除 (硬删，slug 可復用)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("docstore_id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("docstore_id = ?", id).Delete(&model.ModelConfig{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("docstore_id = ?", id).Delete(&model.Pipeline{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Docstore{}, id).Error
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.DeleteDocstoreResp{Deleted: true}

	// 3. 清理索引 (尽力而为)
	if err := s.search.DeleteIndex(ctx, store.IndexName); err != nil {
		log.Printf("⚠️ 索引 %s 删除失败，已成为孤儿: %v", store.IndexName, err)
		resp.Warning = fmt.Sprintf("元数据已删除，但索引 %s 清理失败: %v", store.IndexName, err)
	}

	// 4. 清理远端 Pipeline 目录 (尽力而为)
	if err := s.deployer.DeletePipelines(store.Slug); err != nil {
		log.Printf("⚠️ 远端 Pipeline 清理失败 (%s): %v", store.Slug, err)
		if resp.Warning == "" {
			resp.Warning = fmt.Sprintf("元数据已删除，但远端 Pipeline 清理失败: %v", err)
		}
	}

	// 5. 清理原始文件 (尽力而为)
	for _, p := range objectPaths {
		if err := s.objects.RemoveObject(ctx, p); err != nil {
			log.Printf("⚠️ MinIO 对象清理失败 (%s): %v", p, err)
		}
	}

	s.audit.Record(ctx, userID, "delete_docstore", "docstore", id, map[string]interface{}{
		"slug": store.Slug, "index_name": store.IndexName, "warning": resp.Warning,
	}, "")

	log.Printf("✅ 文档库已删除: %s", store.Slug)
	return resp, nil
}

// =================================================================================
// 3. 重建索引 (零停机)
// =================================================================================

// Reindex 重建索引
// 顺序保证读无停机：
//
//	新索引建好 -> indexing pipeline 指向新索引 -> 回放历史文档 ->
//	确认新索引可查 -> query pipeline 切到新索引 -> 元数据切换 -> 旧索引入清理队列
//
// 切换提交前所有检索继续打旧索引
func (s *DocstoreService) Reindex(ctx context.Context, userID uint, id uint) (*dto.ReindexResp, error) {
	release, ok := s.locks.TryAcquire(id)
	if !ok {
		return nil, errs.Conflict("该库正在进行其他写操作，请稍后重试")
	}
	defer release()

	store, err := s.loadStore(ctx, id)
	if err != nil {
		return nil, err
	}
	mc, err := s.activeModelConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	oldIndex := store.IndexName
	newIndex := s.newIndexName(store.Slug, oldIndex)

	// 1. 建新一代索引
	if err := s.search.CreateIndex(ctx, newIndex, mc.EmbeddingDim); err != nil {
		return nil, errs.Dependency("新索引创建失败", err)
	}

	// 此后任何一步失败都要中止切换：半成品索引交给清理队列回收，不留孤儿
	abort := func(cause error) error {
		if qerr := s.queue.PushTask(ctx, DropIndexQueue, newIndex); qerr != nil {
			log.Printf("⚠️ 半成品索引 %s 入清理队列失败: %v", newIndex, qerr)
		}
		return cause
	}

	// 2. indexing pipeline 指向新索引并部署
	idxYAML, err := s.gen.Render(model.PipelineTypeIndexing, s.paramsFromConfig(newIndex, mc))
	if err != nil {
		return nil, abort(err)
	}
	if err := s.deployer.Deploy(store.Slug, model.PipelineTypeIndexing, idxYAML); err != nil {
		return nil, abort(err)
	}
	savePipelineVersion(s.db.WithContext(ctx), store.ID, userID, model.PipelineTypeIndexing, idxYAML)

	// 3. 回放历史文档 (从 MinIO 读原始文件重新走索引 Pipeline)
	replayed, failed := s.replayDocuments(ctx, store)

	// 4. 确认新索引可查，确认不了就中止 —— 旧索引还在，读不受影响
	exists, err := s.search.IndexExists(ctx, newIndex)
	if err != nil || !exists {
		return nil, abort(errs.Dependency(fmt.Sprintf("新索引 %s 不可查，中止切换", newIndex), err))
	}

	// 5. query pipeline 切到新索引
	qryYAML, err := s.gen.Render(model.PipelineTypeQuery, s.paramsFromConfig(newIndex, mc))
	if err != nil {
		return nil, abort(err)
	}
	if err := s.deployer.Deploy(store.Slug, model.PipelineTypeQuery, qryYAML); err != nil {
		return nil, abort(err)
	}
	savePipelineVersion(s.db.WithContext(ctx), store.ID, userID, model.PipelineTypeQuery, qryYAML)

	// 6. 元数据切换 (带旧值条件，防并发覆盖)
	res := s.db.WithContext(ctx).Model(&model.Docstore{}).
		Where("id = ? AND index_name = ?", id, oldIndex).
		Update("index_name", newIndex)
	if res.Error != nil {
		return nil, abort(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, abort(errs.Conflict("索引指针已被其他操作修改，切换中止"))
	}

	// 7. 旧索引延迟删除 (worker 消费)
	if err := s.queue.PushTask(ctx, DropIndexQueue, oldIndex); err != nil {
		// 入队失败只告警，孤儿索引可人工清理
		log.Printf("⚠️ 旧索引 %s 入清理队列失败: %v", oldIndex, err)
	}

	s.audit.Record(ctx, userID, "reindex_docstore", "docstore", id, map[string]interface{}{
		"old_index": oldIndex, "new_index": newIndex, "replayed": replayed, "failed": failed,
	}, "")

	log.Printf("✅ 重建索引完成: %s -> %s (回放 %d 失败 %d)", oldIndex, newIndex, replayed, failed)
	return &dto.ReindexResp{
		OldIndexName: oldIndex,
		NewIndexName: newIndex,
		Replayed:     replayed,
		Failed:       failed,
	}, nil
}

// replayDocuments 把库里已完成的文档从 MinIO 取出重新提交索引
func (s *DocstoreService) replayDocuments(ctx context.Context, store *model.Docstore) (replayed int, failed int) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).
		Where("docstore_id = ? AND status = ?", store.ID, model.DocStatusCompleted).
		Find(&docs).Error; err != nil {
		log.Printf("❌ 回放文档列表加载失败: %v", err)
		return 0, 0
	}

	for i := range docs {
		doc := &docs[i]
		content, err := s.objects.GetObject(ctx, doc.StoragePath)
		if err != nil {
			log.Printf("❌ 回放失败 (读取 %s): %v", doc.StoragePath, err)
			failed++
			continue
		}

		result, err := s.runtime.IndexDocuments(ctx, store.Slug, []RuntimeFile{{
			Filename: doc.Filename,
			Content:  content,
			MimeType: doc.MimeType,
		}}, map[string]string{"source_id": doc.SourceID})
		if err != nil {
			log.Printf("❌ 回放失败 (%s): %v", doc.Filename, err)
			failed++
			continue
		}

		if result.ChunkCount > 0 && result.ChunkCount != doc.ChunkCount {
			s.db.WithContext(ctx).Model(doc).Update("chunk_count", result.ChunkCount)
		}
		replayed++
	}
	return replayed, failed
}

// =================================================================================
// 4. 检索 (单库 / 多库扇出合并)
// =================================================================================

// Query 跨一个或多个库检索
// 多库：逐库调用运行时，合并后按分数降序取前 topK
// 平分时按 (库 ID 升序, 库内原始顺序) 稳定排序，保证结果可复现
func (s *DocstoreService) Query(ctx context.Context, req dto.QueryReq) (*dto.QueryResp, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	// 1. 加载所有目标库 (按请求里的 ID 顺序)
	stores := make([]*model.Docstore, 0, len(req.DocstoreIDs))
	for _, id := range req.DocstoreIDs {
		store, err := s.loadStore(ctx, id)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}

	// 2. 扇出检索
	type storeResult struct {
		store *model.Docstore
		hits  []RetrievedDoc
		err   error
	}
	results := make([]storeResult, len(stores))

	var wg sync.WaitGroup
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hits, err := s.runtime.Query(ctx, stores[i].Slug, req.Query, topK)
			results[i] = storeResult{store: stores[i], hits: hits, err: err}
		}(i)
	}
	wg.Wait()

	// 3. 合并
	resp := &dto.QueryResp{Query: req.Query, Hits: []dto.QueryHit{}}
	succeeded := 0
	for _, r := range results {
		if r.err != nil {
			if resp.Errors == nil {
				resp.Errors = map[string]string{}
			}
			resp.Errors[r.store.Slug] = r.err.Error()
			continue
		}
		succeeded++
		for _, h := range r.hits {
			resp.Hits = append(resp.Hits, dto.QueryHit{
				Content:      h.Content,
				Score:        h.Score,
				SourceID:     h.SourceID,
				DocstoreID:   r.store.ID,
				DocstoreSlug: r.store.Slug,
			})
		}
	}

	// 全军覆没才算失败，部分失败是常态
	if succeeded == 0 && len(stores) > 0 {
		first := results[0].err
		return nil, errs.Dependency("所有目标库检索失败", first)
	}

	// 4. 按分数降序，平分保持插入序 (库 ID 序 + 库内序)，截断到 topK
	sort.SliceStable(resp.Hits, func(i, j int) bool {
		return resp.Hits[i].Score > resp.Hits[j].Score
	})
	if len(resp.Hits) > topK {
		resp.Hits = resp.Hits[:topK]
	}
	return resp, nil
}

// =================================================================================
// 私有辅助
// =================================================================================

// loadStore 按 ID 加载，不存在返回 NotFound
func (s *DocstoreService) loadStore(ctx context.Context, id uint) (*model.Docstore, error) {
	return findStore(ctx, s.db, id)
}

// activeModelConfig 取当前激活配置，没有则落一条默认配置
func (s *DocstoreService) activeModelConfig(ctx context.Context, storeID uint) (*model.ModelConfig, error) {
	return ensureActiveModelConfig(ctx, s.db, storeID)
}

// findStore 按 ID 加载文档库，不存在返回 NotFound
func findStore(ctx context.Context, db *gorm.DB, id uint) (*model.Docstore, error) {
	var store model.Docstore
	if err := db.WithContext(ctx).First(&store, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("文档库不存在 (id=%d)", id)
		}
		return nil, err
	}
	return &store, nil
}

// ensureActiveModelConfig 取当前激活配置，没有则落一条默认配置
func ensureActiveModelConfig(ctx context.Context, db *gorm.DB, storeID uint) (*model.ModelConfig, error) {
	var mc model.ModelConfig
	err := db.WithContext(ctx).
		Where("docstore_id = ? AND is_active = ?", storeID, true).
		First(&mc).Error
	if err == nil {
		return &mc, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	def := resolveModelSettings(nil)
	def.DocstoreID = storeID
	if err := db.WithContext(ctx).Create(def).Error; err != nil {
		return nil, err
	}
	return def, nil
}

// newIndexName 生成 {prefix}-{slug}-{unix时间戳}，保证与上一代不同名
func (s *DocstoreService) newIndexName(slug string, previous string) string {
	ts := time.Now().Unix()
	name := fmt.Sprintf("%s-%s-%d", s.cfg.Search.IndexPrefix, slug, ts)
	// 同一秒内重建会撞名，往后挪一秒
	for name == previous {
		ts++
		name = fmt.Sprintf("%s-%s-%d", s.cfg.Search.IndexPrefix, slug, ts)
	}
	return name
}

// paramsFromConfig 模型配置转渲染参数
func (s *DocstoreService) paramsFromConfig(indexName string, mc *model.ModelConfig) PipelineParams {
	return renderParams(s.cfg, indexName, mc)
}

// renderParams 模型配置 + 目标索引 -> Pipeline 渲染参数
func renderParams(cfg *conf.Config, indexName string, mc *model.ModelConfig) PipelineParams {
	normalize, batchSize := parseEmbedderSettings(mc.EmbedderSettings)
	return PipelineParams{
		IndexName:      indexName,
		EmbedderModel:  mc.EmbedderModel,
		EmbeddingDim:   mc.EmbeddingDim,
		SplitBy:        mc.SplitterType,
		SplitLength:    mc.SplitLength,
		SplitOverlap:   mc.SplitOverlap,
		TopK:           DefaultTopK,
		Normalize:      normalize,
		BatchSize:      batchSize,
		OpenSearchHost: cfg.Search.URL,
	}
}

// resolveModelSettings 请求参数 + 默认值 -> ModelConfig (维度查表，查不到用兜底值)
func resolveModelSettings(req *dto.ModelSettingsReq) *model.ModelConfig {
	mc := &model.ModelConfig{
		EmbedderModel: DefaultEmbedderModel,
		SplitterType:  DefaultSplitterType,
		SplitLength:   DefaultSplitLength,
		SplitOverlap:  DefaultSplitOverlap,
		IsActive:      true,
	}
	normalize := true
	batchSize := DefaultBatchSize

	if req != nil {
		if req.EmbedderModel != "" {
			mc.EmbedderModel = req.EmbedderModel
		}
		if req.SplitterType != "" {
			mc.SplitterType = req.SplitterType
		}
		if req.SplitLength > 0 {
			mc.SplitLength = req.SplitLength
		}
		if req.SplitOverlap > 0 {
			mc.SplitOverlap = req.SplitOverlap
		}
		if req.Normalize != nil {
			normalize = *req.Normalize
		}
		if req.BatchSize > 0 {
			batchSize = req.BatchSize
		}
	}

	dim, ok := LookupEmbeddingDim(mc.EmbedderModel)
	if !ok {
		// 维度表没收录的模型用兜底值，靠人工确认 (错了索引 mapping 会和向量对不上)
		log.Printf("⚠️ 模型 %s 不在维度表里，使用兜底维度 %d", mc.EmbedderModel, DefaultEmbeddingDim)
		dim = DefaultEmbeddingDim
	}
	mc.EmbeddingDim = dim

	settings, _ := json.Marshal(map[string]interface{}{
		"normalize_embeddings": normalize,
		"batch_size":           batchSize,
	})
	mc.EmbedderSettings = datatypes.JSON(settings)
	return mc
}

// parseEmbedderSettings 从 JSON 里取 normalize/batch_size，解析失败用默认值
func parseEmbedderSettings(raw datatypes.JSON) (normalize bool, batchSize int) {
	normalize = true
	batchSize = DefaultBatchSize
	if len(raw) == 0 {
		return
	}
	var parsed struct {
		Normalize *bool `json:"normalize_embeddings"`
		BatchSize int   `json:"batch_size"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return
	}
	if parsed.Normalize != nil {
		normalize = *parsed.Normalize
	}
	if parsed.BatchSize > 0 {
		batchSize = parsed.BatchSize
	}
	return
}

func toDocstoreResp(m *model.Docstore) *dto.DocstoreResp {
	return &dto.DocstoreResp{
		ID:             m.ID,
		Name:           m.Name,
		Slug:           m.Slug,
		Description:    m.Description,
		IndexName:      m.IndexName,
		CreatorID:      m.CreatorID,
		DocumentCount:  m.DocumentCount,
		ChunkCount:     m.ChunkCount,
		TotalSizeBytes: m.TotalSizeBytes,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
	}
}
