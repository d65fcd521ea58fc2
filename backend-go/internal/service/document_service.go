package service

import (
	"context"
	"log"
	"time"

	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"
	"DocStack/backend-go/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadFile 上传接口收到的单个文件 (已读入内存)
type UploadFile struct {
	Filename string
	MimeType string
	Content  []byte
}

// DocumentService 文档上传 / 删除 / 查询
// 上传是逐文件处理的：每个文件独立判重、独立落盘、独立提交索引，互不影响
type DocumentService struct {
	db      *gorm.DB
	search  IndexManager
	objects ObjectStore
	runtime RuntimeInvoker
	audit   *AuditService
}

func NewDocumentService(d *data.Data, runtime RuntimeInvoker, audit *AuditService) *DocumentService {
	return &DocumentService{
		db:      d.DB,
		search:  d,
		objects: d,
		runtime: runtime,
		audit:   audit,
	}
}

// =================================================================================
// 1. 上传
// =================================================================================

// UploadDocuments 批量上传，逐文件返回 indexed / duplicate / failed
// 流程 (每个文件)：
//  1. sha256 同库判重 —— 已有完成/处理中的同内容文件直接跳过
//  2. 原始文件落 MinIO (重建索引时回放要用)
//  3. pending 记录落库、冗余计数增加
//  4. 异步提交运行时索引 Pipeline，完成后把状态推到 completed / failed
//
// "indexed" 表示已受理进索引流程，最终状态以文档记录的 status 为准
func (s *DocumentService) UploadDocuments(ctx context.Context, userID uint, storeID uint, files []UploadFile) ([]dto.UploadOutcome, error) {
	store, err := findStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errs.Validation("至少上传一个文件")
	}

	outcomes := make([]dto.UploadOutcome, 0, len(files))
	for _, f := range files {
		outcomes = append(outcomes, s.uploadOne(ctx, userID, store, f))
	}

	s.audit.Record(ctx, userID, "upload_documents", "docstore", storeID, map[string]interface{}{
		"files": len(files),
	}, "")
	return outcomes, nil
}

func (s *DocumentService) uploadOne(ctx context.Context, userID uint, store *model.Docstore, f UploadFile) dto.UploadOutcome {
	if len(f.Content) == 0 {
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: "空文件"}
	}

	checksum := utils.Checksum(f.Content)

	// 1. 同库判重：同内容已有非 failed 记录就跳过；failed 记录允许原地重试
	var existing model.Document
	err := s.db.WithContext(ctx).
		Where("docstore_id = ? AND checksum = ?", store.ID, checksum).
		First(&existing).Error
	if err == nil {
		if existing.Status != model.DocStatusFailed {
			return dto.UploadOutcome{
				Filename:   f.Filename,
				Outcome:    dto.UploadOutcomeDuplicate,
				DocumentID: existing.ID,
			}
		}
		// 之前失败过，原地重试而不是新建记录
		return s.retryFailed(ctx, store, &existing, f)
	}
	if err != gorm.ErrRecordNotFound {
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: err.Error()}
	}

	// 2. 原始文件落 MinIO
	storagePath, err := s.objects.PutObject(ctx, store.ID, f.Filename, f.Content, f.MimeType)
	if err != nil {
		log.Printf("❌ 文件落盘失败 (%s): %v", f.Filename, err)
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: "对象存储写入失败"}
	}

	// 3. pending 记录 + 冗余计数，一个事务
	doc := &model.Document{
		DocstoreID:  store.ID,
		UploadedBy:  userID,
		Filename:    f.Filename,
		MimeType:    f.MimeType,
		SizeBytes:   int64(len(f.Content)),
		Checksum:    checksum,
		StoragePath: storagePath,
		Status:      model.DocStatusPending,
		SourceID:    uuid.New().String(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		return tx.Model(&model.Docstore{}).Where("id = ?", store.ID).Updates(map[string]interface{}{
			"document_count":   gorm.Expr("document_count + 1"),
			"total_size_bytes": gorm.Expr("total_size_bytes + ?", doc.SizeBytes),
		}).Error
	})
	if err != nil {
		// 落库失败把刚写的对象收回去
		if rerr := s.objects.RemoveObject(ctx, storagePath); rerr != nil {
			log.Printf("⚠️ 对象回收失败 (%s): %v", storagePath, rerr)
		}
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: err.Error()}
	}

	// 4. 异步提交索引
	s.triggerAsyncIndexing(store.Slug, doc.ID, f)

	return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeIndexed, DocumentID: doc.ID}
}

// retryFailed 同内容文件之前索引失败，换新文件内容原地重试
func (s *DocumentService) retryFailed(ctx context.Context, store *model.Docstore, doc *model.Document, f UploadFile) dto.UploadOutcome {
	storagePath, err := s.objects.PutObject(ctx, store.ID, f.Filename, f.Content, f.MimeType)
	if err != nil {
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: "对象存储写入失败"}
	}

	oldPath := doc.StoragePath
	if err := s.db.WithContext(ctx).Model(doc).Updates(map[string]interface{}{
		"filename":     f.Filename,
		"mime_type":    f.MimeType,
		"size_bytes":   int64(len(f.Content)),
		"storage_path": storagePath,
		"status":       model.DocStatusPending,
		"error_msg":    "",
	}).Error; err != nil {
		return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeFailed, Error: err.Error()}
	}
	if oldPath != "" && oldPath != storagePath {
		if rerr := s.objects.RemoveObject(ctx, oldPath); rerr != nil {
			log.Printf("⚠️ 旧对象清理失败 (%s): %v", oldPath, rerr)
		}
	}

	s.triggerAsyncIndexing(store.Slug, doc.ID, f)
	return dto.UploadOutcome{Filename: f.Filename, Outcome: dto.UploadOutcomeIndexed, DocumentID: doc.ID}
}

// triggerAsyncIndexing 把文件异步推给运行时，完成后推进状态机
// 请求返回后继续跑，所以用独立的超时 context
func (s *DocumentService) triggerAsyncIndexing(slug string, docID uint, f UploadFile) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		var doc model.Document
		if err := s.db.WithContext(ctx).First(&doc, docID).Error; err != nil {
			log.Printf("❌ 异步索引加载文档失败 (id=%d): %v", docID, err)
			return
		}

		s.db.WithContext(ctx).Model(&doc).Update("status", model.DocStatusProcessing)

		result, err := s.runtime.IndexDocuments(ctx, slug, []RuntimeFile{{
			Filename: f.Filename,
			Content:  f.Content,
			MimeType: f.MimeType,
		}}, map[string]string{"source_id": doc.SourceID})

		now := time.Now()
		if err != nil {
			log.Printf("❌ 索引失败 (%s): %v", f.Filename, err)
			s.db.WithContext(ctx).Model(&doc).Updates(map[string]interface{}{
				"status":       model.DocStatusFailed,
				"error_msg":    err.Error(),
				"processed_at": now,
			})
			return
		}

		s.db.WithContext(ctx).Model(&doc).Updates(map[string]interface{}{
			"status":       model.DocStatusCompleted,
			"chunk_count":  result.ChunkCount,
			"error_msg":    "",
			"processed_at": now,
		})
		s.db.WithContext(ctx).Model(&model.Docstore{}).Where("id = ?", doc.DocstoreID).
			Update("chunk_count", gorm.Expr("chunk_count + ?", result.ChunkCount))

		log.Printf("✅ 文档索引完成: %s (%d chunks)", f.Filename, result.ChunkCount)
	}()
}

// =================================================================================
// 2. 删除 / 查询
// =================================================================================

// DeleteDocument 删文档：索引里的 chunk 先删，再清元数据和原始文件
// 索引删除失败直接返回错误，保留记录避免索引里留无主 chunk
func (s *DocumentService) DeleteDocument(ctx context.Context, userID uint, storeID uint, docID uint) error {
	store, err := findStore(ctx, s.db, storeID)
	if err != nil {
		return err
	}

	var doc model.Document
	if err := s.db.WithContext(ctx).
		Where("docstore_id = ?", storeID).First(&doc, docID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errs.NotFound("文档不存在 (id=%d)", docID)
		}
		return err
	}

	// 1. 按 source_id 清索引
	if doc.SourceID != "" {
		if err := s.search.DeleteBySourceID(ctx, store.IndexName, doc.SourceID); err != nil {
			return errs.Dependency("索引 chunk 清理失败", err)
		}
	}

	// 2. 元数据 + 冗余计数 (减到 0 为止，不出负数)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&doc).Error; err != nil {
			return err
		}
		return tx.Model(&model.Docstore{}).Where("id = ?", storeID).Updates(map[string]interface{}{
			"document_count":   gorm.Expr("CASE WHEN document_count > 0 THEN document_count - 1 ELSE 0 END"),
			"chunk_count":      gorm.Expr("CASE WHEN chunk_count >= ? THEN chunk_count - ? ELSE 0 END", doc.ChunkCount, doc.ChunkCount),
			"total_size_bytes": gorm.Expr("CASE WHEN total_size_bytes >= ? THEN total_size_bytes - ? ELSE 0 END", doc.SizeBytes, doc.SizeBytes),
		}).Error
	})
	if err != nil {
		return err
	}

	// 3. 原始文件 (尽力而为)
	if doc.StoragePath != "" {
		if err := s.objects.RemoveObject(ctx, doc.StoragePath); err != nil {
			log.Printf("⚠️ 对象清理失败 (%s): %v", doc.StoragePath, err)
		}
	}

	s.audit.Record(ctx, userID, "delete_document", "document", docID, map[string]interface{}{
		"docstore_id": storeID, "filename": doc.Filename,
	}, "")

	log.Printf("✅ 文档已删除: %s (store=%s)", doc.Filename, store.Slug)
	return nil
}

// ListDocuments 某个库下的文档，可按状态过滤
func (s *DocumentService) ListDocuments(ctx context.Context, storeID uint, status string) ([]dto.DocumentResp, error) {
	if _, err := findStore(ctx, s.db, storeID); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("docstore_id = ?", storeID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var docs []model.Document
	if err := q.Order("created_at desc").Find(&docs).Error; err != nil {
		return nil, err
	}

	result := make([]dto.DocumentResp, 0, len(docs))
	for i := range docs {
		result = append(result, *toDocumentResp(&docs[i]))
	}
	return result, nil
}

// GetDocument 按 ID 查询
func (s *DocumentService) GetDocument(ctx context.Context, storeID uint, docID uint) (*dto.DocumentResp, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).
		Where("docstore_id = ?", storeID).First(&doc, docID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("文档不存在 (id=%d)", docID)
		}
		return nil, err
	}
	return toDocumentResp(&doc), nil
}

func toDocumentResp(m *model.Document) *dto.DocumentResp {
	return &dto.DocumentResp{
		ID:          m.ID,
		DocstoreID:  m.DocstoreID,
		Filename:    m.Filename,
		MimeType:    m.MimeType,
		SizeBytes:   m.SizeBytes,
		Checksum:    m.Checksum,
		Status:      m.Status,
		ErrorMsg:    m.ErrorMsg,
		ChunkCount:  m.ChunkCount,
		UploadedAt:  m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}
