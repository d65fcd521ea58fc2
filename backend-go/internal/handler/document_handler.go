package handler

import (
	"io"
	"log"
	"net/http"

	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

// 单文件上限 50MB，与运行时的解析能力对齐
const maxUploadSize = 50 << 20

type DocumentHandler struct {
	svc *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 批量上传，multipart 字段名 files
// POST /api/v1/docstores/:id/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart 解析失败: " + err.Error()})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 files 字段"})
		return
	}

	// 读入内存：去重和回放都需要完整内容
	files := make([]service.UploadFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		if fh.Size > maxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件过大: " + fh.Filename})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件读取失败: " + fh.Filename})
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件读取失败: " + fh.Filename})
			return
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, service.UploadFile{
			Filename: fh.Filename,
			MimeType: mimeType,
			Content:  content,
		})
	}

	log.Printf("📥 收到上传请求: store=%d files=%d", storeID, len(files))

	outcomes, err := h.svc.UploadDocuments(c.Request.Context(), userID, storeID, files)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcomes})
}

// List 文档列表，可按状态过滤
// GET /api/v1/docstores/:id/documents?status=failed
func (h *DocumentHandler) List(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	list, err := h.svc.ListDocuments(c.Request.Context(), storeID, c.Query("status"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Get 文档详情
// GET /api/v1/docstores/:id/documents/:doc_id
func (h *DocumentHandler) Get(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	docID, ok := pathID(c, "doc_id")
	if !ok {
		return
	}

	resp, err := h.svc.GetDocument(c.Request.Context(), storeID, docID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Delete 删文档 (索引 chunk + 元数据 + 原始文件)
// DELETE /api/v1/docstores/:id/documents/:doc_id
func (h *DocumentHandler) Delete(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	docID, ok := pathID(c, "doc_id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(c.Request.Context(), userID, storeID, docID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
