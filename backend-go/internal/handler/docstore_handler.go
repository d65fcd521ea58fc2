package handler

import (
	"net/http"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

type DocstoreHandler struct {
	svc *service.DocstoreService
}

func NewDocstoreHandler(svc *service.DocstoreService) *DocstoreHandler {
	return &DocstoreHandler{svc: svc}
}

// Create 创建文档库
// POST /api/v1/docstores
func (h *DocstoreHandler) Create(c *gin.Context) {
	var req dto.CreateDocstoreReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.CreateDocstore(c.Request.Context(), userID, req)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// List 文档库列表
// GET /api/v1/docstores
func (h *DocstoreHandler) List(c *gin.Context) {
	list, err := h.svc.ListDocstores(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Get 文档库详情
// GET /api/v1/docstores/:id
func (h *DocstoreHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.svc.GetDocstore(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Update 修改展示字段 (slug 不可改)
// PUT /api/v1/docstores/:id
func (h *DocstoreHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateDocstoreReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.UpdateDocstore(c.Request.Context(), id, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Delete 删库 (清理失败降级为 warning)
// DELETE /api/v1/docstores/:id
func (h *DocstoreHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.DeleteDocstore(c.Request.Context(), userID, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Stats 统计 (冗余计数 + 索引实时数据)
// GET /api/v1/docstores/:id/stats
func (h *DocstoreHandler) Stats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.svc.GetStats(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Reindex 重建索引 (零停机切换)
// POST /api/v1/docstores/:id/reindex
func (h *DocstoreHandler) Reindex(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.Reindex(c.Request.Context(), userID, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
