package handler

import (
	"net/http"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

type PipelineHandler struct {
	svc *service.PipelineService
}

func NewPipelineHandler(svc *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

// List 某库下全部 Pipeline
// GET /api/v1/docstores/:id/pipelines
func (h *PipelineHandler) List(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	list, err := h.svc.ListPipelines(c.Request.Context(), storeID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Generate 按当前模型配置渲染 YAML 预览 (不落库不部署)
// POST /api/v1/docstores/:id/pipelines/generate
func (h *PipelineHandler) Generate(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.svc.GeneratePipelines(c.Request.Context(), storeID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Create 保存自定义 Pipeline
// POST /api/v1/docstores/:id/pipelines
func (h *PipelineHandler) Create(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePipelineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.CreatePipeline(c.Request.Context(), userID, storeID, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Update 修改 Pipeline (改内容会让部署状态失效)
// PUT /api/v1/pipelines/:id
func (h *PipelineHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdatePipelineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.UpdatePipeline(c.Request.Context(), id, req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Deploy 部署到远端运行时
// POST /api/v1/pipelines/:id/deploy
func (h *PipelineHandler) Deploy(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.svc.DeployPipeline(c.Request.Context(), userID, id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Delete 删除 Pipeline 定义
// DELETE /api/v1/pipelines/:id
func (h *PipelineHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeletePipeline(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

// CheckDeployment 查看远端目录实际内容
// GET /api/v1/docstores/:id/pipelines/deployment
func (h *PipelineHandler) CheckDeployment(c *gin.Context) {
	storeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := h.svc.CheckDeployment(c.Request.Context(), storeID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}
