package handler

import (
	"net/http"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List 审计日志分页查询
// GET /api/v1/audit-logs?page=1&page_size=20&action=create_docstore
func (h *AuditHandler) List(c *gin.Context) {
	var req dto.AuditListReq
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
