package handler

import (
	"net/http"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

type QueryHandler struct {
	svc *service.DocstoreService
}

func NewQueryHandler(svc *service.DocstoreService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Query 跨库检索
// POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Query(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
