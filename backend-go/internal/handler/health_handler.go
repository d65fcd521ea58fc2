package handler

import (
	"net/http"

	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/service"

	"github.com/gin-gonic/gin"
)

// HealthHandler 聚合四个外部系统的可达性
type HealthHandler struct {
	data    *data.Data
	runtime service.RuntimeInvoker
}

func NewHealthHandler(d *data.Data, runtime service.RuntimeInvoker) *HealthHandler {
	return &HealthHandler{data: d, runtime: runtime}
}

// Health 任意一个依赖挂了整体降级为 degraded，但接口本身始终 200
// GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	resp := &dto.HealthResp{Status: "ok", Services: map[string]string{}}

	check := func(name string, err error) {
		if err != nil {
			resp.Status = "degraded"
			resp.Services[name] = "down: " + err.Error()
			return
		}
		resp.Services[name] = "up"
	}

	check("database", h.data.DBHealth(ctx))
	check("search", h.data.SearchHealth(ctx))
	check("object_store", h.data.ObjectStoreHealth(ctx))
	check("runtime", h.runtime.Health(ctx))

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
