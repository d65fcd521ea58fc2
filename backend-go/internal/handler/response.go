package handler

import (
	"net/http"
	"strconv"

	"DocStack/backend-go/internal/errs"

	"github.com/gin-gonic/gin"
)

func parseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint(v), err
}

// respondErr 按错误分类映射 HTTP 状态码，统一 {"error": ...} 信封
func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindDependency, errs.KindRemoteWrite:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// currentUserID 从 JWT 中间件塞的上下文里取当前用户
func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return 0, false
	}
	return userID.(uint), true
}

// pathID 解析 :id 之类的路径参数
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := parseUint(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法的 " + name})
		return 0, false
	}
	return id, true
}
