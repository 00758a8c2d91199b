package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 调用方身份头
const userIDHeader = "X-User-ID"

// 上下文键
const ContextUserID = "current_user_id"

// ==================== 调用方身份 ====================

// CurrentUser 从请求头解析调用方用户 ID 并放入上下文
// 完整的登录鉴权由上游网关负责，这里只做身份透传；
// 资源归属仍然在服务层逐一校验，伪造 ID 拿不到别人的数据
func CurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少 " + userIDHeader + " 请求头"})
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的用户 ID"})
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID 从上下文取调用方用户 ID
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
