package middleware

import (
	"net/http"

	"expensetracker/database"
	"expensetracker/models"

	"github.com/gin-gonic/gin"
)

// RequireAdmin 仅允许管理员访问，需在 JWTAuth 之后使用
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetCurrentUserID(c)
		if userID == 0 {
			abortUnauthorized(c, "请先登录")
			return
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			abortUnauthorized(c, "用户不存在")
			return
		}
		if !user.IsAdmin || user.Status == models.UserStatusLocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    http.StatusForbidden,
				"message": "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}
