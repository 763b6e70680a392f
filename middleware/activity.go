package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danz-app/danz/models"
	"github.com/danz-app/danz/utils"
)

const activityWindow = 5 * time.Minute

// ActivityRecorder stamps users.last_active_at after successful authenticated requests,
// at most once per user every five minutes.
func ActivityRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}
		v, ok := c.Get(ContextUserIDKey)
		if !ok {
			return
		}
		userID, _ := v.(uint)
		if userID == 0 {
			return
		}
		key := "activity:" + strconv.FormatUint(uint64(userID), 10)
		if !utils.TryAcquire(c.Request.Context(), key, activityWindow) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
			Update("last_active_at", time.Now()).Error; err != nil {
			utils.Sugar.Warnw("record activity failed", "user_id", userID, "error", err)
		}
	}
}
