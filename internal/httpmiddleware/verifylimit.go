package httpmiddleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/auth"
)

// VerifyLimiter caps verification submissions per student per minute
// across all instances, using a redis fixed window. Each attempt costs an
// external recognition call, so the cap is tighter than the IP limiter.
type VerifyLimiter struct {
	client *redis.Client
	perMin int
}

// NewVerifyLimiter creates the limiter.
func NewVerifyLimiter(client *redis.Client, perMin int) *VerifyLimiter {
	return &VerifyLimiter{client: client, perMin: perMin}
}

// GinMiddleware enforces the per-student window. The limiter fails open
// when redis is down: verification availability wins over throttling.
func (l *VerifyLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.client == nil || l.perMin <= 0 {
			c.Next()
			return
		}
		user, ok := auth.FromContext(c)
		if !ok {
			c.Next()
			return
		}
		key := fmt.Sprintf("attendance:verifylimit:%s:%d", user.ID, time.Now().Unix()/60)
		n, err := l.client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			log.Printf("verify limiter unavailable: %v", err)
			c.Next()
			return
		}
		if n == 1 {
			l.client.Expire(c.Request.Context(), key, 2*time.Minute)
		}
		if n > int64(l.perMin) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many verification attempts"})
			return
		}
		c.Next()
	}
}
