package middlewares

import (
	"net/http"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/tool"
	"golang.org/x/time/rate"
)

// RateLimit allows perSecond requests per client address with the given
// burst. A non-positive perSecond disables it.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	var mu sync.Mutex
	limiters := ttlworker.NewCache[string, *rate.Limiter](10 * time.Minute)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		limiter := limiters.Get(ip)
		if limiter == nil {
			limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
		// refresh the entry so active clients keep their bucket
		limiters.Set(ip, limiter)
		mu.Unlock()

		if !limiter.Allow() {
			tool.DefaultLogger.Warnf("[RateLimit] Too many requests from %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, tool.FastReturnError("Too many requests"))
			return
		}
		c.Next()
	}
}
