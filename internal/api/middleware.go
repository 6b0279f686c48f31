package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Per-client-ID rate limiters.
var (
	clientLimiters = make(map[string]*rate.Limiter)
	limitersMu     sync.RWMutex
)

func getClientLimiter(clientID string, rps float64, burst int) *rate.Limiter {
	limitersMu.RLock()
	limiter, exists := clientLimiters[clientID]
	limitersMu.RUnlock()
	if exists {
		return limiter
	}

	limitersMu.Lock()
	defer limitersMu.Unlock()
	if limiter, exists := clientLimiters[clientID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rps), burst)
	clientLimiters[clientID] = limiter
	return limiter
}

// RateLimitMiddleware limits run-submission requests per client/IP,
// grounded on pkg/exchanges/common/ratelimit.go's token-bucket wrapper.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CurrentClientID(c)
		if key == "" {
			key = c.ClientIP()
		}
		limiter := getClientLimiter(key, rps, burst)

		if !limiter.Allow() {
			log.Printf("[RATE_LIMIT] %s exceeded rate limit", key)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":  "RATE_LIMIT_EXCEEDED",
				"error": "too many requests, please slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware tags every request with a correlation ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs every request with timing and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		requestID := c.GetString("RequestID")
		if len(requestID) > 8 {
			requestID = requestID[:8]
		}

		log.Printf("[API] %s | %s %s | %d | %v", requestID, method, path, statusCode, latency)
	}
}
