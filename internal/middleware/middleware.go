package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/Brownie44l1/food-api/internal/metrics"
	"github.com/Brownie44l1/food-api/internal/predict"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestID     = "X-Request-ID"
	ContextRequestID    = "requestID"
	TooManyRequestsBody = "Too many requests"
)

// RequestID propagates an incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// HTTPLogger writes one access log line and the request metrics.
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		tags := []string{
			metrics.Tag("path", path),
			metrics.Tag("method", c.Request.Method),
			metrics.Tag("status", strconv.Itoa(status)),
		}
		metrics.Incr(metrics.APIRequestTotal, tags)
		metrics.Timing(metrics.APIRequestLatency, latency, tags)

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("requestID", c.GetString(ContextRequestID)).
			Str("clientIP", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Msg("access")
	}
}

// Recovery converts a handler panic into the generic internal error body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("requestID", c.GetString(ContextRequestID)).
					Str("path", c.Request.URL.Path).
					Msgf("recovered from panic: %v, stack: %s", r, string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": predict.InternalErrorMessage})
			}
		}()
		c.Next()
	}
}

// RateLimit applies one process-wide token bucket. rps <= 0 disables it.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			metrics.Incr(metrics.RateLimited, []string{metrics.Tag("path", c.FullPath())})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": TooManyRequestsBody})
			return
		}
		c.Next()
	}
}

// BodyLimit caps how many request body bytes handlers can read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func Cors() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", HeaderRequestID}
	corsConfig.ExposeHeaders = []string{HeaderRequestID}
	return cors.New(corsConfig)
}
