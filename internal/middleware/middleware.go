package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/pkg/logger"
)

// RequestingUserHeader carries the caller identity passed into import jobs
const RequestingUserHeader = "X-User-ID"

const requestingUserKey = "requestingUserID"

// RequestLogger logs one line per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("clientIp", c.ClientIP()).
			Msg("HTTP request")
	}
}

// RequireRequestingUser rejects requests without a numeric X-User-ID header
func RequireRequestingUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(RequestingUserHeader), 10, 64)
		if err != nil || id <= 0 {
			detail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, RequestingUserHeader+" header must be a positive integer").
				WithField(RequestingUserHeader)
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(detail))
			return
		}
		c.Set(requestingUserKey, id)
		c.Next()
	}
}

// RequestingUserID returns the id stored by RequireRequestingUser
func RequestingUserID(c *gin.Context) int64 {
	return c.GetInt64(requestingUserKey)
}
