package middleware

import (
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/gin-gonic/gin"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID 为每个请求分配ID，写入响应头和请求 context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.NewRequestID()
		}

		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(utils.ContextWithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDOf 读取当前请求ID
func RequestIDOf(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
