package utils

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// NewRequestID 生成请求ID
func NewRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID 把请求ID放入 context，供下游日志使用
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom 取出请求ID，不存在时返回空串
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
