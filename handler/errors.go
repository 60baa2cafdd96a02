package handler

import (
	"errors"
	"net/http"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/service"
	"github.com/gin-gonic/gin"
)

// statusFor 把流水线错误映射为 HTTP 状态码和提示信息
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDecode):
		return http.StatusBadRequest, "图片无法解析"
	case errors.Is(err, service.ErrEmptyLeafRegion):
		return http.StatusUnprocessableEntity, "无法分析该图片：未找到叶片区域"
	case errors.Is(err, service.ErrSegmentationUnavailable):
		return http.StatusBadGateway, "推理服务不可用"
	case errors.Is(err, service.ErrModelNotReady):
		return http.StatusServiceUnavailable, "检测模型未加载"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "处理队列已满，请稍后重试"
	default:
		return http.StatusInternalServerError, "图片处理失败"
	}
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
