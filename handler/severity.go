package handler

import (
	"context"
	"math"
	"net/http"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/middleware"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SeverityService 严重度计算与缓存查询
type SeverityService interface {
	Severity(ctx context.Context, raw []byte) (*model.SeverityResult, error)
	Lookup(ctx context.Context, md5 string) (*model.SeverityResult, error)
}

type SeverityHandler struct {
	cfg     *config.Config
	service SeverityService
}

func NewSeverityHandler(cfg *config.Config, svc SeverityService) *SeverityHandler {
	return &SeverityHandler{cfg: cfg, service: svc}
}

// Compute 上传图片并计算病害严重度
func (h *SeverityHandler) Compute(c *gin.Context) {
	log := utils.WithRequest("severity", middleware.RequestIDOf(c))

	data, err := readImage(c, &h.cfg.Upload)
	if err != nil {
		log.Warn("invalid upload", zap.Error(err))
		writeInputError(c, err)
		return
	}

	result, err := h.service.Severity(c.Request.Context(), data)
	if err != nil {
		log.Error("failed to compute severity", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SeverityResponse{
		Success: true,
		Message: "处理成功",
		Data:    rounded(result),
	})
}

// GetByMD5 根据MD5获取已缓存的严重度结果
func (h *SeverityHandler) GetByMD5(c *gin.Context) {
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数缺失",
		})
		return
	}

	result, err := h.service.Lookup(c.Request.Context(), md5)
	if err != nil {
		utils.Logger.Error("failed to get severity result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的计算结果",
		})
		return
	}

	c.JSON(http.StatusOK, model.SeverityResponse{
		Success: true,
		Message: "查询成功",
		Data:    rounded(result),
	})
}

// rounded 响应中严重度保留两位小数
func rounded(r *model.SeverityResult) *model.SeverityResult {
	out := *r
	out.Severity = math.Round(r.Severity*100) / 100
	return &out
}
