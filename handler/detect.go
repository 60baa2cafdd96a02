package handler

import (
	"context"
	"net/http"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/middleware"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DetectionService 病害识别
type DetectionService interface {
	Identify(ctx context.Context, raw []byte) (*model.DetectionResult, error)
}

type DetectHandler struct {
	cfg     *config.Config
	service DetectionService
}

func NewDetectHandler(cfg *config.Config, svc DetectionService) *DetectHandler {
	return &DetectHandler{cfg: cfg, service: svc}
}

// Detect 识别叶片病害并返回带标注的检测图
func (h *DetectHandler) Detect(c *gin.Context) {
	log := utils.WithRequest("detect", middleware.RequestIDOf(c))

	data, err := readImage(c, &h.cfg.Upload)
	if err != nil {
		log.Warn("invalid upload", zap.Error(err))
		writeInputError(c, err)
		return
	}

	result, err := h.service.Identify(c.Request.Context(), data)
	if err != nil {
		log.Error("failed to detect disease", zap.Error(err))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
