package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册 API 路由及旧客户端使用的别名
func RegisterRoutes(r *gin.Engine, severity *SeverityHandler, detect *DetectHandler) {
	api := r.Group("/api/v1")
	{
		api.POST("/severity", severity.Compute)
		api.GET("/severity/:md5", severity.GetByMD5)
		api.POST("/detect", detect.Detect)
	}

	r.POST("/predict", severity.Compute)
	r.POST("/detect_disease", detect.Detect)
}
