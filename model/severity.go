package model

// SeverityResult 严重度计算结果
type SeverityResult struct {
	MD5            string          `json:"md5"`
	RequestID      string          `json:"request_id"`
	Severity       float64         `json:"severity"`
	LesionPixels   int             `json:"lesion_pixels"`
	LeafArea       float64         `json:"leaf_area"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	PlotImageB64   string          `json:"plot_image_b64"`
	Recommendation *Recommendation `json:"recomendacao,omitempty"`
	Timestamp      int64           `json:"timestamp"`
}

// Recommendation 基于严重度阈值的处理建议
type Recommendation struct {
	Kind        string `json:"tipo"`
	Title       string `json:"titulo"`
	Description string `json:"descricao"`
}

// Detection 单个病害检测框
type Detection struct {
	BBox       [4]float64 `json:"bbox"` // x_min, y_min, x_max, y_max
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
}

// DetectionResult 病害识别结果，Detections 按置信度降序排列
type DetectionResult struct {
	DetectedDisease string      `json:"detected_disease"`
	Detections      []Detection `json:"detections"`
	Confidence      float64     `json:"confidence"`
	PlotImageB64    string      `json:"plot_image_b64"`
	Success         bool        `json:"success"`
}

// ImagePayload 原客户端使用的 base64 JSON 上传格式
type ImagePayload struct {
	File string `json:"file" binding:"required"`
}

// SeverityResponse 严重度接口响应
type SeverityResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    *SeverityResult `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
