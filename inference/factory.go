package inference

import (
	"fmt"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
)

// NewSegmentationModel 按配置选择分割后端
func NewSegmentationModel(cfg *config.ModelsConfig) (SegmentationModel, error) {
	switch cfg.Segmentation.Backend {
	case "http":
		return NewHTTPSegmenter(&cfg.Segmentation), nil
	case "onnx":
		if err := InitRuntime(cfg.OnnxRuntimeLib); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
		seg, err := NewONNXSegmenter(&cfg.Segmentation)
		if err != nil {
			return nil, err
		}
		return seg, nil
	default:
		return nil, fmt.Errorf("unknown segmentation backend %q", cfg.Segmentation.Backend)
	}
}

// NewDetectionModel 按配置选择检测后端；backend 为 none 时返回 nil
func NewDetectionModel(cfg *config.ModelsConfig) (DetectionModel, error) {
	switch cfg.Detection.Backend {
	case "", "none":
		return nil, nil
	case "http":
		return NewHTTPDetector(&cfg.Detection), nil
	case "onnx":
		if err := InitRuntime(cfg.OnnxRuntimeLib); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
		det, err := NewONNXDetector(&cfg.Detection)
		if err != nil {
			return nil, err
		}
		return det, nil
	default:
		return nil, fmt.Errorf("unknown detection backend %q", cfg.Detection.Backend)
	}
}
