// Package inference 定义分割/检测模型的能力接口及其后端实现。
//
// 流水线只依赖 SegmentationModel 和 DetectionModel 两个接口，
// 具体后端可以是外部 HTTP 推理服务，也可以是进程内的 ONNX Runtime 会话池。
package inference

import (
	"context"
	"image"
)

// Instance 分割模型输出的单个实例
type Instance struct {
	Mask       *image.Gray // 非零即前景；可能为 nil
	Confidence float64
	ClassID    int
}

// Box 检测模型输出的单个检测框
type Box struct {
	BBox       [4]float64 // x1, y1, x2, y2，输入图像像素坐标
	Confidence float64
	ClassID    int
	ClassName  string
}

// SegmentationModel 实例分割能力
type SegmentationModel interface {
	PredictInstances(ctx context.Context, img image.Image, conf float64) ([]Instance, error)
}

// DetectionModel 目标检测能力
type DetectionModel interface {
	PredictBoxes(ctx context.Context, img image.Image, conf float64) ([]Box, error)
}

// Closer 持有本地资源（会话、连接）的后端实现
type Closer interface {
	Close() error
}
