package service

import (
	"context"
	"fmt"
	"image"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// LesionAggregator 把分割模型输出的所有病斑实例合并为一张二值掩码
type LesionAggregator struct {
	confidence    float64
	maskProcessor *MaskProcessor
}

func NewLesionAggregator(confidence float64) *LesionAggregator {
	return &LesionAggregator{
		confidence:    confidence,
		maskProcessor: NewMaskProcessor(),
	}
}

// Aggregate 返回标准图尺寸的 0/255 掩码及参与合并的实例数；调用方负责关闭掩码
func (a *LesionAggregator) Aggregate(ctx context.Context, canonical image.Image, seg inference.SegmentationModel) (gocv.Mat, int, error) {
	b := canonical.Bounds()
	size := image.Point{X: b.Dx(), Y: b.Dy()}

	instances, err := seg.PredictInstances(ctx, canonical, a.confidence)
	if err != nil {
		return gocv.NewMat(), 0, fmt.Errorf("%w: lesion segmentation: %v", ErrSegmentationUnavailable, err)
	}

	acc := gocv.Zeros(size.Y, size.X, gocv.MatTypeCV8U)
	used := 0
	for _, inst := range instances {
		if inst.Mask == nil || inst.Confidence < a.confidence {
			continue
		}
		if err := a.merge(&acc, inst.Mask, size); err != nil {
			acc.Close()
			return gocv.NewMat(), 0, err
		}
		used++
	}

	utils.Logger.Debug("lesion masks aggregated",
		zap.Int("instances", len(instances)),
		zap.Int("merged", used),
		zap.Int("lesion_pixels", gocv.CountNonZero(acc)))

	return acc, used, nil
}

func (a *LesionAggregator) merge(acc *gocv.Mat, mask *image.Gray, size image.Point) error {
	m, err := gocv.ImageGrayToMatGray(mask)
	if err != nil {
		return fmt.Errorf("convert instance mask: %w", err)
	}
	defer m.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	if m.Cols() != size.X || m.Rows() != size.Y {
		gocv.Resize(m, &scaled, size, 0, 0, gocv.InterpolationNearestNeighbor)
	} else {
		m.CopyTo(&scaled)
	}

	bin := gocv.NewMat()
	defer bin.Close()
	a.maskProcessor.Binarize(scaled, &bin)
	gocv.BitwiseOr(*acc, bin, acc)
	return nil
}
