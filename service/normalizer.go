package service

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Normalizer 把任意比例的照片变成固定尺寸、白底、叶片居中的标准图
type Normalizer struct {
	cropExpansion    float64
	zoomFactor       float64
	intermediateSize int
	targetSize       int
	addPadding       bool
	paddingFactor    float64
}

func NewNormalizer(cfg *config.PipelineConfig) *Normalizer {
	return &Normalizer{
		cropExpansion:    cfg.CropExpansion,
		zoomFactor:       cfg.ZoomFactor,
		intermediateSize: cfg.IntermediateSize,
		targetSize:       cfg.TargetSize,
		addPadding:       cfg.AddPadding,
		paddingFactor:    cfg.PaddingFactor,
	}
}

// Normalize 裁剪、放大、去背景、缩放到标准尺寸
func (n *Normalizer) Normalize(ctx context.Context, raw image.Image, isolator *Isolator) (*image.NRGBA, error) {
	prepared, err := n.Prepare(raw)
	if err != nil {
		return nil, err
	}

	isolated, err := isolator.Isolate(ctx, prepared)
	if err != nil {
		return nil, err
	}

	return n.Finish(isolated), nil
}

// Prepare 扩展正方形裁剪 -> 可选缩放 -> 双三次放大到中间分辨率
func (n *Normalizer) Prepare(raw image.Image) (*image.NRGBA, error) {
	b := raw.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero dimension %dx%d", ErrDecode, b.Dx(), b.Dy())
	}

	rect, err := n.squareCrop(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	square := imaging.Crop(raw, rect.Add(b.Min))

	if n.zoomFactor < 1.0 {
		side := square.Bounds().Dx()
		zoomSize := int(float64(side) * n.zoomFactor)
		if zoomSize == 0 {
			return nil, fmt.Errorf("%w: zoomed crop is empty", ErrDecode)
		}
		margin := (side - zoomSize) / 2
		square = imaging.Crop(square, image.Rect(margin, margin, margin+zoomSize, margin+zoomSize))
	}

	utils.Logger.Debug("square crop",
		zap.Int("src_width", b.Dx()),
		zap.Int("src_height", b.Dy()),
		zap.Int("crop_size", square.Bounds().Dx()),
		zap.Float64("zoom", n.zoomFactor))

	return imaging.Resize(square, n.intermediateSize, n.intermediateSize, imaging.CatmullRom), nil
}

// Finish Lanczos 缩放到目标尺寸，或缩小后居中贴到白色画布
func (n *Normalizer) Finish(img image.Image) *image.NRGBA {
	if !n.addPadding {
		return imaging.Resize(img, n.targetSize, n.targetSize, imaging.Lanczos)
	}

	reduced := int(float64(n.targetSize) * (1 - 2*n.paddingFactor))
	small := imaging.Resize(img, reduced, reduced, imaging.Lanczos)
	canvas := imaging.New(n.targetSize, n.targetSize, color.White)
	pos := (n.targetSize - reduced) / 2
	return imaging.Paste(canvas, small, image.Pt(pos, pos))
}

// squareCrop 以图像中心为中心的扩展正方形裁剪区域
func (n *Normalizer) squareCrop(w, h int) (image.Rectangle, error) {
	m := min(w, h)
	cropSize := min(int(float64(m)*n.cropExpansion), w, h)

	cx, cy := w/2, h/2
	half := cropSize / 2

	left := max(0, cx-half)
	right := min(w, cx+half)
	top := max(0, cy-half)
	bottom := min(h, cy+half)

	// 边缘截断后不是正方形时，收缩到较短边并重新居中
	if right-left != bottom-top {
		size := min(right-left, bottom-top)
		left = cx - size/2
		right = left + size
		top = cy - size/2
		bottom = top + size
	}

	if right-left <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: crop size rounds to zero for %dx%d", ErrDecode, w, h)
	}
	return image.Rect(left, top, right, bottom), nil
}
