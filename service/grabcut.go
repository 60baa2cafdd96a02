package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// GrabCutRemover 本地背景去除：显著性初始化 + GrabCut，无需外部服务
type GrabCutRemover struct {
	iterations         int
	borderSize         int
	workSize           int
	complexityAnalyzer *ComplexityAnalyzer
	saliencyDetector   *SaliencyDetector
	maskProcessor      *MaskProcessor
}

func NewGrabCutRemover(cfg *config.RemoverConfig) *GrabCutRemover {
	return &GrabCutRemover{
		iterations:         cfg.Iterations,
		borderSize:         cfg.BorderSize,
		workSize:           512,
		complexityAnalyzer: NewComplexityAnalyzer(),
		saliencyDetector:   NewSaliencyDetector(),
		maskProcessor:      NewMaskProcessor(),
	}
}

// Remove 返回 alpha 为前景掩码的 RGBA 位图
func (g *GrabCutRemover) Remove(ctx context.Context, img image.Image) (Cutout, error) {
	if err := ctx.Err(); err != nil {
		return Cutout{}, err
	}
	startTime := time.Now()

	src := imaging.Clone(img)
	width, height := src.Bounds().Dx(), src.Bounds().Dy()

	mat, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return Cutout{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	scaled := g.smartResize(&mat, g.workSize)
	defer scaled.Close()

	fgMask, level := g.segment(&scaled)
	defer fgMask.Close()

	// 还原到原始尺寸
	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(fgMask, &full, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	gocv.Threshold(full, &full, 127, 255, gocv.ThresholdBinary)

	alpha := full.ToBytes()
	for i := 0; i < width*height; i++ {
		src.Pix[i*4+3] = alpha[i]
	}

	utils.Logger.Debug("grabcut background removed",
		zap.String("complexity", level),
		zap.Float64("foreground_ratio", float64(gocv.CountNonZero(full))/float64(width*height)),
		zap.Duration("duration", time.Since(startTime)))

	return Cutout{Image: src}, nil
}

// segment 在缩放后的图像上运行 GrabCut，返回 0/255 前景掩码
func (g *GrabCutRemover) segment(img *gocv.Mat) (gocv.Mat, string) {
	w, h := img.Cols(), img.Rows()
	complexity := g.complexityAnalyzer.Analyze(img)

	var initRect image.Rectangle
	var mask gocv.Mat

	if complexity.Level == "simple" {
		border := g.borderSize
		if border < 10 {
			border = int(float64(w) * 0.05)
		}
		initRect = image.Rect(border, border, w-border, h-border)
		mask = gocv.NewMat()
	} else {
		saliencyMap := g.saliencyDetector.Detect(img)
		defer saliencyMap.Close()

		initRect = g.saliencyDetector.ExtractRect(&saliencyMap, w, h)
		mask = g.saliencyDetector.CreateMask(&saliencyMap, w, h)
	}
	defer mask.Close()

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	iterations := g.iterations
	switch complexity.Level {
	case "simple":
		iterations = max(3, g.iterations-2)
	case "complex":
		iterations = g.iterations + 2
	}

	if mask.Empty() {
		gocv.GrabCut(*img, &mask, initRect, &bgdModel, &fgdModel, iterations, gocv.GCInitWithRect)
	} else {
		gocv.GrabCut(*img, &mask, image.Rectangle{}, &bgdModel, &fgdModel, iterations, gocv.GCInitWithMask)
	}

	fgMask := g.maskProcessor.ExtractForeground(&mask)

	kernelSize := 3
	if complexity.Level == "complex" {
		kernelSize = 5
	}
	optimized := g.maskProcessor.MorphologyOptimize(&fgMask, kernelSize)
	fgMask.Close()

	// 一张照片只分析一片叶子
	largest := g.maskProcessor.KeepLargest(&optimized)
	optimized.Close()

	if complexity.Level == "simple" {
		return largest, complexity.Level
	}
	refined := g.maskProcessor.RefineEdges(&largest)
	largest.Close()
	return refined, complexity.Level
}

// smartResize 等比缩放到最长边不超过 maxSize
func (g *GrabCutRemover) smartResize(img *gocv.Mat, maxSize int) gocv.Mat {
	width := img.Cols()
	height := img.Rows()
	maxDim := max(width, height)
	if maxDim <= maxSize {
		return img.Clone()
	}

	scale := float64(maxSize) / float64(maxDim)
	resized := gocv.NewMat()
	gocv.Resize(*img, &resized, image.Point{X: int(float64(width) * scale), Y: int(float64(height) * scale)}, 0, 0, gocv.InterpolationArea)
	return resized
}
