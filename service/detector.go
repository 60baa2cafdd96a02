package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// UndefinedDisease 未检测到任何病害时的类别名
const UndefinedDisease = "indefinido"

var classColors = map[string]color.RGBA{
	"cercosporiose":     {G: 255, A: 255},
	"mosaico":           {B: 255, A: 255},
	"mancha-bacteriana": {R: 255, A: 255},
}

// DiseaseDetector 病害识别：检测模型 + 置信度排序 + 标注图
type DiseaseDetector struct {
	model      inference.DetectionModel
	inputSize  int
	confidence float64
}

// NewDiseaseDetector model 为 nil 表示启动时模型未加载
func NewDiseaseDetector(m inference.DetectionModel, cfg *config.PipelineConfig) *DiseaseDetector {
	return &DiseaseDetector{
		model:      m,
		inputSize:  cfg.DetectionInputSize,
		confidence: cfg.DetectionConfidence,
	}
}

// Ready 检测模型是否可用
func (d *DiseaseDetector) Ready() bool {
	return d.model != nil
}

// Identify 解码上传字节后执行检测
func (d *DiseaseDetector) Identify(ctx context.Context, raw []byte) (*model.DetectionResult, error) {
	if !d.Ready() {
		return nil, ErrModelNotReady
	}
	img, err := DecodeImage(raw)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, img)
}

// Detect 缩放到检测输入尺寸，按置信度降序返回检测结果，首项为主要病害
func (d *DiseaseDetector) Detect(ctx context.Context, raw image.Image) (*model.DetectionResult, error) {
	if !d.Ready() {
		return nil, ErrModelNotReady
	}
	startTime := time.Now()

	input := imaging.Resize(raw, d.inputSize, d.inputSize, imaging.CatmullRom)
	boxes, err := d.model.PredictBoxes(ctx, input, d.confidence)
	if err != nil {
		return nil, fmt.Errorf("%w: disease detection: %v", ErrSegmentationUnavailable, err)
	}

	detections := formatDetections(boxes)
	result := &model.DetectionResult{
		DetectedDisease: UndefinedDisease,
		Detections:      detections,
		Success:         true,
	}
	if len(detections) > 0 {
		result.DetectedDisease = strings.ToLower(detections[0].ClassName)
		result.Confidence = detections[0].Confidence
	}

	plot, err := plotDetections(input, detections)
	if err != nil {
		return nil, err
	}
	result.PlotImageB64 = base64.StdEncoding.EncodeToString(plot)

	utils.Logger.Info("disease detection completed",
		zap.String("disease", result.DetectedDisease),
		zap.Float64("confidence", result.Confidence),
		zap.Int("detections", len(detections)),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// formatDetections 稳定排序，置信度相同时保持模型输出顺序
func formatDetections(boxes []inference.Box) []model.Detection {
	out := make([]model.Detection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, model.Detection{
			BBox:       b.BBox,
			Confidence: b.Confidence,
			ClassID:    b.ClassID,
			ClassName:  b.ClassName,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func classColor(name string) color.RGBA {
	if c, ok := classColors[strings.ToLower(name)]; ok {
		return c
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

const (
	labelScale     = 0.6
	labelThickness = 2
)

// labelBox 标签底色贴在检测框上沿之上，文字基线距上沿 5 像素
func labelBox(box image.Rectangle, text image.Point) (image.Rectangle, image.Point) {
	bg := image.Rect(box.Min.X, box.Min.Y-text.Y-10, box.Min.X+text.X, box.Min.Y)
	return bg, image.Pt(box.Min.X, box.Min.Y-5)
}

// plotDetections 在检测输入图上绘制带标签的检测框，返回 PNG
func plotDetections(img image.Image, detections []model.Detection) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for _, det := range detections {
		c := classColor(det.ClassName)
		rect := image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3]))
		gocv.Rectangle(&mat, rect, c, 2)

		label := fmt.Sprintf("%s: %.2f", det.ClassName, det.Confidence)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, labelScale, labelThickness)
		bg, origin := labelBox(rect, size)
		gocv.Rectangle(&mat, bg, c, -1)
		gocv.PutText(&mat, label, origin, gocv.FontHersheySimplex, labelScale, white, labelThickness)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode detection plot: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
