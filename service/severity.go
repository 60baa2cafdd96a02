package service

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	lesionOutline = color.RGBA{G: 255, B: 255, A: 255}
	leafOutline   = color.RGBA{R: 255, G: 255, A: 255}
)

// Severity 单张图像的严重度及叠加图
type Severity struct {
	Percent      float64
	LesionPixels int
	LeafArea     float64
	Overlay      []byte // PNG
}

// SeverityRenderer 计算病斑面积占比并绘制叠加图
type SeverityRenderer struct {
	opacity float64
}

func NewSeverityRenderer(opacity float64) *SeverityRenderer {
	return &SeverityRenderer{opacity: opacity}
}

// Percent 病斑像素数 / 叶片面积 * 100，不截断到 [0, 100]
func Percent(lesionPixels int, leafArea float64) (float64, error) {
	if leafArea <= 0 {
		return 0, fmt.Errorf("%w: leaf area is zero", ErrEmptyLeafRegion)
	}
	return 100 * float64(lesionPixels) / leafArea, nil
}

func severityLabel(percent float64) string {
	return fmt.Sprintf("Severidade: %.2f%%", percent)
}

// Render lesion 为 CV8U 0/255 掩码，canonical 为 BGR 标准图
func (r *SeverityRenderer) Render(lesion gocv.Mat, leaf Contour, canonical gocv.Mat) (Severity, error) {
	if lesion.Rows() != canonical.Rows() || lesion.Cols() != canonical.Cols() {
		return Severity{}, fmt.Errorf("lesion mask %dx%d does not match image %dx%d",
			lesion.Cols(), lesion.Rows(), canonical.Cols(), canonical.Rows())
	}

	pixels := gocv.CountNonZero(lesion)
	percent, err := Percent(pixels, leaf.Area)
	if err != nil {
		return Severity{}, err
	}

	overlay := canonical.Clone()
	defer overlay.Close()

	// 仅在病斑像素上做半透明红色混合
	red := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), canonical.Rows(), canonical.Cols(), canonical.Type())
	defer red.Close()
	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(canonical, 1-r.opacity, red, r.opacity, 0, &blended)
	blended.CopyToWithMask(&overlay, lesion)

	lesionContours := gocv.FindContours(lesion, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer lesionContours.Close()
	if lesionContours.Size() > 0 {
		gocv.DrawContours(&overlay, lesionContours, -1, lesionOutline, 1)
	}

	if len(leaf.Points) > 0 {
		leafContours := gocv.NewPointsVectorFromPoints([][]image.Point{leaf.Points})
		defer leafContours.Close()
		gocv.DrawContours(&overlay, leafContours, 0, leafOutline, 2)
	}

	gocv.PutTextWithParams(&overlay, severityLabel(percent), image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.8, leafOutline, 2, gocv.LineAA, false)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, overlay)
	if err != nil {
		return Severity{}, fmt.Errorf("encode overlay: %w", err)
	}
	defer buf.Close()

	return Severity{
		Percent:      percent,
		LesionPixels: pixels,
		LeafArea:     leaf.Area,
		Overlay:      append([]byte(nil), buf.GetBytes()...),
	}, nil
}
