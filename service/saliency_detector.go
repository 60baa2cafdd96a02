package service

import (
	"image"

	"gocv.io/x/gocv"
)

// GrabCut 掩码取值
const (
	gcBackground     = 0
	gcForeground     = 1
	gcProbBackground = 2
	gcProbForeground = 3
)

// SaliencyDetector 结合梯度与饱和度估计叶片所在区域
type SaliencyDetector struct{}

func NewSaliencyDetector() *SaliencyDetector {
	return &SaliencyDetector{}
}

// Detect 计算二值显著性图；叶片通常比背景（纸、桌面、天空）饱和度更高
func (sd *SaliencyDetector) Detect(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	gradY := gocv.NewMat()
	defer gradX.Close()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absGradX := gocv.NewMat()
	absGradY := gocv.NewMat()
	defer absGradX.Close()
	defer absGradY.Close()
	gocv.ConvertScaleAbs(gradX, &absGradX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absGradY, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(absGradX, 0.5, absGradY, 0.5, 0, &gradient)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*img, &hsv, gocv.ColorBGRToHSV)
	channels := gocv.Split(hsv)
	for _, c := range channels {
		defer c.Close()
	}

	combined := gocv.NewMat()
	defer combined.Close()
	gocv.AddWeighted(gradient, 0.4, channels[1], 0.6, 0, &combined)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(combined, &blurred, image.Point{X: 21, Y: 21}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	return saliency
}

// ExtractRect 最大显著区域的外接矩形，四周留 5% 余量
func (sd *SaliencyDetector) ExtractRect(saliency *gocv.Mat, width, height int) image.Rectangle {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 21, Y: 21})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		border := int(float64(width) * 0.1)
		return image.Rect(border, border, width-border, height-border)
	}

	var maxRect image.Rectangle
	maxArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxRect = gocv.BoundingRect(contours.At(i))
		}
	}

	padding := int(float64(maxRect.Dx()) * 0.05)
	maxRect.Min.X = max(0, maxRect.Min.X-padding)
	maxRect.Min.Y = max(0, maxRect.Min.Y-padding)
	maxRect.Max.X = min(width, maxRect.Max.X+padding)
	maxRect.Max.Y = min(height, maxRect.Max.Y+padding)

	return maxRect
}

// CreateMask 生成 GrabCut 初始掩码：边框为确定背景，显著区域为可能前景，其余为可能背景
func (sd *SaliencyDetector) CreateMask(saliency *gocv.Mat, width, height int) gocv.Mat {
	mask := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
	mask.SetTo(gocv.NewScalar(gcProbBackground, 0, 0, 0))

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 11, Y: 11})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	fg := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
	defer fg.Close()
	fg.SetTo(gocv.NewScalar(gcProbForeground, 0, 0, 0))
	fg.CopyToWithMask(&mask, dilated)

	borderSize := max(1, int(float64(width)*0.03))
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, width, borderSize),
		image.Rect(0, height-borderSize, width, height),
		image.Rect(0, 0, borderSize, height),
		image.Rect(width-borderSize, 0, width, height),
	} {
		region := mask.Region(r)
		region.SetTo(gocv.NewScalar(gcBackground, 0, 0, 0))
		region.Close()
	}

	return mask
}
