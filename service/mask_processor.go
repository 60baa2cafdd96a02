package service

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// MaskProcessor 掩码的二值化与形态学处理
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// ExtractForeground 从 GrabCut 掩码中取出确定前景和可能前景
func (mp *MaskProcessor) ExtractForeground(mask *gocv.Mat) gocv.Mat {
	fg := gocv.NewMat()
	defer fg.Close()
	fgValue := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcForeground}, gocv.MatTypeCV8U)
	defer fgValue.Close()
	gocv.Compare(*mask, fgValue, &fg, gocv.CompareEQ)

	probable := gocv.NewMat()
	defer probable.Close()
	prValue := gocv.NewMatFromScalar(gocv.Scalar{Val1: gcProbForeground}, gocv.MatTypeCV8U)
	defer prValue.Close()
	gocv.Compare(*mask, prValue, &probable, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fg, probable, &combined)
	return combined
}

// Binarize 任意非零值置为 255
func (mp *MaskProcessor) Binarize(src gocv.Mat, dst *gocv.Mat) {
	gocv.Threshold(src, dst, 0, 255, gocv.ThresholdBinary)
}

// MorphologyOptimize 开运算去噪点，闭运算补孔洞
func (mp *MaskProcessor) MorphologyOptimize(mask *gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	return closed
}

// RefineEdges 平滑掩码边缘
func (mp *MaskProcessor) RefineEdges(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 2, Y: 2})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*mask, &dilated, kernel)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(dilated, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)

	final := gocv.NewMat()
	gocv.Threshold(blurred, &final, 127, 255, gocv.ThresholdBinary)
	return final
}

// KeepLargest 只保留面积最大的外部连通区域；调用方负责关闭返回值
func (mp *MaskProcessor) KeepLargest(mask *gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	largest := gocv.Zeros(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&largest, contours, maxIndex, white, -1)
	return largest
}
