package service

import (
	"image"

	"gocv.io/x/gocv"
)

// ComplexityAnalyzer 估计叶片照片背景的杂乱程度，决定 GrabCut 的初始化方式
type ComplexityAnalyzer struct {
	borderRatio float64
}

// ComplexityInfo Level 取 simple / medium / complex
type ComplexityInfo struct {
	Level          string
	EdgeDensity    float64
	BorderVariance float64
	GreenRatio     float64
}

func NewComplexityAnalyzer() *ComplexityAnalyzer {
	return &ComplexityAnalyzer{borderRatio: 0.1}
}

// Analyze 纸面或纯色台面上的叶片为 simple；田间拍摄（边框杂乱或满屏绿色）为 complex
func (ca *ComplexityAnalyzer) Analyze(img *gocv.Mat) ComplexityInfo {
	info := ComplexityInfo{
		EdgeDensity:    ca.edgeDensity(img),
		BorderVariance: ca.borderVariance(img),
		GreenRatio:     ca.greenRatio(img),
	}

	switch {
	case info.EdgeDensity < 0.05 && info.BorderVariance < 20:
		info.Level = "simple"
	case info.EdgeDensity > 0.15 || info.BorderVariance > 45 || info.GreenRatio > 0.6:
		info.Level = "complex"
	default:
		info.Level = "medium"
	}
	return info
}

func (ca *ComplexityAnalyzer) edgeDensity(img *gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 50, 150)

	return float64(gocv.CountNonZero(edges)) / float64(img.Rows()*img.Cols())
}

// borderVariance 四周边框区域 Lab 标准差的均值，叶片通常不接触边框
func (ca *ComplexityAnalyzer) borderVariance(img *gocv.Mat) float64 {
	w, h := img.Cols(), img.Rows()
	bw := max(1, int(float64(w)*ca.borderRatio))
	bh := max(1, int(float64(h)*ca.borderRatio))

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*img, &lab, gocv.ColorBGRToLab)

	strips := []image.Rectangle{
		image.Rect(0, 0, w, bh),
		image.Rect(0, h-bh, w, h),
		image.Rect(0, bh, bw, h-bh),
		image.Rect(w-bw, bh, w, h-bh),
	}

	total, n := 0.0, 0
	for _, r := range strips {
		if r.Dx() <= 0 || r.Dy() <= 0 {
			continue
		}
		total += ca.meanStdDev(lab, r)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (ca *ComplexityAnalyzer) meanStdDev(lab gocv.Mat, r image.Rectangle) float64 {
	roi := lab.Region(r)
	defer roi.Close()

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(roi, &mean, &stddev)

	sum := 0.0
	for i := 0; i < stddev.Rows(); i++ {
		sum += stddev.GetDoubleAt(i, 0)
	}
	return sum / float64(stddev.Rows())
}

// greenRatio HSV 中绿色调且饱和度足够的像素占比
func (ca *ComplexityAnalyzer) greenRatio(img *gocv.Mat) float64 {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*img, &hsv, gocv.ColorBGRToHSV)

	green := gocv.NewMat()
	defer green.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(35, 40, 40, 0), gocv.NewScalar(85, 255, 255, 0), &green)

	return float64(gocv.CountNonZero(green)) / float64(img.Rows()*img.Cols())
}
