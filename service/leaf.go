package service

import (
	"fmt"
	"image"
	"sort"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Contour 叶片轮廓及其面积（像素²）
type Contour struct {
	Points []image.Point
	Area   float64
}

// LeafSelector 在白底标准图上定位叶片轮廓
type LeafSelector struct {
	erosionKernel       int
	backgroundAreaRatio float64
}

func NewLeafSelector(erosionKernel int, backgroundAreaRatio float64) *LeafSelector {
	return &LeafSelector{
		erosionKernel:       erosionKernel,
		backgroundAreaRatio: backgroundAreaRatio,
	}
}

// Select 灰度 -> Otsu 二值化 -> 腐蚀 -> 全部轮廓按面积排序后挑选叶片
func (s *LeafSelector) Select(canonical gocv.Mat) (Contour, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if canonical.Channels() == 1 {
		canonical.CopyTo(&gray)
	} else {
		gocv.CvtColor(canonical, &gray, gocv.ColorBGRToGray)
	}

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: s.erosionKernel, Y: s.erosionKernel})
	defer kernel.Close()
	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(binary, &eroded, kernel)

	contours := gocv.FindContours(eroded, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return Contour{}, fmt.Errorf("%w: no contours after thresholding", ErrEmptyLeafRegion)
	}

	found := make([]Contour, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		found[i] = Contour{Points: pv.ToPoints(), Area: gocv.ContourArea(pv)}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Area > found[j].Area
	})

	areas := make([]float64, len(found))
	for i, c := range found {
		areas[i] = c.Area
	}
	idx := pickLeaf(areas, s.backgroundAreaRatio)
	leaf := found[idx]

	utils.Logger.Debug("leaf contour selected",
		zap.Int("contours", len(found)),
		zap.Float64("largest_area", areas[0]),
		zap.Int("selected_index", idx),
		zap.Float64("leaf_area", leaf.Area))

	if leaf.Area <= 0 {
		return Contour{}, fmt.Errorf("%w: selected contour has zero area", ErrEmptyLeafRegion)
	}
	return leaf, nil
}

// pickLeaf 在按面积降序排列的轮廓中选出叶片。
// 最大轮廓远大于次大轮廓时视为白色背景，取次大者。
func pickLeaf(areas []float64, ratio float64) int {
	if len(areas) < 2 {
		return 0
	}
	if areas[0] > ratio*areas[1] {
		return 1
	}
	return 0
}
