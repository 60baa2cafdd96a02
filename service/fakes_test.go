package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
)

// identityRemover 不去除任何背景，返回不透明原图
type identityRemover struct{}

func (identityRemover) Remove(_ context.Context, img image.Image) (Cutout, error) {
	return Cutout{Image: img}, nil
}

type failingRemover struct{}

func (failingRemover) Remove(context.Context, image.Image) (Cutout, error) {
	return Cutout{}, errors.New("rembg down")
}

type stubSegmenter struct {
	instances []inference.Instance
	err       error
	calls     int
	lastConf  float64
}

func (s *stubSegmenter) PredictInstances(_ context.Context, _ image.Image, conf float64) ([]inference.Instance, error) {
	s.calls++
	s.lastConf = conf
	return s.instances, s.err
}

// redLesionSegmenter 把标准图中的红色像素当作一个病斑实例
type redLesionSegmenter struct{}

func (redLesionSegmenter) PredictInstances(_ context.Context, img image.Image, _ float64) ([]inference.Instance, error) {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R > 127 && c.G < 100 && c.B < 100 {
				mask.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: 255})
			}
		}
	}
	return []inference.Instance{{Mask: mask, Confidence: 0.9}}, nil
}

type stubDetector struct {
	boxes []inference.Box
	err   error
	size  image.Point
}

func (s *stubDetector) PredictBoxes(_ context.Context, img image.Image, _ float64) ([]inference.Box, error) {
	s.size = img.Bounds().Size()
	return s.boxes, s.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]*model.SeverityResult
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]*model.SeverityResult)}
}

func (c *memoryCache) GetSeverity(_ context.Context, key string) (*model.SeverityResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (c *memoryCache) SetSeverity(_ context.Context, key string, result *model.SeverityResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *result
	c.data[key] = &cp
	c.sets++
	return nil
}

// leafImage 白底上一个黑色椭圆叶片，中心有一个红色圆形病斑
func leafImage(w, h int, a, b, r float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			switch {
			case math.Hypot(dx, dy) <= r:
				img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			case (dx*dx)/(a*a)+(dy*dy)/(b*b) <= 1:
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			default:
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}
