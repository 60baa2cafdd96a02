package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"gocv.io/x/gocv"
)

func grayMask(w, h int, rect image.Rectangle) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			m.SetGray(x, y, color.Gray{Y: 1})
		}
	}
	return m
}

func TestAggregateUnionOfInstances(t *testing.T) {
	seg := &stubSegmenter{instances: []inference.Instance{
		{Mask: grayMask(64, 64, image.Rect(0, 0, 10, 10)), Confidence: 0.9},
		{Mask: grayMask(64, 64, image.Rect(5, 5, 15, 15)), Confidence: 0.7},
		{Mask: grayMask(64, 64, image.Rect(40, 40, 50, 50)), Confidence: 0.2}, // 低于阈值
		{Mask: nil, Confidence: 0.99},
	}}

	mask, used, err := NewLesionAggregator(0.6).Aggregate(context.Background(), image.NewNRGBA(image.Rect(0, 0, 64, 64)), seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mask.Close()

	if used != 2 {
		t.Errorf("expected 2 merged instances, got %d", used)
	}
	// 两个 10x10 方块重叠 5x5
	if got := gocv.CountNonZero(mask); got != 175 {
		t.Errorf("expected 175 lesion pixels, got %d", got)
	}
	if seg.lastConf != 0.6 {
		t.Errorf("expected confidence 0.6 passed to model, got %v", seg.lastConf)
	}
}

func TestAggregateResizesMask(t *testing.T) {
	seg := &stubSegmenter{instances: []inference.Instance{
		{Mask: grayMask(32, 32, image.Rect(0, 0, 16, 32)), Confidence: 0.9},
	}}

	mask, _, err := NewLesionAggregator(0.6).Aggregate(context.Background(), image.NewNRGBA(image.Rect(0, 0, 64, 64)), seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mask.Close()

	if mask.Rows() != 64 || mask.Cols() != 64 {
		t.Fatalf("expected 64x64 mask, got %dx%d", mask.Cols(), mask.Rows())
	}
	if got := gocv.CountNonZero(mask); got != 64*32 {
		t.Errorf("expected left half set (%d), got %d", 64*32, got)
	}
}

func TestAggregateNoInstances(t *testing.T) {
	mask, used, err := NewLesionAggregator(0.6).Aggregate(context.Background(), image.NewNRGBA(image.Rect(0, 0, 16, 16)), &stubSegmenter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mask.Close()

	if used != 0 || gocv.CountNonZero(mask) != 0 {
		t.Errorf("expected empty mask, got %d instances and %d pixels", used, gocv.CountNonZero(mask))
	}
}

func TestAggregateModelError(t *testing.T) {
	seg := &stubSegmenter{err: errors.New("inference server down")}
	mask, _, err := NewLesionAggregator(0.6).Aggregate(context.Background(), image.NewNRGBA(image.Rect(0, 0, 16, 16)), seg)
	defer mask.Close()

	if !errors.Is(err, ErrSegmentationUnavailable) {
		t.Errorf("expected ErrSegmentationUnavailable, got %v", err)
	}
}
