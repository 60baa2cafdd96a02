package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Cutout 背景去除结果：编码后的字节或带 alpha 的位图，二者取其一
type Cutout struct {
	Image   image.Image
	Encoded []byte
}

// NRGBA 统一转换为 NRGBA 位图
func (c Cutout) NRGBA() (*image.NRGBA, error) {
	if c.Image != nil {
		return imaging.Clone(c.Image), nil
	}
	if len(c.Encoded) == 0 {
		return nil, errors.New("empty cutout")
	}

	img, err := imaging.Decode(bytes.NewReader(c.Encoded))
	if err != nil {
		wimg, werr := webp.Decode(bytes.NewReader(c.Encoded))
		if werr != nil {
			return nil, fmt.Errorf("decode cutout: %w", err)
		}
		img = wimg
	}
	return imaging.Clone(img), nil
}

// Remover 背景去除算子：RGB 进，RGBA 抠图出
type Remover interface {
	Remove(ctx context.Context, img image.Image) (Cutout, error)
}

// Isolator 去除背景并合成到白色画布上，保证后续灰度阈值只看到白底
type Isolator struct {
	remover Remover
}

func NewIsolator(remover Remover) *Isolator {
	return &Isolator{remover: remover}
}

func (i *Isolator) Isolate(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	cut, err := i.remover.Remove(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: background removal: %v", ErrSegmentationUnavailable, err)
	}

	fg, err := cut.NRGBA()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentationUnavailable, err)
	}

	b := fg.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(canvas, fg, image.Pt(0, 0), 1.0), nil
}
