package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DecodeImage 解析上传的图片字节，按 EXIF 方向旋正
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// 部分 WebP 变体（带动画/扩展头）标准解码器不支持
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		img = wimg
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero dimension %dx%d", ErrDecode, b.Dx(), b.Dy())
	}
	return img, nil
}
