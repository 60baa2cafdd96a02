package service

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
)

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 30, 20))); err != nil {
		t.Fatal(err)
	}

	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("expected 30x20, got %v", b)
	}
}

func TestDecodeImageInvalid(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		if _, err := DecodeImage(data); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: expected ErrDecode, got %v", name, err)
		}
	}
}
