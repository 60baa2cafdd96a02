package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/disintegration/imaging"
)

func TestDetectPrimaryIsMostConfident(t *testing.T) {
	det := &stubDetector{boxes: []inference.Box{
		{BBox: [4]float64{10, 10, 50, 50}, Confidence: 0.9, ClassID: 1, ClassName: "Mosaico"},
		{BBox: [4]float64{60, 60, 120, 120}, Confidence: 0.95, ClassID: 0, ClassName: "Cercosporiose"},
		{BBox: [4]float64{100, 20, 140, 80}, Confidence: 0.4, ClassID: 2, ClassName: "mancha-bacteriana"},
	}}
	d := NewDiseaseDetector(det, &config.Default().Pipeline)

	result, err := d.Detect(context.Background(), imaging.New(800, 600, color.White))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if det.size != image.Pt(256, 256) {
		t.Errorf("expected 256x256 model input, got %v", det.size)
	}
	if result.DetectedDisease != "cercosporiose" {
		t.Errorf("expected cercosporiose, got %q", result.DetectedDisease)
	}
	if result.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", result.Confidence)
	}
	want := []float64{0.95, 0.9, 0.4}
	for i, det := range result.Detections {
		if det.Confidence != want[i] {
			t.Errorf("detection %d: expected %v, got %v", i, want[i], det.Confidence)
		}
	}

	plot, err := base64.StdEncoding.DecodeString(result.PlotImageB64)
	if err != nil {
		t.Fatalf("invalid base64 plot: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(plot)); err != nil {
		t.Errorf("plot is not a PNG: %v", err)
	}
}

func TestDetectStableOnTies(t *testing.T) {
	det := &stubDetector{boxes: []inference.Box{
		{Confidence: 0.8, ClassName: "mosaico"},
		{Confidence: 0.8, ClassName: "cercosporiose"},
	}}
	result, err := NewDiseaseDetector(det, &config.Default().Pipeline).Detect(context.Background(), imaging.New(10, 10, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if result.DetectedDisease != "mosaico" {
		t.Errorf("ties should keep model order, got %q", result.DetectedDisease)
	}
}

func TestDetectNoDetections(t *testing.T) {
	d := NewDiseaseDetector(&stubDetector{}, &config.Default().Pipeline)

	result, err := d.Detect(context.Background(), imaging.New(300, 300, color.White))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DetectedDisease != UndefinedDisease {
		t.Errorf("expected %q, got %q", UndefinedDisease, result.DetectedDisease)
	}
	if len(result.Detections) != 0 || result.Confidence != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestDetectModelNotLoaded(t *testing.T) {
	d := NewDiseaseDetector(nil, &config.Default().Pipeline)
	if d.Ready() {
		t.Fatal("detector without model should not be ready")
	}
	if _, err := d.Identify(context.Background(), []byte("ignored")); !errors.Is(err, ErrModelNotReady) {
		t.Errorf("expected ErrModelNotReady, got %v", err)
	}
}

func TestIdentifyRejectsGarbage(t *testing.T) {
	d := NewDiseaseDetector(&stubDetector{}, &config.Default().Pipeline)
	if _, err := d.Identify(context.Background(), []byte("garbage")); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestDetectModelError(t *testing.T) {
	d := NewDiseaseDetector(&stubDetector{err: errors.New("timeout")}, &config.Default().Pipeline)
	if _, err := d.Detect(context.Background(), imaging.New(10, 10, color.White)); !errors.Is(err, ErrSegmentationUnavailable) {
		t.Errorf("expected ErrSegmentationUnavailable, got %v", err)
	}
}

func TestClassColor(t *testing.T) {
	if c := classColor("Cercosporiose"); c.G != 255 || c.R != 0 {
		t.Errorf("cercosporiose should be green, got %v", c)
	}
	if c := classColor("ferrugem"); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("unknown class should be white, got %v", c)
	}
}

func TestLabelBox(t *testing.T) {
	bg, origin := labelBox(image.Rect(40, 60, 120, 140), image.Pt(70, 12))
	if want := image.Rect(40, 38, 110, 60); bg != want {
		t.Errorf("background = %v, want %v", bg, want)
	}
	if want := image.Pt(40, 55); origin != want {
		t.Errorf("origin = %v, want %v", origin, want)
	}
}
