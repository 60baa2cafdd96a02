// Command leafsev 对本地图片运行严重度流水线，并把叠加图写到输出目录。
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/service"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	outDir := flag.String("out", "out", "directory for overlay images")
	detect := flag.Bool("detect", false, "also run disease detection")
	format := flag.String("format", "png", "overlay format: png or webp")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: leafsev [flags] image...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.New(*configPath)
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	if *format != "png" && *format != "webp" {
		fmt.Fprintf(os.Stderr, "unsupported format %q\n", *format)
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, *outDir, *format, *detect, flag.Args()); err != nil {
		utils.Logger.Error("leafsev failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, outDir, format string, detect bool, files []string) error {
	segmenter, err := inference.NewSegmentationModel(&cfg.Models)
	if err != nil {
		return fmt.Errorf("load segmentation model: %w", err)
	}
	if c, ok := segmenter.(inference.Closer); ok {
		defer c.Close()
	}

	remover, err := service.NewRemover(&cfg.Remover)
	if err != nil {
		return err
	}
	pipeline := service.NewPipeline(&cfg.Pipeline, segmenter, remover, nil)

	var detector *service.DiseaseDetector
	if detect {
		model, err := inference.NewDetectionModel(&cfg.Models)
		if err != nil {
			return fmt.Errorf("load detection model: %w", err)
		}
		if c, ok := model.(inference.Closer); ok {
			defer c.Close()
		}
		detector = service.NewDiseaseDetector(model, &cfg.Pipeline)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	failed := 0
	for _, path := range files {
		if err := processFile(ctx, pipeline, detector, outDir, format, path); err != nil {
			utils.Logger.Error("failed to process image", zap.String("file", path), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(files))
	}
	return nil
}

func processFile(ctx context.Context, pipeline *service.Pipeline, detector *service.DiseaseDetector, outDir, format, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, err := service.DecodeImage(data)
	if err != nil {
		return err
	}

	sev, err := pipeline.Analyze(ctx, img)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := writeOverlay(filepath.Join(outDir, base+"_severity"), format, sev.Overlay); err != nil {
		return err
	}
	rec := service.Recommend(sev.Percent)
	fmt.Printf("%s\tseverity=%.2f%%\trecommendation=%s\n", path, sev.Percent, rec.Kind)

	if detector == nil {
		return nil
	}
	result, err := detector.Detect(ctx, img)
	if err != nil {
		return err
	}
	plot, err := base64.StdEncoding.DecodeString(result.PlotImageB64)
	if err != nil {
		return err
	}
	if err := writeOverlay(filepath.Join(outDir, base+"_detect"), format, plot); err != nil {
		return err
	}
	fmt.Printf("%s\tdisease=%s\tconfidence=%.2f\n", path, result.DetectedDisease, result.Confidence)
	return nil
}

// writeOverlay 按输出格式写入 PNG 叠加图，webp 使用无损编码
func writeOverlay(pathNoExt, format string, pngData []byte) error {
	if format == "png" {
		return os.WriteFile(pathNoExt+".png", pngData, 0644)
	}

	img, err := imaging.Decode(bytes.NewReader(pngData))
	if err != nil {
		return fmt.Errorf("decode overlay: %w", err)
	}
	f, err := os.Create(pathNoExt + ".webp")
	if err != nil {
		return err
	}
	defer f.Close()
	return webp.Encode(f, img, &webp.Options{Lossless: true})
}
