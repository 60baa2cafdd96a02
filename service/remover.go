package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
)

// HTTPRemover 调用 rembg 服务（POST /api/remove，返回 PNG）
type HTTPRemover struct {
	url    string
	client *http.Client
}

func NewHTTPRemover(cfg *config.RemoverConfig) *HTTPRemover {
	return &HTTPRemover{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *HTTPRemover) Remove(ctx context.Context, img image.Image) (Cutout, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return Cutout{}, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return Cutout{}, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Cutout{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return Cutout{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return Cutout{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Cutout{}, fmt.Errorf("remover returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Cutout{}, fmt.Errorf("read cutout: %w", err)
	}
	return Cutout{Encoded: data}, nil
}

// NewRemover 按配置选择背景去除后端
func NewRemover(cfg *config.RemoverConfig) (Remover, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTPRemover(cfg), nil
	case "grabcut":
		return NewGrabCutRemover(cfg), nil
	default:
		return nil, fmt.Errorf("unknown remover backend %q", cfg.Backend)
	}
}
