package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
)

// httpModel 通过外部推理服务执行模型（multipart 上传图片，JSON 返回结果）
type httpModel struct {
	url       string
	healthURL string
	client    *http.Client
}

func newHTTPModel(cfg *config.ModelConfig) httpModel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return httpModel{
		url:       cfg.URL,
		healthURL: healthURL(cfg),
		client:    &http.Client{Timeout: timeout},
	}
}

// healthURL 未配置 health_url 时使用推理服务根路径下的 /health
func healthURL(cfg *config.ModelConfig) string {
	if cfg.HealthURL != "" {
		return cfg.HealthURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(cfg.URL, "/") + "/health"
	}
	u.Path = "/health"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (m httpModel) post(ctx context.Context, img image.Image, conf float64, out any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(conf, 'f', -1, 64)); err != nil {
		return fmt.Errorf("write conf field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckHealth 检查推理服务是否可用
func (m httpModel) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// HTTPSegmenter 外部分割服务，掩码以 base64 PNG 返回
type HTTPSegmenter struct {
	httpModel
}

func NewHTTPSegmenter(cfg *config.ModelConfig) *HTTPSegmenter {
	return &HTTPSegmenter{httpModel: newHTTPModel(cfg)}
}

type segmentResponse struct {
	Instances []struct {
		Confidence float64 `json:"confidence"`
		ClassID    int     `json:"class_id"`
		Mask       string  `json:"mask"`
	} `json:"instances"`
}

func (s *HTTPSegmenter) PredictInstances(ctx context.Context, img image.Image, conf float64) ([]Instance, error) {
	var resp segmentResponse
	if err := s.post(ctx, img, conf, &resp); err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Instances))
	for i, raw := range resp.Instances {
		inst := Instance{Confidence: raw.Confidence, ClassID: raw.ClassID}
		if raw.Mask != "" {
			mask, err := decodeMaskPNG(raw.Mask)
			if err != nil {
				return nil, fmt.Errorf("instance %d: %w", i, err)
			}
			inst.Mask = mask
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func decodeMaskPNG(b64 string) (*image.Gray, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode mask base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mask png: %w", err)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	gray := image.NewGray(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray, nil
}

// HTTPDetector 外部检测服务
type HTTPDetector struct {
	httpModel
}

func NewHTTPDetector(cfg *config.ModelConfig) *HTTPDetector {
	return &HTTPDetector{httpModel: newHTTPModel(cfg)}
}

type detectResponse struct {
	Detections []struct {
		BBox       []float64 `json:"bbox"`
		Confidence float64   `json:"confidence"`
		ClassID    int       `json:"class_id"`
		ClassName  string    `json:"class_name"`
	} `json:"detections"`
}

func (d *HTTPDetector) PredictBoxes(ctx context.Context, img image.Image, conf float64) ([]Box, error) {
	var resp detectResponse
	if err := d.post(ctx, img, conf, &resp); err != nil {
		return nil, err
	}

	boxes := make([]Box, 0, len(resp.Detections))
	for i, raw := range resp.Detections {
		if len(raw.BBox) != 4 {
			return nil, fmt.Errorf("detection %d: bbox must have 4 values, got %d", i, len(raw.BBox))
		}
		boxes = append(boxes, Box{
			BBox:       [4]float64{raw.BBox[0], raw.BBox[1], raw.BBox[2], raw.BBox[3]},
			Confidence: raw.Confidence,
			ClassID:    raw.ClassID,
			ClassName:  raw.ClassName,
		})
	}
	return boxes, nil
}
