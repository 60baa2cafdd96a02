package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/middleware"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/service"
	"github.com/gin-gonic/gin"
)

type stubSeverityService struct {
	result *model.SeverityResult
	err    error
	got    []byte
}

func (s *stubSeverityService) Severity(_ context.Context, raw []byte) (*model.SeverityResult, error) {
	s.got = raw
	return s.result, s.err
}

func (s *stubSeverityService) Lookup(_ context.Context, md5 string) (*model.SeverityResult, error) {
	if s.result != nil && s.result.MD5 == md5 {
		return s.result, nil
	}
	return nil, s.err
}

type stubDetectionService struct {
	result *model.DetectionResult
	err    error
}

func (s *stubDetectionService) Identify(context.Context, []byte) (*model.DetectionResult, error) {
	return s.result, s.err
}

func newTestRouter(sev SeverityService, det DetectionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Upload.MaxSize = 1024

	router := gin.New()
	router.Use(middleware.RequestID())
	RegisterRoutes(router, NewSeverityHandler(cfg, sev), NewDetectHandler(cfg, det))
	return router
}

func buildMultipartBody(t *testing.T, field, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="leaf.png"`, field))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSeverityMultipart(t *testing.T) {
	svc := &stubSeverityService{result: &model.SeverityResult{MD5: "abc", Severity: 12.3456}}
	router := newTestRouter(svc, &stubDetectionService{})

	body, contentType := buildMultipartBody(t, "image", "image/png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/severity", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}
	if string(svc.got) != "png-bytes" {
		t.Errorf("service received %q", svc.got)
	}

	var out model.SeverityResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if out.Data == nil || out.Data.Severity != 12.35 {
		t.Errorf("expected severity rounded to 12.35, got %+v", out.Data)
	}
	if svc.result.Severity != 12.3456 {
		t.Error("rounding must not modify the service result")
	}
}

func TestSeverityBase64JSON(t *testing.T) {
	svc := &stubSeverityService{result: &model.SeverityResult{MD5: "abc"}}
	router := newTestRouter(svc, &stubDetectionService{})

	for _, encoded := range []string{
		base64.StdEncoding.EncodeToString([]byte("raw-image")),
		"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("raw-image")),
	} {
		payload, _ := json.Marshal(model.ImagePayload{File: encoded})
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
		}
		if string(svc.got) != "raw-image" {
			t.Errorf("service received %q", svc.got)
		}
	}
}

func TestSeverityBase64BodyLimit(t *testing.T) {
	svc := &stubSeverityService{result: &model.SeverityResult{MD5: "abc"}}
	router := newTestRouter(svc, &stubDetectionService{})

	// 请求体在解码前就超过上限，无效 base64 也应返回 413 而非 400
	payload, _ := json.Marshal(model.ImagePayload{File: strings.Repeat("!", 4000)})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d: %s", http.StatusRequestEntityTooLarge, resp.Code, resp.Body.String())
	}
	if svc.got != nil {
		t.Error("service should not be called for oversized bodies")
	}
}

func TestMaxJSONBody(t *testing.T) {
	if got := maxJSONBody(3000); got != 5024 {
		t.Errorf("maxJSONBody(3000) = %d, want 5024", got)
	}
}

func TestSeverityRejectsUploads(t *testing.T) {
	router := newTestRouter(&stubSeverityService{}, &stubDetectionService{})

	tests := []struct {
		name        string
		contentType string
		payload     []byte
		want        int
	}{
		{"too large", "image/png", bytes.Repeat([]byte("a"), 2048), http.StatusRequestEntityTooLarge},
		{"unsupported type", "text/plain", []byte("hello"), http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := buildMultipartBody(t, "image", tt.contentType, tt.payload)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/severity", body)
			req.Header.Set("Content-Type", contentType)

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestSeverityMissingFile(t *testing.T) {
	router := newTestRouter(&stubSeverityService{}, &stubDetectionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/severity", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestSeverityErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrDecode, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrEmptyLeafRegion), http.StatusUnprocessableEntity},
		{service.ErrSegmentationUnavailable, http.StatusBadGateway},
		{service.ErrQueueFull, http.StatusTooManyRequests},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := newTestRouter(&stubSeverityService{err: tt.err}, &stubDetectionService{})
			body, contentType := buildMultipartBody(t, "file", "image/jpeg", []byte("jpeg"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/severity", body)
			req.Header.Set("Content-Type", contentType)

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, resp.Code)
			}
			var out model.ErrorResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil || out.Success {
				t.Errorf("expected error response, got %s", resp.Body.String())
			}
		})
	}
}

func TestGetByMD5(t *testing.T) {
	svc := &stubSeverityService{result: &model.SeverityResult{MD5: "abc", Severity: 3.14159}}
	router := newTestRouter(svc, &stubDetectionService{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/severity/abc", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/severity/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func TestDetect(t *testing.T) {
	det := &stubDetectionService{result: &model.DetectionResult{
		DetectedDisease: "mosaico",
		Confidence:      0.91,
		Detections:      []model.Detection{{BBox: [4]float64{1, 2, 3, 4}, Confidence: 0.91, ClassName: "mosaico"}},
		Success:         true,
	}}
	router := newTestRouter(&stubSeverityService{}, det)

	for _, path := range []string{"/api/v1/detect", "/detect_disease"} {
		body, contentType := buildMultipartBody(t, "image", "image/png", []byte("png"))
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)

		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, resp.Code)
		}
		var out model.DetectionResult
		if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if out.DetectedDisease != "mosaico" || len(out.Detections) != 1 {
			t.Errorf("%s: unexpected result %+v", path, out)
		}
	}
}

func TestDetectModelNotReady(t *testing.T) {
	router := newTestRouter(&stubSeverityService{}, &stubDetectionService{err: service.ErrModelNotReady})

	body, contentType := buildMultipartBody(t, "image", "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, resp.Code)
	}
}
