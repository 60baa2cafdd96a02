package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/gin-gonic/gin"
)

// inputError 上传参数错误，携带应返回的 HTTP 状态码
type inputError struct {
	status  int
	message string
	err     error
}

func (e *inputError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *inputError) Unwrap() error { return e.err }

// readImage 支持 multipart 的 image/file 字段，或 {"file": "<base64>"} JSON
func readImage(c *gin.Context, cfg *config.UploadConfig) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		return readBase64(c, cfg)
	}

	file, err := c.FormFile("image")
	if err != nil {
		file, err = c.FormFile("file")
	}
	if err != nil {
		return nil, &inputError{status: http.StatusBadRequest, message: "请上传图片文件", err: err}
	}

	// 验证文件大小
	if file.Size > cfg.MaxSize {
		return nil, &inputError{
			status:  http.StatusRequestEntityTooLarge,
			message: fmt.Sprintf("文件大小超过限制 (%d MB)", cfg.MaxSize/(1024*1024)),
		}
	}

	// 验证文件类型
	if !isAllowedType(cfg, file.Header.Get("Content-Type")) {
		return nil, &inputError{status: http.StatusUnsupportedMediaType, message: "不支持的文件类型，仅支持 JPEG/PNG/WebP"}
	}

	f, err := file.Open()
	if err != nil {
		return nil, &inputError{status: http.StatusBadRequest, message: "读取上传文件失败", err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &inputError{status: http.StatusBadRequest, message: "读取上传文件失败", err: err}
	}
	return data, nil
}

func readBase64(c *gin.Context, cfg *config.UploadConfig) ([]byte, error) {
	// base64 膨胀约 4/3，另留 data URI 前缀与 JSON 外壳的余量
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody(cfg.MaxSize))

	var payload model.ImagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &inputError{
				status:  http.StatusRequestEntityTooLarge,
				message: fmt.Sprintf("文件大小超过限制 (%d MB)", cfg.MaxSize/(1024*1024)),
			}
		}
		return nil, &inputError{status: http.StatusBadRequest, message: "请求体缺少 file 字段", err: err}
	}

	encoded := payload.File
	// data:image/png;base64,....
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &inputError{status: http.StatusBadRequest, message: "base64 解码失败", err: err}
	}
	if int64(len(data)) > cfg.MaxSize {
		return nil, &inputError{
			status:  http.StatusRequestEntityTooLarge,
			message: fmt.Sprintf("文件大小超过限制 (%d MB)", cfg.MaxSize/(1024*1024)),
		}
	}
	return data, nil
}

func maxJSONBody(maxSize int64) int64 {
	return maxSize*4/3 + 1024
}

func isAllowedType(cfg *config.UploadConfig, contentType string) bool {
	for _, allowed := range cfg.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func writeInputError(c *gin.Context, err error) {
	var ie *inputError
	if !errors.As(err, &ie) {
		writeError(c, err)
		return
	}
	resp := model.ErrorResponse{Success: false, Message: ie.message}
	if ie.err != nil {
		resp.Error = ie.err.Error()
	}
	c.JSON(ie.status, resp)
}
