package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Remover  RemoverConfig  `mapstructure:"remover"`
	Models   ModelsConfig   `mapstructure:"models"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// PipelineConfig 严重度计算流水线的全部经验参数
type PipelineConfig struct {
	CropExpansion       float64 `mapstructure:"crop_expansion"`
	ZoomFactor          float64 `mapstructure:"zoom_factor"`
	IntermediateSize    int     `mapstructure:"intermediate_size"`
	TargetSize          int     `mapstructure:"target_size"`
	AddPadding          bool    `mapstructure:"add_padding"`
	PaddingFactor       float64 `mapstructure:"padding_factor"`
	LesionConfidence    float64 `mapstructure:"lesion_confidence"`
	BackgroundAreaRatio float64 `mapstructure:"background_area_ratio"`
	ErosionKernel       int     `mapstructure:"erosion_kernel"`
	OverlayOpacity      float64 `mapstructure:"overlay_opacity"`
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
	QueueTimeout        int     `mapstructure:"queue_timeout"`

	DetectionInputSize  int     `mapstructure:"detection_input_size"`
	DetectionConfidence float64 `mapstructure:"detection_confidence"`
}

// RemoverConfig 背景去除后端
type RemoverConfig struct {
	Backend    string        `mapstructure:"backend"` // http, grabcut
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Iterations int           `mapstructure:"iterations"`
	BorderSize int           `mapstructure:"border_size"`
}

type ModelsConfig struct {
	OnnxRuntimeLib string      `mapstructure:"onnxruntime_lib"`
	Segmentation   ModelConfig `mapstructure:"segmentation"`
	Detection      ModelConfig `mapstructure:"detection"`
}

// ModelConfig 单个推理模型的加载参数
type ModelConfig struct {
	Backend      string        `mapstructure:"backend"` // http, onnx, none
	URL          string        `mapstructure:"url"`
	HealthURL    string        `mapstructure:"health_url"` // 为空时取 URL 的根路径 /health
	Path         string        `mapstructure:"path"`
	InputSize    int           `mapstructure:"input_size"`
	Classes      []string      `mapstructure:"classes"`
	MaskCoeffs   int           `mapstructure:"mask_coeffs"`
	IOUThreshold float64       `mapstructure:"iou_threshold"`
	PoolSize     int           `mapstructure:"pool_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEAFSEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New(configPath string) *Config {
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := Load(configPath)
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

// Validate 检查经验参数是否在可用范围内
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.CropExpansion < 1.0 {
		return fmt.Errorf("pipeline.crop_expansion must be >= 1.0")
	}
	if p.ZoomFactor <= 0 || p.ZoomFactor > 1.0 {
		return fmt.Errorf("pipeline.zoom_factor must be in (0, 1]")
	}
	if p.PaddingFactor < 0 || p.PaddingFactor >= 0.5 {
		return fmt.Errorf("pipeline.padding_factor must be in [0, 0.5)")
	}
	if p.IntermediateSize <= 0 || p.TargetSize <= 0 || p.DetectionInputSize <= 0 {
		return fmt.Errorf("pipeline sizes must be positive")
	}
	if p.LesionConfidence < 0 || p.LesionConfidence > 1 || p.DetectionConfidence < 0 || p.DetectionConfidence > 1 {
		return fmt.Errorf("pipeline confidence thresholds must be in [0, 1]")
	}
	if p.BackgroundAreaRatio <= 1.0 {
		return fmt.Errorf("pipeline.background_area_ratio must be > 1.0")
	}
	if p.ErosionKernel < 1 {
		return fmt.Errorf("pipeline.erosion_kernel must be positive")
	}
	if p.OverlayOpacity < 0 || p.OverlayOpacity > 1 {
		return fmt.Errorf("pipeline.overlay_opacity must be in [0, 1]")
	}
	if p.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be positive")
	}
	switch c.Remover.Backend {
	case "http", "grabcut":
	default:
		return fmt.Errorf("unknown remover.backend %q", c.Remover.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("pipeline.crop_expansion", d.Pipeline.CropExpansion)
	v.SetDefault("pipeline.zoom_factor", d.Pipeline.ZoomFactor)
	v.SetDefault("pipeline.intermediate_size", d.Pipeline.IntermediateSize)
	v.SetDefault("pipeline.target_size", d.Pipeline.TargetSize)
	v.SetDefault("pipeline.add_padding", d.Pipeline.AddPadding)
	v.SetDefault("pipeline.padding_factor", d.Pipeline.PaddingFactor)
	v.SetDefault("pipeline.lesion_confidence", d.Pipeline.LesionConfidence)
	v.SetDefault("pipeline.background_area_ratio", d.Pipeline.BackgroundAreaRatio)
	v.SetDefault("pipeline.erosion_kernel", d.Pipeline.ErosionKernel)
	v.SetDefault("pipeline.overlay_opacity", d.Pipeline.OverlayOpacity)
	v.SetDefault("pipeline.max_concurrent", d.Pipeline.MaxConcurrent)
	v.SetDefault("pipeline.queue_timeout", d.Pipeline.QueueTimeout)
	v.SetDefault("pipeline.detection_input_size", d.Pipeline.DetectionInputSize)
	v.SetDefault("pipeline.detection_confidence", d.Pipeline.DetectionConfidence)

	v.SetDefault("remover.backend", d.Remover.Backend)
	v.SetDefault("remover.url", d.Remover.URL)
	v.SetDefault("remover.timeout", d.Remover.Timeout)
	v.SetDefault("remover.iterations", d.Remover.Iterations)
	v.SetDefault("remover.border_size", d.Remover.BorderSize)

	v.SetDefault("models.onnxruntime_lib", d.Models.OnnxRuntimeLib)
	for _, m := range []struct {
		key string
		cfg ModelConfig
	}{
		{"models.segmentation", d.Models.Segmentation},
		{"models.detection", d.Models.Detection},
	} {
		v.SetDefault(m.key+".backend", m.cfg.Backend)
		v.SetDefault(m.key+".url", m.cfg.URL)
		v.SetDefault(m.key+".health_url", m.cfg.HealthURL)
		v.SetDefault(m.key+".path", m.cfg.Path)
		v.SetDefault(m.key+".input_size", m.cfg.InputSize)
		v.SetDefault(m.key+".classes", m.cfg.Classes)
		v.SetDefault(m.key+".mask_coeffs", m.cfg.MaskCoeffs)
		v.SetDefault(m.key+".iou_threshold", m.cfg.IOUThreshold)
		v.SetDefault(m.key+".pool_size", m.cfg.PoolSize)
		v.SetDefault(m.key+".timeout", m.cfg.Timeout)
	}
}

// Default 返回参考部署使用的默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			Mode:            "debug",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp"},
		},
		Pipeline: PipelineConfig{
			CropExpansion:       1.50,
			ZoomFactor:          1.0,
			IntermediateSize:    1024,
			TargetSize:          640,
			AddPadding:          false,
			PaddingFactor:       0.15,
			LesionConfidence:    0.6,
			BackgroundAreaRatio: 3.0,
			ErosionKernel:       5,
			OverlayOpacity:      0.3,
			MaxConcurrent:       3,
			QueueTimeout:        30,
			DetectionInputSize:  256,
			DetectionConfidence: 0.3,
		},
		Remover: RemoverConfig{
			Backend:    "http",
			URL:        "http://localhost:7000/api/remove",
			Timeout:    60 * time.Second,
			Iterations: 5,
			BorderSize: 10,
		},
		Models: ModelsConfig{
			OnnxRuntimeLib: "./third_party/onnxruntime.so",
			Segmentation: ModelConfig{
				Backend:      "http",
				URL:          "http://localhost:9000/segment",
				Path:         "yolov8n-seg.onnx",
				InputSize:    640,
				Classes:      []string{"lesion"},
				MaskCoeffs:   32,
				IOUThreshold: 0.7,
				PoolSize:     2,
				Timeout:      60 * time.Second,
			},
			Detection: ModelConfig{
				Backend:      "http",
				URL:          "http://localhost:9000/detect",
				Path:         "modelo-deteccao.onnx",
				InputSize:    640,
				Classes:      []string{"cercosporiose", "mosaico", "mancha-bacteriana"},
				IOUThreshold: 0.7,
				PoolSize:     2,
				Timeout:      30 * time.Second,
			},
		},
	}
}
