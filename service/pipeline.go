package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/inference"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Pipeline 严重度计算流水线：标准化 -> 病斑掩码 ∥ 叶片轮廓 -> 严重度与叠加图
type Pipeline struct {
	normalizer *Normalizer
	isolator   *Isolator
	aggregator *LesionAggregator
	selector   *LeafSelector
	renderer   *SeverityRenderer
	segmenter  inference.SegmentationModel
	cache      Cache

	fingerprint  string
	semaphore    chan struct{}
	queueTimeout time.Duration
}

// NewPipeline cache 可以为 nil
func NewPipeline(cfg *config.PipelineConfig, seg inference.SegmentationModel, remover Remover, cache Cache) *Pipeline {
	return &Pipeline{
		normalizer:   NewNormalizer(cfg),
		isolator:     NewIsolator(remover),
		aggregator:   NewLesionAggregator(cfg.LesionConfidence),
		selector:     NewLeafSelector(cfg.ErosionKernel, cfg.BackgroundAreaRatio),
		renderer:     NewSeverityRenderer(cfg.OverlayOpacity),
		segmenter:    seg,
		cache:        cache,
		fingerprint:  utils.BytesMD5([]byte(fmt.Sprintf("%+v", *cfg)))[:8],
		semaphore:    make(chan struct{}, cfg.MaxConcurrent),
		queueTimeout: time.Duration(cfg.QueueTimeout) * time.Second,
	}
}

func (p *Pipeline) cacheKey(md5 string) string {
	return md5 + ":" + p.fingerprint
}

// Severity 处理上传的原始字节，带缓存与并发控制
func (p *Pipeline) Severity(ctx context.Context, raw []byte) (*model.SeverityResult, error) {
	requestID := utils.RequestIDFrom(ctx)
	log := utils.WithRequest("severity", requestID)
	md5 := utils.BytesMD5(raw)

	if cached := p.lookup(ctx, md5, log); cached != nil {
		log.Info("cache hit", zap.String("md5", md5))
		cached.RequestID = requestID
		return cached, nil
	}

	img, err := DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	// 并发控制
	queueCtx, cancel := context.WithTimeout(ctx, p.queueTimeout)
	defer cancel()

	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-queueCtx.Done():
		return nil, ErrQueueFull
	}

	startTime := time.Now()
	sev, err := p.Analyze(ctx, img)
	if err != nil {
		log.Warn("severity analysis failed", zap.String("md5", md5), zap.Error(err))
		return nil, err
	}

	result := &model.SeverityResult{
		MD5:            md5,
		RequestID:      requestID,
		Severity:       sev.Percent,
		LesionPixels:   sev.LesionPixels,
		LeafArea:       sev.LeafArea,
		Width:          img.Bounds().Dx(),
		Height:         img.Bounds().Dy(),
		PlotImageB64:   base64.StdEncoding.EncodeToString(sev.Overlay),
		Recommendation: Recommend(sev.Percent),
		Timestamp:      time.Now().Unix(),
	}

	log.Info("severity computed",
		zap.String("md5", md5),
		zap.Float64("severity", sev.Percent),
		zap.Int("lesion_pixels", sev.LesionPixels),
		zap.Float64("leaf_area", sev.LeafArea),
		zap.Duration("duration", time.Since(startTime)))

	if p.cache != nil {
		if err := p.cache.SetSeverity(ctx, p.cacheKey(md5), result); err != nil {
			log.Warn("failed to set cache", zap.Error(err))
		}
	}

	return result, nil
}

// Lookup 按图片 MD5 查询缓存结果；未命中或未启用缓存时返回 nil
func (p *Pipeline) Lookup(ctx context.Context, md5 string) (*model.SeverityResult, error) {
	if p.cache == nil {
		return nil, nil
	}
	return p.cache.GetSeverity(ctx, p.cacheKey(md5))
}

func (p *Pipeline) lookup(ctx context.Context, md5 string, log *zap.Logger) *model.SeverityResult {
	cached, err := p.Lookup(ctx, md5)
	if err != nil {
		log.Warn("failed to get cache", zap.Error(err))
		return nil
	}
	return cached
}

// Analyze 对已解码图像执行完整流水线，不经过缓存和队列
func (p *Pipeline) Analyze(ctx context.Context, img image.Image) (Severity, error) {
	canonical, err := p.normalizer.Normalize(ctx, img, p.isolator)
	if err != nil {
		return Severity{}, err
	}

	mat, err := gocv.ImageToMatRGB(canonical)
	if err != nil {
		return Severity{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	lesion, _, err := p.aggregator.Aggregate(ctx, canonical, p.segmenter)
	if err != nil {
		return Severity{}, err
	}
	defer lesion.Close()

	leaf, err := p.selector.Select(mat)
	if err != nil {
		return Severity{}, err
	}

	return p.renderer.Render(lesion, leaf, mat)
}
