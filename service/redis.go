package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/config"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"
	"github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache 严重度结果缓存；未命中时返回 (nil, nil)
type Cache interface {
	GetSeverity(ctx context.Context, key string) (*model.SeverityResult, error)
	SetSeverity(ctx context.Context, key string, result *model.SeverityResult) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetSeverity 从缓存获取严重度结果
func (s *RedisService) GetSeverity(ctx context.Context, key string) (*model.SeverityResult, error) {
	data, err := s.client.Get(ctx, "severity:"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var result model.SeverityResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal severity result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetSeverity 写入严重度结果
func (s *RedisService) SetSeverity(ctx context.Context, key string, result *model.SeverityResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, "severity:"+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
