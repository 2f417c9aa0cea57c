package cache

import (
	"context"
	"time"

	"echowall/config"
	"echowall/logger"

	"github.com/redis/go-redis/v9"
)

// RedisClient 全局Redis客户端，未配置时为nil，所有统计操作退化为空操作
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接。
// REDIS_ADDR未配置或连接失败都不是致命错误——统计是尽力而为的。
func ConnectRedis(cfg *config.Config) {
	if cfg.RedisAddr == "" {
		logger.Info("未配置Redis，统计功能已禁用")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis连接失败，统计功能已禁用",
			logger.String("addr", cfg.RedisAddr),
			logger.ErrorField(err))
		return
	}

	RedisClient = client
	logger.Info("Redis连接成功", logger.String("addr", cfg.RedisAddr))
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
