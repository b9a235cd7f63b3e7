package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vaultadmin/pkg/config"
)

var (
	redisOnce   sync.Once
	redisClient *redis.Client
	redisClose  func() error
)

// InitRedis 初始化全局Redis连接
func InitRedis(cfg *config.RedisConfig) error {
	var err error
	redisOnce.Do(func() {
		redisClient, redisClose, err = OpenRedis(cfg)
	})
	return err
}

// OpenRedis 创建Redis客户端，memory 模式下启动进程内 miniredis
// 返回的 close 函数同时关闭客户端与内存实例
func OpenRedis(cfg *config.RedisConfig) (*redis.Client, func() error, error) {
	if cfg.Mode == "memory" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start memory redis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() error {
			err := client.Close()
			mr.Close()
			return err
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}
	return client, client.Close, nil
}

// GetRedis 获取Redis客户端
func GetRedis() *redis.Client {
	if redisClient == nil {
		panic("redis not initialized, call InitRedis first")
	}
	return redisClient
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if redisClose != nil {
		return redisClose()
	}
	return nil
}
