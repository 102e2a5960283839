// Package redisdb Redis 连接装配。短期滚动日志的可选后端。
package redisdb

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Therqwq/ATRI-Chat/internal/domain/memory"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// NewClient 按 REDIS_URL 建立连接并探活
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	applog.Info("[Redis] ✅ Connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// STM aliases the Redis-backed short-term rolling log.
type STM = memory.RedisSTM

// NewSTM 创建 Redis 短期日志后端
func NewSTM(client *goredis.Client) *STM {
	return memory.NewRedisSTM(memory.RedisSTMConfig{Client: client})
}
