package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// ErrSTMVersionConflict 短期日志乐观锁版本冲突
var ErrSTMVersionConflict = errors.New("stm version conflict")

// RedisSTM Redis Hash 实现的滚动短期日志（可选后端）。
// 单会话引擎本身是单写者，CAS 仅防御多进程误用同一 key。
type RedisSTM struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisSTMConfig Redis 短期日志配置
type RedisSTMConfig struct {
	Client *redis.Client
	Key    string        // 默认 "atri:stm"
	TTL    time.Duration // 默认 7 天
}

// NewRedisSTM 创建 Redis 短期日志
func NewRedisSTM(cfg RedisSTMConfig) *RedisSTM {
	if cfg.Key == "" {
		cfg.Key = "atri:stm"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &RedisSTM{
		client: cfg.Client,
		key:    cfg.Key,
		ttl:    cfg.TTL,
	}
}

func (s *RedisSTM) Load(ctx context.Context) ([]provider.Message, error) {
	msgs, _, err := s.loadState(ctx)
	return msgs, err
}

func (s *RedisSTM) loadState(ctx context.Context) ([]provider.Message, int, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis HGETALL: %w", err)
	}
	if len(vals) == 0 {
		return nil, 0, nil
	}

	var msgs []provider.Message
	if raw, ok := vals["messages"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
			applog.Warn("[STM/Redis] ⚠️ Failed to parse messages, starting empty", "error", err)
			msgs = nil
		}
	}

	version := 0
	if raw, ok := vals["version"]; ok {
		version, _ = strconv.Atoi(raw)
	}
	return msgs, version, nil
}

func (s *RedisSTM) Append(ctx context.Context, msgs ...provider.Message) error {
	const maxRetry = 5
	for attempt := 1; attempt <= maxRetry; attempt++ {
		existing, version, err := s.loadState(ctx)
		if err != nil {
			return err
		}

		saved, err := s.saveIfVersion(ctx, append(existing, msgs...), version)
		if err != nil {
			return err
		}
		if saved {
			return nil
		}

		applog.Warn("[STM/Redis] Append version conflict, retrying",
			"attempt", attempt,
			"max_retry", maxRetry,
		)
	}
	return fmt.Errorf("append failed after retries: %w", ErrSTMVersionConflict)
}

func (s *RedisSTM) ReplaceAll(ctx context.Context, msgs []provider.Message) error {
	_, version, err := s.loadState(ctx)
	if err != nil {
		return err
	}
	saved, err := s.saveIfVersion(ctx, msgs, version)
	if err != nil {
		return err
	}
	if !saved {
		return ErrSTMVersionConflict
	}
	return nil
}

func (s *RedisSTM) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// saveIfVersion 仅在当前版本等于 expectedVersion 时保存（CAS）
func (s *RedisSTM) saveIfVersion(ctx context.Context, msgs []provider.Message, expectedVersion int) (bool, error) {
	if msgs == nil {
		msgs = []provider.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return false, fmt.Errorf("marshal stm messages: %w", err)
	}

	fields := map[string]interface{}{
		"messages": string(data),
		"version":  strconv.Itoa(expectedVersion + 1),
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		currentVersion, err := tx.HGet(ctx, s.key, "version").Int()
		if err == redis.Nil {
			currentVersion = 0
		} else if err != nil {
			return err
		}

		if currentVersion != expectedVersion {
			return ErrSTMVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, fields)
			pipe.Expire(ctx, s.key, s.ttl)
			return nil
		})
		return err
	}, s.key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSTMVersionConflict), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis cas save: %w", err)
	}
}
