package memory

import (
	"context"

	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// ShortTermLog 滚动短期日志。持久化当前会话的原始轮次，
// 供下次会话预填上下文，也是整理流程的改写对象。
type ShortTermLog interface {
	// Load 加载全部已持久化轮次
	Load(ctx context.Context) ([]provider.Message, error)

	// Append 追加轮次
	Append(ctx context.Context, msgs ...provider.Message) error

	// ReplaceAll 整体改写（窗口压缩、时间注记、整理轮次剔除后落盘）
	ReplaceAll(ctx context.Context, msgs []provider.Message) error

	// Clear 清空日志
	Clear(ctx context.Context) error
}
