package speech

import "context"

// Synthesizer 语音合成接口。失败时调用方降级为跳过旁白。
type Synthesizer interface {
	// Synthesize 将文本合成为音频字节流（wav/mp3，由实现决定）
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
