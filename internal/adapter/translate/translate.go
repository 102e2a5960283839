package translate

import "context"

// Translator 翻译服务接口。失败时调用方降级为使用原文。
type Translator interface {
	// Translate 将 text 从源语言翻译到目标语言
	Translate(ctx context.Context, text string) (string, error)
}

// Noop 关闭翻译时的空实现，原样返回输入。
type Noop struct{}

func (Noop) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}
