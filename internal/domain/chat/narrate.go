package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/Therqwq/ATRI-Chat/internal/adapter/speech"
	"github.com/Therqwq/ATRI-Chat/internal/adapter/translate"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// quotedDialogue 匹配中文引号包裹的台词
var quotedDialogue = regexp.MustCompile(`“([^”]*)”`)

// ErrNoNarration 回复中没有可旁白的文本
var ErrNoNarration = errors.New("no narration text")

// Narrator 旁白侧通道：台词提取 → 翻译 → 语音合成。
// 任一环节失败都只降级，不影响对话主流程。
type Narrator struct {
	translator translate.Translator
	synth      speech.Synthesizer
}

// NewNarrator 创建旁白器。synth 为 nil 时 Narrate 恒返回 ErrNoNarration。
func NewNarrator(translator translate.Translator, synth speech.Synthesizer) *Narrator {
	if translator == nil {
		translator = translate.Noop{}
	}
	return &Narrator{translator: translator, synth: synth}
}

// ExtractDialogue 从回复中提取引号内的台词，多段以空格连接；
// 没有引号时整段作为台词。省略号统一为全角。
func ExtractDialogue(reply string) string {
	matches := quotedDialogue.FindAllStringSubmatch(reply, -1)

	var text string
	if len(matches) == 0 {
		text = reply
	} else {
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			if m[1] != "" {
				parts = append(parts, m[1])
			}
		}
		text = strings.Join(parts, " ")
	}

	text = strings.ReplaceAll(text, "...", "……")
	return strings.TrimSpace(text)
}

// Narrate 合成一段回复的旁白音频。
// 翻译失败时退回原文继续合成；合成失败返回错误，调用方跳过旁白。
func (n *Narrator) Narrate(ctx context.Context, reply string) ([]byte, error) {
	if n.synth == nil {
		return nil, ErrNoNarration
	}

	text := ExtractDialogue(reply)
	if text == "" {
		return nil, ErrNoNarration
	}

	translated, err := n.translator.Translate(ctx, text)
	if err != nil {
		applog.Warn("[Narrate] ⚠️ Translation failed, falling back to original text", "error", err)
		translated = text
	}

	audio, err := n.synth.Synthesize(ctx, translated)
	if err != nil {
		return nil, err
	}
	return audio, nil
}
