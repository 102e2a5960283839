// Package chat 对话域：有界上下文窗口、回合聚合与旁白侧通道。
package chat

import (
	"strings"

	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// Trim 压缩对话轮次：只要长度超过 maxLen-1 就成对移除最旧的两条，
// 不足两条时停止。maxLen 含预留的 system 槽位，system 轮次不经过这里。
// 返回的是原切片的后缀视图，调用方应把自身切片替换为返回值。
func Trim(dialogue []provider.Message, maxLen int) []provider.Message {
	for len(dialogue) > maxLen-1 && len(dialogue) >= 2 {
		dialogue = dialogue[2:]
	}
	return dialogue
}

// Build 组装一次请求的完整轮次序列：[system] + 对话后缀。
func Build(systemText string, dialogue []provider.Message) []provider.Message {
	msgs := make([]provider.Message, 0, len(dialogue)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: systemText})
	msgs = append(msgs, dialogue...)
	return msgs
}

// BuildSystemText 每次调用整体重算 system 文本：
// 人格设定 + 常驻核心记忆 + 本轮相关记忆。相关记忆为空时不留空段。
func BuildSystemText(persona, coreMemory, relevantMemories string) string {
	parts := make([]string, 0, 3)
	if persona != "" {
		parts = append(parts, persona)
	}
	if coreMemory != "" {
		parts = append(parts, coreMemory)
	}
	if relevantMemories != "" {
		parts = append(parts, relevantMemories)
	}
	return strings.Join(parts, "\n\n")
}
