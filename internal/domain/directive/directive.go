// Package directive 集中管理对话文本中的控制标记。
// 所有子串形式的标记识别只发生在这里，其他包不做裸子串检查。
package directive

import (
	"strings"
	"time"
)

// Directive 识别出的控制指令
type Directive int

const (
	// None 普通文本
	None Directive = iota
	// AssistantExit 助手输出中的保留关闭标记
	AssistantExit
	// UserExit 用户显式退出命令，等价于合成一次关闭信号
	UserExit
)

const (
	// exitSentinel 助手输出的保留关闭标记
	exitSentinel = "<×>"

	// timeStampPrefix 整理前写入倒数第二条轮次的时间注记前缀
	timeStampPrefix = "<当前时间："

	// summaryMarker 整理请求指令中携带的标记，用于重启时剔除整理轮次
	summaryMarker = "<记忆整理>"

	timeStampLayout = "2006年01月02日 15:04"
)

// ClassifyAssistant 识别助手回复中的控制指令
func ClassifyAssistant(text string) Directive {
	if strings.Contains(text, exitSentinel) {
		return AssistantExit
	}
	return None
}

// ClassifyUser 识别用户输入中的控制指令
func ClassifyUser(text string) Directive {
	switch strings.TrimSpace(text) {
	case "/exit", "退出":
		return UserExit
	}
	return None
}

// StripAssistantExit 去除展示文本中的关闭标记
func StripAssistantExit(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, exitSentinel, ""))
}

// StampTime 为轮次文本追加时间注记。已有注记时原样返回（幂等）。
func StampTime(text string, now time.Time) string {
	if IsTimeStamped(text) {
		return text
	}
	return text + "\n" + timeStampPrefix + now.Format(timeStampLayout) + ">"
}

// IsTimeStamped 轮次文本是否已带时间注记
func IsTimeStamped(text string) bool {
	return strings.Contains(text, timeStampPrefix)
}

// MarkSummaryInstruction 为整理指令文本附加识别标记
func MarkSummaryInstruction(text string) string {
	return summaryMarker + text
}

// IsSummaryTurn 轮次文本是否属于整理请求对（重启剔除用）
func IsSummaryTurn(text string) bool {
	return strings.Contains(text, summaryMarker)
}
