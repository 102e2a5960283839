package memory

import (
	"strings"
	"time"
)

// RenderCoreMemory 渲染常驻记忆段：近期日记窗口 + 非日记类别。
// 每次构建上下文时整体重算，不做增量拼接。
func RenderCoreMemory(a *Archive, recentDays int, now time.Time) string {
	var sb strings.Builder

	recent := RecentDiary(a.Diary, recentDays, now)
	if len(recent) > 0 {
		sb.WriteString("## 最近日记\n")
		for _, e := range recent {
			sb.WriteString("- ")
			sb.WriteString(e.Date)
			sb.WriteString("：")
			sb.WriteString(e.Content)
			sb.WriteString("\n")
		}
	}

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString("## ")
		sb.WriteString(title)
		sb.WriteString("\n")
		for _, item := range items {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
	}

	writeList("约定", a.Promise)
	writeList("喜好", a.Preference)

	if len(a.Plan) > 0 {
		sb.WriteString("## 计划\n")
		for _, p := range a.Plan {
			sb.WriteString("- ")
			sb.WriteString(p.Date)
			sb.WriteString("：")
			sb.WriteString(p.Content)
			sb.WriteString("\n")
		}
	}

	writeList("动机", a.Motivation)
	writeList("重要记忆", a.PivotalMemory)

	return sb.String()
}

// RenderRelevantMemories 渲染本轮检索出的相关记忆段。
// 选取结果为空时返回空串，上一轮的结果不会残留。
func RenderRelevantMemories(entries []DiaryEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## 相关记忆\n")
	for _, e := range entries {
		sb.WriteString("- ")
		sb.WriteString(e.Date)
		sb.WriteString("：")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderDiaryExcerpt 渲染整理请求用的近期日记摘录（纯文本）。
func RenderDiaryExcerpt(a *Archive, recentDays int, now time.Time) string {
	recent := RecentDiary(a.Diary, recentDays, now)
	if len(recent) == 0 {
		return "（暂无日记）"
	}

	var sb strings.Builder
	for _, e := range recent {
		sb.WriteString(e.Date)
		sb.WriteString("：")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
