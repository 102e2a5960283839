package memory

import (
	"sort"
	"time"
)

// MergeDiaryByDate 以日期为键合并日记：incoming 覆盖同日期的 existing 条目，
// 合并后按时间重新排序。无法解析日期的条目不参与排序，按原有相对顺序附在末尾。
func MergeDiaryByDate(existing, incoming []DiaryEntry) []DiaryEntry {
	byDate := make(map[string]DiaryEntry, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))

	for _, e := range existing {
		if _, seen := byDate[e.Date]; !seen {
			order = append(order, e.Date)
		}
		byDate[e.Date] = e
	}
	for _, e := range incoming {
		if _, seen := byDate[e.Date]; !seen {
			order = append(order, e.Date)
		}
		byDate[e.Date] = e // 同日期冲突时新条目获胜
	}

	merged := make([]DiaryEntry, 0, len(order))
	for _, date := range order {
		merged = append(merged, byDate[date])
	}

	// 可解析的按时间排序，不可解析的保持相对顺序排在末尾
	sort.SliceStable(merged, func(i, j int) bool {
		ti, iOK := ParseDiaryDate(merged[i].Date)
		tj, jOK := ParseDiaryDate(merged[j].Date)
		switch {
		case iOK && jOK:
			return ti.Before(tj)
		case iOK:
			return true
		default:
			return false
		}
	})

	return merged
}

// RecentDiary 返回最近 days 个日历日内的日记条目（含今天），顺序保持不变。
// 日期不可解析的条目视为非近期。
func RecentDiary(entries []DiaryEntry, days int, now time.Time) []DiaryEntry {
	if days <= 0 {
		return nil
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := day.AddDate(0, 0, -(days - 1))

	var recent []DiaryEntry
	for _, e := range entries {
		t, ok := ParseDiaryDate(e.Date)
		if !ok {
			continue
		}
		if !t.Before(cutoff) && !t.After(day) {
			recent = append(recent, e)
		}
	}
	return recent
}

// ApplyConsolidation 按类别语义将整理结果套用到现有档案上：
// 日记增量合并，其余类别整体替换。返回新档案，不修改入参。
func ApplyConsolidation(existing, incoming *Archive) *Archive {
	return &Archive{
		Diary:         MergeDiaryByDate(existing.Diary, incoming.Diary),
		Promise:       incoming.Promise,
		Preference:    incoming.Preference,
		Plan:          incoming.Plan,
		Motivation:    incoming.Motivation,
		PivotalMemory: incoming.PivotalMemory,
	}
}
