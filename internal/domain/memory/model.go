package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category 记忆类别。每个类别独立持久化为一个 JSON 文件。
type Category string

const (
	CategoryDiary         Category = "diary"
	CategoryPromise       Category = "promise"
	CategoryPreference    Category = "preference"
	CategoryPlan          Category = "plan"
	CategoryMotivation    Category = "motivation"
	CategoryPivotalMemory Category = "pivotal_memory"
)

// AllCategories 全部类别，持久化时按此顺序写出。
var AllCategories = []Category{
	CategoryDiary,
	CategoryPromise,
	CategoryPreference,
	CategoryPlan,
	CategoryMotivation,
	CategoryPivotalMemory,
}

// DiaryEntry 日记条目。Date 为日历日键，Keywords 供相关性检索使用。
type DiaryEntry struct {
	Date     string   `json:"date"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

// PlanEntry 计划条目
type PlanEntry struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

// Archive 六类记忆的内存表示。
// 日记按日期键增量合并，其余类别每次整理后整体替换。
type Archive struct {
	Diary         []DiaryEntry `json:"diary"`
	Promise       []string     `json:"promise"`
	Preference    []string     `json:"preference"`
	Plan          []PlanEntry  `json:"plan"`
	Motivation    []string     `json:"motivation"`
	PivotalMemory []string     `json:"pivotal_memory"`
}

// IsEmpty 六类记忆是否全部为空
func (a *Archive) IsEmpty() bool {
	return len(a.Diary) == 0 &&
		len(a.Promise) == 0 &&
		len(a.Preference) == 0 &&
		len(a.Plan) == 0 &&
		len(a.Motivation) == 0 &&
		len(a.PivotalMemory) == 0
}

// ParseArchive 解析整理/合并响应的 JSON，六个字段均可缺省。
// 非法 JSON 返回错误，由调用方中止整理流程。
func ParseArchive(data []byte) (*Archive, error) {
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse memory archive: %w", err)
	}
	return &a, nil
}

// 日记日期的两种历史格式：当前格式带年份，旧版只有月日。
const (
	dateLayout       = "2006年01月02日"
	legacyDateLayout = "01月02日"
)

// ParseDiaryDate 解析日记日期：先尝试当前格式，再尝试旧版格式。
// 两者都失败时 ok 为 false，调用方将条目视为不可排序。
func ParseDiaryDate(s string) (time.Time, bool) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(legacyDateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatDiaryDate 用当前格式渲染日期
func FormatDiaryDate(t time.Time) string {
	return t.Format(dateLayout)
}
