package memory

import (
	"math/rand"
	"strings"
	"time"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// selectionCap 单轮注入提示词的相关记忆条数上限
const selectionCap = 5

// Match 一次关键词命中：命中的日记条目及触发它的关键词。
type Match struct {
	Entry   DiaryEntry
	Keyword string
}

// Retriever 相关性检索器。对归档日记的关键词做大小写不敏感的子串匹配，
// 再按命中关键词数量分层选取，硬上限 5 条。
type Retriever struct {
	rng *rand.Rand
}

// NewRetriever 创建检索器
func NewRetriever() *Retriever {
	return &Retriever{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewRetrieverWithSeed 创建可复现的检索器（测试用）
func NewRetrieverWithSeed(seed int64) *Retriever {
	return &Retriever{rng: rand.New(rand.NewSource(seed))}
}

// RetrievalCorpus 构造检索语料：归档日记中排除常驻近期窗口内的条目，
// 避免与核心记忆段重复注入。
func RetrievalCorpus(a *Archive, recentDays int, now time.Time) []DiaryEntry {
	recentDates := make(map[string]struct{})
	for _, e := range RecentDiary(a.Diary, recentDays, now) {
		recentDates[e.Date] = struct{}{}
	}

	corpus := make([]DiaryEntry, 0, len(a.Diary))
	for _, e := range a.Diary {
		if _, ok := recentDates[e.Date]; ok {
			continue
		}
		corpus = append(corpus, e)
	}
	return corpus
}

// Match 在 corpus 中查找关键词命中。text 为上一条助手回复与本轮用户输入的拼接。
// 同一条目可因多个关键词多次命中；corpus 需已排除常驻近期日记窗口。
func (r *Retriever) Match(text string, corpus []DiaryEntry) []Match {
	lower := strings.ToLower(text)

	var matches []Match
	for _, entry := range corpus {
		for _, kw := range entry.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				matches = append(matches, Match{Entry: entry, Keyword: kw})
			}
		}
	}
	return matches
}

// Select 按命中关键词数量分层选取：
//
//	k=1  该关键词前 3 条 + 剩余中随机至多 2 条
//	k=2  每个关键词首条 + 合并剩余中随机至多 3 条
//	k=3  每个关键词首条 + 随机至多 2 条
//	k=4  每个关键词首条 + 随机至多 1 条
//	k=5  每个关键词首条，恰好 5 条
//	k>5  取每个关键词首条组成候选池，从中随机抽 5 条
//
// 保证每个活跃关键词至少一条、总量不超过 5，同时避免单一关键词垄断。
// 结果按日记日期去重。
func (r *Retriever) Select(matches []Match) []DiaryEntry {
	if len(matches) == 0 {
		return nil
	}

	// 按关键词分组，保持首次出现顺序
	var keywords []string
	groups := make(map[string][]DiaryEntry)
	for _, m := range matches {
		if _, seen := groups[m.Keyword]; !seen {
			keywords = append(keywords, m.Keyword)
		}
		groups[m.Keyword] = append(groups[m.Keyword], m.Entry)
	}
	k := len(keywords)

	var picked []DiaryEntry
	var remainder []DiaryEntry

	switch {
	case k == 1:
		group := groups[keywords[0]]
		head := 3
		if head > len(group) {
			head = len(group)
		}
		picked = append(picked, group[:head]...)
		remainder = append(remainder, group[head:]...)
		picked = append(picked, r.draw(remainder, 2)...)

	case k <= 5:
		for _, kw := range keywords {
			group := groups[kw]
			picked = append(picked, group[0])
			remainder = append(remainder, group[1:]...)
		}
		picked = append(picked, r.draw(remainder, selectionCap-k)...)

	default:
		heads := make([]DiaryEntry, 0, k)
		for _, kw := range keywords {
			heads = append(heads, groups[kw][0])
		}
		picked = r.draw(heads, selectionCap)
	}

	selected := dedupeByDate(picked)
	applog.Debug("[Retriever] Selection computed",
		"matches", len(matches),
		"distinct_keywords", k,
		"selected", len(selected),
	)
	return selected
}

// draw 从 pool 中不放回地均匀抽取至多 n 条
func (r *Retriever) draw(pool []DiaryEntry, n int) []DiaryEntry {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n >= len(pool) {
		n = len(pool)
	}
	shuffled := append([]DiaryEntry(nil), pool...)
	r.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// dedupeByDate 按日期去重，保持顺序
func dedupeByDate(entries []DiaryEntry) []DiaryEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]DiaryEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Date] {
			continue
		}
		seen[e.Date] = true
		out = append(out, e)
	}
	return out
}
