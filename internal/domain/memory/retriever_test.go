package memory

import (
	"testing"
	"time"
)

func corpusOf(n int, keyword string) []DiaryEntry {
	entries := make([]DiaryEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, DiaryEntry{
			Date:     FormatDiaryDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)),
			Content:  "entry",
			Keywords: []string{keyword},
		})
	}
	return entries
}

func TestMatchCaseInsensitive(t *testing.T) {
	corpus := []DiaryEntry{
		{Date: "2024年05月01日", Keywords: []string{"Robot"}},
		{Date: "2024年05月02日", Keywords: []string{"海边"}},
		{Date: "2024年05月03日", Keywords: []string{"miss"}},
	}

	r := NewRetrieverWithSeed(1)
	matches := r.Match("昨天去了海边，看到一个 ROBOT", corpus)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}
}

func TestMatchMultipleKeywordsPerEntry(t *testing.T) {
	corpus := []DiaryEntry{
		{Date: "2024年05月01日", Keywords: []string{"螃蟹", "海边"}},
	}

	r := NewRetrieverWithSeed(1)
	matches := r.Match("在海边抓螃蟹", corpus)
	if len(matches) != 2 {
		t.Fatalf("expected one match per keyword, got %d", len(matches))
	}
}

func TestSelectSingleKeyword(t *testing.T) {
	r := NewRetrieverWithSeed(42)

	tests := []struct {
		name    string
		entries int
		want    int
	}{
		{name: "fewer than head", entries: 2, want: 2},
		{name: "exactly head", entries: 3, want: 3},
		{name: "head plus one random", entries: 4, want: 4},
		{name: "capped at five", entries: 10, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := r.Match("猫", corpusOf(tt.entries, "猫"))
			selected := r.Select(matches)
			if len(selected) != tt.want {
				t.Fatalf("expected %d selected, got %d", tt.want, len(selected))
			}
			// 前 3 条确定性保留
			head := 3
			if head > tt.entries {
				head = tt.entries
			}
			corpus := corpusOf(tt.entries, "猫")
			for i := 0; i < head; i++ {
				if selected[i].Date != corpus[i].Date {
					t.Errorf("head position %d not preserved: %+v", i, selected)
				}
			}
		})
	}
}

func TestSelectCoversEveryKeyword(t *testing.T) {
	r := NewRetrieverWithSeed(7)

	var matches []Match
	keywords := []string{"a", "b", "c", "d"}
	day := 0
	for _, kw := range keywords {
		for i := 0; i < 4; i++ {
			day++
			matches = append(matches, Match{
				Entry: DiaryEntry{
					Date:     FormatDiaryDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)),
					Keywords: []string{kw},
				},
				Keyword: kw,
			})
		}
	}

	selected := r.Select(matches)
	if len(selected) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(selected))
	}

	// 每个关键词的首条必然入选
	dates := make(map[string]bool)
	for _, e := range selected {
		dates[e.Date] = true
	}
	for i := range keywords {
		firstDate := FormatDiaryDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*4+1))
		if !dates[firstDate] {
			t.Errorf("first entry of keyword %s missing from selection", keywords[i])
		}
	}
}

func TestSelectManyKeywordsCapped(t *testing.T) {
	r := NewRetrieverWithSeed(3)

	var matches []Match
	for i := 0; i < 8; i++ {
		kw := string(rune('a' + i))
		matches = append(matches, Match{
			Entry: DiaryEntry{
				Date:     FormatDiaryDate(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)),
				Keywords: []string{kw},
			},
			Keyword: kw,
		})
	}

	selected := r.Select(matches)
	if len(selected) != 5 {
		t.Fatalf("expected 5 from head pool, got %d", len(selected))
	}
}

func TestSelectDedupesByDate(t *testing.T) {
	r := NewRetrieverWithSeed(5)

	shared := DiaryEntry{Date: "2024年05月01日", Keywords: []string{"a", "b"}}
	matches := []Match{
		{Entry: shared, Keyword: "a"},
		{Entry: shared, Keyword: "b"},
	}

	selected := r.Select(matches)
	if len(selected) != 1 {
		t.Fatalf("expected date-deduped single entry, got %d", len(selected))
	}
}

func TestSelectEmpty(t *testing.T) {
	r := NewRetrieverWithSeed(1)
	if got := r.Select(nil); got != nil {
		t.Fatalf("expected nil for no matches, got %+v", got)
	}
}

func TestRetrievalCorpusExcludesRecentWindow(t *testing.T) {
	now := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	a := &Archive{Diary: []DiaryEntry{
		{Date: "2024年05月01日", Content: "old"},
		{Date: "2024年05月02日", Content: "recent"},
		{Date: "2024年05月03日", Content: "today"},
	}}

	corpus := RetrievalCorpus(a, 2, now)
	if len(corpus) != 1 || corpus[0].Date != "2024年05月01日" {
		t.Fatalf("expected only the old entry in corpus, got %+v", corpus)
	}
}
