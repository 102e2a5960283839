package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// Store 持久化记忆仓库。六个类别各占一个 JSON 文件，独立读写，
// 单个类别写入失败不影响其他类别。
type Store struct {
	mu      sync.RWMutex
	dir     string
	archive *Archive
}

// NewStore 创建记忆仓库，dir 为类别文件所在目录。
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{
		dir:     dir,
		archive: &Archive{},
	}, nil
}

func (s *Store) path(cat Category) string {
	return filepath.Join(s.dir, string(cat)+".json")
}

// Load 从磁盘加载全部类别。文件缺失视为空类别，单个文件损坏只告警不中断。
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Archive{}
	for _, cat := range AllCategories {
		data, err := os.ReadFile(s.path(cat))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", cat, err)
		}
		if err := unmarshalCategory(a, cat, data); err != nil {
			applog.Warn("[Memory/Store] ⚠️ Corrupt category file, treating as empty",
				"category", cat,
				"error", err,
			)
		}
	}
	s.archive = a

	applog.Info("[Memory/Store] Archive loaded",
		"dir", s.dir,
		"diary_entries", len(a.Diary),
		"promises", len(a.Promise),
		"preferences", len(a.Preference),
		"plans", len(a.Plan),
		"motivations", len(a.Motivation),
		"pivotal_memories", len(a.PivotalMemory),
	)
	return nil
}

// Archive 返回当前档案的副本，调用方可安全修改。
func (s *Store) Archive() *Archive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneArchive(s.archive)
}

// Replace 用新档案替换内存表示并全量落盘。
// 每个类别独立写入，首个失败立即返回，之前写成功的类别保持有效。
func (s *Store) Replace(a *Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archive = cloneArchive(a)
	for _, cat := range AllCategories {
		if err := s.saveCategoryLocked(cat); err != nil {
			return err
		}
	}
	return nil
}

// SaveCategory 单独写出一个类别。
func (s *Store) SaveCategory(cat Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCategoryLocked(cat)
}

func (s *Store) saveCategoryLocked(cat Category) error {
	data, err := marshalCategory(s.archive, cat)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cat, err)
	}
	if err := os.WriteFile(s.path(cat), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cat, err)
	}
	applog.Debug("[Memory/Store] Category saved", "category", cat, "bytes", len(data))
	return nil
}

func marshalCategory(a *Archive, cat Category) ([]byte, error) {
	switch cat {
	case CategoryDiary:
		return json.MarshalIndent(emptySlice(a.Diary), "", "  ")
	case CategoryPromise:
		return json.MarshalIndent(emptySlice(a.Promise), "", "  ")
	case CategoryPreference:
		return json.MarshalIndent(emptySlice(a.Preference), "", "  ")
	case CategoryPlan:
		return json.MarshalIndent(emptySlice(a.Plan), "", "  ")
	case CategoryMotivation:
		return json.MarshalIndent(emptySlice(a.Motivation), "", "  ")
	case CategoryPivotalMemory:
		return json.MarshalIndent(emptySlice(a.PivotalMemory), "", "  ")
	}
	return nil, fmt.Errorf("unknown category: %s", cat)
}

func unmarshalCategory(a *Archive, cat Category, data []byte) error {
	switch cat {
	case CategoryDiary:
		return json.Unmarshal(data, &a.Diary)
	case CategoryPromise:
		return json.Unmarshal(data, &a.Promise)
	case CategoryPreference:
		return json.Unmarshal(data, &a.Preference)
	case CategoryPlan:
		return json.Unmarshal(data, &a.Plan)
	case CategoryMotivation:
		return json.Unmarshal(data, &a.Motivation)
	case CategoryPivotalMemory:
		return json.Unmarshal(data, &a.PivotalMemory)
	}
	return fmt.Errorf("unknown category: %s", cat)
}

// emptySlice nil 切片序列化为 [] 而不是 null，保证存取往返字节一致。
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func cloneArchive(a *Archive) *Archive {
	clone := &Archive{
		Diary:         make([]DiaryEntry, len(a.Diary)),
		Promise:       append([]string(nil), a.Promise...),
		Preference:    append([]string(nil), a.Preference...),
		Plan:          append([]PlanEntry(nil), a.Plan...),
		Motivation:    append([]string(nil), a.Motivation...),
		PivotalMemory: append([]string(nil), a.PivotalMemory...),
	}
	for i, e := range a.Diary {
		e.Keywords = append([]string(nil), e.Keywords...)
		clone.Diary[i] = e
	}
	return clone
}
