package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// FileSTM JSON 文件实现的滚动短期日志（默认后端）。
type FileSTM struct {
	mu   sync.Mutex
	path string
}

// NewFileSTM 创建文件短期日志，path 为 JSON 文件路径。
func NewFileSTM(path string) (*FileSTM, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stm dir: %w", err)
	}
	return &FileSTM{path: path}, nil
}

func (s *FileSTM) Load(_ context.Context) ([]provider.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileSTM) loadLocked() ([]provider.Message, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stm file: %w", err)
	}

	var msgs []provider.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		applog.Warn("[STM/File] ⚠️ Corrupt log file, starting empty", "path", s.path, "error", err)
		return nil, nil
	}
	return msgs, nil
}

func (s *FileSTM) Append(ctx context.Context, msgs ...provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.writeLocked(append(existing, msgs...))
}

func (s *FileSTM) ReplaceAll(_ context.Context, msgs []provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(msgs)
}

func (s *FileSTM) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stm file: %w", err)
	}
	return nil
}

func (s *FileSTM) writeLocked(msgs []provider.Message) error {
	if msgs == nil {
		msgs = []provider.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stm log: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write stm file: %w", err)
	}
	return nil
}
