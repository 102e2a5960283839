package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// Dumper 整理请求/响应对的调试转储。转储失败只告警，不影响整理流程。
type Dumper struct {
	dir string
}

// NewDumper 创建转储器，dir 为空时禁用转储。
func NewDumper(dir string) *Dumper {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			applog.Warn("[Memory/Dump] ⚠️ Failed to create dump dir, dumps disabled",
				"dir", dir,
				"error", err,
			)
			dir = ""
		}
	}
	return &Dumper{dir: dir}
}

type dumpRecord struct {
	Stage     string             `json:"stage"` // summarize | merge
	Timestamp string             `json:"timestamp"`
	Request   []provider.Message `json:"request"`
	Response  string             `json:"response"`
	Reasoning string             `json:"reasoning,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Dump 落盘一次请求/响应对，文件名为 <stage>_<uuid>.json。
func (d *Dumper) Dump(stage string, req []provider.Message, resp *provider.CompletionResponse, callErr error) {
	if d == nil || d.dir == "" {
		return
	}

	rec := dumpRecord{
		Stage:     stage,
		Timestamp: time.Now().Format(time.RFC3339),
		Request:   req,
	}
	if resp != nil {
		rec.Response = resp.Content
		rec.Reasoning = resp.ReasoningContent
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		applog.Warn("[Memory/Dump] ⚠️ Failed to marshal dump", "stage", stage, "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s.json", stage, uuid.NewString())
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		applog.Warn("[Memory/Dump] ⚠️ Failed to write dump", "file", name, "error", err)
	}
}
