package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Therqwq/ATRI-Chat/internal/domain/directive"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// Stage 整理流程所处阶段
type Stage int

const (
	StageActive Stage = iota
	StageExitSignaled
	StageSummarizing
	StageMerging
	StagePersisted
	StageSessionClosed
)

func (s Stage) String() string {
	switch s {
	case StageActive:
		return "active"
	case StageExitSignaled:
		return "exit_signaled"
	case StageSummarizing:
		return "summarizing"
	case StageMerging:
		return "merging"
	case StagePersisted:
		return "persisted"
	case StageSessionClosed:
		return "session_closed"
	default:
		return "unknown"
	}
}

// Consolidator 两段式整理流水线：先请求结构化摘要，再请求递归合并，
// 最后按类别语义落盘并剔除日志中的整理轮次。
// 任一外部调用或解析失败都在当前阶段中止：记录日志、保持记忆仓库
// 原状、允许会话继续关闭（尽力而为，非事务退出）。
type Consolidator struct {
	store        *Store
	log          ShortTermLog
	dumper       *Dumper
	providerName string
	model        string
	persona      string

	maxSummaryTurns int
	recentDays      int
	now             func() time.Time
}

// ConsolidatorConfig 整理流水线配置
type ConsolidatorConfig struct {
	Store           *Store
	Log             ShortTermLog
	Dumper          *Dumper
	ProviderName    string
	Model           string
	Persona         string
	MaxSummaryTurns int
	RecentDiaryDays int
	Now             func() time.Time // 测试注入，缺省 time.Now
}

// NewConsolidator 创建整理流水线
func NewConsolidator(cfg ConsolidatorConfig) *Consolidator {
	if cfg.MaxSummaryTurns <= 0 {
		cfg.MaxSummaryTurns = 40
	}
	if cfg.RecentDiaryDays <= 0 {
		cfg.RecentDiaryDays = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Consolidator{
		store:           cfg.Store,
		log:             cfg.Log,
		dumper:          cfg.Dumper,
		providerName:    cfg.ProviderName,
		model:           cfg.Model,
		persona:         cfg.Persona,
		maxSummaryTurns: cfg.MaxSummaryTurns,
		recentDays:      cfg.RecentDiaryDays,
		now:             cfg.Now,
	}
}

// Run 执行整理：ExitSignaled → Summarizing → Merging → Persisted → SessionClosed。
// longBuffer 为会话累积的长缓冲轮次（独立于上下文窗口的更大界）。
// 返回终止时所处阶段；非 SessionClosed 即某阶段失败。
func (c *Consolidator) Run(ctx context.Context, longBuffer []provider.Message) (Stage, error) {
	stage := StageExitSignaled
	applog.Info("[Consolidate] 🔄 Pipeline started",
		"stage", stage.String(),
		"long_buffer_turns", len(longBuffer),
	)

	// 为倒数第二条轮次补时间注记（幂等）
	if err := c.stampTime(ctx); err != nil {
		applog.Warn("[Consolidate] ⚠️ Failed to stamp time annotation", "error", err)
		// 注记失败不致命，继续整理
	}

	stage = StageSummarizing
	summary, err := c.summarize(ctx, longBuffer)
	if err != nil {
		applog.Error("[Consolidate] ❌ Summarize stage failed, memory left untouched",
			"stage", stage.String(),
			"error", err,
		)
		return stage, err
	}

	existing := c.store.Archive()
	incoming := summary

	if !existing.IsEmpty() {
		stage = StageMerging
		incoming, err = c.merge(ctx, existing, summary)
		if err != nil {
			applog.Error("[Consolidate] ❌ Merge stage failed, memory left untouched",
				"stage", stage.String(),
				"error", err,
			)
			return stage, err
		}
	} else {
		applog.Info("[Consolidate] Store is empty, skipping merge stage")
	}

	stage = StagePersisted
	merged := ApplyConsolidation(existing, incoming)
	if err := c.store.Replace(merged); err != nil {
		applog.Error("[Consolidate] ❌ Persist stage failed",
			"stage", stage.String(),
			"error", err,
		)
		return stage, err
	}
	applog.Info("[Consolidate] ✅ Archive persisted",
		"diary_entries", len(merged.Diary),
		"promises", len(merged.Promise),
		"preferences", len(merged.Preference),
		"plans", len(merged.Plan),
		"motivations", len(merged.Motivation),
		"pivotal_memories", len(merged.PivotalMemory),
	)

	// 剔除日志尾部的整理轮次，避免重启后把元对话喂回上下文
	if err := c.pruneConsolidationTurns(ctx); err != nil {
		applog.Warn("[Consolidate] ⚠️ Failed to prune consolidation turns", "error", err)
	}

	stage = StageSessionClosed
	applog.Info("[Consolidate] ✅ Pipeline completed", "stage", stage.String())
	return stage, nil
}

// stampTime 为日志倒数第二条轮次追加当前时间注记。
// 已有注记或轮次不足两条时不做任何事。
func (c *Consolidator) stampTime(ctx context.Context) error {
	msgs, err := c.log.Load(ctx)
	if err != nil {
		return err
	}
	if len(msgs) < 2 {
		return nil
	}

	idx := len(msgs) - 2
	if directive.IsTimeStamped(msgs[idx].Content) {
		return nil
	}
	msgs[idx].Content = directive.StampTime(msgs[idx].Content, c.now())
	return c.log.ReplaceAll(ctx, msgs)
}

// summarize 发出结构化 JSON 摘要请求并解析校验。
func (c *Consolidator) summarize(ctx context.Context, longBuffer []provider.Message) (*Archive, error) {
	llmProvider, err := provider.GetProvider(c.providerName)
	if err != nil {
		return nil, fmt.Errorf("get consolidation provider: %w", err)
	}

	// 长缓冲超限时保留最近的轮次
	window := longBuffer
	if len(window) > c.maxSummaryTurns {
		window = window[len(window)-c.maxSummaryTurns:]
	}

	instruction := directive.MarkSummaryInstruction(c.buildSummaryPrompt(window))
	req := &provider.CompletionRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: c.persona},
			{Role: "user", Content: instruction},
		},
		Temperature: 0.3, // 低温度保证稳定输出
		MaxTokens:   4096,
		JSONOnly:    true,
	}

	resp, err := llmProvider.Complete(ctx, req)
	c.dumper.Dump("summarize", req.Messages, resp, err)
	if err != nil {
		return nil, fmt.Errorf("summary request failed: %w", err)
	}

	// 整理请求对落入滚动日志，SessionClosed 前按标记剔除
	if logErr := c.log.Append(ctx,
		provider.Message{Role: "user", Content: instruction},
		provider.Message{Role: "assistant", Content: resp.Content},
	); logErr != nil {
		applog.Warn("[Consolidate] ⚠️ Failed to log summary turns", "error", logErr)
	}

	archive, err := ParseArchive([]byte(stripCodeFence(resp.Content)))
	if err != nil {
		return nil, fmt.Errorf("summary response rejected: %w", err)
	}

	applog.Info("[Consolidate] Summary parsed",
		"diary_entries", len(archive.Diary),
		"window_turns", len(window),
	)
	return archive, nil
}

// merge 发出递归合并请求：旧记忆（日记限近 recentDays 天 + 其余类别全量）
// 与新摘要合并为同 schema 的一个 JSON 对象。
func (c *Consolidator) merge(ctx context.Context, existing *Archive, summary *Archive) (*Archive, error) {
	llmProvider, err := provider.GetProvider(c.providerName)
	if err != nil {
		return nil, fmt.Errorf("get consolidation provider: %w", err)
	}

	oldView := &Archive{
		Diary:         RecentDiary(existing.Diary, c.recentDays, c.now()),
		Promise:       existing.Promise,
		Preference:    existing.Preference,
		Plan:          existing.Plan,
		Motivation:    existing.Motivation,
		PivotalMemory: existing.PivotalMemory,
	}

	prompt, err := c.buildMergePrompt(oldView, summary)
	if err != nil {
		return nil, err
	}

	req := &provider.CompletionRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: mergeSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   4096,
		JSONOnly:    true,
	}

	resp, err := llmProvider.Complete(ctx, req)
	c.dumper.Dump("merge", req.Messages, resp, err)
	if err != nil {
		return nil, fmt.Errorf("merge request failed: %w", err)
	}

	merged, err := ParseArchive([]byte(stripCodeFence(resp.Content)))
	if err != nil {
		return nil, fmt.Errorf("merge response rejected: %w", err)
	}
	return merged, nil
}

// pruneConsolidationTurns 剔除日志尾部带整理标记的轮次对。
func (c *Consolidator) pruneConsolidationTurns(ctx context.Context) error {
	msgs, err := c.log.Load(ctx)
	if err != nil {
		return err
	}
	if len(msgs) < 2 {
		return nil
	}

	last := msgs[len(msgs)-1]
	secondLast := msgs[len(msgs)-2]
	if !directive.IsSummaryTurn(last.Content) && !directive.IsSummaryTurn(secondLast.Content) {
		return nil
	}

	applog.Debug("[Consolidate] Pruning consolidation turn pair from log")
	return c.log.ReplaceAll(ctx, msgs[:len(msgs)-2])
}

const summarySystemFormat = `请整理以上对话，输出一个 JSON 对象，包含以下字段（均可为空数组）：
{
  "diary": [{"date": "%s", "content": "当天发生的事", "keywords": ["关键词"]}],
  "promise": ["与用户的约定"],
  "preference": ["用户或自己的喜好"],
  "plan": [{"date": "%s", "content": "计划内容"}],
  "motivation": ["行动动机"],
  "pivotal_memory": ["重要记忆"]
}
只输出 JSON，不要输出其他内容。`

const mergeSystemPrompt = `你是一个记忆合并引擎。给定旧记忆和新摘要两个同构 JSON 对象，` +
	`请将两者融合为一个 JSON 对象：同日期的日记以新内容为准，其余字段去重合并、保留最新表述。` +
	`只输出 JSON，不要输出其他内容。`

func (c *Consolidator) buildSummaryPrompt(window []provider.Message) string {
	var sb strings.Builder

	today := FormatDiaryDate(c.now())

	sb.WriteString("## 最近日记\n")
	sb.WriteString(RenderDiaryExcerpt(c.store.Archive(), c.recentDays, c.now()))
	sb.WriteString("\n## 本次对话\n")
	for _, msg := range window {
		switch msg.Role {
		case "user":
			sb.WriteString("用户: ")
		case "assistant":
			sb.WriteString("亚托莉: ")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf(summarySystemFormat, today, today))

	return sb.String()
}

func (c *Consolidator) buildMergePrompt(oldView, summary *Archive) (string, error) {
	oldJSON, err := marshalArchive(oldView)
	if err != nil {
		return "", fmt.Errorf("marshal old memory: %w", err)
	}
	newJSON, err := marshalArchive(summary)
	if err != nil {
		return "", fmt.Errorf("marshal new summary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## 旧记忆\n")
	sb.Write(oldJSON)
	sb.WriteString("\n\n## 新摘要\n")
	sb.Write(newJSON)
	sb.WriteString("\n\n请输出合并后的 JSON 对象。")
	return sb.String(), nil
}

func marshalArchive(a *Archive) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// stripCodeFence 移除模型可能包裹的 markdown 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		return strings.TrimSpace(s)
	}
	return s
}
