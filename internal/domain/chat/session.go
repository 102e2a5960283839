package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Therqwq/ATRI-Chat/internal/domain/directive"
	"github.com/Therqwq/ATRI-Chat/internal/domain/memory"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// ErrTurnInFlight 已有一次模型请求在途，拒绝并发提交
var ErrTurnInFlight = errors.New("a model request is already in flight")

// fallbackReply 传输层故障时的固定降级回复
const fallbackReply = "暂时连接不到ChatAI呢……"

// SessionConfig 回合聚合配置
type SessionConfig struct {
	ProviderName string
	Model        string
	Temperature  float64
	MaxTokens    int
	Persona      string

	MaxContextTurns int // 含 system 槽位
	MaxSummaryTurns int
	RecentDiaryDays int

	Store        *memory.Store
	Log          memory.ShortTermLog
	Retriever    *memory.Retriever
	Consolidator *memory.Consolidator
	Narrator     *Narrator

	// NarrationSink 旁白音频回调，nil 时不启动旁白
	NarrationSink func(audio []byte)

	Now func() time.Time
}

// Session 单会话聚合根。所有状态变更都经过它：
// 上下文窗口压缩、长缓冲累积、检索注入、退出信号与整理移交。
// 同一时刻只允许一次在途模型请求；旁白是唯一的并发侧通道。
type Session struct {
	mu   sync.Mutex
	busy bool

	providerName string
	model        string
	temperature  float64
	maxTokens    int
	persona      string

	maxContextTurns int
	maxSummaryTurns int
	recentDays      int

	store        *memory.Store
	log          memory.ShortTermLog
	retriever    *memory.Retriever
	consolidator *memory.Consolidator
	narrator     *Narrator
	sink         func(audio []byte)

	dialogue   []provider.Message // 上下文窗口内的对话轮次（不含 system）
	longBuffer []provider.Message // 整理用长缓冲，独立界

	lastAssistant string
	exitSignaled  bool

	narrating sync.WaitGroup
	now       func() time.Time
}

// NewSession 创建会话，并从滚动日志预填上下文（跨会话延续）。
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.MaxContextTurns < 3 {
		cfg.MaxContextTurns = 3
	}
	if cfg.MaxSummaryTurns <= 0 {
		cfg.MaxSummaryTurns = 40
	}
	if cfg.RecentDiaryDays <= 0 {
		cfg.RecentDiaryDays = 2
	}
	if cfg.Retriever == nil {
		cfg.Retriever = memory.NewRetriever()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		providerName:    cfg.ProviderName,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		persona:         cfg.Persona,
		maxContextTurns: cfg.MaxContextTurns,
		maxSummaryTurns: cfg.MaxSummaryTurns,
		recentDays:      cfg.RecentDiaryDays,
		store:           cfg.Store,
		log:             cfg.Log,
		retriever:       cfg.Retriever,
		consolidator:    cfg.Consolidator,
		narrator:        cfg.Narrator,
		sink:            cfg.NarrationSink,
		now:             cfg.Now,
	}

	if s.log != nil {
		persisted, err := s.log.Load(ctx)
		if err != nil {
			return nil, err
		}
		s.longBuffer = append(s.longBuffer, persisted...)
		s.dialogue = Trim(append([]provider.Message(nil), persisted...), s.maxContextTurns)
		for i := len(persisted) - 1; i >= 0; i-- {
			if persisted[i].Role == "assistant" {
				s.lastAssistant = persisted[i].Content
				break
			}
		}
		if len(persisted) > 0 {
			applog.Info("[Session] Restored rolling log", "turns", len(persisted))
		}
	}
	return s, nil
}

// SubmitUserTurn 提交一轮用户输入，返回回复文本与退出标志。
// 传输层故障不作为错误上抛：返回固定降级回复，会话继续。
func (s *Session) SubmitUserTurn(ctx context.Context, text string) (string, bool, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", false, ErrTurnInFlight
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if directive.ClassifyUser(text) == directive.UserExit {
		s.exitSignaled = true
		return "", true, nil
	}

	relevant := s.retrieve(text)
	systemText := BuildSystemText(
		s.persona,
		memory.RenderCoreMemory(s.store.Archive(), s.recentDays, s.now()),
		memory.RenderRelevantMemories(relevant),
	)

	userTurn := provider.Message{Role: "user", Content: text}
	s.appendTurn(ctx, userTurn)

	reply, reasoning, callErr := s.complete(ctx, Build(systemText, s.dialogue))
	if callErr != nil {
		applog.Error("[Session] ❌ Chat completion failed, degrading", "error", callErr)
		reply = fallbackReply
	}

	assistantTurn := provider.Message{Role: "assistant", Content: reply, ReasoningContent: reasoning}
	s.appendTurn(ctx, assistantTurn)
	s.lastAssistant = reply

	exit := directive.ClassifyAssistant(reply) == directive.AssistantExit
	if exit {
		s.exitSignaled = true
	}
	display := directive.StripAssistantExit(reply)

	if callErr == nil {
		s.narrate(ctx, display)
	}
	return display, exit, nil
}

// NotifyExit 关闭会话：等整理流水线跑完（或首次失败）再返回，
// 旁白侧通道也在此处收尾。整理失败不阻止关闭。
func (s *Session) NotifyExit(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	var err error
	if s.consolidator != nil && len(s.longBuffer) > 0 {
		var stage memory.Stage
		stage, err = s.consolidator.Run(ctx, s.longBuffer)
		if err != nil {
			applog.Warn("[Session] ⚠️ Consolidation stopped early, closing anyway",
				"stage", stage.String(),
				"error", err,
			)
		}
	}

	s.narrating.Wait()
	applog.Info("[Session] 👋 Session closed")
	return err
}

// retrieve 以上一条助手回复 + 本轮输入为查询，在近期窗口之外的日记中检索。
func (s *Session) retrieve(userText string) []memory.DiaryEntry {
	archive := s.store.Archive()
	corpus := memory.RetrievalCorpus(archive, s.recentDays, s.now())
	if len(corpus) == 0 {
		return nil
	}
	query := s.lastAssistant + "\n" + userText
	return s.retriever.Select(s.retriever.Match(query, corpus))
}

// appendTurn 同时推进上下文窗口、长缓冲和持久化日志。
// 日志写失败只告警，对话不中断。
func (s *Session) appendTurn(ctx context.Context, msg provider.Message) {
	s.dialogue = Trim(append(s.dialogue, msg), s.maxContextTurns)

	s.longBuffer = append(s.longBuffer, msg)
	if len(s.longBuffer) > s.maxSummaryTurns {
		s.longBuffer = s.longBuffer[len(s.longBuffer)-s.maxSummaryTurns:]
	}

	if s.log != nil {
		if err := s.log.Append(ctx, msg); err != nil {
			applog.Warn("[Session] ⚠️ Failed to persist turn", "error", err)
		}
	}
}

func (s *Session) complete(ctx context.Context, msgs []provider.Message) (string, string, error) {
	llmProvider, err := provider.GetProvider(s.providerName)
	if err != nil {
		return "", "", err
	}

	resp, err := llmProvider.Complete(ctx, &provider.CompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", "", err
	}
	return resp.Content, resp.ReasoningContent, nil
}

// narrate 启动旁白侧通道。与后续输入乃至最终整理并行，
// 但不会触发第二次模型请求。
func (s *Session) narrate(ctx context.Context, display string) {
	if s.narrator == nil || s.sink == nil || display == "" {
		return
	}

	s.narrating.Add(1)
	go func() {
		defer s.narrating.Done()
		audio, err := s.narrator.Narrate(context.WithoutCancel(ctx), display)
		if err != nil {
			if !errors.Is(err, ErrNoNarration) {
				applog.Warn("[Session] ⚠️ Narration skipped", "error", err)
			}
			return
		}
		s.sink(audio)
	}()
}
