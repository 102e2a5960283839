package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Therqwq/ATRI-Chat/internal/domain/directive"
	"github.com/Therqwq/ATRI-Chat/internal/domain/memory"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

type scriptedProvider struct {
	name     string
	replies  []string
	errs     []error
	requests []*provider.CompletionRequest
	block    chan struct{} // 非 nil 时 Complete 在此阻塞
	entered  chan struct{}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.replies) {
		return nil, fmt.Errorf("unexpected call %d", i)
	}
	return &provider.CompletionResponse{Content: p.replies[i]}, nil
}

var stubSeq int

func newSessionFixture(t *testing.T, stub *scriptedProvider) (*Session, *memory.Store, memory.ShortTermLog) {
	t.Helper()
	dir := t.TempDir()

	stubSeq++
	if stub.name == "" {
		stub.name = fmt.Sprintf("stub-session-%d", stubSeq)
	}
	provider.RegisterProvider(stub)

	store, err := memory.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	stm, err := memory.NewFileSTM(filepath.Join(dir, "stm.json"))
	if err != nil {
		t.Fatalf("NewFileSTM: %v", err)
	}

	consolidator := memory.NewConsolidator(memory.ConsolidatorConfig{
		Store:        store,
		Log:          stm,
		ProviderName: stub.name,
		Model:        "deepseek-chat",
		Persona:      "测试人格",
	})

	session, err := NewSession(context.Background(), SessionConfig{
		ProviderName:    stub.name,
		Model:           "deepseek-chat",
		Temperature:     1.0,
		MaxTokens:       8192,
		Persona:         "测试人格",
		MaxContextTurns: 21,
		MaxSummaryTurns: 40,
		RecentDiaryDays: 2,
		Store:           store,
		Log:             stm,
		Retriever:       memory.NewRetrieverWithSeed(1),
		Consolidator:    consolidator,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session, store, stm
}

func TestSubmitUserTurnRepliesAndPersists(t *testing.T) {
	ctx := context.Background()
	stub := &scriptedProvider{replies: []string{"“你好呀”"}}
	session, _, stm := newSessionFixture(t, stub)

	reply, exit, err := session.SubmitUserTurn(ctx, "你好")
	if err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}
	if exit {
		t.Error("unexpected exit flag")
	}
	if reply != "“你好呀”" {
		t.Errorf("unexpected reply: %q", reply)
	}

	// 请求首条为 system，包含人格
	req := stub.requests[0]
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "测试人格") {
		t.Errorf("system turn malformed: %+v", req.Messages[0])
	}

	msgs, err := stm.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("rolling log not persisted: %+v", msgs)
	}
}

func TestExitSentinelDetected(t *testing.T) {
	stub := &scriptedProvider{replies: []string{"“再见啦” <×>"}}
	session, _, _ := newSessionFixture(t, stub)

	reply, exit, err := session.SubmitUserTurn(context.Background(), "我走了")
	if err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}
	if !exit {
		t.Fatal("exit sentinel not detected")
	}
	if strings.Contains(reply, "<×>") {
		t.Errorf("sentinel leaked into display text: %q", reply)
	}
}

func TestUserExitCommandSkipsModel(t *testing.T) {
	stub := &scriptedProvider{}
	session, _, _ := newSessionFixture(t, stub)

	_, exit, err := session.SubmitUserTurn(context.Background(), "退出")
	if err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}
	if !exit {
		t.Fatal("user exit command not recognized")
	}
	if len(stub.requests) != 0 {
		t.Errorf("exit command must not hit the model, got %d calls", len(stub.requests))
	}
}

func TestTransportErrorDegrades(t *testing.T) {
	stub := &scriptedProvider{errs: []error{errors.New("connection refused")}}
	session, _, _ := newSessionFixture(t, stub)

	reply, exit, err := session.SubmitUserTurn(context.Background(), "你好")
	if err != nil {
		t.Fatalf("transport errors must not surface: %v", err)
	}
	if exit {
		t.Error("unexpected exit on transport failure")
	}
	if reply != fallbackReply {
		t.Errorf("expected canned fallback, got %q", reply)
	}
}

func TestBusyGuardRejectsOverlap(t *testing.T) {
	stub := &scriptedProvider{
		replies: []string{"“稍等”"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	session, _, _ := newSessionFixture(t, stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = session.SubmitUserTurn(context.Background(), "第一条")
	}()

	select {
	case <-stub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached the provider")
	}

	if _, _, err := session.SubmitUserTurn(context.Background(), "第二条"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}

	close(stub.block)
	<-done
}

func TestRelevantMemoriesInjected(t *testing.T) {
	stub := &scriptedProvider{replies: []string{"“想起来了”"}}
	session, store, _ := newSessionFixture(t, stub)

	if err := store.Replace(&memory.Archive{Diary: []memory.DiaryEntry{
		{Date: "2024年01月01日", Content: "一起抓了螃蟹", Keywords: []string{"螃蟹"}},
	}}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if _, _, err := session.SubmitUserTurn(context.Background(), "还记得螃蟹吗"); err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}

	system := stub.requests[0].Messages[0].Content
	if !strings.Contains(system, "相关记忆") || !strings.Contains(system, "一起抓了螃蟹") {
		t.Errorf("relevant memory not injected into system turn:\n%s", system)
	}
}

func TestNotifyExitConsolidatesAndPrunes(t *testing.T) {
	ctx := context.Background()
	summaryJSON := `{"diary":[{"date":"2024年05月01日","content":"met user"}],` +
		`"promise":[],"preference":[],"plan":[],"motivation":[],"pivotal_memory":[]}`
	stub := &scriptedProvider{replies: []string{"“记住了” <×>", summaryJSON}}
	session, store, stm := newSessionFixture(t, stub)

	_, exit, err := session.SubmitUserTurn(ctx, "今天很开心，再见")
	if err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}
	if !exit {
		t.Fatal("expected exit")
	}

	if err := session.NotifyExit(ctx); err != nil {
		t.Fatalf("NotifyExit: %v", err)
	}

	archive := store.Archive()
	if len(archive.Diary) != 1 || archive.Diary[0].Content != "met user" {
		t.Fatalf("consolidated diary not persisted: %+v", archive.Diary)
	}

	msgs, err := stm.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected pruned log of 2 turns, got %d", len(msgs))
	}
	for _, m := range msgs {
		if directive.IsSummaryTurn(m.Content) {
			t.Errorf("consolidation turn survived prune: %q", m.Content)
		}
	}
	if !directive.IsTimeStamped(msgs[0].Content) {
		t.Errorf("second-to-last turn missing time annotation: %q", msgs[0].Content)
	}
}

func TestSessionRestoresFromRollingLog(t *testing.T) {
	ctx := context.Background()
	stub := &scriptedProvider{replies: []string{"“继续聊”"}}
	_, _, stm := newSessionFixture(t, stub)

	if err := stm.Append(ctx,
		provider.Message{Role: "user", Content: "昨天说到哪了"},
		provider.Message{Role: "assistant", Content: "“说到海边啦”"},
	); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	// 重新创建会话，应预填上一次的轮次
	restored, err := NewSession(ctx, SessionConfig{
		ProviderName:    stub.name,
		Model:           "deepseek-chat",
		Persona:         "测试人格",
		MaxContextTurns: 21,
		Store:           mustStore(t),
		Log:             stm,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, _, err := restored.SubmitUserTurn(ctx, "继续"); err != nil {
		t.Fatalf("SubmitUserTurn: %v", err)
	}
	msgs := stub.requests[len(stub.requests)-1].Messages
	// system + 预填的 2 条 + 新 user
	if len(msgs) != 4 {
		t.Fatalf("expected restored context of 4 messages, got %d", len(msgs))
	}
	if msgs[1].Content != "昨天说到哪了" {
		t.Errorf("restored turn order wrong: %+v", msgs[1])
	}
}

func mustStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}
