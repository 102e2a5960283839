package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Therqwq/ATRI-Chat/internal/app/bootstrap"
	redisdb "github.com/Therqwq/ATRI-Chat/internal/db/redis"
	"github.com/Therqwq/ATRI-Chat/internal/domain/chat"
	"github.com/Therqwq/ATRI-Chat/internal/domain/memory"
	"github.com/Therqwq/ATRI-Chat/internal/platform/config"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// openingInstruction 启动时触发开场白的固定指令
const openingInstruction = "<请根据时间回复一段简短的开场白>"

// defaultPersona 人格文件缺失时的兜底设定
const defaultPersona = "你是亚托莉，一个性格活泼的仿生人少女。用口语化的中文回复，台词用中文引号包裹。" +
	"当用户表达告别意图时，在回复末尾输出 <×>。"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	bootstrap.RegisterLLMProviders(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)

	store, err := memory.NewStore(cfg.Memory.DataDir)
	if err != nil {
		applog.Fatalf("❌ Failed to open memory store: %v", err)
	}
	if err := store.Load(); err != nil {
		applog.Fatalf("❌ Failed to load memory archive: %v", err)
	}
	applog.Info("✅ Memory archive loaded", "dir", cfg.Memory.DataDir)

	ctx := context.Background()
	stm, err := newShortTermLog(ctx, cfg)
	if err != nil {
		applog.Fatalf("❌ Failed to init short-term log: %v", err)
	}

	persona := loadPersona(cfg.Chat.PersonaFile)

	consolidator := memory.NewConsolidator(memory.ConsolidatorConfig{
		Store:           store,
		Log:             stm,
		Dumper:          memory.NewDumper(cfg.Memory.DumpDir),
		ProviderName:    cfg.Chat.Provider,
		Model:           cfg.Chat.Model,
		Persona:         persona,
		MaxSummaryTurns: cfg.Chat.MaxSummaryTurns,
		RecentDiaryDays: cfg.Chat.RecentDiaryDays,
	})

	narrator := chat.NewNarrator(
		bootstrap.NewTranslator(cfg.Translate),
		bootstrap.NewSynthesizer(cfg.Speech),
	)

	session, err := chat.NewSession(ctx, chat.SessionConfig{
		ProviderName:    cfg.Chat.Provider,
		Model:           cfg.Chat.Model,
		Temperature:     cfg.Chat.Temperature,
		MaxTokens:       cfg.Chat.MaxTokens,
		Persona:         persona,
		MaxContextTurns: cfg.Chat.MaxContextTurns,
		MaxSummaryTurns: cfg.Chat.MaxSummaryTurns,
		RecentDiaryDays: cfg.Chat.RecentDiaryDays,
		Store:           store,
		Log:             stm,
		Consolidator:    consolidator,
		Narrator:        narrator,
		NarrationSink:   audioSink(cfg.Speech.OutDir),
	})
	if err != nil {
		applog.Fatalf("❌ Failed to create session: %v", err)
	}

	// Ctrl-C 也走整理流程再退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		closeSession(session)
	}()

	if reply, _, err := session.SubmitUserTurn(ctx, openingInstruction); err == nil && reply != "" {
		fmt.Printf("亚托莉: %s\n", reply)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("你: ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, exit, err := session.SubmitUserTurn(ctx, text)
		if err != nil {
			applog.Warnf("⚠️  Turn rejected: %v", err)
			continue
		}
		if reply != "" {
			fmt.Printf("亚托莉: %s\n", reply)
		}
		if exit {
			closeSession(session)
			return
		}
	}
	closeSession(session)
}

func closeSession(session *chat.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	if err := session.NotifyExit(ctx); err != nil {
		applog.Warnf("⚠️  Session closed with consolidation failure: %v", err)
	}
	os.Exit(0)
}

// newShortTermLog 按配置选择滚动日志后端：file（默认）或 redis。
func newShortTermLog(ctx context.Context, cfg *config.AppConfig) (memory.ShortTermLog, error) {
	if cfg.Memory.Backend == "redis" {
		client, err := redisdb.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		return redisdb.NewSTM(client), nil
	}
	return memory.NewFileSTM(filepath.Join(cfg.Memory.DataDir, "short_term_log.json"))
}

func loadPersona(path string) string {
	if path == "" {
		return defaultPersona
	}
	data, err := os.ReadFile(path)
	if err != nil {
		applog.Warnf("⚠️  Persona file unreadable, using built-in persona: %v", err)
		return defaultPersona
	}
	return strings.TrimSpace(string(data))
}

// audioSink 把旁白音频写入输出目录，文件名带 uuid 不互相覆盖。
func audioSink(outDir string) func([]byte) {
	if outDir == "" {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		applog.Warnf("⚠️  TTS output dir unavailable, narration audio discarded: %v", err)
		return nil
	}
	return func(audio []byte) {
		name := filepath.Join(outDir, fmt.Sprintf("narration_%s.wav", uuid.NewString()))
		if err := os.WriteFile(name, audio, 0o644); err != nil {
			applog.Warnf("⚠️  Failed to save narration audio: %v", err)
			return
		}
		applog.Debug("[TTS] Narration saved", "file", name)
	}
}
