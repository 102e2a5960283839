package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	Chat      ChatConfig      `json:"chat"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Memory    MemoryConfig    `json:"memory"`
	Redis     RedisConfig     `json:"redis"`
	Translate TranslateConfig `json:"translate"`
	Speech    SpeechConfig    `json:"speech"`
}

// ChatConfig 对话引擎配置。
type ChatConfig struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	MaxContextTurns int     `json:"max_context_turns"` // 含 system 槽位
	MaxSummaryTurns int     `json:"max_summary_turns"` // 长缓冲上限（不含 system）
	RecentDiaryDays int     `json:"recent_diary_days"`
	PersonaFile     string  `json:"persona_file"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// MemoryConfig 记忆持久化配置。
type MemoryConfig struct {
	DataDir string `json:"data_dir"` // 六类记忆文件所在目录
	DumpDir string `json:"dump_dir"` // 整理请求/响应调试转储目录
	Backend string `json:"backend"`  // 短期日志后端：file | redis
}

type RedisConfig struct {
	URL string `json:"url"`
}

// TranslateConfig 翻译服务配置（腾讯云 TMT）。
type TranslateConfig struct {
	Enabled   bool   `json:"enabled"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	Source    string `json:"source"`
	Target    string `json:"target"`
}

// SpeechConfig 语音合成配置。
type SpeechConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"` // sovits | tencent
	OutDir   string `json:"out_dir"`

	// GPT-SoVITS
	SovitsURL    string  `json:"sovits_url"`
	RefAudioPath string  `json:"ref_audio_path"`
	PromptText   string  `json:"prompt_text"`
	PromptLang   string  `json:"prompt_lang"`
	TextLang     string  `json:"text_lang"`
	TopK         int     `json:"top_k"`
	TopP         float64 `json:"top_p"`
	Temperature  float64 `json:"temperature"`

	// 腾讯云 TTS
	TencentAppID     int64  `json:"tencent_app_id"`
	TencentSecretID  string `json:"tencent_secret_id"`
	TencentSecretKey string `json:"tencent_secret_key"`
	VoiceType        int64  `json:"voice_type"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Chat: ChatConfig{
			Provider:        "openai",
			Model:           "deepseek-chat",
			Temperature:     1.0,
			MaxTokens:       8192,
			MaxContextTurns: 21,
			MaxSummaryTurns: 40,
			RecentDiaryDays: 2,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.deepseek.com",
		},
		Memory: MemoryConfig{
			DataDir: "memory_data",
			DumpDir: "memory_data/dumps",
			Backend: "file",
		},
		Translate: TranslateConfig{
			Region: "ap-beijing",
			Source: "zh",
			Target: "ja",
		},
		Speech: SpeechConfig{
			Provider:    "sovits",
			OutDir:      "tts_output",
			SovitsURL:   "http://127.0.0.1:9880/tts",
			PromptLang:  "ja",
			TextLang:    "ja",
			TopK:        50,
			TopP:        0.95,
			Temperature: 0.9,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("CHAT_PROVIDER", &c.Chat.Provider)
	applyString("CHAT_MODEL", &c.Chat.Model)
	applyFloat64("CHAT_TEMPERATURE", &c.Chat.Temperature)
	applyInt("CHAT_MAX_TOKENS", &c.Chat.MaxTokens)
	applyInt("CHAT_MAX_CONTEXT_TURNS", &c.Chat.MaxContextTurns)
	applyInt("CHAT_MAX_SUMMARY_TURNS", &c.Chat.MaxSummaryTurns)
	applyInt("CHAT_RECENT_DIARY_DAYS", &c.Chat.RecentDiaryDays)
	applyString("CHAT_PERSONA_FILE", &c.Chat.PersonaFile)

	applyString("CHATAI_API_KEY", &c.OpenAI.APIKey)
	applyString("CHATAI_BASE_URL", &c.OpenAI.BaseURL)

	applyString("MEMORY_DATA_DIR", &c.Memory.DataDir)
	applyString("MEMORY_DUMP_DIR", &c.Memory.DumpDir)
	applyString("MEMORY_BACKEND", &c.Memory.Backend)
	applyString("REDIS_URL", &c.Redis.URL)

	applyBool("TRANSLATE_ENABLED", &c.Translate.Enabled)
	applyString("TRANSLATE_SECRET_ID", &c.Translate.SecretID)
	applyString("TRANSLATE_SECRET_KEY", &c.Translate.SecretKey)
	applyString("TRANSLATE_REGION", &c.Translate.Region)
	applyString("TRANSLATE_SOURCE", &c.Translate.Source)
	applyString("TRANSLATE_TARGET", &c.Translate.Target)

	applyBool("SPEECH_ENABLED", &c.Speech.Enabled)
	applyString("SPEECH_PROVIDER", &c.Speech.Provider)
	applyString("SPEECH_OUT_DIR", &c.Speech.OutDir)
	applyString("SOVITS_URL", &c.Speech.SovitsURL)
	applyString("SOVITS_REF_AUDIO", &c.Speech.RefAudioPath)
	applyString("SOVITS_PROMPT_TEXT", &c.Speech.PromptText)
	applyString("SOVITS_PROMPT_LANG", &c.Speech.PromptLang)
	applyString("SOVITS_TEXT_LANG", &c.Speech.TextLang)
	applyInt64("TENCENT_TTS_APP_ID", &c.Speech.TencentAppID)
	applyString("TENCENT_TTS_SECRET_ID", &c.Speech.TencentSecretID)
	applyString("TENCENT_TTS_SECRET_KEY", &c.Speech.TencentSecretKey)
	applyInt64("TENCENT_TTS_VOICE_TYPE", &c.Speech.VoiceType)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.deepseek.com"
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "file"
	}
	if c.Memory.DumpDir == "" {
		c.Memory.DumpDir = c.Memory.DataDir + "/dumps"
	}
	if c.Chat.MaxContextTurns < 3 {
		c.Chat.MaxContextTurns = 3 // system + 至少一对对话
	}
	if c.Chat.MaxSummaryTurns < 2 {
		c.Chat.MaxSummaryTurns = 2
	}
	if c.Chat.RecentDiaryDays <= 0 {
		c.Chat.RecentDiaryDays = 2
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("CHATAI_API_KEY is required")
	}
	if c.Memory.Backend != "file" && c.Memory.Backend != "redis" {
		return fmt.Errorf("MEMORY_BACKEND must be file or redis, got %q", c.Memory.Backend)
	}
	if c.Memory.Backend == "redis" && strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("REDIS_URL is required when MEMORY_BACKEND=redis")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
