// Package bootstrap 启动期装配：LLM 提供商注册与协作方构造。
package bootstrap

import (
	"github.com/Therqwq/ATRI-Chat/internal/adapter/provider/llm/openai"
	"github.com/Therqwq/ATRI-Chat/internal/adapter/speech"
	"github.com/Therqwq/ATRI-Chat/internal/adapter/translate"
	"github.com/Therqwq/ATRI-Chat/internal/platform/config"
	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
	"github.com/Therqwq/ATRI-Chat/internal/provider"
)

// RegisterLLMProviders registers configured LLM providers.
func RegisterLLMProviders(apiKey, baseURL string) {
	if apiKey == "" {
		applog.Warn("⚠️  No CHATAI_API_KEY set, chat completion will not work")
		return
	}

	p := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	provider.RegisterProvider(p)
	applog.Infof("✅ Registered LLM provider: %s (base: %s)", p.Name(), baseURL)
}

// NewTranslator 按配置构造翻译协作方，未启用时返回 Noop。
func NewTranslator(cfg config.TranslateConfig) translate.Translator {
	if !cfg.Enabled || cfg.SecretID == "" {
		applog.Info("ℹ️  Translation disabled, narration will use original text")
		return translate.Noop{}
	}

	t, err := translate.NewTencent(translate.TencentConfig{
		SecretID:  cfg.SecretID,
		SecretKey: cfg.SecretKey,
		Region:    cfg.Region,
		Source:    cfg.Source,
		Target:    cfg.Target,
	})
	if err != nil {
		applog.Warnf("⚠️  Translator init failed, falling back to noop: %v", err)
		return translate.Noop{}
	}
	applog.Infof("✅ Translator ready (%s → %s)", cfg.Source, cfg.Target)
	return t
}

// NewSynthesizer 按配置构造语音合成后端，未启用时返回 nil（跳过旁白）。
func NewSynthesizer(cfg config.SpeechConfig) speech.Synthesizer {
	if !cfg.Enabled {
		applog.Info("ℹ️  Speech synthesis disabled")
		return nil
	}

	switch cfg.Provider {
	case "tencent":
		if cfg.TencentSecretID == "" {
			applog.Warn("⚠️  Tencent TTS credentials missing, narration disabled")
			return nil
		}
		applog.Info("✅ Tencent TTS synthesizer ready")
		return speech.NewTencent(speech.TencentConfig{
			AppID:     cfg.TencentAppID,
			SecretID:  cfg.TencentSecretID,
			SecretKey: cfg.TencentSecretKey,
			VoiceType: cfg.VoiceType,
		})
	default:
		applog.Infof("✅ GPT-SoVITS synthesizer ready (url: %s)", cfg.SovitsURL)
		return speech.NewSovits(speech.SovitsConfig{
			URL:          cfg.SovitsURL,
			RefAudioPath: cfg.RefAudioPath,
			PromptText:   cfg.PromptText,
			PromptLang:   cfg.PromptLang,
			TextLang:     cfg.TextLang,
			TopK:         cfg.TopK,
			TopP:         cfg.TopP,
			Temperature:  cfg.Temperature,
		})
	}
}
