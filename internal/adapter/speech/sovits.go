package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// SovitsConfig GPT-SoVITS 推理服务配置。
// 参考音频与参考文本决定音色，随文本一起发给推理端。
type SovitsConfig struct {
	URL                   string  `json:"url"` // 默认 http://127.0.0.1:9880/tts
	RefAudioPath          string  `json:"ref_audio_path"`
	PromptText            string  `json:"prompt_text"`
	PromptLang            string  `json:"prompt_lang"`
	TextLang              string  `json:"text_lang"`
	TopK                  int     `json:"top_k"`
	TopP                  float64 `json:"top_p"`
	Temperature           float64 `json:"temperature"`
	ConnectTimeoutSeconds int     `json:"connect_timeout_seconds"`
}

// Sovits GPT-SoVITS HTTP 合成器
type Sovits struct {
	config SovitsConfig
	client *http.Client
}

// ErrSynthesis 合成服务返回非 200 状态码
var ErrSynthesis = errors.New("speech synthesis upstream error")

// NewSovits 创建 GPT-SoVITS 合成器
func NewSovits(cfg SovitsConfig) *Sovits {
	if cfg.URL == "" {
		cfg.URL = "http://127.0.0.1:9880/tts"
	}
	if cfg.PromptLang == "" {
		cfg.PromptLang = "ja"
	}
	if cfg.TextLang == "" {
		cfg.TextLang = "ja"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 50
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.95
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.9
	}

	connectTimeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Sovits{
		config: cfg,
		client: &http.Client{Transport: transport},
	}
}

type sovitsRequest struct {
	Text          string  `json:"text"`
	RefAudioPath  string  `json:"ref_audio_path"`
	PromptText    string  `json:"prompt_text"`
	PromptLang    string  `json:"prompt_lang"`
	TextLang      string  `json:"text_lang"`
	TopK          int     `json:"top_k"`
	TopP          float64 `json:"top_p"`
	Temperature   float64 `json:"temperature"`
	ParallelInfer bool    `json:"parallel_infer"`
}

// Synthesize 合成文本，返回 wav 字节流。
func (s *Sovits) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(sovitsRequest{
		Text:          text,
		RefAudioPath:  s.config.RefAudioPath,
		PromptText:    s.config.PromptText,
		PromptLang:    s.config.PromptLang,
		TextLang:      s.config.TextLang,
		TopK:          s.config.TopK,
		TopP:          s.config.TopP,
		Temperature:   s.config.Temperature,
		ParallelInfer: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		applog.Warn("[TTS/SoVITS] ⚠️ Upstream error",
			"status", resp.StatusCode,
			"detail", strings.TrimSpace(string(detail)),
		)
		return nil, fmt.Errorf("%w (status %d)", ErrSynthesis, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}

	applog.Debug("[TTS/SoVITS] Audio synthesized",
		"text_length", len([]rune(text)),
		"audio_bytes", len(audio),
	)
	return audio, nil
}
