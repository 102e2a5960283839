package speech

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/common"
	"github.com/tencentcloud/tencentcloud-speech-sdk-go/tts"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// TencentConfig 腾讯云语音合成配置
type TencentConfig struct {
	AppID      int64
	SecretID   string
	SecretKey  string
	VoiceType  int64  // 音色 ID
	Codec      string // 默认 wav
	SampleRate int64  // 默认 16000
}

// Tencent 腾讯云 TTS 合成器（websocket 流式接口，聚合为完整音频返回）
type Tencent struct {
	cfg        TencentConfig
	credential *common.Credential
}

// NewTencent 创建腾讯云 TTS 合成器
func NewTencent(cfg TencentConfig) *Tencent {
	if cfg.Codec == "" {
		cfg.Codec = "wav"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Tencent{
		cfg:        cfg,
		credential: common.NewCredential(cfg.SecretID, cfg.SecretKey),
	}
}

// Synthesize 合成文本，返回完整音频字节流。
func (t *Tencent) Synthesize(ctx context.Context, text string) ([]byte, error) {
	listener := &collectListener{done: make(chan struct{})}

	synthesizer := tts.NewSpeechWsSynthesizer(t.cfg.AppID, t.credential, listener)
	synthesizer.VoiceType = t.cfg.VoiceType
	synthesizer.Codec = t.cfg.Codec
	synthesizer.SampleRate = t.cfg.SampleRate
	synthesizer.Text = text
	synthesizer.SessionId = uuid.NewString()

	if err := synthesizer.Synthesis(); err != nil {
		return nil, fmt.Errorf("tencent tts synthesis: %w", err)
	}

	select {
	case <-listener.done:
	case <-ctx.Done():
		synthesizer.CloseConn()
		return nil, ctx.Err()
	}
	synthesizer.Wait()

	if err := listener.Err(); err != nil {
		return nil, fmt.Errorf("tencent tts failed: %w", err)
	}

	audio := listener.Audio()
	applog.Debug("[TTS/Tencent] Audio synthesized",
		"text_length", len([]rune(text)),
		"audio_bytes", len(audio),
	)
	return audio, nil
}

// collectListener 聚合流式音频分片，结束或失败时关闭 done。
type collectListener struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	err  error
	once sync.Once
	done chan struct{}
}

func (l *collectListener) finish(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *collectListener) Audio() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Bytes()
}

func (l *collectListener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *collectListener) OnSynthesisStart(_ *tts.SpeechWsSynthesisResponse) {}

func (l *collectListener) OnSynthesisEnd(_ *tts.SpeechWsSynthesisResponse) {
	l.finish(nil)
}

func (l *collectListener) OnAudioResult(data []byte) {
	l.mu.Lock()
	l.buf.Write(data)
	l.mu.Unlock()
}

func (l *collectListener) OnTextResult(_ *tts.SpeechWsSynthesisResponse) {}

func (l *collectListener) OnSynthesisFail(_ *tts.SpeechWsSynthesisResponse, err error) {
	l.finish(err)
}
