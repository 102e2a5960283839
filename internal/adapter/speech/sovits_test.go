package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSovitsSynthesize(t *testing.T) {
	var got sovitsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte("RIFFwav-bytes"))
	}))
	defer server.Close()

	s := NewSovits(SovitsConfig{
		URL:          server.URL,
		RefAudioPath: "ref/atri.wav",
		PromptText:   "あたしは高性能ですから",
	})

	audio, err := s.Synthesize(context.Background(), "こんにちは")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "RIFFwav-bytes" {
		t.Errorf("unexpected audio: %q", audio)
	}

	if got.Text != "こんにちは" || got.RefAudioPath != "ref/atri.wav" {
		t.Errorf("request malformed: %+v", got)
	}
	if got.ParallelInfer {
		t.Error("parallel_infer must stay disabled")
	}
	// 缺省推理参数
	if got.TopK != 50 || got.TopP != 0.95 || got.Temperature != 0.9 {
		t.Errorf("inference defaults not applied: %+v", got)
	}
	if got.PromptLang != "ja" || got.TextLang != "ja" {
		t.Errorf("language defaults not applied: %+v", got)
	}
}

func TestSovitsSynthesizeUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewSovits(SovitsConfig{URL: server.URL})
	if _, err := s.Synthesize(context.Background(), "テスト"); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
}
