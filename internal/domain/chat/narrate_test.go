package chat

import (
	"context"
	"errors"
	"testing"
)

func TestExtractDialogue(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "single quoted segment",
			reply: "她笑了笑。“今天天气真好呢”",
			want:  "今天天气真好呢",
		},
		{
			name:  "multiple segments joined",
			reply: "“早上好”她挥挥手，“要一起去海边吗”",
			want:  "早上好 要一起去海边吗",
		},
		{
			name:  "no quotes uses full text",
			reply: "今天也是元气满满的一天",
			want:  "今天也是元气满满的一天",
		},
		{
			name:  "half-width ellipsis normalized",
			reply: "“是这样吗...”",
			want:  "是这样吗……",
		},
		{
			name:  "empty quotes ignored",
			reply: "“”“只有这句”",
			want:  "只有这句",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractDialogue(tt.reply); got != tt.want {
				t.Fatalf("ExtractDialogue(%q) = %q, want %q", tt.reply, got, tt.want)
			}
		})
	}
}

type fakeTranslator struct {
	out string
	err error
}

func (f fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeSynth struct {
	got   string
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.got = text
	return f.audio, f.err
}

func TestNarrateTranslatesThenSynthesizes(t *testing.T) {
	synth := &fakeSynth{audio: []byte("wav")}
	n := NewNarrator(fakeTranslator{out: "こんにちは"}, synth)

	audio, err := n.Narrate(context.Background(), "“你好”")
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if string(audio) != "wav" {
		t.Errorf("unexpected audio: %q", audio)
	}
	if synth.got != "こんにちは" {
		t.Errorf("synthesizer received %q, want translated text", synth.got)
	}
}

func TestNarrateFallsBackOnTranslateFailure(t *testing.T) {
	synth := &fakeSynth{audio: []byte("wav")}
	n := NewNarrator(fakeTranslator{err: errors.New("quota")}, synth)

	if _, err := n.Narrate(context.Background(), "“你好”"); err != nil {
		t.Fatalf("Narrate should degrade, got %v", err)
	}
	if synth.got != "你好" {
		t.Errorf("expected original text on translate failure, got %q", synth.got)
	}
}

func TestNarrateSkipsWithoutSynthesizer(t *testing.T) {
	n := NewNarrator(nil, nil)
	if _, err := n.Narrate(context.Background(), "“你好”"); !errors.Is(err, ErrNoNarration) {
		t.Fatalf("expected ErrNoNarration, got %v", err)
	}
}

func TestNarrateSynthFailureSurfaces(t *testing.T) {
	synth := &fakeSynth{err: errors.New("tts down")}
	n := NewNarrator(nil, synth)

	if _, err := n.Narrate(context.Background(), "“你好”"); err == nil {
		t.Fatal("expected synthesis error")
	}
}
