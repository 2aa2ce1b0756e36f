package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokv010/voiceagent-sub001/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "", ""); !errors.Is(err, tts.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
}

func TestSynthesize(t *testing.T) {
	// 24 kHz PCM body of 480 samples resamples to 320 samples at 16 kHz.
	body := make([]byte, 480*2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		if req["input"] != "hello" {
			t.Errorf("input = %v, want hello", req["input"])
		}
		if req["voice"] != "nova" {
			t.Errorf("voice = %v, want nova", req["voice"])
		}
		if req["response_format"] != "pcm" {
			t.Errorf("response_format = %v, want pcm", req["response_format"])
		}
		w.Write(body)
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm, err := p.Synthesize(context.Background(), "hello", "nova")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(pcm) != 320*2 {
		t.Errorf("pcm = %d bytes, want %d", len(pcm), 320*2)
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(raw, &req)
		if req["voice"] != defaultVoice {
			t.Errorf("voice = %v, want %q", req["voice"], defaultVoice)
		}
		w.Write(make([]byte, 2))
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}
