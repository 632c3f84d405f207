package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type testCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	ends     int
	errors   []error
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, text)
}

func (c *testCallback) OnEndOfUtterance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) finalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finals)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(DefaultConfig()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestConfig_ListenURL(t *testing.T) {
	cfg := DefaultConfig()
	raw, err := cfg.ListenURL()
	if err != nil {
		t.Fatalf("ListenURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "api.deepgram.com" || u.Path != "/v1/listen" {
		t.Errorf("unexpected endpoint %s", raw)
	}

	q := u.Query()
	want := map[string]string{
		"model":            "nova-3",
		"language":         "en-US",
		"encoding":         "linear16",
		"sample_rate":      "16000",
		"channels":         "1",
		"smart_format":     "true",
		"numerals":         "true",
		"interim_results":  "true",
		"endpointing":      "1000",
		"utterance_end_ms": "1000",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	keyterms := q["keyterm"]
	if len(keyterms) != len(DefaultKeyterms) {
		t.Errorf("expected %d keyterms, got %d", len(DefaultKeyterms), len(keyterms))
	}
	found := false
	for _, k := range keyterms {
		if k == "ten twenty eight" {
			found = true
		}
	}
	if !found {
		t.Error("multi-word keyterm should survive encoding")
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    result
		wantErr bool
	}{
		{
			name: "channel object interim",
			data: `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":" Adam 12 ","confidence":0.8}]}}`,
			want: result{text: "Adam 12", confidence: 0.8},
		},
		{
			name: "channel list final",
			data: `{"type":"Results","is_final":true,"channel":[{"alternatives":[{"transcript":"copy","confidence":0.9}]}]}`,
			want: result{text: "copy", confidence: 0.9, final: true},
		},
		{
			name: "speech_final counts as final",
			data: `{"speech_final":true,"channel":{"alternatives":[{"transcript":"ten four"}]}}`,
			want: result{text: "ten four", final: true},
		},
		{
			name: "top-level alternatives fallback",
			data: `{"is_final":true,"channel":{},"alternatives":[{"transcript":"standby"}]}`,
			want: result{text: "standby", final: true},
		},
		{
			name: "no alternatives",
			data: `{"type":"Metadata"}`,
			want: result{},
		},
		{
			name: "utterance end",
			data: `{"type":"UtteranceEnd","last_word_end":2.1}`,
			want: result{utteranceEnd: true},
		},
		{
			name:    "malformed",
			data:    `{"channel":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMessage([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// fakeDeepgram answers the first audio frame with a scripted set of messages
// and closes once it receives CloseStream.
func fakeDeepgram(t *testing.T, gotAuth chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && strings.Contains(string(data), "CloseStream") {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			for _, msg := range []string{
				`{"is_final":false,"channel":{"alternatives":[{"transcript":"Adam 12"}]}}`,
				`not json`,
				`{"is_final":true,"channel":[{"alternatives":[{"transcript":"Adam 12 ten ninety seven","confidence":0.9}]}]}`,
				`{"type":"UtteranceEnd"}`,
			} {
				conn.WriteMessage(websocket.TextMessage, []byte(msg))
			}
		}
	}))
}

func TestAdapter_Stream(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := fakeDeepgram(t, gotAuth)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cb := &testCallback{}
	if err := a.Start(ctx, cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if auth := <-gotAuth; auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Listen(ctx) }()

	if err := a.SendAudio(ctx, []byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for cb.finalCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errc; err != nil {
		t.Errorf("Listen after Close should return nil, got %v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.partials) != 1 || cb.partials[0] != "Adam 12" {
		t.Errorf("partials = %v", cb.partials)
	}
	if len(cb.finals) != 1 || cb.finals[0] != "Adam 12 ten ninety seven" {
		t.Errorf("finals = %v", cb.finals)
	}
	if cb.ends != 1 {
		t.Errorf("expected 1 utterance end, got %d", cb.ends)
	}
	if len(cb.errors) != 0 {
		t.Errorf("unexpected errors: %v", cb.errors)
	}
}

func TestAdapter_ServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	a, _ := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cb := &testCallback{}
	if err := a.Start(ctx, cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Listen(ctx); err == nil {
		t.Error("expected error when the server drops the connection")
	}
	if len(cb.errors) != 1 {
		t.Errorf("expected OnError once, got %d", len(cb.errors))
	}
}

func TestAdapter_NotStarted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	a, _ := New(cfg)

	if err := a.SendAudio(context.Background(), []byte{1}); err == nil {
		t.Error("SendAudio before Start should fail")
	}
	if err := a.Listen(context.Background()); err == nil {
		t.Error("Listen before Start should fail")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close before Start should be a no-op, got %v", err)
	}
}
