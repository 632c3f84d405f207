package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scanner-caption-service/internal/models"
	"scanner-caption-service/internal/schema"
	"scanner-caption-service/internal/service/captions"
	"scanner-caption-service/internal/service/stt"
	"scanner-caption-service/internal/service/utterance"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	started bool
	closed  bool
	audio   [][]byte
	cb      stt.Callback
	sendErr error
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	m.started = true
	m.cb = cb
	return nil
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.audio = append(m.audio, audio)
	return nil
}

func (m *testAdapter) Listen(ctx context.Context) error { return nil }

func (m *testAdapter) Close() error {
	m.closed = true
	return nil
}

type recordingPublisher struct {
	partials []models.CaptionEvent
	finals   []models.CaptionEvent
}

func (p *recordingPublisher) PublishPartial(_ context.Context, _ string, event any) error {
	p.partials = append(p.partials, event.(models.CaptionEvent))
	return nil
}

func (p *recordingPublisher) PublishFinal(_ context.Context, _ string, event any) error {
	p.finals = append(p.finals, event.(models.CaptionEvent))
	return nil
}

type recordingBroadcaster struct {
	events []models.CaptionEvent
}

func (b *recordingBroadcaster) Broadcast(ev models.CaptionEvent) {
	b.events = append(b.events, ev)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	handler *Handler
	adapter *testAdapter
	store   *captions.Store
	tracker *utterance.Tracker
	pub     *recordingPublisher
	hub     *recordingBroadcaster
	clock   *fakeClock
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		adapter: &testAdapter{},
		pub:     &recordingPublisher{},
		hub:     &recordingBroadcaster{},
		clock:   &fakeClock{t: time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)},
		dir:     t.TempDir(),
	}
	store, err := captions.NewStore(captions.Config{Dir: env.dir}, captions.WithClock(env.clock.Now))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	env.store = store
	env.tracker = utterance.NewTracker("sess", nil, utterance.DefaultConfig())
	env.handler = NewHandler(env.adapter, "sess", "mock", Deps{
		Store:       store,
		Tracker:     env.tracker,
		Publisher:   env.pub,
		Validator:   schema.New(),
		Broadcaster: env.hub,
	}, WithClock(env.clock.Now))
	return env
}

func (e *testEnv) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestHandler_StartAndSendAudio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.handler.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !env.adapter.started || env.adapter.cb != env.handler {
		t.Error("handler should register itself as the adapter callback")
	}
	if err := env.handler.SendAudio(ctx, []byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if len(env.adapter.audio) != 1 {
		t.Errorf("expected 1 frame forwarded, got %d", len(env.adapter.audio))
	}

	env.adapter.sendErr = errors.New("connection reset")
	if err := env.handler.SendAudio(ctx, []byte{3, 4}); err == nil {
		t.Error("adapter error should be returned")
	}

	env.handler.Close()
	if !env.adapter.closed {
		t.Error("Close should close the adapter")
	}
}

func TestHandler_FinalCaption(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnPartial("Adam 12")
	if got := env.read(t, captions.LiveFile); got != "Adam 12" {
		t.Errorf("live after partial = %q", got)
	}

	env.clock.Advance(time.Second)
	env.handler.OnFinal("Adam 12 show me 10-97", 0.93)

	want := "Adam 12 show me 10-97 (Arrived at assignment)"
	if got := env.read(t, captions.FinalFile); got != want {
		t.Errorf("final = %q, want %q", got, want)
	}
	if got := env.read(t, captions.LiveFile); got != want {
		t.Errorf("live = %q, want %q", got, want)
	}
	if got := env.read(t, captions.CaptionLogFile); got != "[2026-03-14 22:00:01] "+want+"\n" {
		t.Errorf("caption log = %q", got)
	}

	if len(env.pub.partials) != 1 || len(env.pub.finals) != 1 {
		t.Fatalf("published %d partials, %d finals", len(env.pub.partials), len(env.pub.finals))
	}
	final := env.pub.finals[0]
	if final.UtteranceID != "sess-utt-1" || final.UtteranceID != env.pub.partials[0].UtteranceID {
		t.Errorf("partial and final should share the utterance, got %q", final.UtteranceID)
	}
	if final.Text != "Adam 12 show me 10-97" || final.Caption != want || final.Confidence != 0.93 || final.Alert {
		t.Errorf("unexpected final event %+v", final)
	}
	if len(env.hub.events) != 2 {
		t.Errorf("expected 2 broadcasts, got %d", len(env.hub.events))
	}
}

func TestHandler_FinalLogCarriesUtterance(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	env := newTestEnv(t)
	env.handler.OnFinal("copy that", 0.8)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if entry["message"] != "copy that" {
			continue
		}
		found = true
		if entry["sessionId"] != "sess" || entry["utteranceId"] != "sess-utt-1" || entry["sttProvider"] != "mock" {
			t.Errorf("final log line missing utterance context: %v", entry)
		}
	}
	if !found {
		t.Errorf("no log line for the final caption in %q", buf.String())
	}
}

func TestHandler_AlertPrefix(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnFinal("Lincoln 7 code 3 to a 211 PC", 0.9)

	annotated := "Lincoln 7 code 3 to a 211 PC (Robbery (FELONY))"
	if got := env.read(t, captions.FinalFile); got != AlertPrefix+annotated {
		t.Errorf("final = %q", got)
	}
	blocks := env.store.Blocks()
	if len(blocks) != 1 || blocks[0].Lines[0].Text != annotated {
		t.Errorf("block line should carry the annotated text without the prefix: %+v", blocks)
	}
	if !env.pub.finals[0].Alert {
		t.Error("event should be flagged as an alert")
	}
}

func TestHandler_Lookup(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnFinal("10-28 adam boy charles space david edward frank", 0.88)

	blocks := env.store.Blocks()
	if len(blocks) != 1 || len(blocks[0].Lookups) != 1 || blocks[0].Lookups[0] != "ABC DEF" {
		t.Fatalf("expected lookup on the block, got %+v", blocks)
	}
	if !strings.Contains(blocks[0].Lines[0].Text, "10-28 (Request registration info)") {
		t.Errorf("trigger should still be annotated: %q", blocks[0].Lines[0].Text)
	}
	if !strings.Contains(env.read(t, captions.TranscriptLogFile), "    INFO LOOKUP: ABC DEF\n") {
		t.Error("transcript log missing the lookup line")
	}
	if env.pub.finals[0].Lookup != "ABC DEF" {
		t.Errorf("event lookup = %q", env.pub.finals[0].Lookup)
	}
}

func TestHandler_ForcedPartial(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnPartial("Adam 12 en route")
	env.clock.Advance(6 * time.Second)
	env.handler.OnPartial("Adam 12 en route")

	blocks := env.store.Blocks()
	if len(blocks) != 1 || len(blocks[0].Lines) != 1 {
		t.Fatalf("expected one forced entry, got %+v", blocks)
	}
	if line := blocks[0].Lines[0]; line.Text != "Adam 12 en route" || !line.Partial {
		t.Errorf("unexpected line %+v", line)
	}
	if !strings.Contains(env.read(t, captions.TranscriptLogFile), "Adam 12 en route [partial]") {
		t.Error("transcript log should mark the partial")
	}
	if len(env.pub.partials) != 2 || env.pub.partials[0].Forced || !env.pub.partials[1].Forced {
		t.Errorf("only the second partial event should be forced: %+v", env.pub.partials)
	}
}

func TestHandler_EmptyTextIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnPartial("   ")
	env.handler.OnFinal("", 0.5)

	if len(env.pub.partials)+len(env.pub.finals)+len(env.hub.events) != 0 {
		t.Error("empty transcripts should not produce events")
	}
	if got := env.read(t, captions.CaptionLogFile); got != "" {
		t.Errorf("caption log = %q", got)
	}
	if env.tracker.State() != utterance.StateIdle {
		t.Errorf("tracker should stay idle, got %v", env.tracker.State())
	}
}

func TestHandler_ErrorDropsUtterance(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnPartial("Adam 12 en route")
	env.handler.OnError(errors.New("stream reset"))

	if env.tracker.State() != utterance.StateDropped {
		t.Errorf("expected dropped utterance, got %v", env.tracker.State())
	}
	if len(env.pub.finals) != 0 {
		t.Error("no final should be emitted for a dropped utterance")
	}

	env.handler.OnFinal("copy", 0.9)
	if id := env.pub.finals[0].UtteranceID; id != "sess-utt-2" {
		t.Errorf("final after drop should open a new utterance, got %q", id)
	}
}

func TestHandler_ConfidenceOutOfRange(t *testing.T) {
	env := newTestEnv(t)

	env.handler.OnFinal("copy", 1.7)
	if len(env.pub.finals) != 1 || env.pub.finals[0].Confidence != 0 {
		t.Errorf("out-of-range confidence should be zeroed and published: %+v", env.pub.finals)
	}
}
