package google

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type testCallback struct {
	partials []string
	finals   []string
	ends     int
}

func (c *testCallback) OnPartial(text string)           { c.partials = append(c.partials, text) }
func (c *testCallback) OnFinal(text string, _ float64) { c.finals = append(c.finals, text) }
func (c *testCallback) OnEndOfUtterance()               { c.ends++ }
func (c *testCallback) OnError(error)                   {}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16},
		{"linear16", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestConfig_StreamingConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AudioEncoding = "MULAW"
	cfg.Phrases = []string{"Adam", "ten four"}

	sc := cfg.streamingConfig()
	if !sc.GetInterimResults() {
		t.Error("interim results should be enabled")
	}
	rc := sc.GetConfig()
	if rc.GetEncoding() != speechpb.RecognitionConfig_MULAW || rc.GetSampleRateHertz() != 16000 {
		t.Errorf("unexpected recognition config %v", rc)
	}
	if len(rc.GetSpeechContexts()) != 1 || len(rc.GetSpeechContexts()[0].GetPhrases()) != 2 {
		t.Errorf("expected one speech context with 2 phrases, got %v", rc.GetSpeechContexts())
	}

	cfg.Phrases = nil
	if ctxs := cfg.streamingConfig().GetConfig().GetSpeechContexts(); len(ctxs) != 0 {
		t.Errorf("no phrases should mean no speech context, got %v", ctxs)
	}
}

func result(text string, final bool) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		IsFinal: final,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: text, Confidence: 0.9},
		},
	}
}

func TestDispatch(t *testing.T) {
	cb := &testCallback{}

	dispatch(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result("Adam 12", false),
			result(" show me ", false),
			{IsFinal: false},
		},
	}, cb)
	dispatch(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result("Adam 12 show me 97", true),
		},
		SpeechEventType: speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
	}, cb)
	dispatch(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{result("  ", false)},
	}, cb)

	if len(cb.partials) != 1 || cb.partials[0] != "Adam 12 show me" {
		t.Errorf("partials = %q", cb.partials)
	}
	if len(cb.finals) != 1 || cb.finals[0] != "Adam 12 show me 97" {
		t.Errorf("finals = %q", cb.finals)
	}
	if cb.ends != 1 {
		t.Errorf("expected 1 end of utterance, got %d", cb.ends)
	}
}
