// Package captions persists live and final captions, the transcript logs and
// the HTML overlay snapshot read by the streaming software.
package captions

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
	"scanner-caption-service/internal/service/highlight"
)

// Output file names inside Config.Dir.
const (
	LiveFile           = "live_caption.txt"
	FinalFile          = "final_caption.txt"
	CaptionLogFile     = "caption_log.txt"
	TranscriptLogFile  = "full_transcript_log.txt"
	TranscriptHTMLFile = "full_transcript_log.html"
)

// TimestampLayout is the timestamp format of log lines and blocks.
const TimestampLayout = "2006-01-02 15:04:05"

//go:embed templates/overlay.html.tmpl
var templateFS embed.FS

var overlayTemplate = template.Must(template.ParseFS(templateFS, "templates/overlay.html.tmpl"))

// Kind distinguishes committed transcript entries from interim ones.
type Kind int

const (
	KindFinal Kind = iota
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindFinal:
		return "final"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Line is one caption line in a block.
type Line struct {
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}

// Block groups the lines of one burst of radio traffic.
type Block struct {
	Timestamp time.Time `json:"timestamp"`
	Lines     []Line    `json:"lines"`
	Lookups   []string  `json:"lookups,omitempty"`
}

func (b Block) clone() Block {
	b.Lines = append([]Line(nil), b.Lines...)
	b.Lookups = append([]string(nil), b.Lookups...)
	return b
}

// Config holds caption store settings.
type Config struct {
	Dir string
	// LiveMaxChars bounds the live caption, keeping the tail.
	LiveMaxChars int
	// SilenceGap starts a new block when this much time passed since the
	// previous entry.
	SilenceGap      time.Duration
	MaxBlocks       int
	VisibleBlocks   int
	WriteRetries    int
	RetryDelay      time.Duration
	RefreshInterval time.Duration
}

// DefaultConfig returns the standard store settings.
func DefaultConfig() Config {
	return Config{
		Dir:             "obs_text",
		LiveMaxChars:    300,
		SilenceGap:      4 * time.Second,
		MaxBlocks:       300,
		VisibleBlocks:   6,
		WriteRetries:    20,
		RetryDelay:      30 * time.Millisecond,
		RefreshInterval: 1500 * time.Millisecond,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithFileSystem replaces the local disk.
func WithFileSystem(fs FileSystem) Option {
	return func(s *Store) { s.fs = fs }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSleep replaces time.Sleep between write retries.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Store) { s.sleep = sleep }
}

// WithHighlighter sets the highlighter used for the HTML snapshot.
func WithHighlighter(h *highlight.Highlighter) Option {
	return func(s *Store) { s.hl = h }
}

// Store writes caption output. All methods are safe for concurrent use;
// write failures are logged and counted, never returned.
type Store struct {
	cfg     Config
	fs      FileSystem
	now     func() time.Time
	sleep   func(time.Duration)
	hl      *highlight.Highlighter
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	lastLive  string
	lastFinal string
	lastEntry time.Time
	blocks    []Block
	snapshot  string
}

// NewStore creates the output directory and the initial files.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.LiveMaxChars <= 0 {
		cfg.LiveMaxChars = def.LiveMaxChars
	}
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = def.SilenceGap
	}
	if cfg.MaxBlocks <= 0 {
		cfg.MaxBlocks = def.MaxBlocks
	}
	if cfg.VisibleBlocks <= 0 {
		cfg.VisibleBlocks = def.VisibleBlocks
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = def.WriteRetries
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}

	s := &Store{
		cfg:     cfg,
		fs:      OSFileSystem{},
		now:     time.Now,
		sleep:   time.Sleep,
		logger:  logging.WithComponent("captions"),
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hl == nil {
		s.hl = highlight.New(highlight.DefaultConfig())
	}

	if err := s.fs.MkdirAll(cfg.Dir); err != nil {
		return nil, fmt.Errorf("create caption dir %s: %w", cfg.Dir, err)
	}
	for _, name := range []string{CaptionLogFile, TranscriptLogFile} {
		if err := s.fs.AppendLine(s.path(name), ""); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
	}
	s.atomicWrite(LiveFile, nil)
	s.atomicWrite(FinalFile, nil)
	s.renderLocked()

	s.logger.Info().
		Str("dir", cfg.Dir).
		Dur("silenceGap", cfg.SilenceGap).
		Int("maxBlocks", cfg.MaxBlocks).
		Msg("Caption store ready")
	return s, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.cfg.Dir, name)
}

// UpdateLive writes the live caption, keeping the last LiveMaxChars
// characters. Unchanged text is not rewritten.
func (s *Store) UpdateLive(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	text = tail(text, s.cfg.LiveMaxChars)

	s.mu.Lock()
	defer s.mu.Unlock()
	if text == s.lastLive {
		return
	}
	s.lastLive = text
	s.atomicWrite(LiveFile, []byte(text))
}

// WriteFinal writes the final caption and appends it to the caption log.
func (s *Store) WriteFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFinal = text
	s.atomicWrite(FinalFile, []byte(text))
	s.appendLine(CaptionLogFile, fmt.Sprintf("[%s] %s\n", s.now().Format(TimestampLayout), text))
}

// AddEntry appends text to the full transcript log and the block history,
// then regenerates the HTML snapshot. A non-empty lookup is recorded under
// the entry.
func (s *Store) AddEntry(text string, kind Kind, lookup string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	lookup = strings.TrimSpace(lookup)
	partial := kind == KindPartial

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	newBlock := s.lastEntry.IsZero() || len(s.blocks) == 0 || now.Sub(s.lastEntry) >= s.cfg.SilenceGap

	logText := text
	if partial {
		logText += " [partial]"
	}
	if newBlock {
		s.appendLine(TranscriptLogFile, fmt.Sprintf("[%s] %s\n", now.Format(TimestampLayout), logText))
		s.blocks = append(s.blocks, Block{Timestamp: now})
	} else {
		s.appendLine(TranscriptLogFile, "    "+logText+"\n")
	}
	if lookup != "" {
		s.appendLine(TranscriptLogFile, "    INFO LOOKUP: "+lookup+"\n")
	}

	last := &s.blocks[len(s.blocks)-1]
	last.Lines = append(last.Lines, Line{Text: text, Partial: partial})
	if lookup != "" {
		last.Lookups = append(last.Lookups, lookup)
	}

	if over := len(s.blocks) - s.cfg.MaxBlocks; over > 0 {
		n := copy(s.blocks, s.blocks[over:])
		clear(s.blocks[n:])
		s.blocks = s.blocks[:n]
	}
	s.lastEntry = now
	s.metrics.SetCaptionBlocks(len(s.blocks))

	s.renderLocked()
}

// Blocks returns a copy of the block history, oldest first.
func (s *Store) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBlocks(s.blocks)
}

// Visible returns a copy of the blocks shown in the HTML snapshot.
func (s *Store) Visible() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBlocks(s.visibleLocked())
}

// Snapshot returns the last rendered HTML document.
func (s *Store) Snapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// LiveText returns the current live caption.
func (s *Store) LiveText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLive
}

// FinalText returns the current final caption.
func (s *Store) FinalText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFinal
}

func (s *Store) visibleLocked() []Block {
	if len(s.blocks) > s.cfg.VisibleBlocks {
		return s.blocks[len(s.blocks)-s.cfg.VisibleBlocks:]
	}
	return s.blocks
}

func cloneBlocks(in []Block) []Block {
	out := make([]Block, len(in))
	for i, b := range in {
		out[i] = b.clone()
	}
	return out
}

type viewLine struct {
	HTML    template.HTML
	Partial bool
}

type viewBlock struct {
	Age       string
	Timestamp string
	Lines     []viewLine
	Lookups   []string
}

type view struct {
	Blocks        []viewBlock
	RefreshMillis int64
}

func (s *Store) renderLocked() {
	visible := s.visibleLocked()
	v := view{
		Blocks:        make([]viewBlock, 0, len(visible)),
		RefreshMillis: s.cfg.RefreshInterval.Milliseconds(),
	}
	for i, b := range visible {
		vb := viewBlock{
			Age:       "old",
			Timestamp: b.Timestamp.Format(TimestampLayout),
			Lookups:   b.Lookups,
		}
		if i == len(visible)-1 {
			vb.Age = "new"
		}
		for _, l := range b.Lines {
			vb.Lines = append(vb.Lines, viewLine{HTML: s.hl.HTML(l.Text), Partial: l.Partial})
		}
		v.Blocks = append(v.Blocks, vb)
	}

	var buf bytes.Buffer
	if err := overlayTemplate.Execute(&buf, v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render caption snapshot")
		return
	}
	s.snapshot = buf.String()
	s.atomicWrite(TranscriptHTMLFile, buf.Bytes())
}

// atomicWrite writes data to a sibling temporary file and renames it over
// name, so readers never observe a partial file. Failed attempts are
// retried; after the last retry the file is written in place.
func (s *Store) atomicWrite(name string, data []byte) {
	dst := s.path(name)
	tmp := dst + ".tmp"

	var err error
	for attempt := 0; attempt < s.cfg.WriteRetries; attempt++ {
		if err = s.fs.WriteFile(tmp, data); err == nil {
			if err = s.fs.Rename(tmp, dst); err == nil {
				s.metrics.RecordCaptionWrite(name, attempt, false, nil)
				return
			}
		}
		s.sleep(s.cfg.RetryDelay)
	}

	s.logger.Warn().
		Err(err).
		Str("file", name).
		Int("retries", s.cfg.WriteRetries).
		Msg("Atomic write failed, writing in place")

	if err = s.fs.WriteFile(dst, data); err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("Caption write failed")
	}
	s.metrics.RecordCaptionWrite(name, s.cfg.WriteRetries, true, err)
}

func (s *Store) appendLine(name, line string) {
	err := s.fs.AppendLine(s.path(name), line)
	if err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("Caption log append failed")
	}
	s.metrics.RecordCaptionWrite(name, 0, false, err)
}

// tail returns the last limit characters of text.
func tail(text string, limit int) string {
	n := utf8.RuneCountInString(text)
	if n <= limit {
		return text
	}
	skip := n - limit
	for i := range text {
		if skip == 0 {
			return text[i:]
		}
		skip--
	}
	return ""
}
