package telegram

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/council"
	"github.com/mtzanidakis/council/internal/store"
)

func TestChunkMessage(t *testing.T) {
	// Short message
	chunks := chunkMessage("hello", 4096)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}

	// Exact limit
	msg := make([]byte, 4096)
	for i := range msg {
		msg[i] = 'a'
	}
	chunks = chunkMessage(string(msg), 4096)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk for exact limit, got %d", len(chunks))
	}

	// Over limit
	msg = make([]byte, 8192)
	for i := range msg {
		msg[i] = 'a'
	}
	chunks = chunkMessage(string(msg), 4096)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(chunks))
	}

	// Split at newline
	msg = make([]byte, 5000)
	for i := range msg {
		msg[i] = 'a'
	}
	msg[3000] = '\n'
	chunks = chunkMessage(string(msg), 4096)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks with newline split, got %d", len(chunks))
	}
	if len(chunks[0]) != 3001 { // Up to and including the newline
		t.Errorf("expected first chunk length 3001, got %d", len(chunks[0]))
	}

	// Multi-byte runes stay whole
	text := strings.Repeat("日", 2000)
	chunks = chunkMessage(text, maxMessageLen)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for CJK text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if len(c) > maxMessageLen {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble the message")
	}
}

func TestToTelegramMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**bold**", "*bold*"},
		{"hello **world**!", "hello *world*!"},
		{"**a** and **b**", "*a* and *b*"},
		{"no bold here", "no bold here"},
		{"*already single*", "*already single*"},
	}
	for _, tt := range tests {
		got := toTelegramMarkdown(tt.in)
		if got != tt.want {
			t.Errorf("toTelegramMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		cmd, arg string
		ok       bool
	}{
		{"/council hierarchy", "council", "hierarchy", true},
		{"/Council@council_bot  round_table ", "council", "round_table", true},
		{"/new", "new", "", true},
		{"what is 2+2?", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		cmd, arg, ok := parseCommand(tt.in)
		if cmd != tt.cmd || arg != tt.arg || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q, %q, %v", tt.in, cmd, arg, ok)
		}
	}
}

func newTestBot(t *testing.T, allow ...int64) *Bot {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "tg.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &Bot{
		store: s,
		cfg:   config.TelegramConfig{AllowFrom: allow},
		types: make(map[int64]council.Type),
	}
}

func TestCouncilCommand(t *testing.T) {
	b := newTestBot(t)

	if got := b.councilType(42); got != "" {
		t.Fatalf("expected no selection, got %q", got)
	}
	if reply := b.command(42, "council", ""); !strings.Contains(reply, "default (current)") {
		t.Errorf("expected default marked current, got %q", reply)
	}

	b.command(42, "council", "assembly_line")
	if got := b.councilType(42); got != council.TypeAssemblyLine {
		t.Errorf("expected assembly_line, got %q", got)
	}
	if got := b.councilType(7); got != "" {
		t.Errorf("selection leaked to another chat: %q", got)
	}

	reply := b.command(42, "council", "mob")
	if !strings.HasPrefix(reply, "Unknown council") {
		t.Errorf("unexpected reply %q", reply)
	}
	if got := b.councilType(42); got != council.TypeAssemblyLine {
		t.Errorf("invalid selection must not change the council, got %q", got)
	}
}

func TestNewCommandResetsConversation(t *testing.T) {
	b := newTestBot(t)

	if err := b.ensureConversation(conversationID(42)); err != nil {
		t.Fatal(err)
	}
	if err := b.ensureConversation(conversationID(42)); err != nil {
		t.Fatalf("second ensure should be a no-op: %v", err)
	}
	b.command(42, "new", "")

	c, err := b.store.GetConversation("tg-42")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("expected conversation to be deleted")
	}
}

func TestAllowed(t *testing.T) {
	if !newTestBot(t).allowed(99) {
		t.Error("empty allow list should admit everyone")
	}
	b := newTestBot(t, 1, 2)
	if !b.allowed(2) || b.allowed(3) {
		t.Error("allow list not enforced")
	}
}

func TestFormatReply(t *testing.T) {
	out := &council.HierarchyResult{LeadDecision: council.LeadDecision{Decision: "  ship it \n"}}
	if got := formatReply(out); got != "ship it" {
		t.Errorf("unexpected reply %q", got)
	}
	if got := formatReply(&council.HierarchyResult{}); got != "The council reached no answer." {
		t.Errorf("unexpected empty reply %q", got)
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		in      string
		current council.Type
		want    council.Type
		text    string
	}{
		{"@hierarchy should we ship?", "", council.TypeHierarchy, "should we ship?"},
		{"@round_table  why?", council.TypeHierarchy, council.TypeRoundTable, "why?"},
		{"@someone hello", council.TypeAssemblyLine, council.TypeAssemblyLine, "@someone hello"},
		{"@hierarchy", "", "", "@hierarchy"},
		{"plain question", council.TypeRoundTable, council.TypeRoundTable, "plain question"},
	}
	for _, tt := range tests {
		got, text := route(tt.in, tt.current)
		if got != tt.want || text != tt.text {
			t.Errorf("route(%q) = %q, %q; want %q, %q", tt.in, got, text, tt.want, tt.text)
		}
	}
}
