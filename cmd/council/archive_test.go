package main

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, id, title string) {
	t.Helper()
	if _, err := s.CreateConversation(id); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateConversationTitle(id, title); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUserMessage(id, "what is "+title+"?"); err != nil {
		t.Fatal(err)
	}
	payload := json.RawMessage(`{"council_type":"hierarchy","lead_decision":{"decision":"42"}}`)
	if err := s.AddAssistantMessage(id, "hierarchy", payload); err != nil {
		t.Fatal(err)
	}
}

func TestConversationFromPath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"document", "conversations/abc.json", "abc"},
		{"leading dot-slash", "./conversations/tg-42.json", "tg-42"},
		{"directory entry", "conversations/", ""},
		{"other dir", "other/abc.json", ""},
		{"nested", "conversations/x/abc.json", ""},
		{"not json", "conversations/abc.txt", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conversationFromPath(tt.input); got != tt.want {
				t.Errorf("conversationFromPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1610612736, "1.5 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	seed(t, src, "c1", "Life")
	seed(t, src, "c2", "Universe")

	var buf bytes.Buffer
	n, err := exportConversations(src, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 exported, got %d", n)
	}

	dst := newTestStore(t)
	imported, skipped, err := importConversations(dst, bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported != 2 || skipped != 0 {
		t.Fatalf("expected 2 imported and 0 skipped, got %d and %d", imported, skipped)
	}

	for _, id := range []string{"c1", "c2"} {
		want, _ := src.GetConversation(id)
		got, err := dst.GetConversation(id)
		if err != nil || got == nil {
			t.Fatalf("conversation %s missing after import: %v", id, err)
		}
		if got.Title != want.Title || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("%s: got %q at %v, want %q at %v", id, got.Title, got.CreatedAt, want.Title, want.CreatedAt)
		}
		if len(got.Messages) != 2 {
			t.Fatalf("%s: expected 2 messages, got %d", id, len(got.Messages))
		}
		if got.Messages[1].CouncilType != "hierarchy" {
			t.Errorf("%s: council type lost: %q", id, got.Messages[1].CouncilType)
		}
		var payload map[string]any
		if err := json.Unmarshal(got.Messages[1].Payload, &payload); err != nil {
			t.Errorf("%s: payload not preserved: %v", id, err)
		}
	}
}

func TestImportSkipsExistingUnlessOverwrite(t *testing.T) {
	src := newTestStore(t)
	seed(t, src, "c1", "Archived")

	var buf bytes.Buffer
	if _, err := exportConversations(src, &buf); err != nil {
		t.Fatal(err)
	}

	dst := newTestStore(t)
	if _, err := dst.CreateConversation("c1"); err != nil {
		t.Fatal(err)
	}

	imported, skipped, err := importConversations(dst, bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatal(err)
	}
	if imported != 0 || skipped != 1 {
		t.Fatalf("expected the existing conversation to be skipped, got %d imported %d skipped", imported, skipped)
	}
	c, _ := dst.GetConversation("c1")
	if c.Title != store.DefaultTitle {
		t.Errorf("existing conversation was modified: %q", c.Title)
	}

	imported, _, err = importConversations(dst, bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}
	if imported != 1 {
		t.Fatalf("expected overwrite import, got %d", imported)
	}
	c, _ = dst.GetConversation("c1")
	if c.Title != "Archived" || len(c.Messages) != 2 {
		t.Errorf("overwrite did not replace the conversation: %q with %d messages", c.Title, len(c.Messages))
	}
}

func TestImportIgnoresForeignEntries(t *testing.T) {
	var buf bytes.Buffer
	zw, _ := zstd.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, content := range map[string]string{
		"README.txt":            "hello",
		"other/c9.json":         `{"id":"c9"}`,
		"conversations/c3.json": `{"id":"c3","title":"Kept","messages":[]}`,
	} {
		_ = tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg})
		_, _ = tw.Write([]byte(content))
	}
	tw.Close()
	zw.Close()

	dst := newTestStore(t)
	imported, _, err := importConversations(dst, &buf, false)
	if err != nil {
		t.Fatal(err)
	}
	if imported != 1 {
		t.Fatalf("expected only the conversation document, got %d", imported)
	}
	if c, _ := dst.GetConversation("c9"); c != nil {
		t.Error("entry outside conversations/ was imported")
	}
}

func TestImportRejectsMismatchedID(t *testing.T) {
	var buf bytes.Buffer
	zw, _ := zstd.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	content := `{"id":"other","messages":[]}`
	_ = tw.WriteHeader(&tar.Header{Name: "conversations/c1.json", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte(content))
	tw.Close()
	zw.Close()

	_, _, err := importConversations(newTestStore(t), &buf, false)
	if err == nil || !strings.Contains(err.Error(), "holds conversation") {
		t.Fatalf("expected id mismatch error, got %v", err)
	}
}

func TestImportInvalidZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.zst")
	os.WriteFile(path, []byte("not zstd data"), 0o644)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, _, err := importConversations(newTestStore(t), f, false); err == nil {
		t.Fatal("expected error for invalid zstd data")
	}
}
