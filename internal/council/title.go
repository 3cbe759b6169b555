package council

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	DefaultTitle   = "New Conversation"
	maxTitleLength = 50
)

// GenerateTitle asks the title model for a short conversation title. It never fails:
// any problem yields DefaultTitle.
func (c *Council) GenerateTitle(ctx context.Context, query string) string {
	if c.titleModel == "" {
		return DefaultTitle
	}
	text, ok := c.ask(ctx, c.titleModel, titlePrompt(query), "")
	if !ok {
		slog.Warn("title generation failed", "model", c.titleModel)
		return DefaultTitle
	}
	return cleanTitle(text)
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	if s == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(s) > maxTitleLength {
		r := []rune(s)
		s = string(r[:maxTitleLength-3]) + "..."
	}
	return s
}

// TitleTask is a title generation running next to a council run. Wait joins it.
type TitleTask struct {
	done  chan struct{}
	title string
}

// StartTitle starts title generation in the background.
func (c *Council) StartTitle(ctx context.Context, query string) *TitleTask {
	t := &TitleTask{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.title = c.GenerateTitle(ctx, query)
	}()
	return t
}

// Wait blocks until the title is ready.
func (t *TitleTask) Wait() string {
	<-t.done
	return t.title
}
