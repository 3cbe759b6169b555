package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const maxMessageLen = 4096

// SendMessage delivers text in chunks, as Markdown when Telegram accepts it.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(chatID), toTelegramMarkdown(chunk)).WithParseMode(telego.ModeMarkdown)
		_, err := b.bot.SendMessage(ctx, msg)
		if err == nil {
			continue
		}
		slog.Debug("markdown rejected, sending plain text", "chat", chatID, "error", err)
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}

// chunkMessage splits a message into chunks that fit within Telegram's message size limit.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Try to split at a newline
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}
		// Never split a multi-byte rune.
		for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
			cutAt--
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}

var doubleStar = regexp.MustCompile(`\*\*(.+?)\*\*`)

// toTelegramMarkdown rewrites model Markdown bold into Telegram's legacy syntax.
func toTelegramMarkdown(s string) string {
	return doubleStar.ReplaceAllString(s, "*$1*")
}
