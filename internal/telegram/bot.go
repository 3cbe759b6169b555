package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/council/internal/chat"
	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/council"
	"github.com/mtzanidakis/council/internal/store"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	chat    *chat.Service
	store   *store.Store
	cfg     config.TelegramConfig
	cancel  context.CancelFunc

	mu    sync.Mutex
	types map[int64]council.Type // per-chat council selection
}

func NewBot(cfg config.TelegramConfig, svc *chat.Service, s *store.Store) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		bot:   bot,
		chat:  svc,
		store: s,
		cfg:   cfg,
		types: make(map[int64]council.Type),
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		// Councils take minutes; keep the update loop free.
		go b.handleMessage(ctx, message)
		return nil
	})

	go handler.Start()

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.allowed(userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}

	if cmd, arg, ok := parseCommand(text); ok {
		reply := b.command(chatID, cmd, arg)
		if err := b.SendMessage(ctx, chatID, reply); err != nil {
			slog.Error("failed to send telegram message", "chat", chatID, "error", err)
		}
		return
	}

	b.runCouncil(ctx, chatID, text)
}

func (b *Bot) runCouncil(ctx context.Context, chatID int64, text string) {
	convID := conversationID(chatID)
	if err := b.ensureConversation(convID); err != nil {
		slog.Error("telegram conversation unavailable", "conversation", convID, "error", err)
		_ = b.SendMessage(ctx, chatID, "Sorry, I could not open this conversation.")
		return
	}

	councilType, text := route(text, b.councilType(chatID))

	stopTyping := b.keepTyping(ctx, chatID)
	out, err := b.chat.Send(ctx, convID, chat.SendRequest{
		Content:     text,
		CouncilType: string(councilType),
	})
	stopTyping()

	if err != nil {
		slog.Error("telegram council failed", "conversation", convID, "error", err)
		reply := "Sorry, the council could not answer your message."
		if errors.Is(err, chat.ErrBusy) {
			reply = "The council is still deliberating on your previous message."
		}
		_ = b.SendMessage(ctx, chatID, reply)
		return
	}

	if err := b.SendMessage(ctx, chatID, formatReply(out)); err != nil {
		slog.Error("failed to send telegram message", "chat", chatID, "error", err)
	}
}

// command handles a bot command and returns the reply text.
func (b *Bot) command(chatID int64, cmd, arg string) string {
	switch cmd {
	case "start", "help":
		return helpText(b.councilType(chatID))
	case "council":
		if arg == "" {
			return councilList(b.councilType(chatID))
		}
		t, err := council.ParseType(arg)
		if err != nil {
			return fmt.Sprintf("Unknown council %q.\n\n%s", arg, councilList(b.councilType(chatID)))
		}
		b.mu.Lock()
		b.types[chatID] = t
		b.mu.Unlock()
		return fmt.Sprintf("Council set to *%s*.", t)
	case "new":
		if _, err := b.store.DeleteConversation(conversationID(chatID)); err != nil {
			slog.Error("reset telegram conversation failed", "chat", chatID, "error", err)
			return "Sorry, I could not reset this conversation."
		}
		return "Started a new conversation."
	default:
		return fmt.Sprintf("Unknown command /%s. Send /help for usage.", cmd)
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.cfg.AllowFrom) == 0 || slices.Contains(b.cfg.AllowFrom, userID)
}

func (b *Bot) councilType(chatID int64) council.Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.types[chatID]; ok {
		return t
	}
	return ""
}

func (b *Bot) ensureConversation(id string) error {
	c, err := b.store.GetConversation(id)
	if err != nil {
		return err
	}
	if c != nil {
		return nil
	}
	_, err = b.store.CreateConversation(id)
	return err
}

// keepTyping refreshes the typing indicator until the returned func is called.
func (b *Bot) keepTyping(ctx context.Context, chatID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			_ = b.sendChatAction(ctx, chatID, "typing")
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}

func conversationID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// route picks the council for one message. An "@type" prefix naming a known council
// overrides the chat selection and is stripped; anything else goes to current.
func route(text string, current council.Type) (council.Type, string) {
	if !strings.HasPrefix(text, "@") {
		return current, text
	}
	name, rest, _ := strings.Cut(text, " ")
	t, err := council.ParseType(strings.TrimPrefix(name, "@"))
	if err != nil || strings.TrimSpace(rest) == "" {
		return current, text
	}
	return t, strings.TrimSpace(rest)
}

// parseCommand splits "/cmd@bot arg" into its command and argument.
func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	if cmd == "" {
		return "", "", false
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

func helpText(current council.Type) string {
	return "Send a question and the council of models will answer it.\n\n" +
		"/council <type> selects how the models work together.\n" +
		"@<type> before a question uses that council once.\n" +
		"/new starts a fresh conversation.\n\n" +
		councilList(current)
}

func councilList(current council.Type) string {
	if current == "" {
		current = council.TypeCouncil
	}
	var sb strings.Builder
	sb.WriteString("Available councils:\n")
	for _, info := range council.Types() {
		mark := ""
		if info.Type == current {
			mark = " (current)"
		}
		fmt.Fprintf(&sb, "- %s%s: %s\n", info.Type, mark, info.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatReply(out council.Outcome) string {
	answer := strings.TrimSpace(out.Final())
	if answer == "" {
		answer = "The council reached no answer."
	}
	return answer
}
