package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mtzanidakis/council/internal/chat"
	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/council"
	"github.com/mtzanidakis/council/internal/llm"
	"github.com/mtzanidakis/council/internal/natsbus"
	"github.com/mtzanidakis/council/internal/store"
	"github.com/mtzanidakis/council/internal/telegram"
	"github.com/mtzanidakis/council/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("council %s\n", version)
	case "serve":
		err = runServe()
	case "ask":
		err = runAsk(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: council <command>

Commands:
  serve      Start the API server and the optional Telegram bot
  ask        Run one council and print its events: ask [-type t] [-iterations n] <query>
  watch      Print live events from a running server: watch [-nats url] [conversation]
  export     Write all conversations to an archive: export -f <out.tar.zst>
  import     Load conversations from an archive: import -f <in.tar.zst> [-overwrite]
  version    Print version
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting council server", "version", version, "models", len(cfg.Council.Models))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS for live event fan-out
	var (
		bus *natsbus.Bus
		pub chat.Publisher
	)
	if cfg.NATS.Enabled {
		bus, err = natsbus.New(cfg.NATS)
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		defer bus.Close()

		client, err := natsbus.NewClient(bus)
		if err != nil {
			return fmt.Errorf("init nats client: %w", err)
		}
		defer client.Close()
		pub = client
		slog.Info("nats started", "url", bus.ClientURL())
	}

	runner := council.New(llm.FromConfig(cfg.Provider), cfg.Council)
	svc := chat.NewService(db, runner, pub)

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, svc, db)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("telegram bot error", "error", err)
			}
		}()
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// HTTP API
	if cfg.Web.Enabled {
		srv := web.NewServer(db, svc, bus, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
				stop()
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	councilType := fs.String("type", "", "council type (default, round_table, hierarchy, assembly_line)")
	iterations := fs.Int("iterations", 0, "round table iterations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: council ask [-type t] [-iterations n] <query>")
		return fmt.Errorf("missing query")
	}
	t, err := council.ParseType(*councilType)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := council.New(llm.FromConfig(cfg.Provider), cfg.Council)
	emitter := council.NewEmitter(council.SinkFunc(func(e council.Event) error {
		return council.WriteSSE(os.Stdout, e)
	}))
	_, err = c.StreamTo(ctx, council.Request{Type: t, Query: query, Iterations: *iterations}, emitter)
	return err
}
