package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/council/internal/council"
	"github.com/mtzanidakis/council/internal/natsbus"
	"github.com/nats-io/nats.go"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	defaultURL := os.Getenv("NATS_URL")
	if defaultURL == "" {
		defaultURL = "nats://localhost:4222"
	}
	url := fs.String("nats", defaultURL, "NATS server of a running council")
	if err := fs.Parse(args); err != nil {
		return err
	}

	topic := natsbus.TopicEventsCouncils
	if fs.NArg() > 0 {
		topic = natsbus.TopicEventsCouncil(fs.Arg(0))
	}

	client, err := natsbus.NewClientFromURL(*url)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := client.Subscribe(topic, func(msg *nats.Msg) {
		printEvent(os.Stdout, natsbus.ConversationFromTopic(msg.Subject), msg.Data)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := client.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Watching %s on %s\n", topic, *url)
	<-ctx.Done()
	return nil
}

// printEvent writes a one-line summary of an encoded council event.
func printEvent(w io.Writer, conversation string, data []byte) {
	ev, err := council.DecodeEvent(data)
	if err != nil {
		fmt.Fprintf(w, "[%s] undecodable event: %v\n", conversation, err)
		return
	}

	var detail string
	switch e := ev.(type) {
	case council.CouncilStart:
		detail = string(e.CouncilType)
	case council.Stage1Complete:
		detail = fmt.Sprintf("%d responses", len(e.Data))
	case council.Stage2Complete:
		detail = fmt.Sprintf("%d rankings", len(e.Data))
	case council.Stage3Complete:
		detail = e.Data.Model
	case council.RoundStart:
		detail = fmt.Sprintf("round %d (%s)", e.Round, e.Label)
	case council.RoundComplete:
		detail = fmt.Sprintf("round %d (%s): %d responses", e.Round, e.Label, len(e.Data))
	case council.TitleComplete:
		detail = e.Data.Title
	case council.Error:
		detail = e.Message
	}
	if detail == "" {
		fmt.Fprintf(w, "[%s] %s\n", conversation, ev.EventType())
		return
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", conversation, ev.EventType(), detail)
}
