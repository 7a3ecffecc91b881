package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/internal/client/rawws"
	clientws "github.com/omochice/event-relay/internal/client/ws"
	"github.com/omochice/event-relay/pkg/protocol"
)

const sendTimeout = 5 * time.Second

func main() {
	serverURL := flag.String("server", "ws://localhost:9002/ws", "Relay WebSocket URL")
	codecName := flag.String("codec", "json", "Frame codec: json or proto")
	raw := flag.Bool("raw", false, "Use the gobwas/ws dialer instead of nhooyr")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	codec, err := protocol.CodecByName(*codecName)
	if err != nil {
		logger.Error("invalid codec", "err", err)
		os.Exit(1)
	}

	var dialer client.Dialer = clientws.New()
	if *raw {
		dialer = rawws.New()
	}

	manager := client.NewManager(*serverURL, dialer, client.WithCodec(codec), client.WithLogger(logger))
	composer := client.NewComposer(manager)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range manager.Events() {
			printEvent(ev)
		}
	}()

	if err := manager.Connect(); err != nil {
		logger.Error("failed to connect", "err", err)
	}

	fmt.Println("Type `<event> [payload]` to send, or /reconnect, /disconnect, /status, /quit:")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if text == "/quit" || text == "/exit" {
			break
		}

		switch text {
		case "/reconnect":
			if err := manager.Connect(); err != nil {
				logger.Error("failed to reconnect", "err", err)
			}
		case "/disconnect":
			manager.Disconnect()
		case "/status":
			fmt.Printf("status: %s %s\n", manager.Status(), manager.ConnectionID())
		default:
			name, payload := splitLine(text)
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := composer.Submit(ctx, name, payload); err != nil {
				fmt.Printf("not sent: %v\n", err)
			}
			cancel()
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error("error reading input", "err", err)
	}

	manager.Close()
	<-printed
}

// splitLine separates the event name from the rest of the line.
func splitLine(text string) (name, payload string) {
	name, payload, _ = strings.Cut(text, " ")
	return name, strings.TrimSpace(payload)
}

func printEvent(ev client.Event) {
	switch ev := ev.(type) {
	case client.StatusEvent:
		switch {
		case ev.Status == protocol.StatusOpen:
			fmt.Printf("*** connected (%s) ***\n", ev.ConnectionID)
		case ev.Status == protocol.StatusConnecting:
			fmt.Println("*** connecting ***")
		case ev.Err != nil:
			fmt.Printf("*** disconnected: %v ***\n", ev.Err)
		default:
			fmt.Println("*** disconnected ***")
		}
	case client.EchoEvent:
		args, err := json.Marshal(ev.Entry.Envelope.Args)
		if err != nil {
			args = []byte(fmt.Sprint(ev.Entry.Envelope.Args))
		}
		fmt.Printf("[%s] %s %s\n", ev.Entry.ReceivedAt.Format("15:04:05.000"), ev.Entry.Envelope.Name, args)
	}
}
