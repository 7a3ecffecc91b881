package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/internal/client/rawws"
	clientws "github.com/omochice/event-relay/internal/client/ws"
	"github.com/omochice/event-relay/internal/tui"
	"github.com/omochice/event-relay/pkg/protocol"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:9002/ws", "Relay WebSocket URL")
	codecName := flag.String("codec", "json", "Frame codec: json or proto")
	dialerName := flag.String("dialer", "nhooyr", "WebSocket implementation: nhooyr or gobwas")
	logFile := flag.String("log-file", "", "Write client logs to this file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if err := run(*serverURL, *codecName, *dialerName, *logFile, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverURL, codecName, dialerName, logFile string, verbose bool) error {
	codec, err := protocol.CodecByName(codecName)
	if err != nil {
		return err
	}
	dialer, err := newDialer(dialerName)
	if err != nil {
		return err
	}

	// logs on stderr would corrupt the alternate screen
	var out io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	manager := client.NewManager(serverURL, dialer, client.WithCodec(codec), client.WithLogger(logger))
	defer manager.Close()

	if _, err := tea.NewProgram(tui.New(manager), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run display: %w", err)
	}
	return nil
}

func newDialer(name string) (client.Dialer, error) {
	switch name {
	case "nhooyr":
		return clientws.New(), nil
	case "gobwas":
		return rawws.New(), nil
	default:
		return nil, fmt.Errorf("unknown dialer %q", name)
	}
}
