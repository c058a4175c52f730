package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chatforge/realtime-console/internal/adapters/primary/view"
	"github.com/chatforge/realtime-console/internal/adapters/secondary/gorilla"
	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/config"
	"github.com/chatforge/realtime-console/internal/core/realtime"
	"github.com/chatforge/realtime-console/internal/core/session"
	"github.com/chatforge/realtime-console/internal/infrastructure/logging"
)

// terminalNotifier prints connection notices straight to the terminal. It is
// the console stand-in for the dashboard's toast surface.
type terminalNotifier struct{}

func (terminalNotifier) Success(message string) { fmt.Println(">>", message) }
func (terminalNotifier) Error(message string)   { fmt.Println("!!", message) }

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateConsole(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger. The console logs to stderr so the
	// dashboard output stays readable on stdout.
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.App.Name + "-console",
		Environment: cfg.App.Environment,
	})

	logger.Info("starting console",
		"version", cfg.App.Version,
		"url", cfg.Realtime.URL,
	)

	// 3. Credentials. The token usually comes from the relay's token-mint
	// endpoint; here it is handed in via the environment.
	creds := auth.NewWatchableCredentials(os.Getenv("REALTIME_TOKEN"))

	// 4. Connection manager over the gorilla transport
	mgr := realtime.NewManager(realtime.Config{
		URL:                   cfg.Realtime.URL,
		Protocols:             cfg.Realtime.Protocols,
		AutoConnect:           cfg.Realtime.AutoConnect,
		EnableHeartbeat:       cfg.Realtime.EnableHeartbeat,
		EnableReconnect:       cfg.Realtime.EnableReconnect,
		MaxReconnectAttempts:  cfg.Realtime.MaxReconnectAttempts,
		ReconnectInitialDelay: cfg.Realtime.ReconnectInitialDelay,
		ReconnectMultiplier:   cfg.Realtime.ReconnectMultiplier,
		ReconnectMaxDelay:     cfg.Realtime.ReconnectMaxDelay,
		ConnectTimeout:        cfg.Realtime.ConnectTimeout,
		HeartbeatInterval:     cfg.Realtime.HeartbeatInterval,
		HeartbeatTimeout:      cfg.Realtime.HeartbeatTimeout,
		MaxPayloadBytes:       cfg.Realtime.MaxPayloadBytes,
		Debug:                 cfg.Realtime.Debug,
	}, gorilla.NewDialer(), creds, logger, realtime.WithNotifier(terminalNotifier{}))
	defer mgr.Close()

	// 5. Session bindings and presenter
	sessionID := os.Getenv("REALTIME_SESSION_ID")
	chat := session.NewChatSession(mgr, sessionID, logger)
	processing := session.NewProcessingFeed(mgr, logger)
	deployments := session.NewDeploymentFeed(mgr, "", logger)
	analytics := session.NewAnalyticsFeed(mgr, "", logger)
	defer chat.Close()
	defer processing.Close()
	defer deployments.Close()
	defer analytics.Close()

	presenter := view.NewPresenter(mgr, view.Bindings{
		Chat:        chat,
		Processing:  processing,
		Deployments: deployments,
		Analytics:   analytics,
	}, logger)
	defer presenter.Close()

	unsub := presenter.Subscribe(render)
	defer unsub()

	// 6. Read chat input from stdin until interrupted
	go readInput(chat, presenter)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())
}

var lastState realtime.State

// render prints the parts of the snapshot that changed. A full TUI would
// diff properly; the console keeps it to connection state, the newest
// transcript line and live feed counters.
func render(snap view.Snapshot) {
	if snap.ConnectionState != lastState {
		lastState = snap.ConnectionState
		line := fmt.Sprintf("[%s]", snap.ConnectionState)
		if snap.ReconnectAttempts > 0 {
			line += fmt.Sprintf(" attempt %d", snap.ReconnectAttempts)
		}
		if snap.LatencyAvg > 0 {
			line += fmt.Sprintf(" latency %s", snap.LatencyAvg)
		}
		fmt.Println(line)
	}

	if n := len(snap.Transcript); n > 0 {
		entry := snap.Transcript[n-1]
		marker := ""
		if entry.Pending {
			marker = " (sending)"
		}
		fmt.Printf("%s: %s%s\n", entry.Role, entry.Text, marker)
	}
	if snap.RemoteTyping {
		fmt.Println("... peer is typing")
	}
	if snap.Analytics != nil {
		fmt.Printf("analytics: %d conversations, %d messages, %d active\n",
			snap.Analytics.TotalConversations,
			snap.Analytics.TotalMessages,
			snap.Analytics.ActiveSessions,
		)
	}
}

// readInput forwards stdin lines as chat messages. A few slash commands map
// to connection actions.
func readInput(chat *session.ChatSession, presenter *view.Presenter) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/reconnect":
			presenter.Reconnect()
		case "/disconnect":
			presenter.Disconnect()
		case "/connect":
			presenter.Connect()
		default:
			if !chat.SendMessage(line) {
				fmt.Println("!! message not sent (disconnected)")
			}
		}
	}
}
