package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	Token         string `env:"CHAT_TOKEN,required=true"`
	RecipientID   string `env:"CHAT_RECIPIENT_ID"`
	LogLevel      string `env:"LOG_LEVEL,required=true"`
}

type inboundFrame struct {
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Error     string `json:"error"`
}

type outboundFrame struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle: configuration loading,
// connection, a reception loop and an optional stdin send loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish the websocket connection, authenticating through the
	// token query parameter.
	url := fmt.Sprintf("ws://%s/ws/chat?token=%s", config.ServerAddress, config.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	// The context closing the socket unblocks the reception loop.
	closeOnCancel := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer closeOnCancel()

	log.Info("Connected", "server", config.ServerAddress)

	// 4. Optional send loop: every stdin line becomes one direct message
	// to the configured recipient.
	if config.RecipientID != "" {
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				payload, _ := json.Marshal(outboundFrame{
					RecipientID: config.RecipientID,
					Content:     scanner.Text(),
				})
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}()
	}

	// 5. Message reception loop.
	// Runs until the context is canceled or the server closes the connection.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Warn("Skipping unreadable frame", "error", err)
			continue
		}
		if frame.Error != "" {
			log.Error("Server reported an error", "error", frame.Error)
			continue
		}

		at := frame.CreatedAt
		if parsed, err := time.Parse(time.RFC3339Nano, frame.CreatedAt); err == nil {
			at = parsed.Format(time.TimeOnly)
		}
		log.Info(fmt.Sprintf("[%s] %s: %s", at, frame.SenderID, frame.Content))
	}
}
