package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [topic-pattern]",
	Short:   "Stream approval events as they happen",
	GroupID: "views",
	Long: `Stream approval events, one line per event.

The optional topic pattern filters events ("*" matches one segment, ">"
matches the rest); the default watches everything. When a NATS URL is
configured (APPROVALS_NATS_URL or the active remote) events come straight
from the bus; otherwise the server's SSE stream is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := "approvals.>"
		if len(args) == 1 {
			pattern = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		natsURL := os.Getenv("APPROVALS_NATS_URL")
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}
		if natsURL != "" {
			return watchNATS(ctx, natsURL, pattern)
		}
		return watchSSE(ctx, pattern)
	},
}

// watchNATS subscribes directly to the event bus and prints each message.
func watchNATS(ctx context.Context, natsURL, pattern string) error {
	sub, err := events.DialNATS(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(pattern)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Printf("%s %s\n", ui.RenderAccent(msg.Topic), msg.Data)
		}
	}
}

// watchSSE reads the server's event stream and prints each event.
func watchSSE(ctx context.Context, pattern string) error {
	streamURL := strings.TrimRight(serverURL, "/") + "/v1/events/stream?topics=" + url.QueryEscape(pattern)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned HTTP %d", resp.StatusCode)
	}

	var topic string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			topic = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			fmt.Printf("%s %s\n", ui.RenderAccent(topic), data)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
