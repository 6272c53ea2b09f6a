// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command kuberachat is a terminal client for the Kubera chat service.
//
// Usage:
//
//	go run ./cmd/kuberachat --token alice
//	go run ./cmd/kuberachat --token alice -m "how is AAPL doing today?"
//
// Without -m it runs an interactive session; type a message and hit
// enter, Ctrl-D to leave.
package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kuberahq/kubera/pkg/ux"
	"github.com/kuberahq/kubera/services/chat/datatypes"
)

var (
	serverURL      string
	token          string
	conversationID string
	oneShot        string
)

var rootCmd = &cobra.Command{
	Use:   "kuberachat",
	Short: "Talk to the Kubera research assistant from your terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.close()

		if oneShot != "" {
			return client.runTurn(oneShot)
		}
		return client.repl()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ux.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8090", "chat service base URL")
	rootCmd.Flags().StringVarP(&token, "token", "t", "", "bearer token (your user id in dev)")
	rootCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "resume an existing conversation")
	rootCmd.Flags().StringVarP(&oneShot, "message", "m", "", "send one message and exit")
}

type client struct {
	conn     *websocket.Conn
	renderer *ux.ChatRenderer
}

func dial() (*client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	base.Path = "/v1/chat/ws"
	q := base.Query()
	if token != "" {
		q.Set("access_token", token)
	}
	if conversationID != "" {
		q.Set("conversation_id", conversationID)
	}
	base.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot reach %s: %w", serverURL, err)
	}

	c := &client{conn: conn, renderer: ux.NewChatRenderer()}

	// The server leads with connected and rate_limit_info.
	for i := 0; i < 2; i++ {
		var ev datatypes.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake failed: %w", err)
		}
		if ev.Type == datatypes.EventConnected {
			conversationID = ev.ConversationID
			ux.Success("connected, conversation %s", conversationID)
		}
	}
	return c, nil
}

func (c *client) close() {
	_ = c.conn.Close()
}

func (c *client) repl() error {
	ux.Info("ask about a ticker, Ctrl-D to leave")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := c.runTurn(text); err != nil {
			return err
		}
	}
}

// runTurn sends one message and renders events until the turn reaches
// a terminal state.
func (c *client) runTurn(text string) error {
	err := c.conn.WriteJSON(datatypes.ChatTurnRequest{
		Type:           datatypes.FrameMessage,
		Content:        text,
		ConversationID: conversationID,
	})
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	spinner := ux.NewSpinner("thinking")
	spinner.Start()
	spinning := true
	stopSpinner := func() {
		if spinning {
			spinner.Stop()
			spinning = false
		}
	}
	defer stopSpinner()

	for {
		var ev datatypes.StreamEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		switch ev.Type {
		case datatypes.EventPing, datatypes.EventTyping, datatypes.EventRateLimitInfo:
			continue
		case datatypes.EventTextChunk:
			stopSpinner()
			c.renderer.Chunk(ev.Content)
		case datatypes.EventToolDispatched:
			stopSpinner()
			c.renderer.ToolStarted(ev.ToolName)
			spinner.UpdateMessage("running " + ev.ToolName)
		case datatypes.EventToolDone:
			ok := ev.ToolSuccess != nil && *ev.ToolSuccess
			c.renderer.ToolDone(ev.ToolName, ok)
		case datatypes.EventTurnComplete, datatypes.EventTurnLimitReached:
			stopSpinner()
			if ev.Message != "" {
				c.renderer.Chunk(ev.Message)
			}
			if ev.Metadata != nil {
				for _, a := range ev.Metadata.Artifacts {
					c.renderer.Artifact(a.Kind, a.Ref)
				}
				elapsed := time.Duration(ev.Metadata.ProcessingTimeMs) * time.Millisecond
				c.renderer.TurnComplete(ev.Metadata.Iterations, len(ev.Metadata.ToolsUsed), elapsed)
			}
			return nil
		case datatypes.EventTurnFailed:
			stopSpinner()
			c.renderer.TurnFailed(ev.Error)
			return nil
		case datatypes.EventRateLimitExceeded:
			stopSpinner()
			if ev.Denial != nil {
				c.renderer.Denied(string(ev.Denial.Kind), ev.Denial.ResetAt)
			}
			return nil
		case datatypes.EventError:
			stopSpinner()
			ux.Error("%s", ev.Error)
			return nil
		}
	}
}
