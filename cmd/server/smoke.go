package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdscnexus/nexus-chat/internal/chatclient"
)

func newSmokeCmd() *cobra.Command {
	var (
		server   string
		email    string
		password string
		room     string
		text     string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Join a room, send one message and wait for its echo",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSmoke(ctx, server, email, password, room, text, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	f.StringVar(&email, "email", "", "account email")
	f.StringVar(&password, "password", "", "account password")
	f.StringVar(&room, "room", "", "room id")
	f.StringVar(&text, "text", "hello from smoke test", "message text to send")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "total timeout for the run")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func runSmoke(ctx context.Context, server, email, password, room, text string, out io.Writer) error {
	api := chatclient.NewAPI(server, "", nil)
	token, err := api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	ch, err := chatclient.Dial(ctx, wsURL(server), chatclient.Options{Token: token})
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.JoinRoom(ctx, room); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	sent, err := ch.SendMessage(ctx, chatclient.OutgoingMessage{RoomID: room, Type: "TEXT", Content: text})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if sent == nil {
		return errors.New("send: ack without message")
	}
	fmt.Fprintf(out, "acked: id=%s\n", sent.ID)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for echo: %w", ctx.Err())
		case ev, ok := <-ch.Events():
			if !ok {
				return chatclient.ErrDisconnected
			}
			fmt.Fprintf(out, "received: %s\n", ev.Kind)
			switch ev.Kind {
			case chatclient.EventDisconnected:
				return fmt.Errorf("%w: %v", chatclient.ErrDisconnected, ev.Err)
			case chatclient.EventNewMessage:
				if ev.Message != nil && ev.Message.ID == sent.ID {
					fmt.Fprintf(out, "echo: room=%s user=%s text=%q\n", ev.RoomID, ev.Message.Sender.FullName, ev.Message.Content)
					return nil
				}
			}
		}
	}
}
