package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/gdscnexus/nexus-chat/internal/chatclient"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/log"
)

type chatOptions struct {
	server   string
	email    string
	password string
	name     string
	register bool
	room     string
	logLevel string
}

func newChatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	f.StringVar(&opts.email, "email", "", "account email")
	f.StringVar(&opts.password, "password", "", "account password")
	f.StringVar(&opts.name, "name", "", "full name, used with --register")
	f.BoolVar(&opts.register, "register", false, "create the account first")
	f.StringVar(&opts.room, "room", "", "room id or name to join on start")
	f.StringVar(&opts.logLevel, "log-level", "warn", "client log level")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// fileRecorder stands in for a microphone: the clip is read from a file on Stop.
type fileRecorder struct {
	path string
}

func (r *fileRecorder) Start() error {
	if r.path == "" {
		return errors.New("no clip file given")
	}
	return nil
}

func (r *fileRecorder) Stop() ([]byte, error) {
	defer func() { r.path = "" }()
	return os.ReadFile(r.path)
}

func wsURL(server string) string {
	base := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/chat"
}

func runChat(ctx context.Context, opts chatOptions, in io.Reader, out io.Writer) error {
	logger := log.NewWithWriter(os.Stderr, opts.logLevel, "console")
	api := chatclient.NewAPI(opts.server, "", nil)

	var token string
	var err error
	if opts.register {
		token, err = api.Register(ctx, opts.email, opts.name, opts.password)
	} else {
		token, err = api.Login(ctx, opts.email, opts.password)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	api = api.WithToken(token)

	me, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recorder := &fileRecorder{}
	reconnect := make(chan struct{}, 1)
	endpoint := wsURL(opts.server)

	session := chatclient.NewSession(chatclient.SessionConfig{
		Dial: func(ctx context.Context) (chatclient.Realtime, error) {
			return chatclient.Dial(ctx, endpoint, chatclient.Options{Token: token, Logger: logger})
		},
		Backend:  api,
		Recorder: recorder,
		Self:     *me,
		Logger:   logger,
		Hooks: chatclient.Hooks{
			OnMessage: func(m chatclient.Message) {
				printMessage(out, m)
			},
			OnTyping: func(typing map[string]string) {
				if len(typing) == 0 {
					return
				}
				names := make([]string, 0, len(typing))
				for _, name := range typing {
					names = append(names, name)
				}
				fmt.Fprintf(out, "  ... %s typing\n", strings.Join(names, ", "))
			},
			OnNotice: func(n chatclient.Notice) {
				if n.Err != nil {
					fmt.Fprintf(out, "! %s: %v\n", n.Text, n.Err)
					return
				}
				fmt.Fprintf(out, "! %s\n", n.Text)
			},
			OnState: func(s chatclient.State) {
				if s == chatclient.StateDisconnected && ctx.Err() == nil {
					select {
					case reconnect <- struct{}{}:
					default:
					}
				}
			},
		},
	})
	defer session.Close()

	if err := session.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s as %s (%s)\n", opts.server, me.FullName, me.Role)
	fmt.Fprintln(out, "Commands: /rooms, /join <room>, /upload <file>, /record <clip>, /stop, /quit")

	if opts.room != "" {
		if err := joinRoom(ctx, api, session, opts.room, out); err != nil {
			fmt.Fprintf(out, "! join: %v\n", err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reconnect:
				fmt.Fprintln(out, "! reconnecting...")
				if err := session.Reconnect(ctx); err != nil {
					fmt.Fprintf(out, "! reconnect failed: %v\n", err)
					cancel()
					return
				}
				fmt.Fprintln(out, "! reconnected")
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, api, session, recorder, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, api *chatclient.API, session *chatclient.Session, recorder *fileRecorder, line string, out io.Writer) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		// A line is the only keystroke a line reader can observe.
		session.Keystroke()
		if err := session.SendText(ctx, line); err != nil {
			fmt.Fprintf(out, "! send: %v\n", err)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return true
	case "/rooms":
		rooms, err := api.ListRooms(ctx)
		if err != nil {
			fmt.Fprintf(out, "! rooms: %v\n", err)
			return false
		}
		for _, r := range rooms {
			fmt.Fprintf(out, "  %s  %s (%s)\n", r.ID, r.Name, r.Visibility)
		}
	case "/join":
		if err := joinRoom(ctx, api, session, arg, out); err != nil {
			fmt.Fprintf(out, "! join: %v\n", err)
		}
	case "/upload":
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintf(out, "! upload: %v\n", err)
			return false
		}
		typ := core.MessageFile
		if strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
			typ = core.MessageImage
		}
		if err := session.SendMedia(ctx, typ, filepath.Base(arg), data); err != nil {
			fmt.Fprintf(out, "! upload: %v\n", err)
		}
	case "/record":
		recorder.path = arg
		if err := session.StartRecording(); err != nil {
			fmt.Fprintf(out, "! record: %v\n", err)
			return false
		}
		fmt.Fprintln(out, "  recording, /stop to send")
	case "/stop":
		if err := session.StopRecording(ctx); err != nil {
			fmt.Fprintf(out, "! record: %v\n", err)
		}
	default:
		fmt.Fprintf(out, "! unknown command %s\n", cmd)
	}
	return false
}

// joinRoom accepts a room id or a room name.
func joinRoom(ctx context.Context, api *chatclient.API, session *chatclient.Session, ref string, out io.Writer) error {
	if ref == "" {
		return errors.New("room required")
	}
	rooms, err := api.ListRooms(ctx)
	if err != nil {
		return err
	}
	roomID, name := ref, ref
	for _, r := range rooms {
		if r.ID == ref || strings.EqualFold(r.Name, ref) {
			roomID, name = r.ID, r.Name
			break
		}
	}

	if err := session.SelectRoom(ctx, roomID); err != nil {
		return err
	}
	fmt.Fprintf(out, "== %s ==\n", name)
	for _, m := range session.Messages() {
		printMessage(out, m)
	}
	return nil
}

func printMessage(out io.Writer, m chatclient.Message) {
	ts := m.CreatedAt.Local().Format("15:04")
	if m.FileURL != "" {
		fmt.Fprintf(out, "[%s] %s: %s <%s>\n", ts, m.Sender.FullName, m.Content, m.FileURL)
		return
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", ts, m.Sender.FullName, m.Content)
}
