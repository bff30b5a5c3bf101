package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/gdscnexus/nexus-chat/internal/auth"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/directory"
	"github.com/gdscnexus/nexus-chat/internal/log"
	"github.com/gdscnexus/nexus-chat/internal/media"
	"github.com/gdscnexus/nexus-chat/internal/proto"
	"github.com/gdscnexus/nexus-chat/internal/store"
	"github.com/gdscnexus/nexus-chat/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	auth  *auth.Service
	cfg   config.Config
}

// newTestEnv starts a hub and an HTTP server over an in-memory store.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWT.Secret = testSecret
	cfg.Chat.TypingTimeout = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := createTestAuthService(t, st, cfg.JWT.Secret)
	dir := directory.New(st, st)

	backend, err := media.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create media backend: %v", err)
	}

	logger := log.Nop()
	hub := core.NewHub(st, dir,
		core.WithLogger(logger),
		core.WithTypingTimeout(cfg.Chat.TypingTimeout),
	)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := NewRouter(Services{
		Hub:       hub,
		Auth:      authService,
		Directory: dir,
		Store:     st,
		Media:     media.NewService(backend, "", cfg.Uploads.MaxBytes),
	}, &cfg, logger)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-hub.Done()
	})

	return &testEnv{ts: ts, store: st, auth: authService, cfg: cfg}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.UserStore, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

// register creates a user with the given role and returns its id and token.
func (e *testEnv) register(t *testing.T, email, name string, role store.Role) (string, string) {
	t.Helper()

	ctx := context.Background()
	if _, err := e.auth.Register(ctx, email, name, "password123"); err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("failed to load %s: %v", email, err)
	}
	if role != "" && role != user.Role {
		if err := e.store.UpdateUserRole(ctx, user.ID, role); err != nil {
			t.Fatalf("failed to set role: %v", err)
		}
		user.Role = role
	}
	token, err := e.auth.IssueToken(user)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return user.ID, token
}

func (e *testEnv) createRoom(t *testing.T, room *store.Room) *store.Room {
	t.Helper()
	if err := e.store.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	return room
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws/chat"
}

func dialWS(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, ref string, data any) {
	t.Helper()
	inbound, err := proto.NewInbound(typ, ref, data)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, inbound); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until match returns true, skipping the rest.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(proto.Frame) bool) proto.Frame {
	t.Helper()
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

func isAck(ref string) func(proto.Frame) bool {
	return func(f proto.Frame) bool { return f.Type == proto.OutboundTypeAck && f.Ref == ref }
}

func isError(ref string) func(proto.Frame) bool {
	return func(f proto.Frame) bool { return f.Type == proto.OutboundTypeError && f.Ref == ref }
}

func isEvent(name string) func(proto.Frame) bool {
	return func(f proto.Frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name }
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v
}

// authenticate sends an authenticate message and waits for its ack.
func authenticate(ctx context.Context, t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	send(ctx, t, conn, proto.InboundTypeAuthenticate, "auth", proto.AuthenticateData{Token: token, Protocol: proto.ProtocolVersion})
	frame := readUntil(ctx, t, conn, func(f proto.Frame) bool { return f.Ref == "auth" })
	if frame.Type != proto.OutboundTypeAck {
		t.Fatalf("authenticate failed: %+v", frame.Error)
	}
}
