package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/core"
	"github.com/gdscnexus/nexus-chat/internal/log"
	"github.com/gdscnexus/nexus-chat/internal/proto"
)

func TestServerRoutesWebSocketOutsideGin(t *testing.T) {
	cfg := config.Default()
	srv := NewServer(Services{}, &cfg, log.Nop())

	mux, ok := srv.Handler.(*http.ServeMux)
	if !ok {
		t.Fatalf("expected *http.ServeMux handler, got %T", srv.Handler)
	}

	cases := map[string]string{
		"/ws/chat":        "/ws/chat",
		"/api/chat/rooms": "/",
		"/health":         "/",
	}
	for path, want := range cases {
		h, pattern := mux.Handler(httptest.NewRequest(http.MethodGet, path, nil))
		if pattern != want {
			t.Fatalf("%s: expected pattern %q, got %q", path, want, pattern)
		}
		if path == "/ws/chat" {
			if _, ok := h.(*WSHandler); !ok {
				t.Fatalf("expected /ws/chat to reach *WSHandler directly, got %T", h)
			}
		}
	}
}

func TestWebSocketExchangeThroughRouter(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env.wsURL())

	// Two round trips on the same socket: the upgrade completed and the
	// connection carries frames in both directions.
	for _, ref := range []string{"j1", "j2"} {
		send(ctx, t, conn, proto.InboundTypeJoinRoom, ref, proto.RoomData{RoomID: "general"})
		frame := readUntil(ctx, t, conn, isError(ref))
		if frame.Error == nil || frame.Error.Code != core.ErrCodeUnauthorized {
			t.Fatalf("expected unauthorized for %s, got %+v", ref, frame.Error)
		}
	}

	resp, err := env.ts.Client().Get(env.ts.URL + "/api/chat/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected REST routes to stay on gin with auth, got %d", resp.StatusCode)
	}
}
