package registry

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sanderm5/Sky-planner-sub006/internal/realtime/conn"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func newTestServer(t *testing.T, r *Registry, orgID, userID int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sock, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		c := conn.New(sock, userID, orgID, fmt.Sprintf("user-%d", userID), fmt.Sprintf("%d-sess", userID))
		r.Register(c)
		defer r.Unregister(c)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case msg, ok := <-c.SendQueue():
					if !ok {
						return
					}
					if err := sock.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				}
			}
		}()

		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}

func TestRegistry_BroadcastReachesAllInTenant(t *testing.T) {
	r := New()
	srv1 := newTestServer(t, r, 1, 10)
	defer srv1.Close()
	srv2 := newTestServer(t, r, 1, 20)
	defer srv2.Close()

	c1 := dial(t, srv1)
	defer c1.Close()
	c2 := dial(t, srv2)
	defer c2.Close()

	time.Sleep(50 * time.Millisecond) // allow registration to land
	r.Broadcast(1, "kunde_created", map[string]any{"id": 7}, 0)

	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("expected broadcast message, got error: %v", err)
		}
		if !strings.Contains(string(msg), "kunde_created") {
			t.Fatalf("unexpected message: %s", msg)
		}
	}
}

func TestRegistry_TenantIsolation(t *testing.T) {
	r := New()
	srvOrg1 := newTestServer(t, r, 1, 10)
	defer srvOrg1.Close()
	srvOrg2 := newTestServer(t, r, 2, 20)
	defer srvOrg2.Close()

	cOrg1 := dial(t, srvOrg1)
	defer cOrg1.Close()
	cOrg2 := dial(t, srvOrg2)
	defer cOrg2.Close()

	time.Sleep(50 * time.Millisecond)
	r.Broadcast(1, "kunde_created", map[string]any{"id": 7}, 0)

	cOrg1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := cOrg1.ReadMessage(); err != nil {
		t.Fatalf("expected org1 connection to receive the broadcast: %v", err)
	}

	cOrg2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := cOrg2.ReadMessage(); err == nil {
		t.Fatal("expected org2 connection to receive nothing")
	}
}

func TestRegistry_BroadcastExcludesUser(t *testing.T) {
	r := New()
	srv1 := newTestServer(t, r, 1, 10)
	defer srv1.Close()
	srv2 := newTestServer(t, r, 1, 20)
	defer srv2.Close()

	sender := dial(t, srv1)
	defer sender.Close()
	other := dial(t, srv2)
	defer other.Close()

	time.Sleep(50 * time.Millisecond)
	r.Broadcast(1, "chat_typing", map[string]any{"conversationId": 5}, 10)

	other.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := other.ReadMessage(); err != nil {
		t.Fatalf("expected the non-excluded connection to receive the message: %v", err)
	}

	sender.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := sender.ReadMessage(); err == nil {
		t.Fatal("expected the excluded sender to receive nothing")
	}
}

func TestRegistry_UnregisterDropsEmptyTenantEntry(t *testing.T) {
	r := New()
	srv := newTestServer(t, r, 1, 10)
	defer srv.Close()

	c := dial(t, srv)
	time.Sleep(50 * time.Millisecond)
	if r.Count(1) != 1 {
		t.Fatalf("expected one live connection, got %d", r.Count(1))
	}
	c.Close()
	time.Sleep(100 * time.Millisecond)
	if r.Count(1) != 0 {
		t.Fatalf("expected the tenant entry to be gone after disconnect, got %d", r.Count(1))
	}
	r.mu.RLock()
	_, present := r.byOrg[1]
	r.mu.RUnlock()
	if present {
		t.Fatal("expected the tenant entry to be removed once its last connection unregistered")
	}
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := conn.New(nil, int64(i), int64(i%3), "u", "s")
			r.Register(c)
			r.Unregister(c)
		}()
	}
	wg.Wait()
	for org := int64(0); org < 3; org++ {
		if r.Count(org) != 0 {
			t.Fatalf("expected org %d to be empty after concurrent register/unregister, got %d", org, r.Count(org))
		}
	}
}
