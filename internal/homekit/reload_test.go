package homekit

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBus is an in-memory MessageBus. When respond is set, every publish is
// answered asynchronously on the matching response topic.
type fakeBus struct {
	mu           sync.Mutex
	handlers     map[string]func(string, []byte) error
	published    map[string][]byte
	unsubscribed []string

	respond      func(request ReloadRequest) []byte
	subscribeErr error
	publishErr   error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers:  make(map[string]func(string, []byte) error),
		published: make(map[string][]byte),
	}
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.unsubscribed = append(b.unsubscribed, topic)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	b.published[topic] = payload
	b.mu.Unlock()

	if b.respond == nil {
		return nil
	}
	var req ReloadRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	responseTopic := strings.Replace(topic, "/request/", "/response/", 1)
	answer := b.respond(req)
	go func() {
		b.mu.Lock()
		handler := b.handlers[responseTopic]
		b.mu.Unlock()
		if handler != nil {
			handler(responseTopic, answer) //nolint:errcheck // Test bus
		}
	}()
	return nil
}

func newTestReloader(bus MessageBus, timeout time.Duration) *MQTTReloader {
	r := NewMQTTReloader(bus, "main", 1, timeout)
	r.newID = func() string { return "req-1" }
	return r
}

func TestMQTTReloader_Success(t *testing.T) {
	bus := newFakeBus()
	var seen ReloadRequest
	bus.respond = func(req ReloadRequest) []byte {
		seen = req
		return []byte(`{"success":true}`)
	}

	if err := newTestReloader(bus, time.Second).Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if seen.RequestID != "req-1" || seen.Bridge != "main" {
		t.Errorf("request = %+v, want id req-1 for bridge main", seen)
	}
	if _, ok := bus.published["homekit/request/reload/req-1"]; !ok {
		t.Errorf("published topics = %v, want homekit/request/reload/req-1", bus.published)
	}
	if len(bus.unsubscribed) != 1 || bus.unsubscribed[0] != "homekit/response/reload/req-1" {
		t.Errorf("unsubscribed = %v, want response topic", bus.unsubscribed)
	}
}

func TestMQTTReloader_Failures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(b *fakeBus)
		timeout     time.Duration
		wantMsg     string
		wantTimeout bool
	}{
		{
			name: "bridge reports error",
			setup: func(b *fakeBus) {
				b.respond = func(ReloadRequest) []byte { return []byte(`{"success":false,"error":"bridge busy"}`) }
			},
			timeout: time.Second,
			wantMsg: "bridge busy",
		},
		{
			name: "bridge reports failure without message",
			setup: func(b *fakeBus) {
				b.respond = func(ReloadRequest) []byte { return []byte(`{"success":false}`) }
			},
			timeout: time.Second,
			wantMsg: "bridge reported failure",
		},
		{
			name: "undecodable response",
			setup: func(b *fakeBus) {
				b.respond = func(ReloadRequest) []byte { return []byte(`not json`) }
			},
			timeout: time.Second,
			wantMsg: "undecodable response",
		},
		{
			name:        "no response",
			setup:       func(*fakeBus) {},
			timeout:     20 * time.Millisecond,
			wantTimeout: true,
		},
		{
			name:    "subscribe fails",
			setup:   func(b *fakeBus) { b.subscribeErr = errors.New("not connected") },
			timeout: time.Second,
			wantMsg: "not connected",
		},
		{
			name:    "publish fails",
			setup:   func(b *fakeBus) { b.publishErr = errors.New("broker gone") },
			timeout: time.Second,
			wantMsg: "broker gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus()
			tt.setup(bus)

			err := newTestReloader(bus, tt.timeout).Reload(context.Background())
			if !errors.Is(err, ErrReload) {
				t.Fatalf("Reload() error = %v, want ErrReload", err)
			}
			if tt.wantTimeout && !errors.Is(err, ErrReloadTimeout) {
				t.Errorf("Reload() error = %v, want ErrReloadTimeout", err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Reload() error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestMQTTReloader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestReloader(newFakeBus(), 0).Reload(ctx)
	if !errors.Is(err, ErrReload) || !errors.Is(err, context.Canceled) {
		t.Errorf("Reload() error = %v, want ErrReload wrapping context.Canceled", err)
	}
	if errors.Is(err, ErrReloadTimeout) {
		t.Error("cancellation reported as timeout")
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandReloader(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name        string
		argv        []string
		timeout     time.Duration
		wantErr     bool
		wantTimeout bool
		wantMsg     string
	}{
		{name: "success", argv: []string{"sh", "-c", "exit 0"}},
		{name: "bridge name exported", argv: []string{"sh", "-c", `test "$HOMEKIT_BRIDGE" = main`}},
		{
			name:    "failure includes output",
			argv:    []string{"sh", "-c", "echo unit not found >&2; exit 3"},
			wantErr: true,
			wantMsg: "unit not found",
		},
		{
			name:        "timeout",
			argv:        []string{"sh", "-c", "exec sleep 5"},
			timeout:     50 * time.Millisecond,
			wantErr:     true,
			wantTimeout: true,
		},
		{name: "no command", argv: nil, wantErr: true, wantMsg: "no command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCommandReloader(tt.argv, "main", tt.timeout).Reload(context.Background())
			if !tt.wantErr {
				if err != nil {
					t.Errorf("Reload() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrReload) {
				t.Fatalf("Reload() error = %v, want ErrReload", err)
			}
			if tt.wantTimeout && !errors.Is(err, ErrReloadTimeout) {
				t.Errorf("Reload() error = %v, want ErrReloadTimeout", err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Reload() error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNopReloader(t *testing.T) {
	var r Reloader = NopReloader{}
	if err := r.Reload(context.Background()); err != nil {
		t.Errorf("Reload() error = %v", err)
	}
}
