package homekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
)

// Reloader asks the HomeKit bridge to re-read its state files.
type Reloader interface {
	Reload(ctx context.Context) error
}

// MessageBus is the subset of the MQTT client the MQTT reloader needs.
type MessageBus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
}

// ReloadRequest is published to ask the bridge to reload.
type ReloadRequest struct {
	RequestID string `json:"request_id"`
	Bridge    string `json:"bridge"`
	Timestamp string `json:"timestamp"`
}

// ReloadResponse is the bridge's answer to a ReloadRequest.
type ReloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MQTTReloader requests a reload over MQTT and waits for the bridge's
// response on a per-request topic.
type MQTTReloader struct {
	bus     MessageBus
	bridge  string
	qos     byte
	timeout time.Duration
	newID   func() string
}

// NewMQTTReloader creates a reloader for bridge.
//
// Parameters:
//   - bus: connected message bus used for the request and its response
//   - bridge: bridge name sent in the request
//   - qos: QoS for the request and the response subscription
//   - timeout: how long to wait for the response; 0 waits until ctx is done
//
// Returns:
//   - *MQTTReloader: ready to use, safe for concurrent Reload calls
func NewMQTTReloader(bus MessageBus, bridge string, qos byte, timeout time.Duration) *MQTTReloader {
	return &MQTTReloader{
		bus:     bus,
		bridge:  bridge,
		qos:     qos,
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Reload publishes a ReloadRequest and waits for the matching response.
//
// Returns:
//   - error: nil on success; ErrReload wrapping the bridge's error message,
//     ErrReloadTimeout when the timeout elapses, or the bus failure
func (r *MQTTReloader) Reload(ctx context.Context) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	id := r.newID()
	topics := mqtt.Topics{}
	responseTopic := topics.ReloadResponse(id)

	responses := make(chan ReloadResponse, 1)
	err := r.bus.Subscribe(responseTopic, r.qos, func(_ string, payload []byte) error {
		var resp ReloadResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			resp = ReloadResponse{Error: fmt.Sprintf("undecodable response: %v", err)}
		}
		select {
		case responses <- resp:
		default:
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: subscribing to %s: %w", ErrReload, responseTopic, err)
	}
	defer r.bus.Unsubscribe(responseTopic) //nolint:errcheck // Best effort, topic is single-use

	request, err := json.Marshal(ReloadRequest{
		RequestID: id,
		Bridge:    r.bridge,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding request: %w", ErrReload, err)
	}
	if err := r.bus.Publish(topics.ReloadRequest(id), request, r.qos, false); err != nil {
		return fmt.Errorf("%w: publishing request: %w", ErrReload, err)
	}

	select {
	case resp := <-responses:
		if !resp.Success {
			msg := resp.Error
			if msg == "" {
				msg = "bridge reported failure"
			}
			return fmt.Errorf("%w: %s", ErrReload, msg)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: request %s", ErrReload, ErrReloadTimeout, id)
		}
		return fmt.Errorf("%w: %w", ErrReload, ctx.Err())
	}
}

// commandWaitDelay bounds how long output is drained after the command is
// killed, in case it left children holding the pipes open.
const commandWaitDelay = 2 * time.Second

// CommandReloader runs an external command to reload the bridge, such as
// a service manager reload. The bridge name is passed in HOMEKIT_BRIDGE.
type CommandReloader struct {
	argv    []string
	bridge  string
	timeout time.Duration
}

// NewCommandReloader creates a reloader that executes argv.
//
// Parameters:
//   - argv: program and arguments, run without a shell
//   - bridge: exported to the command as HOMEKIT_BRIDGE
//   - timeout: kills the command after this long; 0 means no limit
func NewCommandReloader(argv []string, bridge string, timeout time.Duration) *CommandReloader {
	return &CommandReloader{
		argv:    append([]string(nil), argv...),
		bridge:  bridge,
		timeout: timeout,
	}
}

// Reload runs the command and waits for it to exit.
//
// Returns:
//   - error: nil on exit status 0; otherwise ErrReload with the command's
//     combined output, or ErrReloadTimeout when it was killed for running too long
func (r *CommandReloader) Reload(ctx context.Context) error {
	if len(r.argv) == 0 || r.argv[0] == "" {
		return fmt.Errorf("%w: no command configured", ErrReload)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...) //nolint:gosec // Command comes from operator config
	cmd.Env = append(os.Environ(), "HOMEKIT_BRIDGE="+r.bridge)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = commandWaitDelay

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: %s", ErrReload, ErrReloadTimeout, r.argv[0])
		}
		if out := strings.TrimSpace(output.String()); out != "" {
			return fmt.Errorf("%w: %s: %w: %s", ErrReload, r.argv[0], err, out)
		}
		return fmt.Errorf("%w: %s: %w", ErrReload, r.argv[0], err)
	}
	return nil
}

// NopReloader does nothing. Use it when the bridge picks up changes on its own
// restart schedule.
type NopReloader struct{}

// Reload implements Reloader.
func (NopReloader) Reload(context.Context) error { return nil }
