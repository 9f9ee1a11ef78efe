package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/homekit-room-sync/internal/bridgeconfig"
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/config"
)

const testRegistry = `
areas:
  - id: kitchen
    name: Kitchen
  - id: living
    name: Living Room
devices:
  - id: hub1
    name: Hub
    area_id: living
entities:
  - entity_id: light.kitchen
    area_id: kitchen
  - entity_id: sensor.hub
    device_id: hub1
`

const testState = `{
  "version": 1,
  "key": "homekit.main.state",
  "data": {
    "accessories": [
      {"entity_id": "light.kitchen", "aid": 2, "room_name": "Old Room"},
      {"entity_id": "sensor.hub", "aid": 3, "room_name": "Living Room"},
      {"entity_id": "fan.bare", "aid": 4}
    ]
  }
}
`

type testEnv struct {
	dir        string
	storageDir string
	configPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		storageDir: filepath.Join(dir, "storage"),
		configPath: filepath.Join(dir, "config.yaml"),
	}
	if err := os.Mkdir(env.storageDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := `
storage:
  dir: "` + env.storageDir + `"
sync:
  debounce_ms: 10
reload:
  mode: "none"
database:
  path: "` + filepath.Join(dir, "roomsync.db") + `"
mqtt:
  enabled: false
logging:
  level: "error"
`
	if err := os.WriteFile(env.configPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) writeState(t *testing.T, bridge string) string {
	t.Helper()
	path := homekit.StatePath(e.storageDir, bridge)
	if err := os.WriteFile(path, []byte(testState), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("roomsync %s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *testEnv) importRegistry(t *testing.T) {
	t.Helper()
	path := filepath.Join(e.dir, "registry.yaml")
	if err := os.WriteFile(path, []byte(testRegistry), 0o600); err != nil {
		t.Fatal(err)
	}
	out := e.mustRun(t, "registry", "import", path)
	if !strings.Contains(out, "imported 2 areas, 1 devices, 2 entities") {
		t.Errorf("import output = %q", out)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("ROOMSYNC_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("ROOMSYNC_CONFIG", "/etc/roomsync.yaml")
	if got := getConfigPath(""); got != "/etc/roomsync.yaml" {
		t.Errorf("getConfigPath() with env = %q", got)
	}
	if got := getConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("getConfigPath() with flag = %q, want flag to win", got)
	}
}

func TestVersionCmd(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "version")
	if !strings.HasPrefix(out, "roomsync "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestMissingConfig(t *testing.T) {
	env := newTestEnv(t)
	env.configPath = filepath.Join(env.dir, "absent.yaml")

	if _, err := env.run(t, "bridge", "list"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestBridgeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.importRegistry(t)
	statePath := env.writeState(t, "main")
	env.writeState(t, "garage")

	out := env.mustRun(t, "bridges")
	if !strings.Contains(out, "main") || !strings.Contains(out, "available") {
		t.Errorf("bridges output = %q", out)
	}

	if _, err := env.run(t, "bridge", "add", "main", "--default-room", "Attic"); !errors.Is(err, bridgeconfig.ErrInvalidRoom) {
		t.Errorf("add with unknown room error = %v, want ErrInvalidRoom", err)
	}
	if _, err := env.run(t, "bridge", "add", "cellar"); !errors.Is(err, bridgeconfig.ErrInvalidBridge) {
		t.Errorf("add undiscovered bridge error = %v, want ErrInvalidBridge", err)
	}

	out = env.mustRun(t, "bridge", "add", "main")
	if !strings.Contains(out, "HomeKit Bridge: main") {
		t.Errorf("add output = %q", out)
	}
	out = env.mustRun(t, "bridges", "--available")
	if strings.TrimSpace(out) != "garage" {
		t.Errorf("available bridges = %q, want garage", out)
	}

	out = env.mustRun(t, "sync")
	if !strings.Contains(out, "main: 1 changed") || !strings.Contains(out, "light.kitchen: Old Room -> Kitchen") {
		t.Errorf("sync output = %q", out)
	}
	raw, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"room_name": "Kitchen"`) {
		t.Errorf("state file not updated:\n%s", raw)
	}
	if _, err := os.Stat(homekit.BackupPath(statePath)); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	out = env.mustRun(t, "sync", "main")
	if !strings.Contains(out, "main: unchanged") {
		t.Errorf("second sync output = %q", out)
	}

	out = env.mustRun(t, "bridge", "set-room", "main", "Kitchen")
	if !strings.Contains(out, `default room "Kitchen"`) {
		t.Errorf("set-room output = %q", out)
	}
	out = env.mustRun(t, "sync", "main")
	if !strings.Contains(out, "fan.bare: (none) -> Kitchen") {
		t.Errorf("sync with default room output = %q", out)
	}

	out = env.mustRun(t, "bridge", "list")
	if !strings.Contains(out, "main") || !strings.Contains(out, "Kitchen") {
		t.Errorf("bridge list output = %q", out)
	}

	env.mustRun(t, "bridge", "remove", "main")
	out = env.mustRun(t, "bridge", "list")
	if !strings.Contains(out, "no bridges configured") {
		t.Errorf("bridge list after remove = %q", out)
	}
}

func TestSyncFailures(t *testing.T) {
	env := newTestEnv(t)
	env.importRegistry(t)
	statePath := env.writeState(t, "main")
	env.mustRun(t, "bridge", "add", "main")

	if _, err := env.run(t, "sync", "garage"); !errors.Is(err, bridgeconfig.ErrNotFound) {
		t.Errorf("sync of unconfigured bridge error = %v, want ErrNotFound", err)
	}

	if err := os.Remove(statePath); err != nil {
		t.Fatal(err)
	}
	out, err := env.run(t, "sync")
	if err == nil {
		t.Fatal("sync with missing state file succeeded")
	}
	if !strings.Contains(out, "state file not found") {
		t.Errorf("sync output = %q", out)
	}

	out = env.mustRun(t, "bridges")
	if !strings.Contains(out, "state file missing") {
		t.Errorf("bridges output = %q", out)
	}
}

func TestSyncRequestNeedsMQTT(t *testing.T) {
	env := newTestEnv(t)
	env.importRegistry(t)
	statePath := env.writeState(t, "main")
	env.mustRun(t, "bridge", "add", "main")

	if _, err := env.run(t, "sync", "--request", "main"); !errors.Is(err, errRequestNeedsMQTT) {
		t.Fatalf("sync --request error = %v, want errRequestNeedsMQTT", err)
	}

	raw, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != testState {
		t.Error("sync --request rewrote the state file locally")
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "history")
	if strings.TrimSpace(out) != "no history" {
		t.Errorf("empty history output = %q", out)
	}

	env.importRegistry(t)
	env.writeState(t, "main")
	env.mustRun(t, "bridge", "add", "main")
	env.mustRun(t, "sync", "main")
	env.mustRun(t, "sync", "main")

	out = env.mustRun(t, "history")
	for _, want := range []string{"registry_import", "bridge_add", "sync", "entities=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	out = env.mustRun(t, "history", "main", "--action", "sync")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("sync history = %q, want one entry (unchanged pass not recorded)", out)
	}
	if !strings.Contains(lines[0], "written, 1 changed") || !strings.Contains(lines[0], "cli") {
		t.Errorf("sync history line = %q", lines[0])
	}

	out = env.mustRun(t, "history", "--limit", "1")
	if !strings.Contains(out, "(1 of 3 entries)") {
		t.Errorf("limited history output = %q", out)
	}
}

func TestDBCommands(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "db", "status")
	if !strings.Contains(out, "20261018_120000  applied") || !strings.Contains(out, "20261018_130000  applied") {
		t.Errorf("db status output = %q", out)
	}

	out = env.mustRun(t, "db", "rollback")
	if strings.TrimSpace(out) != "rolled back 20261018_130000" {
		t.Errorf("db rollback output = %q", out)
	}
}

func TestRegistryAreas(t *testing.T) {
	env := newTestEnv(t)
	env.importRegistry(t)

	out := env.mustRun(t, "registry", "areas")
	if !strings.Contains(out, "Kitchen") || !strings.Contains(out, "Living Room") {
		t.Errorf("areas output = %q", out)
	}

	out = env.mustRun(t, "bridge", "rooms")
	if out != "Kitchen\nLiving Room\n" {
		t.Errorf("rooms output = %q", out)
	}
}

func TestServe(t *testing.T) {
	env := newTestEnv(t)
	env.importRegistry(t)
	statePath := env.writeState(t, "main")
	env.mustRun(t, "bridge", "add", "main")

	a, err := openApp(context.Background(), env.configPath, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("openApp() error = %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := a.serve(ctx); err != nil {
		t.Fatalf("serve() error = %v", err)
	}

	raw, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"room_name": "Kitchen"`) {
		t.Errorf("initial sync did not update the state file:\n%s", raw)
	}
}

type nullBus struct{}

func (nullBus) Publish(string, []byte, byte, bool) error { return nil }
func (nullBus) Subscribe(string, byte, func(string, []byte) error) error {
	return nil
}
func (nullBus) Unsubscribe(string) error { return nil }

func TestNewReloaderFactory(t *testing.T) {
	tests := []struct {
		name string
		mode string
		bus  homekit.MessageBus
		want string
	}{
		{"mqtt", config.ReloadModeMQTT, nullBus{}, "*homekit.MQTTReloader"},
		{"mqtt without bus", config.ReloadModeMQTT, nil, "homekit.NopReloader"},
		{"command", config.ReloadModeCommand, nil, "*homekit.CommandReloader"},
		{"none", config.ReloadModeNone, nullBus{}, "homekit.NopReloader"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Reload.Mode = tt.mode
			cfg.Reload.Command = []string{"true"}

			reloader := newReloaderFactory(cfg, tt.bus)("main")
			if got := typeName(reloader); got != tt.want {
				t.Errorf("reloader type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *homekit.MQTTReloader:
		return "*homekit.MQTTReloader"
	case *homekit.CommandReloader:
		return "*homekit.CommandReloader"
	case homekit.NopReloader:
		return "homekit.NopReloader"
	}
	return "unknown"
}
