package homekit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleState = `{
  "version": 1,
  "minor_version": 2,
  "key": "homekit.main.state",
  "data": {
    "accessories": [
      {"entity_id": "light.kitchen", "aid": 2, "room_name": "Old Room", "extra": {"x": [1, 2.50]}},
      "not an object",
      {"aid": 3, "room_name": "Bridge"},
      {"entity_id": "sensor.attic", "aid": 4},
      {"entity_id": 42, "room_name": null}
    ],
    "config": {"name": "Küche"}
  },
  "zeta": "last"
}
`

func writeState(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), StateFileName("main"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing state file: %v", err)
	}
	return path
}

func indented(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		t.Fatalf("indent: %v", err)
	}
	return buf.Bytes()
}

func TestLoad(t *testing.T) {
	doc, err := Load(writeState(t, sampleState))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if doc.Version() != 1 {
		t.Errorf("Version() = %d, want 1", doc.Version())
	}
	if doc.Key() != "homekit.main.state" {
		t.Errorf("Key() = %q", doc.Key())
	}

	accs := doc.Accessories()
	if len(accs) != 4 {
		t.Fatalf("Accessories() len = %d, want 4 (non-object entry skipped)", len(accs))
	}

	want := []struct {
		index    int
		entityID string
		room     string
		hasRoom  bool
	}{
		{0, "light.kitchen", "Old Room", true},
		{2, "", "Bridge", true},
		{3, "sensor.attic", "", false},
		{4, "", "", false},
	}
	for i, w := range want {
		got := accs[i]
		if got.Index != w.index || got.EntityID != w.entityID {
			t.Errorf("accessory %d = {Index:%d EntityID:%q}, want {%d %q}", i, got.Index, got.EntityID, w.index, w.entityID)
		}
		if (got.RoomName != nil) != w.hasRoom || (w.hasRoom && *got.RoomName != w.room) {
			t.Errorf("accessory %d RoomName = %v, want %q (present=%v)", i, got.RoomName, w.room, w.hasRoom)
		}
	}
}

func TestLoad_NoAccessories(t *testing.T) {
	for _, content := range []string{
		`{"data": {}}`,
		`{"data": {"accessories": {"not": "a list"}}}`,
	} {
		doc, err := Load(writeState(t, content))
		if err != nil {
			t.Fatalf("Load(%s) error = %v", content, err)
		}
		if n := len(doc.Accessories()); n != 0 {
			t.Errorf("Load(%s) accessories = %d, want 0", content, n)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"invalid json", `{"data": {`, ErrMalformed},
		{"empty file", ``, ErrMalformed},
		{"top level array", `[{"data": {}}]`, ErrMalformed},
		{"missing data", `{"version": 1}`, ErrMalformed},
		{"data not object", `{"data": []}`, ErrMalformed},
		{"data null", `{"data": null}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeState(t, tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "homekit.none.state"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("directory instead of file", func(t *testing.T) {
		_, err := Load(t.TempDir())
		if !errors.Is(err, ErrIO) {
			t.Errorf("Load() error = %v, want ErrIO", err)
		}
	})
}

func TestDocument_SetRoomPreservesEverythingElse(t *testing.T) {
	doc, err := Parse([]byte(sampleState))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := doc.SetRoom(0, "Kitchen"); err != nil {
		t.Fatalf("SetRoom(0) error = %v", err)
	}
	if err := doc.SetRoom(3, "Attic"); err != nil {
		t.Fatalf("SetRoom(3) error = %v", err)
	}

	got, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	want := indented(t, `{
  "version": 1,
  "minor_version": 2,
  "key": "homekit.main.state",
  "data": {
    "accessories": [
      {"entity_id": "light.kitchen", "aid": 2, "room_name": "Kitchen", "extra": {"x": [1, 2.50]}},
      "not an object",
      {"aid": 3, "room_name": "Bridge"},
      {"entity_id": "sensor.attic", "aid": 4, "room_name": "Attic"},
      {"entity_id": 42, "room_name": null}
    ],
    "config": {"name": "Küche"}
  },
  "zeta": "last"
}
`)
	if !bytes.Equal(got, want) {
		t.Errorf("Bytes() =\n%s\nwant\n%s", got, want)
	}

	accs := doc.Accessories()
	if accs[0].RoomName == nil || *accs[0].RoomName != "Kitchen" {
		t.Errorf("accessory 0 RoomName = %v, want Kitchen", accs[0].RoomName)
	}
}

func TestDocument_SetRoomOutOfRange(t *testing.T) {
	doc, err := Parse([]byte(sampleState))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Index 1 exists in the array but is not an object.
	for _, idx := range []int{1, 9, -1} {
		if err := doc.SetRoom(idx, "X"); !errors.Is(err, ErrAccessoryIndex) {
			t.Errorf("SetRoom(%d) error = %v, want ErrAccessoryIndex", idx, err)
		}
	}
}

func TestSave(t *testing.T) {
	path := writeState(t, sampleState)
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := doc.SetRoom(0, "Kitchen"); err != nil {
		t.Fatalf("SetRoom() error = %v", err)
	}
	if err := Save(path, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save error = %v", err)
	}
	if r := reloaded.Accessories()[0].RoomName; r == nil || *r != "Kitchen" {
		t.Errorf("reloaded room = %v, want Kitchen", r)
	}

	written, _ := os.ReadFile(path)
	if !bytes.Contains(written, []byte("\n  \"version\": 1,")) {
		t.Errorf("written file is not two-space indented:\n%s", written)
	}
}

func TestSave_NewFile(t *testing.T) {
	doc, err := Parse([]byte(`{"data":{"accessories":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "homekit.fresh.state")
	if err := Save(path, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSave_UnwritableDirectory(t *testing.T) {
	doc, err := Parse([]byte(`{"data":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "missing", "homekit.x.state")
	if err := Save(path, doc); !errors.Is(err, ErrIO) {
		t.Errorf("Save() error = %v, want ErrIO", err)
	}
}

func TestBackup(t *testing.T) {
	path := writeState(t, sampleState)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	// A stale backup must be replaced.
	if err := os.WriteFile(BackupPath(path), []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}

	dst, err := Backup(path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if dst != path+".backup" {
		t.Errorf("Backup() path = %q, want %q", dst, path+".backup")
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != sampleState {
		t.Error("backup content differs from source")
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("backup mtime = %v, want %v", info.ModTime(), mtime)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("backup mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestBackup_MissingSource(t *testing.T) {
	_, err := Backup(filepath.Join(t.TempDir(), "homekit.none.state"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("Backup() error = %v, want ErrIO", err)
	}
}
