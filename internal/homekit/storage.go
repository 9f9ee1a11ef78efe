package homekit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Keys inside a state document.
const (
	keyData        = "data"
	keyAccessories = "accessories"
	keyEntityID    = "entity_id"
	keyRoomName    = "room_name"
)

// Accessory is the view of one entry of data.accessories that room sync needs.
type Accessory struct {
	// Index is the position within data.accessories.
	Index int

	// EntityID is empty when the entry has no string entity_id.
	EntityID string

	// RoomName is nil when the entry has no string room_name.
	RoomName *string
}

// Document is a parsed bridge state file. The original bytes are retained
// and edited in place so that every field room sync does not own is written
// back exactly as read.
type Document struct {
	raw         []byte
	accessories []Accessory
}

// Parse validates raw as a state document.
//
// Parameters:
//   - raw: file content; it is copied, so the caller may reuse the slice
//
// Returns:
//   - *Document: the parsed document with its accessories indexed
//   - error: ErrMalformed if raw is not JSON, not an object, or lacks a "data" object
func Parse(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}
	data := root.Get(keyData)
	if !data.Exists() {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, keyData)
	}
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: %q is not an object", ErrMalformed, keyData)
	}

	doc := &Document{raw: append([]byte(nil), raw...)}
	doc.index(data)
	return doc, nil
}

func (d *Document) index(data gjson.Result) {
	d.accessories = d.accessories[:0]
	list := data.Get(keyAccessories)
	if !list.IsArray() {
		return
	}
	for i, entry := range list.Array() {
		if !entry.IsObject() {
			continue
		}
		acc := Accessory{Index: i}
		if v := entry.Get(keyEntityID); v.Type == gjson.String {
			acc.EntityID = v.String()
		}
		if v := entry.Get(keyRoomName); v.Type == gjson.String {
			room := v.String()
			acc.RoomName = &room
		}
		d.accessories = append(d.accessories, acc)
	}
}

// Accessories returns the object entries of data.accessories in document order.
// Entries that are not JSON objects are omitted.
func (d *Document) Accessories() []Accessory {
	out := make([]Accessory, len(d.accessories))
	copy(out, d.accessories)
	return out
}

// Version returns the top-level "version" field, or 0 if absent.
func (d *Document) Version() int {
	return int(gjson.GetBytes(d.raw, "version").Int())
}

// Key returns the top-level "key" field, or "" if absent.
func (d *Document) Key() string {
	return gjson.GetBytes(d.raw, "key").String()
}

// SetRoom sets room_name on the accessory at index. Sibling fields and key
// order are preserved; a missing room_name is appended to the entry.
//
// Parameters:
//   - index: Accessory.Index of an object entry in data.accessories
//   - room: the new room name
//
// Returns:
//   - error: ErrAccessoryIndex if index is not an object entry, ErrSerialization
//     if the edit fails
func (d *Document) SetRoom(index int, room string) error {
	pos := -1
	for i, acc := range d.accessories {
		if acc.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: %d", ErrAccessoryIndex, index)
	}

	path := keyData + "." + keyAccessories + "." + strconv.Itoa(index) + "." + keyRoomName
	raw, err := sjson.SetBytes(d.raw, path, room)
	if err != nil {
		return fmt.Errorf("%w: setting %s: %w", ErrSerialization, path, err)
	}
	d.raw = raw
	d.accessories[pos].RoomName = &room
	return nil
}

// Bytes returns the document encoded with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.raw, "", "  "); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

// Load reads and validates the state file at path.
//
// Returns:
//   - ErrNotFound if the file does not exist
//   - ErrIO if it cannot be inspected or read
//   - ErrMalformed if the content is not a valid state document
func Load(path string) (*Document, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, path, err)
	}

	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path atomically. The new content is written to
// path+".tmp", flushed, and renamed over path.
//
// Parameters:
//   - path: state file to replace; its mode is kept, a new file gets 0600
//   - doc: document to write, indented by two spaces
//
// Returns:
//   - error: ErrSerialization or ErrIO; on error path is unchanged and the
//     temporary file is removed
func Save(path string, doc *Document) error {
	content, err := doc.Bytes()
	if err != nil {
		return err
	}

	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrIO, tmp, err)
	}
	if err := file.Chmod(mode); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: chmod %s: %w", ErrIO, tmp, err)
	}

	if _, err := file.Write(content); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %w", ErrIO, tmp, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: syncing %s: %w", ErrIO, tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %w", ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s: %w", ErrIO, tmp, err)
	}
	return nil
}

// BackupPath returns the backup location for a state file.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// Backup copies path to BackupPath(path), replacing any previous backup.
// The copy keeps the source's permissions and modification time.
//
// Returns:
//   - string: the backup path, also on error
//   - error: ErrIO if the source cannot be read or the copy written
func Backup(path string) (string, error) {
	dst := BackupPath(path)

	src, err := os.Open(path)
	if err != nil {
		return dst, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return dst, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return dst, fmt.Errorf("%w: creating %s: %w", ErrIO, dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return dst, fmt.Errorf("%w: copying to %s: %w", ErrIO, dst, err)
	}
	if err := out.Close(); err != nil {
		return dst, fmt.Errorf("%w: closing %s: %w", ErrIO, dst, err)
	}

	// O_CREATE only applies the mode to new files.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return dst, fmt.Errorf("%w: chmod %s: %w", ErrIO, dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return dst, fmt.Errorf("%w: chtimes %s: %w", ErrIO, dst, err)
	}
	return dst, nil
}
