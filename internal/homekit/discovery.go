package homekit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File naming within the storage directory.
const (
	StatePrefix  = "homekit."
	StateSuffix  = ".state"
	BackupSuffix = ".backup"
)

// StateFileName returns the file name of a bridge's state file.
func StateFileName(bridge string) string {
	return StatePrefix + bridge + StateSuffix
}

// StatePath returns the full path of a bridge's state file.
func StatePath(storageDir, bridge string) string {
	return filepath.Join(storageDir, StateFileName(bridge))
}

// BridgeName extracts the bridge name from a state file name.
// It reports false for names that are not state files or have an empty bridge.
func BridgeName(fileName string) (string, bool) {
	if len(fileName) <= len(StatePrefix)+len(StateSuffix) {
		return "", false
	}
	if !strings.HasPrefix(fileName, StatePrefix) || !strings.HasSuffix(fileName, StateSuffix) {
		return "", false
	}
	return fileName[len(StatePrefix) : len(fileName)-len(StateSuffix)], true
}

// ListBridges returns the sorted names of all bridges with a state file
// directly inside storageDir. Subdirectories and non-regular files are
// ignored.
//
// Parameters:
//   - storageDir: directory holding homekit.<bridge>.state files
//
// Returns:
//   - []string: bridge names, empty (not nil) when none or the directory is missing
//   - error: ErrIO if the directory exists but cannot be read
func ListBridges(storageDir string) ([]string, error) {
	entries, err := os.ReadDir(storageDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, storageDir, err)
	}

	bridges := []string{}
	for _, entry := range entries {
		name, ok := BridgeName(entry.Name())
		if !ok || !isRegularFile(storageDir, entry) {
			continue
		}
		bridges = append(bridges, name)
	}
	sort.Strings(bridges)
	return bridges, nil
}

// isRegularFile reports whether entry is a regular file, following symlinks.
func isRegularFile(dir string, entry os.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.Mode().IsRegular()
}
