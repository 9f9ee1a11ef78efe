package bridgeconfig

import (
	"context"
	"fmt"
	"slices"

	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/registry"
)

// AreaSource lists the areas a default room may be chosen from.
type AreaSource interface {
	ListAreas(ctx context.Context) ([]registry.Area, error)
}

// Flow validates and applies bridge configuration changes.
type Flow struct {
	storageDir string
	repo       Repository
	areas      AreaSource
}

// NewFlow creates a Flow that discovers bridges in storageDir.
func NewFlow(storageDir string, repo Repository, areas AreaSource) *Flow {
	return &Flow{storageDir: storageDir, repo: repo, areas: areas}
}

// AvailableBridges returns discovered bridges that are not yet configured.
//
// Returns:
//   - ErrNoBridges if no bridge state files exist
//   - ErrAllConfigured if every discovered bridge is configured already
func (f *Flow) AvailableBridges(ctx context.Context) ([]string, error) {
	discovered, err := homekit.ListBridges(f.storageDir)
	if err != nil {
		return nil, fmt.Errorf("discovering bridges: %w", err)
	}
	if len(discovered) == 0 {
		return nil, ErrNoBridges
	}

	configured, err := f.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(configured))
	for _, c := range configured {
		taken[c.Name] = true
	}

	var available []string
	for _, name := range discovered {
		if !taken[name] {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return nil, ErrAllConfigured
	}
	return available, nil
}

// RoomOptions returns the area names a default room may be set to, sorted.
// The empty string, meaning no default room, is always accepted as well.
func (f *Flow) RoomOptions(ctx context.Context) ([]string, error) {
	areas, err := f.areas.ListAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing areas: %w", err)
	}
	names := make([]string, 0, len(areas))
	for _, a := range areas {
		names = append(names, a.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Create configures bridge with defaultRoom ("" for none).
func (f *Flow) Create(ctx context.Context, bridge, defaultRoom string) (*BridgeConfig, error) {
	available, err := f.AvailableBridges(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(available, bridge) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBridge, bridge)
	}
	if err := f.validateRoom(ctx, defaultRoom); err != nil {
		return nil, err
	}

	cfg := &BridgeConfig{
		Name:        bridge,
		Title:       Title(bridge),
		DefaultRoom: optionalRoom(defaultRoom),
		Version:     CurrentVersion,
	}
	if err := f.repo.Create(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateDefaultRoom changes the default room of a configured bridge
// ("" clears it) and returns the updated configuration.
func (f *Flow) UpdateDefaultRoom(ctx context.Context, bridge, defaultRoom string) (*BridgeConfig, error) {
	if err := f.validateRoom(ctx, defaultRoom); err != nil {
		return nil, err
	}
	if err := f.repo.UpdateDefaultRoom(ctx, bridge, optionalRoom(defaultRoom)); err != nil {
		return nil, err
	}
	return f.repo.Get(ctx, bridge)
}

// Remove deletes a bridge's configuration.
func (f *Flow) Remove(ctx context.Context, bridge string) error {
	return f.repo.Delete(ctx, bridge)
}

func (f *Flow) validateRoom(ctx context.Context, room string) error {
	if room == "" {
		return nil
	}
	options, err := f.RoomOptions(ctx)
	if err != nil {
		return err
	}
	if _, found := slices.BinarySearch(options, room); !found {
		return fmt.Errorf("%w: %q is not an area", ErrInvalidRoom, room)
	}
	return nil
}
