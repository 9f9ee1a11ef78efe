package roomsync

import (
	"testing"

	"github.com/nerrad567/homekit-room-sync/internal/registry"
)

func strPtr(s string) *string { return &s }

func testSnapshot() *registry.Snapshot {
	return registry.NewSnapshot(
		[]registry.Area{
			{ID: "kitchen", Name: "Kitchen"},
			{ID: "living", Name: "Living Room"},
			{ID: "office", Name: "Office"},
		},
		[]registry.Device{
			{ID: "hub", Name: "Hub", AreaID: strPtr("living")},
			{ID: "loose", Name: "Loose"},
			{ID: "moved", Name: "Moved", AreaID: strPtr("demolished")},
		},
		[]registry.Entity{
			{EntityID: "light.kitchen", AreaID: strPtr("kitchen")},
			{EntityID: "light.override", AreaID: strPtr("office"), DeviceID: strPtr("hub")},
			{EntityID: "sensor.hub", DeviceID: strPtr("hub")},
			{EntityID: "sensor.hub_blank", AreaID: strPtr(""), DeviceID: strPtr("hub")},
			{EntityID: "switch.loose", DeviceID: strPtr("loose")},
			{EntityID: "switch.ghost_device", DeviceID: strPtr("nowhere")},
			{EntityID: "switch.moved", DeviceID: strPtr("moved")},
			{EntityID: "light.dangling", AreaID: strPtr("demolished"), DeviceID: strPtr("hub")},
			{EntityID: "fan.bare"},
		},
	)
}

func TestResolveRoom(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name        string
		entityID    string
		defaultRoom *string
		want        *string
	}{
		{"entity area", "light.kitchen", nil, strPtr("Kitchen")},
		{"entity area beats device area", "light.override", nil, strPtr("Office")},
		{"device area fallback", "sensor.hub", nil, strPtr("Living Room")},
		{"empty entity area counts as unset", "sensor.hub_blank", nil, strPtr("Living Room")},
		{"device without area", "switch.loose", nil, nil},
		{"device without area uses default", "switch.loose", strPtr("Misc"), strPtr("Misc")},
		{"unknown device", "switch.ghost_device", strPtr("Misc"), strPtr("Misc")},
		{"device area dangling", "switch.moved", nil, nil},
		{"entity area dangling skips device", "light.dangling", nil, nil},
		{"entity area dangling uses default", "light.dangling", strPtr("Misc"), strPtr("Misc")},
		{"no area no device", "fan.bare", nil, nil},
		{"unknown entity", "light.unknown", nil, nil},
		{"unknown entity uses default", "light.unknown", strPtr("Misc"), strPtr("Misc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRoom(tt.entityID, snap, snap, snap, tt.defaultRoom)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ResolveRoom(%q) = %q, want nil", tt.entityID, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ResolveRoom(%q) = nil, want %q", tt.entityID, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("ResolveRoom(%q) = %q, want %q", tt.entityID, *got, *tt.want)
			}
		})
	}
}
