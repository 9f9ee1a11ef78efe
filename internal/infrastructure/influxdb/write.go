package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementRoomSync is the measurement sync passes are recorded under.
const MeasurementRoomSync = "room_sync"

// SyncPoint builds the point describing one sync pass.
//
// Tags: bridge, state. Fields: changed, reloaded, duration_ms.
func SyncPoint(bridge, state string, changed int, reloaded bool, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRoomSync,
		map[string]string{
			"bridge": bridge,
			"state":  state,
		},
		map[string]interface{}{
			"changed":     int64(changed),
			"reloaded":    reloaded,
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		ts,
	)
}

// WriteSyncResult records one sync pass. The write is non-blocking; points
// are batched and sent asynchronously. Nothing is written while disconnected.
//
// Example:
//
//	client.WriteSyncResult("main", "written", 3, true, 42*time.Millisecond)
func (c *Client) WriteSyncResult(bridge, state string, changed int, reloaded bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SyncPoint(bridge, state, changed, reloaded, duration, time.Now()))
}
