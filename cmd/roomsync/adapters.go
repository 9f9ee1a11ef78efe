package main

import (
	"github.com/nerrad567/homekit-room-sync/internal/homekit"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/config"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/influxdb"
	"github.com/nerrad567/homekit-room-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/homekit-room-sync/internal/roomsync"
)

// mqttBus adapts the infrastructure MQTT client to homekit.MessageBus. The
// client takes the named mqtt.MessageHandler type; the bus interface uses the
// plain func type so the homekit package stays free of the MQTT client.
type mqttBus struct {
	client *mqtt.Client
}

// Publish implements homekit.MessageBus.
func (b *mqttBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return b.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements homekit.MessageBus.
func (b *mqttBus) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return b.client.Subscribe(topic, qos, handler)
}

// Unsubscribe implements homekit.MessageBus.
func (b *mqttBus) Unsubscribe(topic string) error {
	return b.client.Unsubscribe(topic)
}

// multiRecorder passes each result to every recorder in turn.
type multiRecorder []roomsync.Recorder

// RecordSync implements roomsync.Recorder.
func (m multiRecorder) RecordSync(res roomsync.Result) {
	for _, r := range m {
		r.RecordSync(res)
	}
}

// metricsRecorder writes every sync pass to InfluxDB.
type metricsRecorder struct {
	client *influxdb.Client
}

// RecordSync implements roomsync.Recorder.
func (r *metricsRecorder) RecordSync(res roomsync.Result) {
	r.client.WriteSyncResult(res.Bridge, string(res.State), len(res.Changes), res.Reloaded, res.Duration)
}

// newReloaderFactory returns the reloader constructor selected by
// reload.mode. MQTT mode without a bus falls back to no reload.
func newReloaderFactory(cfg *config.Config, bus homekit.MessageBus) roomsync.ReloaderFactory {
	timeout := cfg.ReloadTimeout()
	switch cfg.Reload.Mode {
	case config.ReloadModeMQTT:
		if bus == nil {
			return nopReloader
		}
		qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2
		return func(bridge string) homekit.Reloader {
			return homekit.NewMQTTReloader(bus, bridge, qos, timeout)
		}
	case config.ReloadModeCommand:
		argv := cfg.Reload.Command
		return func(bridge string) homekit.Reloader {
			return homekit.NewCommandReloader(argv, bridge, timeout)
		}
	default:
		return nopReloader
	}
}

func nopReloader(string) homekit.Reloader {
	return homekit.NopReloader{}
}
