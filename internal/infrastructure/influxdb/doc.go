// Package influxdb records room sync pass metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each sync pass becomes
// one point in the room_sync measurement, tagged by bridge and outcome, so
// dashboards can chart how often rooms change and how long passes take.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSyncResult("main", "written", 2, true, 35*time.Millisecond)
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
