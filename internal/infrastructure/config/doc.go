// Package config handles loading and validating the room sync configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ROOMSYNC_* environment variables
//   - Validation of required fields and reload mode combinations
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Storage.Dir)
package config
