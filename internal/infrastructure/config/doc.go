// Package config handles loading and validating CDL Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CDL_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should be supplied
// through the environment rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
