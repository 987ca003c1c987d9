// Package config loads the edgepub configuration.
//
// Loader starts from Defaults, merges every layer in the order added (JSON or
// YAML, picked by file extension), applies EDGEPUB_* environment variables and
// finally generates a client id of the form "edgepub-<uuid>" if none was set.
// Durations may be written as strings such as "500ms", "30s" or "14d".
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/edgepub.yaml")
//	loader.AddLayer("configs/site-override.json")
//	cfg, err := loader.Load()
//
// Validate reports every problem at once; each one wraps errors.ErrInvalidConfig.
//
// Environment overrides:
//
//	EDGEPUB_CLUSTER_ID, EDGEPUB_CLIENT_ID, EDGEPUB_TRANSPORT
//	EDGEPUB_NATS_USERNAME, EDGEPUB_NATS_PASSWORD, EDGEPUB_NATS_TOKEN, EDGEPUB_NATS_CREDS
//	EDGEPUB_MQTT_USERNAME, EDGEPUB_MQTT_PASSWORD
//	EDGEPUB_BUFFER_CAPACITY, EDGEPUB_RETRY_THRESHOLD
//	EDGEPUB_METRICS_PORT, EDGEPUB_METRICS_PATH
//	EDGEPUB_LOG_LEVEL, EDGEPUB_LOG_FORMAT
package config
