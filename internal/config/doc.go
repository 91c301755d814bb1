// Package config handles configuration loading for relay-gateway.
//
// # Overview
//
// The main configuration is YAML with environment variable expansion.
// Device credential bundles live in a separate TOML file so the main
// config can be committed while per-device secrets stay out of it.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/relay-gateway/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  carrier:
//	    api_secret: "${CARRIER_API_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
// The same expansion applies inside the TOML credentials file.
//
// # Configuration Sections
//
// Server and database:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/relay-gateway/relay.db"
//
// Delivery backends:
//
//	providers:
//	  default: "device:primary"
//	  credentials_file: "~/.config/relay-gateway/devices.toml"
//	  carrier:
//	    enabled: false
//	    endpoint: "https://carrier.example/messages"
//	    account_id: "${CARRIER_ACCOUNT_ID}"
//	    api_key: "${CARRIER_API_KEY}"
//	    api_secret: "${CARRIER_API_SECRET}"
//	    from_number: "+15559990000"
//
// Relay timing and retention:
//
//	relay:
//	  send_timeout: "20s"
//	retention:
//	  max_messages: 1000
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Device Credentials File
//
// The TOML file maps device names to credential bundles:
//
//	default = "primary"
//
//	[devices.primary]
//	username = "AD2XA0"
//	password = "${DEVICE_PRIMARY_PASSWORD}"
//	endpoint = "https://gateway.example/3rdparty/v1/message"
//	device_name = "device:primary"
package config
