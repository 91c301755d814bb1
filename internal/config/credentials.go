// ABOUTME: TOML loader for named device credential bundles
// ABOUTME: Keeps per-device secrets out of the main YAML config with the same env expansion

package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/2389/relay-gateway/internal/provider"
)

// Credentials is the device credentials file: named bundles plus an
// optional default device name.
type Credentials struct {
	Default string                                `toml:"default"`
	Devices map[string]provider.DeviceCredentials `toml:"devices"`
}

// LoadCredentials reads device credential bundles from the given TOML path,
// expanding environment variables. Every bundle is validated; a file that
// names a default device must also define it.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var creds Credentials
	if _, err := toml.Decode(expanded, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("validating credentials: %w", err)
	}

	return &creds, nil
}

// Validate checks every credential bundle and the default reference.
func (c *Credentials) Validate() error {
	// Registered name per bundle: device_name, or the table key when unset.
	// Two bundles resolving to the same name would overwrite each other.
	registered := make(map[string]string, len(c.Devices))

	for name, device := range c.Devices {
		if err := device.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", name, err)
		}
		u, err := url.Parse(device.Endpoint)
		if err != nil {
			return fmt.Errorf("device %q: endpoint is not a valid URL: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("device %q: endpoint must use http or https scheme", name)
		}

		providerName := device.DeviceName
		if providerName == "" {
			providerName = name
		}
		if other, taken := registered[providerName]; taken {
			return fmt.Errorf("devices %q and %q both resolve to provider name %q", other, name, providerName)
		}
		registered[providerName] = name
	}

	if c.Default != "" {
		if _, ok := c.Devices[c.Default]; !ok {
			return fmt.Errorf("default device %q is not defined", c.Default)
		}
	}

	return nil
}
