// ABOUTME: Tests for the TOML device credentials loader
// ABOUTME: Covers bundle parsing, env expansion, and validation failures

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	credsPath := filepath.Join(tmpDir, "devices.toml")
	if err := os.WriteFile(credsPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test credentials: %v", err)
	}
	return credsPath
}

func TestLoadCredentials_Valid(t *testing.T) {
	credsPath := writeCredentials(t, `
default = "primary"

[devices.primary]
username = "AD2XA0"
password = "hunter2"
endpoint = "https://gateway.example/3rdparty/v1/message"
device_name = "device:primary"

[devices.backup]
username = "BK9QZ1"
password = "hunter3"
endpoint = "https://gateway.example/3rdparty/v1/message"
`)

	creds, err := LoadCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}

	if creds.Default != "primary" {
		t.Errorf("Default = %q, want %q", creds.Default, "primary")
	}
	if len(creds.Devices) != 2 {
		t.Fatalf("Devices len = %d, want 2", len(creds.Devices))
	}

	primary := creds.Devices["primary"]
	if primary.Username != "AD2XA0" {
		t.Errorf("primary.Username = %q, want %q", primary.Username, "AD2XA0")
	}
	if primary.DeviceName != "device:primary" {
		t.Errorf("primary.DeviceName = %q, want %q", primary.DeviceName, "device:primary")
	}
}

func TestLoadCredentials_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DEVICE_PASSWORD", "from-env")

	credsPath := writeCredentials(t, `
[devices.primary]
username = "AD2XA0"
password = "${TEST_DEVICE_PASSWORD}"
endpoint = "https://gateway.example/send"
`)

	creds, err := LoadCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}

	if creds.Devices["primary"].Password != "from-env" {
		t.Errorf("Password = %q, want %q", creds.Devices["primary"].Password, "from-env")
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	_, err := LoadCredentials("/nonexistent/devices.toml")
	if err == nil {
		t.Error("LoadCredentials() expected error for missing file, got nil")
	}
}

func TestLoadCredentials_ValidationFailures(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantErrSubstr string
	}{
		{
			name: "missing password",
			content: `
[devices.primary]
username = "AD2XA0"
endpoint = "https://gateway.example/send"
`,
			wantErrSubstr: "username and password",
		},
		{
			name: "missing endpoint",
			content: `
[devices.primary]
username = "AD2XA0"
password = "hunter2"
`,
			wantErrSubstr: "endpoint",
		},
		{
			name: "bad endpoint scheme",
			content: `
[devices.primary]
username = "AD2XA0"
password = "hunter2"
endpoint = "ftp://gateway.example/send"
`,
			wantErrSubstr: "http or https",
		},
		{
			name: "duplicate device_name",
			content: `
[devices.primary]
username = "AD2XA0"
password = "hunter2"
endpoint = "https://gateway.example/send"
device_name = "device:shared"

[devices.backup]
username = "BK9QZ1"
password = "hunter3"
endpoint = "https://gateway.example/send"
device_name = "device:shared"
`,
			wantErrSubstr: `provider name "device:shared"`,
		},
		{
			name: "device_name shadows another bundle key",
			content: `
[devices.primary]
username = "AD2XA0"
password = "hunter2"
endpoint = "https://gateway.example/send"

[devices.backup]
username = "BK9QZ1"
password = "hunter3"
endpoint = "https://gateway.example/send"
device_name = "primary"
`,
			wantErrSubstr: `provider name "primary"`,
		},
		{
			name: "default references unknown device",
			content: `
default = "ghost"

[devices.primary]
username = "AD2XA0"
password = "hunter2"
endpoint = "https://gateway.example/send"
`,
			wantErrSubstr: `default device "ghost"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credsPath := writeCredentials(t, tt.content)

			_, err := LoadCredentials(credsPath)
			if err == nil {
				t.Errorf("LoadCredentials() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("LoadCredentials() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}
