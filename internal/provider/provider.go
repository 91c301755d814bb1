// ABOUTME: Provider interface and send outcome types for delivery backends
// ABOUTME: Every adapter classifies its raw response into accepted, rejected or transport failure

package provider

import (
	"context"
	"fmt"
)

// SendStatus classifies the outcome of one send attempt.
type SendStatus string

const (
	// StatusAccepted means the backend accepted the message for delivery.
	// It does not guarantee final delivery.
	StatusAccepted SendStatus = "accepted"
	// StatusRejected means the backend synchronously refused the message
	// (bad credentials, malformed recipient, quota).
	StatusRejected SendStatus = "rejected"
	// StatusTransportFailure means the call itself did not complete
	// (timeout, DNS, connection reset). Safe to retry with backoff; no
	// retry is performed here.
	StatusTransportFailure SendStatus = "transport_failure"
)

// SendResult is the typed outcome of a send attempt. Adapters never return
// errors across their boundary; everything maps into one of these.
type SendResult struct {
	Status            SendStatus
	ProviderMessageID string // set when accepted
	ReasonCode        string // set when rejected, e.g. "status_401"
	Detail            string // raw backend detail for the caller's logs
}

// Accepted builds a successful result with the backend's message id.
func Accepted(providerMessageID string) SendResult {
	return SendResult{Status: StatusAccepted, ProviderMessageID: providerMessageID}
}

// Rejected builds a refusal result.
func Rejected(reasonCode, detail string) SendResult {
	return SendResult{Status: StatusRejected, ReasonCode: reasonCode, Detail: detail}
}

// TransportFailure builds a result for a call that never completed.
func TransportFailure(cause error) SendResult {
	return SendResult{Status: StatusTransportFailure, Detail: cause.Error()}
}

// Provider sends one message to one recipient through one delivery backend.
type Provider interface {
	// Name identifies the backend for audit records (originBackend).
	Name() string
	// Send attempts delivery of body to phoneNumber. The context carries
	// the caller's deadline; adapters apply their own bounded timeout too.
	Send(ctx context.Context, phoneNumber, body string) SendResult
}

// DeviceCredentials is a credential bundle for the device-relay backend.
// Many logical devices share one relay mechanism; callers may supply their
// own bundle instead of a named one.
type DeviceCredentials struct {
	Username   string `toml:"username" json:"username"`
	Password   string `toml:"password" json:"password"`
	Endpoint   string `toml:"endpoint" json:"endpoint"`
	DeviceName string `toml:"device_name" json:"deviceName"`
}

// Validate reports the first missing required field.
func (c DeviceCredentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("device credentials require username and password")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("device credentials require an endpoint")
	}
	return nil
}

// Selector picks the adapter and credentials for one relay. Either a named
// provider or an inline credential bundle; the bundle wins when both are set.
type Selector struct {
	Provider    string             `json:"provider,omitempty"`
	Credentials *DeviceCredentials `json:"credentials,omitempty"`
}
