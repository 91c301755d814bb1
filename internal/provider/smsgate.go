// ABOUTME: Device-relay adapter for cloud-connected phone gateways
// ABOUTME: Static basic-auth credential pair per logical device, one relay mechanism for all

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DeviceGateway relays messages through a phone-based gateway. Each logical
// device has its own credential pair; the wire protocol is the same for all.
type DeviceGateway struct {
	name   string
	creds  DeviceCredentials
	sender *httpSender
	logger *slog.Logger
}

// NewDeviceGateway builds an adapter for one device credential bundle. The
// name becomes the originBackend on stored records.
func NewDeviceGateway(name string, creds DeviceCredentials, logger *slog.Logger) *DeviceGateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "provider", "backend", name)
	return &DeviceGateway{
		name:   name,
		creds:  creds,
		sender: newHTTPSender(logger),
		logger: logger,
	}
}

// Name identifies this device for audit records.
func (g *DeviceGateway) Name() string {
	return g.name
}

type deviceSendRequest struct {
	Message      string   `json:"message"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

type deviceSendResponse struct {
	ID string `json:"id"`
}

// Send posts one message to the gateway with the device's basic-auth pair.
func (g *DeviceGateway) Send(ctx context.Context, phoneNumber, body string) SendResult {
	auth := base64.StdEncoding.EncodeToString([]byte(g.creds.Username + ":" + g.creds.Password))
	headers := map[string]string{
		"Authorization": "Basic " + auth,
	}

	payload := deviceSendRequest{
		Message:      body,
		PhoneNumbers: []string{phoneNumber},
	}

	status, respBody, err := g.sender.postJSON(ctx, g.creds.Endpoint, headers, payload)
	if err != nil {
		g.logger.Error("device gateway call failed", "error", err)
		return TransportFailure(fmt.Errorf("device gateway request: %w", err))
	}

	result := classify(g.name, status, respBody, parseDeviceID, g.logger)
	g.logger.Debug("device gateway responded",
		"status", status,
		"outcome", result.Status,
		"provider_message_id", result.ProviderMessageID,
	)
	return result
}

func parseDeviceID(body []byte) string {
	var resp deviceSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.ID
}
