// ABOUTME: Carrier-API adapter with token-based client identity
// ABOUTME: Normalizes recipients to E.164 and authenticates with a short-lived signed token

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is the lifetime of the bearer token minted per send.
const tokenTTL = 5 * time.Minute

// CarrierConfig holds the carrier account identity and endpoint.
type CarrierConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccountID  string `yaml:"account_id"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	FromNumber string `yaml:"from_number"`
}

// Carrier sends through a carrier messaging API. Unlike the device relay it
// requires E.164 recipients and a signed client token instead of a static
// credential pair.
type Carrier struct {
	name   string
	cfg    CarrierConfig
	sender *httpSender
	logger *slog.Logger
	now    func() time.Time
}

// NewCarrier builds the carrier adapter.
func NewCarrier(name string, cfg CarrierConfig, logger *slog.Logger) *Carrier {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "provider", "backend", name)
	return &Carrier{
		name:   name,
		cfg:    cfg,
		sender: newHTTPSender(logger),
		logger: logger,
		now:    time.Now,
	}
}

// Name identifies this carrier account for audit records.
func (c *Carrier) Name() string {
	return c.name
}

type carrierSendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type carrierSendResponse struct {
	SID string `json:"sid"`
	ID  string `json:"id"`
}

// Send normalizes the recipient, mints a bearer token and posts the message.
// A recipient that cannot be normalized is a rejection, not a transport
// failure: no call is attempted.
func (c *Carrier) Send(ctx context.Context, phoneNumber, body string) SendResult {
	to, err := NormalizeE164(phoneNumber)
	if err != nil {
		return Rejected("invalid_recipient", err.Error())
	}

	token, err := c.mintToken()
	if err != nil {
		return Rejected("token_error", err.Error())
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	payload := carrierSendRequest{
		To:   to,
		From: c.cfg.FromNumber,
		Body: body,
	}

	status, respBody, err := c.sender.postJSON(ctx, c.cfg.Endpoint, headers, payload)
	if err != nil {
		c.logger.Error("carrier call failed", "error", err)
		return TransportFailure(fmt.Errorf("carrier request: %w", err))
	}

	result := classify(c.name, status, respBody, parseCarrierID, c.logger)
	c.logger.Debug("carrier responded",
		"status", status,
		"outcome", result.Status,
		"to", to,
	)
	return result
}

// mintToken signs a short-lived HS256 token identifying the API key and
// account, the shape the carrier's token endpoint hands to clients.
func (c *Carrier) mintToken() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss": c.cfg.APIKey,
		"sub": c.cfg.AccountID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func parseCarrierID(body []byte) string {
	var resp carrierSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.SID != "" {
		return resp.SID
	}
	return resp.ID
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeE164 coerces common US/international number shapes into E.164.
// Ten bare digits get a +1 country code; eleven digits starting with 1 and
// longer international numbers get a +; separators are stripped throughout.
func NormalizeE164(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "", fmt.Errorf("empty phone number")
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := nonDigits.ReplaceAllString(trimmed, "")
	if digits == "" {
		return "", fmt.Errorf("phone number %q has no digits", phone)
	}

	switch {
	case hasPlus:
		return "+" + digits, nil
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) >= 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits, nil
	case len(digits) >= 11:
		return "+" + digits, nil
	default:
		return "", fmt.Errorf("phone number %q is too short", phone)
	}
}
