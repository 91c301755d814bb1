// ABOUTME: HTTP ingestor for inbound message webhooks from delivery backends
// ABOUTME: Records received messages, acknowledges status callbacks, never asks for redelivery of processable payloads

package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/relay-gateway/internal/store"
)

// maxPayloadBytes caps how much of a webhook body is read.
const maxPayloadBytes = 256 * 1024

// Publisher receives messages that were recorded, for live subscribers.
type Publisher interface {
	Publish(msg *store.Message)
}

// Event is the envelope backends post to the webhook endpoint.
type Event struct {
	Event    string  `json:"event"`
	DeviceID string  `json:"deviceId"`
	Payload  Payload `json:"payload"`
}

// Payload carries the message fields of a webhook event.
type Payload struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	MessageID   string `json:"messageId"`
	ReceivedAt  string `json:"receivedAt"`
}

// backendRef is what gets stored as the backend reference for an inbound
// message: the backend's own id and timestamp, for tracing.
type backendRef struct {
	MessageID  string `json:"messageId,omitempty"`
	ReceivedAt string `json:"receivedAt,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ingestor handles webhook posts from delivery backends. Inbound messages
// are recorded and published; status callbacks and unknown events are
// acknowledged without side effects so backends do not redeliver.
type Ingestor struct {
	store     store.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewIngestor wires the ingestor. publisher may be nil when no live stream
// is attached.
func NewIngestor(st store.Store, publisher Publisher, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:     st,
		publisher: publisher,
		logger:    logger.With("component", "webhook"),
	}
}

// ServeHTTP accepts one webhook event. A body that cannot be parsed is a
// server error so the backend retries; a parsed event that fails processing
// is acknowledged with success=false and never redelivered.
func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	i.verifySignature(r)

	var evt Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&evt); err != nil {
		i.logger.Error("unparsable webhook body", "error", err)
		writeResponse(w, http.StatusInternalServerError, response{Success: false, Error: "invalid payload"})
		return
	}

	kind := strings.TrimPrefix(evt.Event, "sms:")
	switch kind {
	case "received":
		i.handleReceived(w, r, evt)
	case "sent", "delivered", "failed":
		i.logger.Info("delivery status callback",
			"event", kind,
			"device", evt.DeviceID,
			"message_id", evt.Payload.MessageID,
		)
		writeResponse(w, http.StatusOK, response{Success: true})
	default:
		i.logger.Warn("unknown webhook event", "event", evt.Event, "device", evt.DeviceID)
		writeResponse(w, http.StatusOK, response{Success: true})
	}
}

// handleReceived records one inbound message. The record carries the server
// receive time, not the backend's clock; the backend's id and timestamp are
// preserved in the backend reference.
func (i *Ingestor) handleReceived(w http.ResponseWriter, r *http.Request, evt Event) {
	phone := canonicalPhone(evt.Payload.PhoneNumber)
	if phone == "" || strings.TrimSpace(evt.Payload.Message) == "" {
		i.logger.Warn("received event missing phone or message", "device", evt.DeviceID)
		writeResponse(w, http.StatusOK, response{Success: false, Error: "missing phoneNumber or message"})
		return
	}

	ref, err := json.Marshal(backendRef{
		MessageID:  evt.Payload.MessageID,
		ReceivedAt: evt.Payload.ReceivedAt,
	})
	if err != nil {
		ref = []byte("{}")
	}

	origin := evt.DeviceID
	if origin == "" {
		origin = "webhook"
	}

	msg := &store.Message{
		PhoneNumber:   phone,
		Body:          evt.Payload.Message,
		Direction:     store.DirectionInbound,
		Status:        "received",
		OriginBackend: origin,
		BackendRef:    string(ref),
	}

	if err := i.store.AppendMessage(r.Context(), msg); err != nil {
		i.logger.Error("recording inbound message failed",
			"phone", phone,
			"device", evt.DeviceID,
			"error", err,
		)
		writeResponse(w, http.StatusOK, response{Success: false, Error: "store failure"})
		return
	}

	if i.publisher != nil {
		i.publisher.Publish(msg)
	}

	i.logger.Info("inbound message recorded",
		"phone", phone,
		"device", evt.DeviceID,
		"message_id", msg.ID,
	)
	writeResponse(w, http.StatusOK, response{Success: true})
}

// verifySignature observes the signature headers backends may attach. No
// shared secret is configured yet, so nothing is rejected.
// TODO: reject on mismatch once devices are provisioned with signing keys.
func (i *Ingestor) verifySignature(r *http.Request) {
	sig := r.Header.Get("X-Signature")
	ts := r.Header.Get("X-Timestamp")
	if sig != "" || ts != "" {
		i.logger.Debug("webhook signature headers present", "signature", sig != "", "timestamp", ts)
	}
}

// canonicalPhone normalizes the sender field. Backends commonly omit the
// leading plus on E.164 numbers; conversation grouping needs one spelling.
func canonicalPhone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

func writeResponse(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
