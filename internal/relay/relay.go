// ABOUTME: Relay dispatcher coordinating validation, backend send and audit record append
// ABOUTME: Accepted sends are recorded and published; audit failure never undoes a delivered send

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/provider"
	"github.com/2389/relay-gateway/internal/store"
)

// defaultDispatchTimeout bounds one full relay attempt, resolution through
// append, when the config does not set relay.send_timeout. It sits above the
// adapters' own per-call timeout so the adapter deadline fires first.
const defaultDispatchTimeout = 20 * time.Second

// Publisher receives messages that were recorded, for live subscribers.
type Publisher interface {
	Publish(msg *store.Message)
}

// Request is one relay order: a recipient, a body, and which backend to use.
type Request struct {
	PhoneNumber string            `json:"phoneNumber"`
	Message     string            `json:"message"`
	Selector    provider.Selector `json:"selector"`
}

// Outcome reports one relay attempt to the caller. Failed sends are data,
// not errors: the Error field carries the reason and Success stays false.
type Outcome struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"messageId,omitempty"`
	Backend           string `json:"backend,omitempty"`
	Status            string `json:"status,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ValidationError marks a request that was refused before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Dispatcher resolves a backend for each request, performs the send, and
// appends an audit record for every accepted message.
type Dispatcher struct {
	registry    *provider.Registry
	store       store.Store
	publisher   Publisher
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewDispatcher wires the dispatcher. publisher may be nil when no live
// stream is attached; a non-positive sendTimeout selects the default.
func NewDispatcher(registry *provider.Registry, st store.Store, publisher Publisher, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    registry,
		store:       st,
		publisher:   publisher,
		sendTimeout: sendTimeout,
		logger:      logger.With("component", "relay"),
	}
}

// Dispatch relays one message. Validation happens before any network
// activity; a request that fails validation returns a *ValidationError and
// touches neither backend nor store. Backend refusals and transport failures
// come back as a failed Outcome with a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	if err := validate(req); err != nil {
		return Outcome{}, err
	}

	p, err := d.registry.Resolve(req.Selector)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving provider: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	result := p.Send(ctx, req.PhoneNumber, req.Message)
	switch result.Status {
	case provider.StatusAccepted:
		return d.recordAccepted(ctx, p.Name(), req, result), nil
	case provider.StatusRejected:
		d.logger.Warn("backend rejected message",
			"backend", p.Name(),
			"phone", req.PhoneNumber,
			"reason", result.ReasonCode,
		)
		return Outcome{
			Backend: p.Name(),
			Status:  string(result.Status),
			Error:   fmt.Sprintf("%s: %s", result.ReasonCode, result.Detail),
		}, nil
	default:
		d.logger.Error("backend unreachable",
			"backend", p.Name(),
			"phone", req.PhoneNumber,
			"detail", result.Detail,
		)
		return Outcome{
			Backend: p.Name(),
			Status:  string(result.Status),
			Error:   result.Detail,
		}, nil
	}
}

// recordAccepted appends the outbound audit record and publishes it. A store
// failure is logged but does not fail the relay; the message already left.
func (d *Dispatcher) recordAccepted(ctx context.Context, backend string, req Request, result provider.SendResult) Outcome {
	msg := &store.Message{
		PhoneNumber:   req.PhoneNumber,
		Body:          req.Message,
		Direction:     store.DirectionOutbound,
		Status:        "sent",
		OriginBackend: backend,
		BackendRef:    result.ProviderMessageID,
	}

	if err := d.store.AppendMessage(ctx, msg); err != nil {
		d.logger.Error("message sent but audit append failed",
			"backend", backend,
			"phone", req.PhoneNumber,
			"provider_message_id", result.ProviderMessageID,
			"error", err,
		)
	} else if d.publisher != nil {
		d.publisher.Publish(msg)
	}

	d.logger.Info("message relayed",
		"backend", backend,
		"phone", req.PhoneNumber,
		"provider_message_id", result.ProviderMessageID,
	)

	return Outcome{
		Success:           true,
		ProviderMessageID: result.ProviderMessageID,
		Backend:           backend,
		Status:            string(provider.StatusAccepted),
	}
}

// DispatchBatch relays to every recipient sequentially and reports per-phone
// outcomes. Validation errors on individual recipients become failed
// outcomes, not a batch abort.
func (d *Dispatcher) DispatchBatch(ctx context.Context, phoneNumbers []string, message string, sel provider.Selector) []Outcome {
	outcomes := make([]Outcome, 0, len(phoneNumbers))
	for _, phone := range phoneNumbers {
		out, err := d.Dispatch(ctx, Request{
			PhoneNumber: phone,
			Message:     message,
			Selector:    sel,
		})
		if err != nil {
			out = Outcome{Error: err.Error()}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func validate(req Request) error {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return &ValidationError{Field: "phoneNumber", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	return nil
}
