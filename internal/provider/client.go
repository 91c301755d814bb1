// ABOUTME: Shared HTTP request and response-classification helper for adapters
// ABOUTME: One bounded-timeout POST path so per-backend code only supplies auth and payload shape

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// defaultSendTimeout bounds a single backend call so a hung backend cannot
// block the caller indefinitely.
const defaultSendTimeout = 15 * time.Second

// maxResponseBody caps how much of a backend response is read into memory.
const maxResponseBody = 64 * 1024

// httpSender is the request/timeout/classification helper shared by all
// adapters. Per-backend code supplies only auth headers and payload shape.
type httpSender struct {
	client *http.Client
	logger *slog.Logger
}

func newHTTPSender(logger *slog.Logger) *httpSender {
	return &httpSender{
		client: &http.Client{Timeout: defaultSendTimeout},
		logger: logger,
	}
}

// postJSON sends payload to url with the given headers and returns the
// status code and response body. A non-nil error means the call itself did
// not complete.
func (h *httpSender) postJSON(ctx context.Context, url string, headers map[string]string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// classify maps a backend HTTP response into a SendResult. parseID extracts
// the backend's message id from a success body; when the body is empty or
// unparsable the send still counts as accepted with a synthesized local id,
// because several real backends omit bodies on success. A 4xx is a confirmed
// refusal; a 5xx says nothing definitive about the message and classifies as
// a transport failure, same as a call that never completed.
func classify(backend string, status int, body []byte, parseID func([]byte) string, logger *slog.Logger) SendResult {
	if status >= 200 && status < 300 {
		if id := parseID(body); id != "" {
			return Accepted(id)
		}
		localID := fmt.Sprintf("%s-local-%s", backend, uuid.NewString()[:8])
		logger.Warn("backend accepted without usable body, synthesizing id",
			"backend", backend,
			"status", status,
			"local_id", localID,
		)
		return Accepted(localID)
	}

	if status >= 500 {
		return TransportFailure(fmt.Errorf("backend returned status %d: %s", status, body))
	}

	return Rejected(fmt.Sprintf("status_%d", status), string(body))
}
