// ABOUTME: HTTP API handlers for relay, conversations, campaigns, stats and live stream
// ABOUTME: Exposes the relay dispatcher and store over JSON plus SSE for live subscribers

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/conversation"
	"github.com/2389/relay-gateway/internal/provider"
	"github.com/2389/relay-gateway/internal/relay"
	"github.com/2389/relay-gateway/internal/store"
)

// RelayRequest is the JSON request body for POST /api/relay. A single
// recipient goes in phoneNumber; a batch goes in phoneNumbers. Exactly one
// of the two forms must be used.
type RelayRequest struct {
	PhoneNumber  string                      `json:"phoneNumber,omitempty"`
	PhoneNumbers []string                    `json:"phoneNumbers,omitempty"`
	Message      string                      `json:"message"`
	Provider     string                      `json:"provider,omitempty"`
	Credentials  *provider.DeviceCredentials `json:"credentials,omitempty"`
}

// BatchRelayResponse is the JSON response for a batch relay.
type BatchRelayResponse struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Results    []relay.Outcome `json:"results"`
}

// MessageResponse is the JSON shape of one stored message.
type MessageResponse struct {
	ID            string `json:"id"`
	PhoneNumber   string `json:"phoneNumber"`
	Body          string `json:"body"`
	Direction     string `json:"direction"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	OriginBackend string `json:"originBackend,omitempty"`
	BackendRef    string `json:"backendRef,omitempty"`
}

// ConversationResponse is one entry of GET /api/conversations.
type ConversationResponse struct {
	PhoneNumber   string `json:"phoneNumber"`
	LastBody      string `json:"lastBody"`
	LastDirection string `json:"lastDirection"`
	LastTimestamp string `json:"lastTimestamp"`
	MessageCount  int    `json:"messageCount"`
}

// ConversationMessagesResponse is the JSON response for
// GET /api/conversations/{phone}/messages.
type ConversationMessagesResponse struct {
	PhoneNumber string            `json:"phoneNumber"`
	Messages    []MessageResponse `json:"messages"`
}

// CreateCampaignRequest is the JSON request body for POST /api/campaigns.
type CreateCampaignRequest struct {
	CampaignID      string `json:"campaignId"`
	Type            string `json:"type"`
	TotalRecipients int    `json:"totalRecipients"`
	MessageTemplate string `json:"messageTemplate,omitempty"`
}

// UpdateCampaignRequest is the JSON request body for PUT /api/campaigns/{id}.
// Successful, failed and details are cumulative totals that replace the
// stored values. Setting completed records the end time and finishes the
// campaign.
type UpdateCampaignRequest struct {
	Successful int                    `json:"successful"`
	Failed     int                    `json:"failed"`
	Details    []store.CampaignDetail `json:"details,omitempty"`
	Completed  bool                   `json:"completed,omitempty"`
}

// CampaignResponse is the JSON shape of one campaign.
type CampaignResponse struct {
	CampaignID      string                 `json:"campaignId"`
	Type            string                 `json:"type"`
	Status          string                 `json:"status"`
	TotalRecipients int                    `json:"totalRecipients"`
	Successful      int                    `json:"successful"`
	Failed          int                    `json:"failed"`
	Pending         int                    `json:"pending"`
	MessageTemplate string                 `json:"messageTemplate,omitempty"`
	Details         []store.CampaignDetail `json:"details"`
	EstimatedCost   string                 `json:"estimatedCost"`
	ActualCost      string                 `json:"actualCost"`
	StartTime       string                 `json:"startTime"`
	EndTime         string                 `json:"endTime,omitempty"`
}

// CampaignSummaryResponse is one entry of GET /api/campaigns.
type CampaignSummaryResponse struct {
	CampaignID      string `json:"campaignId"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	TotalRecipients int    `json:"totalRecipients"`
	Successful      int    `json:"successful"`
	Failed          int    `json:"failed"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime,omitempty"`
	ActualCost      string `json:"actualCost"`
	SuccessRate     string `json:"successRate"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	Total    int `json:"total"`
	Inbound  int `json:"inbound"`
	Outbound int `json:"outbound"`
	Failed   int `json:"failed"`
}

// handleRelay handles POST /api/relay requests, single and batch.
func (g *Gateway) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.PhoneNumber != "" && len(req.PhoneNumbers) > 0 {
		g.sendJSONError(w, http.StatusBadRequest, "specify phoneNumber or phoneNumbers, not both")
		return
	}

	sel := provider.Selector{Provider: req.Provider, Credentials: req.Credentials}

	if len(req.PhoneNumbers) > 0 {
		g.handleBatchRelay(w, r, req, sel)
		return
	}

	outcome, err := g.dispatcher.Dispatch(r.Context(), relay.Request{
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
		Selector:    sel,
	})
	if err != nil {
		var verr *relay.ValidationError
		switch {
		case errors.As(err, &verr):
			g.sendJSONError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, provider.ErrUnknownProvider), errors.Is(err, provider.ErrNoDefaultProvider):
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
		default:
			g.logger.Error("relay failed", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}
	g.writeJSON(w, status, outcome)
}

// handleBatchRelay fans one message out to every recipient and reports
// per-phone outcomes. Individual failures do not abort the batch.
func (g *Gateway) handleBatchRelay(w http.ResponseWriter, r *http.Request, req RelayRequest, sel provider.Selector) {
	if strings.TrimSpace(req.Message) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	outcomes := g.dispatcher.DispatchBatch(r.Context(), req.PhoneNumbers, req.Message, sel)

	resp := BatchRelayResponse{
		Total:   len(outcomes),
		Results: outcomes,
	}
	for _, out := range outcomes {
		if out.Success {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// handleConversations handles GET /api/conversations requests.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summaries, err := g.store.ListConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ConversationResponse, len(summaries))
	for i, sum := range summaries {
		response[i] = ConversationResponse{
			PhoneNumber:   sum.PhoneNumber,
			LastBody:      sum.LastBody,
			LastDirection: string(sum.LastDirection),
			LastTimestamp: sum.LastTimestamp.Format(time.RFC3339),
			MessageCount:  sum.MessageCount,
		}
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleConversationMessages handles GET /api/conversations/{phone}/messages.
// Returns the full history for one phone number in chronological order.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Extract phone number from path: /api/conversations/{phone}/messages
	path := r.URL.Path
	prefix := "/api/conversations/"
	suffix := "/messages"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	phone := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if phone == "" {
		g.sendJSONError(w, http.StatusBadRequest, "phone number is required")
		return
	}

	messages, err := g.store.GetMessages(r.Context(), phone)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err, "phone", phone)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ConversationMessagesResponse{
		PhoneNumber: phone,
		Messages:    make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		response.Messages[i] = messageToResponse(msg)
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleCampaigns routes campaign collection requests by HTTP method.
func (g *Gateway) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListCampaigns(w, r)
	case http.MethodPost:
		g.handleCreateCampaign(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCreateCampaign handles POST /api/campaigns.
func (g *Gateway) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.CampaignID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "campaignId is required")
		return
	}
	if req.TotalRecipients < 1 {
		g.sendJSONError(w, http.StatusBadRequest, "totalRecipients must be positive")
		return
	}

	campaign := &store.Campaign{
		CampaignID:      req.CampaignID,
		Type:            req.Type,
		TotalRecipients: req.TotalRecipients,
		MessageTemplate: req.MessageTemplate,
	}

	if err := g.store.CreateCampaign(r.Context(), campaign); err != nil {
		if errors.Is(err, store.ErrDuplicateCampaign) {
			g.sendJSONError(w, http.StatusConflict, "campaign already exists")
			return
		}
		g.logger.Error("failed to create campaign", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusCreated, campaignToResponse(campaign))
}

// handleListCampaigns handles GET /api/campaigns, optionally limited by ?limit=N.
func (g *Gateway) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	summaries, err := g.store.ListCampaigns(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list campaigns", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]CampaignSummaryResponse, len(summaries))
	for i, sum := range summaries {
		response[i] = CampaignSummaryResponse{
			CampaignID:      sum.CampaignID,
			Type:            sum.Type,
			Status:          sum.Status,
			TotalRecipients: sum.TotalRecipients,
			Successful:      sum.Successful,
			Failed:          sum.Failed,
			StartTime:       sum.StartTime.Format(time.RFC3339),
			EndTime:         formatOptionalTime(sum.EndTime),
			ActualCost:      sum.ActualCost,
			SuccessRate:     sum.SuccessRate,
		}
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleCampaignByID handles GET and PUT on /api/campaigns/{id}.
func (g *Gateway) handleCampaignByID(w http.ResponseWriter, r *http.Request) {
	campaignID := strings.TrimPrefix(r.URL.Path, "/api/campaigns/")
	if campaignID == "" || strings.Contains(campaignID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.handleGetCampaign(w, r, campaignID)
	case http.MethodPut:
		g.handleUpdateCampaign(w, r, campaignID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleGetCampaign handles GET /api/campaigns/{id}.
func (g *Gateway) handleGetCampaign(w http.ResponseWriter, r *http.Request, campaignID string) {
	campaign, err := g.store.GetCampaign(r.Context(), campaignID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get campaign", "error", err, "campaign_id", campaignID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, campaignToResponse(campaign))
}

// handleUpdateCampaign handles PUT /api/campaigns/{id}.
func (g *Gateway) handleUpdateCampaign(w http.ResponseWriter, r *http.Request, campaignID string) {
	var req UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Successful < 0 || req.Failed < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "successful and failed must not be negative")
		return
	}

	progress := store.CampaignProgress{
		Successful: req.Successful,
		Failed:     req.Failed,
		Details:    req.Details,
	}
	if req.Completed {
		now := time.Now().UTC()
		progress.EndTime = &now
	}

	campaign, err := g.store.UpdateCampaignProgress(r.Context(), campaignID, progress)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to update campaign", "error", err, "campaign_id", campaignID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, campaignToResponse(campaign))
}

// handleStats handles GET /api/stats requests.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := g.store.StatsToday(r.Context())
	if err != nil {
		g.logger.Error("failed to get stats", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, StatsResponse{
		Total:    stats.Total,
		Inbound:  stats.Inbound,
		Outbound: stats.Outbound,
		Failed:   stats.Failed,
	})
}

// handleStream handles GET /api/stream requests. Streams every recorded
// message as SSE, optionally filtered to one conversation with ?phone=X.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	phone := r.URL.Query().Get("phone")
	if phone == "" {
		phone = conversation.KeyAll
	}

	ch, subID := g.broadcaster.Subscribe(r.Context(), phone)
	g.logger.Debug("stream subscriber connected", "phone", phone, "sub_id", subID)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"subscription": subID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, "message", messageToResponse(msg))
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func messageToResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:            msg.ID,
		PhoneNumber:   msg.PhoneNumber,
		Body:          msg.Body,
		Direction:     string(msg.Direction),
		Status:        msg.Status,
		Timestamp:     msg.Timestamp.Format(time.RFC3339),
		OriginBackend: msg.OriginBackend,
		BackendRef:    msg.BackendRef,
	}
}

func campaignToResponse(c *store.Campaign) CampaignResponse {
	details := c.Details
	if details == nil {
		details = []store.CampaignDetail{}
	}
	return CampaignResponse{
		CampaignID:      c.CampaignID,
		Type:            c.Type,
		Status:          c.Status,
		TotalRecipients: c.TotalRecipients,
		Successful:      c.Successful,
		Failed:          c.Failed,
		Pending:         c.Pending,
		MessageTemplate: c.MessageTemplate,
		Details:         details,
		EstimatedCost:   c.EstimatedCost,
		ActualCost:      c.ActualCost,
		StartTime:       c.StartTime.Format(time.RFC3339),
		EndTime:         formatOptionalTime(c.EndTime),
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
