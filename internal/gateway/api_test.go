// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Covers relay, conversations, campaigns, stats and the SSE stream

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/conversation"
	"github.com/2389/relay-gateway/internal/provider"
	"github.com/2389/relay-gateway/internal/relay"
	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/webhook"
)

type stubProvider struct {
	mu     sync.Mutex
	name   string
	result provider.SendResult
	calls  int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Send(ctx context.Context, phoneNumber, body string) provider.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result
}

func setupTestGateway(t *testing.T) (*Gateway, *store.MockStore, *stubProvider) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMockStore()

	p := &stubProvider{name: "device:test", result: provider.Accepted("gw-1")}
	registry := provider.NewRegistry(logger)
	registry.Register(p)

	broadcaster := conversation.NewBroadcaster(logger)
	t.Cleanup(broadcaster.Close)

	gw := &Gateway{
		store:       st,
		registry:    registry,
		dispatcher:  relay.NewDispatcher(registry, st, broadcaster, 0, logger),
		ingestor:    webhook.NewIngestor(st, broadcaster, logger),
		broadcaster: broadcaster,
		logger:      logger,
	}
	return gw, st, p
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleRelay_SingleSuccess(t *testing.T) {
	gw, st, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumber: "+15550001111",
		Message:     "hello",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var out relay.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "gw-1", out.ProviderMessageID)

	msgs, err := st.GetMessages(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHandleRelay_RejectedIsBadGateway(t *testing.T) {
	gw, _, p := setupTestGateway(t)
	p.result = provider.Rejected("status_401", "bad creds")

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumber: "+15550001111",
		Message:     "hello",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var out relay.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "status_401")
}

func TestHandleRelay_ValidationError(t *testing.T) {
	gw, _, p := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		Message: "no recipient",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, p.calls)
}

func TestHandleRelay_UnknownProvider(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumber: "+15550001111",
		Message:     "hello",
		Provider:    "device:missing",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRelay_BothFormsRejected(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumber:  "+15550001111",
		PhoneNumbers: []string{"+15550002222"},
		Message:      "hello",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRelay_InvalidJSON(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/relay", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	gw.handleRelay(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRelay_MethodNotAllowed(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodGet, "/api/relay", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRelay_Batch(t *testing.T) {
	gw, st, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumbers: []string{"+15550001111", "", "+15550002222"},
		Message:      "broadcast",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchRelayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.False(t, resp.Results[1].Success)

	msgs, err := st.GetMessages(context.Background(), "+15550002222")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHandleRelay_BatchWithoutMessage(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleRelay, http.MethodPost, "/api/relay", RelayRequest{
		PhoneNumbers: []string{"+15550001111"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleConversations(t *testing.T) {
	gw, st, _ := setupTestGateway(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, phone := range []string{"+15550001111", "+15550001111", "+15550002222"} {
		require.NoError(t, st.AppendMessage(context.Background(), &store.Message{
			PhoneNumber: phone,
			Body:        "msg",
			Direction:   store.DirectionInbound,
			Status:      "received",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := doJSON(t, gw.handleConversations, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)

	// most recently active conversation first
	assert.Equal(t, "+15550002222", resp[0].PhoneNumber)
	assert.Equal(t, "+15550001111", resp[1].PhoneNumber)
	assert.Equal(t, 2, resp[1].MessageCount)
}

func TestHandleConversationMessages(t *testing.T) {
	gw, st, _ := setupTestGateway(t)

	require.NoError(t, st.AppendMessage(context.Background(), &store.Message{
		PhoneNumber: "+15550001111",
		Body:        "first",
		Direction:   store.DirectionInbound,
		Status:      "received",
	}))
	require.NoError(t, st.AppendMessage(context.Background(), &store.Message{
		PhoneNumber: "+15550001111",
		Body:        "second",
		Direction:   store.DirectionOutbound,
		Status:      "sent",
	}))

	rec := doJSON(t, gw.handleConversationMessages, http.MethodGet,
		"/api/conversations/+15550001111/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "+15550001111", resp.PhoneNumber)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "first", resp.Messages[0].Body)
	assert.Equal(t, "second", resp.Messages[1].Body)
}

func TestHandleConversationMessages_EmptyConversation(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleConversationMessages, http.MethodGet,
		"/api/conversations/+15559990000/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func TestHandleConversationMessages_InvalidPath(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleConversationMessages, http.MethodGet,
		"/api/conversations/+15550001111", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCampaigns_CreateAndGet(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns", CreateCampaignRequest{
		CampaignID:      "camp-1",
		Type:            "notice",
		TotalRecipients: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created CampaignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "camp-1", created.CampaignID)
	assert.Equal(t, store.CampaignStatusStarted, created.Status)
	assert.Equal(t, 100, created.Pending)
	assert.Equal(t, "0.75", created.EstimatedCost)
	assert.Equal(t, "0.00", created.ActualCost)

	rec = doJSON(t, gw.handleCampaignByID, http.MethodGet, "/api/campaigns/camp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched CampaignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.CampaignID, fetched.CampaignID)
}

func TestHandleCampaigns_DuplicateConflict(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	req := CreateCampaignRequest{CampaignID: "camp-1", TotalRecipients: 10}
	rec := doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCampaigns_CreateValidation(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns",
		CreateCampaignRequest{TotalRecipients: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns",
		CreateCampaignRequest{CampaignID: "camp-1", TotalRecipients: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCampaignByID_Update(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns", CreateCampaignRequest{
		CampaignID:      "camp-1",
		TotalRecipients: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, gw.handleCampaignByID, http.MethodPut, "/api/campaigns/camp-1", UpdateCampaignRequest{
		Successful: 4,
		Failed:     1,
		Details: []store.CampaignDetail{
			{Phone: "+15550001111", Success: true, MessageID: "gw-1"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated CampaignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, store.CampaignStatusInProgress, updated.Status)
	assert.Equal(t, 4, updated.Successful)
	assert.Equal(t, 1, updated.Failed)
	assert.Equal(t, 5, updated.Pending)
	assert.Equal(t, "0.03", updated.ActualCost)
	assert.Empty(t, updated.EndTime)

	// completing records the end time
	rec = doJSON(t, gw.handleCampaignByID, http.MethodPut, "/api/campaigns/camp-1", UpdateCampaignRequest{
		Successful: 9,
		Failed:     1,
		Completed:  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, store.CampaignStatusCompleted, updated.Status)
	assert.Equal(t, 0, updated.Pending)
	assert.NotEmpty(t, updated.EndTime)
}

func TestHandleCampaignByID_NotFound(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleCampaignByID, http.MethodGet, "/api/campaigns/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, gw.handleCampaignByID, http.MethodPut, "/api/campaigns/ghost",
		UpdateCampaignRequest{Successful: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListCampaigns(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	for _, id := range []string{"camp-1", "camp-2"} {
		rec := doJSON(t, gw.handleCampaigns, http.MethodPost, "/api/campaigns",
			CreateCampaignRequest{CampaignID: id, TotalRecipients: 4})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, gw.handleCampaigns, http.MethodGet, "/api/campaigns", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []CampaignSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestHandleListCampaigns_BadLimit(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleCampaigns, http.MethodGet, "/api/campaigns?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	gw, st, _ := setupTestGateway(t)

	require.NoError(t, st.AppendMessage(context.Background(), &store.Message{
		PhoneNumber: "+15550001111",
		Body:        "in",
		Direction:   store.DirectionInbound,
		Status:      "received",
	}))
	require.NoError(t, st.AppendMessage(context.Background(), &store.Message{
		PhoneNumber: "+15550001111",
		Body:        "out",
		Direction:   store.DirectionOutbound,
		Status:      "sent",
	}))

	rec := doJSON(t, gw.handleStats, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Inbound)
	assert.Equal(t, 1, resp.Outbound)
}

// streamLines connects to an SSE endpoint and forwards each line to a channel.
func streamLines(t *testing.T, url string) (<-chan string, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer resp.Body.Close()
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines, cancel
}

// waitForLine reads lines until one contains substr or the timeout elapses.
// Returns the collected lines either way.
func waitForLine(t *testing.T, lines <-chan string, substr string) []string {
	t.Helper()

	var seen []string
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q appeared; saw %v", substr, seen)
			}
			seen = append(seen, line)
			if strings.Contains(line, substr) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q; saw %v", substr, seen)
		}
	}
}

func TestHandleStream_ReceivesPublishedMessages(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	srv := httptest.NewServer(http.HandlerFunc(gw.handleStream))
	defer srv.Close()

	lines, cancel := streamLines(t, srv.URL+"/api/stream")
	defer cancel()

	waitForLine(t, lines, "event: connected")

	gw.broadcaster.Publish(&store.Message{
		ID:          "msg-1",
		PhoneNumber: "+15550001111",
		Body:        "hello",
		Direction:   store.DirectionInbound,
		Status:      "received",
		Timestamp:   time.Now().UTC(),
	})

	seen := waitForLine(t, lines, `"phoneNumber":"+15550001111"`)
	assert.Contains(t, strings.Join(seen, "\n"), "event: message")
}

func TestHandleStream_PhoneFilter(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	srv := httptest.NewServer(http.HandlerFunc(gw.handleStream))
	defer srv.Close()

	lines, cancel := streamLines(t, srv.URL+"/api/stream?phone=%2B15550001111")
	defer cancel()

	waitForLine(t, lines, "event: connected")

	gw.broadcaster.Publish(&store.Message{
		ID:          "other",
		PhoneNumber: "+15550009999",
		Body:        "not for this stream",
		Direction:   store.DirectionInbound,
		Timestamp:   time.Now().UTC(),
	})
	gw.broadcaster.Publish(&store.Message{
		ID:          "mine",
		PhoneNumber: "+15550001111",
		Body:        "for this stream",
		Direction:   store.DirectionInbound,
		Timestamp:   time.Now().UTC(),
	})

	seen := waitForLine(t, lines, `"id":"mine"`)
	assert.NotContains(t, strings.Join(seen, "\n"), `"id":"other"`)
}

func TestHandleHealth(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleHealth, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	gw, _, _ := setupTestGateway(t)

	rec := doJSON(t, gw.handleReady, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}
