// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing. A single mutex
// serializes every read-modify-write cycle, matching the Store contract.
type MockStore struct {
	mu             sync.RWMutex
	messages       []*Message
	campaigns      map[string]*Campaign
	retentionLimit int

	// FailAppend forces AppendMessage to return this error when set.
	FailAppend error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		campaigns:      make(map[string]*Campaign),
		retentionLimit: DefaultRetentionLimit,
	}
}

// SetRetentionLimit overrides the global message retention bound.
func (m *MockStore) SetRetentionLimit(n int) {
	if n >= 1 {
		m.retentionLimit = n
	}
}

// AppendMessage stores a message, trimming the oldest past the bound.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAppend != nil {
		return m.FailAppend
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	cp := *msg
	m.messages = append(m.messages, &cp)

	if over := len(m.messages) - m.retentionLimit; over > 0 {
		m.messages = m.messages[over:]
	}
	return nil
}

// ListConversations groups stored messages by phone number.
func (m *MockStore) ListConversations(ctx context.Context) ([]*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPhone := make(map[string]*ConversationSummary)
	for _, msg := range m.messages {
		sum, ok := byPhone[msg.PhoneNumber]
		if !ok {
			sum = &ConversationSummary{PhoneNumber: msg.PhoneNumber}
			byPhone[msg.PhoneNumber] = sum
		}
		sum.MessageCount++
		if !msg.Timestamp.Before(sum.LastTimestamp) {
			sum.LastBody = msg.Body
			sum.LastDirection = msg.Direction
			sum.LastTimestamp = msg.Timestamp
		}
	}

	summaries := make([]*ConversationSummary, 0, len(byPhone))
	for _, sum := range byPhone {
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp.After(summaries[j].LastTimestamp)
	})
	return summaries, nil
}

// GetMessages returns all records for a phone number in chronological order.
func (m *MockStore) GetMessages(ctx context.Context, phoneNumber string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*Message
	for _, msg := range m.messages {
		if msg.PhoneNumber == phoneNumber {
			cp := *msg
			msgs = append(msgs, &cp)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// StatsToday counts today's messages.
func (m *MockStore) StatsToday(ctx context.Context) (*MessageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	stats := &MessageStats{}
	for _, msg := range m.messages {
		if msg.Timestamp.Before(startOfDay) {
			continue
		}
		stats.Total++
		switch msg.Direction {
		case DirectionInbound:
			stats.Inbound++
		case DirectionOutbound:
			stats.Outbound++
		}
		if msg.Status == "failed" {
			stats.Failed++
		}
	}
	return stats, nil
}

// CreateCampaign stores a new campaign.
func (m *MockStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.campaigns[c.CampaignID]; ok {
		return ErrDuplicateCampaign
	}

	c.Status = CampaignStatusStarted
	c.Successful = 0
	c.Failed = 0
	c.Pending = c.TotalRecipients
	c.EstimatedCost = EstimatedCost(c.TotalRecipients)
	c.ActualCost = "0.00"
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().UTC()
	}
	if c.Details == nil {
		c.Details = []CampaignDetail{}
	}

	cp := *c
	m.campaigns[c.CampaignID] = &cp
	return nil
}

// UpdateCampaignProgress replaces counts and details with the supplied totals.
func (m *MockStore) UpdateCampaignProgress(ctx context.Context, campaignID string, progress CampaignProgress) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, ErrNotFound
	}

	c.Successful = progress.Successful
	c.Failed = progress.Failed
	c.Pending = c.TotalRecipients - c.Successful - c.Failed
	if c.Pending < 0 {
		c.Pending = 0
	}
	c.ActualCost = EstimatedCost(c.Successful)
	if progress.Details != nil {
		c.Details = progress.Details
	}
	if progress.EndTime != nil {
		t := progress.EndTime.UTC()
		c.EndTime = &t
		c.Status = CampaignStatusCompleted
	} else {
		c.Status = CampaignStatusInProgress
	}

	cp := *c
	return &cp, nil
}

// GetCampaign retrieves a campaign by id.
func (m *MockStore) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCampaigns returns recent campaigns as summaries.
func (m *MockStore) ListCampaigns(ctx context.Context, limit int) ([]*CampaignSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	all := make([]*Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})
	if len(all) > limit {
		all = all[:limit]
	}

	summaries := make([]*CampaignSummary, 0, len(all))
	for _, c := range all {
		summaries = append(summaries, &CampaignSummary{
			CampaignID:      c.CampaignID,
			Type:            c.Type,
			Status:          c.Status,
			TotalRecipients: c.TotalRecipients,
			Successful:      c.Successful,
			Failed:          c.Failed,
			StartTime:       c.StartTime,
			EndTime:         c.EndTime,
			ActualCost:      c.ActualCost,
			SuccessRate:     SuccessRate(c.Successful, c.TotalRecipients),
		})
	}
	return summaries, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
