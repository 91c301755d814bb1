// ABOUTME: Store interface and data types for relay-gateway persistence
// ABOUTME: Defines Message, Campaign structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateCampaign is returned when trying to create a campaign that already exists
var ErrDuplicateCampaign = errors.New("campaign already exists")

// DefaultRetentionLimit is the global cap on stored messages. When an append
// pushes the total past this bound, the oldest records are discarded first,
// regardless of which conversation they belong to.
const DefaultRetentionLimit = 1000

// messageUnitCost is the per-message cost in dollars used for campaign
// cost estimates.
const messageUnitCost = 0.0075

// Direction indicates whether a message was received from a phone number or
// relayed out to one.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is the canonical record every backend normalizes into. Records are
// immutable once appended; the only mutations are append and retention trim.
type Message struct {
	ID            string
	PhoneNumber   string
	Body          string
	Direction     Direction
	Status        string // open vocabulary: backends report different sets
	Timestamp     time.Time
	OriginBackend string // which adapter/webhook produced the record
	BackendRef    string // backend's own message id or error detail
}

// ConversationSummary is the per-phone-number projection returned by
// ListConversations. A conversation is never stored directly; it is always a
// query-time grouping of messages by phone number.
type ConversationSummary struct {
	PhoneNumber   string
	LastBody      string
	LastDirection Direction
	LastTimestamp time.Time
	MessageCount  int
}

// MessageStats holds today's message counters.
type MessageStats struct {
	Total    int
	Inbound  int
	Outbound int
	Failed   int
}

// Campaign status constants
const (
	CampaignStatusStarted    = "started"
	CampaignStatusInProgress = "in_progress"
	CampaignStatusCompleted  = "completed"
)

// CampaignDetail is one per-recipient outcome entry.
type CampaignDetail struct {
	Phone     string `json:"phone"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Campaign tracks a batch fan-out of one message template to many recipients.
type Campaign struct {
	CampaignID      string
	Type            string
	Status          string
	TotalRecipients int
	Successful      int
	Failed          int
	Pending         int
	MessageTemplate string
	Details         []CampaignDetail
	EstimatedCost   string
	ActualCost      string
	StartTime       time.Time
	EndTime         *time.Time
}

// CampaignSummary is the lightweight projection returned by ListCampaigns.
type CampaignSummary struct {
	CampaignID      string
	Type            string
	Status          string
	TotalRecipients int
	Successful      int
	Failed          int
	StartTime       time.Time
	EndTime         *time.Time
	ActualCost      string
	SuccessRate     string
}

// CampaignProgress carries one progress update. Successful, Failed and
// Details REPLACE the stored values; they are cumulative running totals, not
// deltas. Callers updating from multiple workers must accumulate the full
// totals themselves before calling. A non-nil EndTime completes the campaign.
type CampaignProgress struct {
	Successful int
	Failed     int
	Details    []CampaignDetail
	EndTime    *time.Time
}

// Store defines the interface for message and campaign persistence.
//
// Implementations must serialize the read-modify-write cycle of
// AppendMessage (globally) and UpdateCampaignProgress (per campaign id):
// two concurrent appends must never lose a record.
type Store interface {
	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	ListConversations(ctx context.Context) ([]*ConversationSummary, error)
	GetMessages(ctx context.Context, phoneNumber string) ([]*Message, error)
	StatsToday(ctx context.Context) (*MessageStats, error)

	// Campaigns
	CreateCampaign(ctx context.Context, c *Campaign) error
	UpdateCampaignProgress(ctx context.Context, campaignID string, progress CampaignProgress) (*Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*Campaign, error)
	ListCampaigns(ctx context.Context, limit int) ([]*CampaignSummary, error)

	// Close releases any resources held by the store
	Close() error
}

// EstimatedCost returns the formatted cost of sending to n recipients.
func EstimatedCost(n int) string {
	return fmt.Sprintf("%.2f", float64(n)*messageUnitCost)
}

// SuccessRate formats successful/total as a percentage with one decimal.
func SuccessRate(successful, total int) string {
	if total <= 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(successful)/float64(total)*100)
}
